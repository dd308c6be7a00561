package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// IssueOracleSummary converts an attestation into a signed, time-boxed
// minting authorization. Repeat calls return the stored summary unchanged.
func (s *Service) IssueOracleSummary(ctx context.Context, attestationID string) (summary OracleSummary, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"attestation_id": attestationID}
	defer func() {
		fields["project_id"] = summary.ProjectID
		s.observeOperation(ctx, startedAt, "issue_oracle_summary", err, fields)
	}()

	attestationID = strings.TrimSpace(attestationID)
	if attestationID == "" {
		err = s.mapError(ValidationError("attestation_id", "attestation id is required"))
		return OracleSummary{}, err
	}

	err = s.withLocks(ctx, []string{AttestationLockKey(attestationID)}, func() error {
		existing, getErr := s.summaryStore.Get(ctx, attestationID)
		if getErr == nil {
			summary = existing
			return nil
		}
		if !errors.Is(getErr, ErrRecordNotFound) {
			return getErr
		}

		attestation, getErr := s.attestationStore.Get(ctx, attestationID)
		if getErr != nil {
			if errors.Is(getErr, ErrRecordNotFound) {
				return NotFoundError("attestation not found")
			}
			return getErr
		}
		if verifyErr := VerifyMetricsHash(attestation.Metrics, attestation.MetricsHash); verifyErr != nil {
			return InvariantViolationError("attestation metrics do not match their recorded hash")
		}

		issuedAt := s.now().Truncate(time.Second)
		draft := OracleSummary{
			AttestationID:     attestation.ID,
			ProjectID:         attestation.ProjectID,
			Vintage:           attestation.IngestedAt.UTC().Year(),
			TCO2e:             attestation.TCO2e(),
			EvidenceReference: attestation.EvidenceReference,
			MetricsHash:       attestation.MetricsHash,
			Expiry:            issuedAt.Add(s.config.SummaryTTL()),
			IssuedAt:          issuedAt,
		}
		signed, signErr := s.signSummary(ctx, draft)
		if signErr != nil {
			return signErr
		}
		if ctxErr := checkContext(ctx); ctxErr != nil {
			return ctxErr
		}
		created, createErr := s.summaryStore.Create(ctx, signed)
		if createErr != nil {
			if errors.Is(createErr, ErrRecordExists) {
				summary, createErr = s.summaryStore.Get(ctx, attestationID)
				return createErr
			}
			return createErr
		}
		summary = created
		return nil
	})
	if err != nil {
		err = s.mapError(err)
		return OracleSummary{}, err
	}
	return summary, nil
}

func (s *Service) signSummary(ctx context.Context, summary OracleSummary) (OracleSummary, error) {
	if s.signer == nil {
		return OracleSummary{}, fmt.Errorf("core: summary signer is not configured")
	}
	payload, err := SummarySigningPayload(summary)
	if err != nil {
		return OracleSummary{}, err
	}
	signature, err := s.signer.Sign(ctx, payload)
	if err != nil {
		return OracleSummary{}, fmt.Errorf("core: sign oracle summary: %w", err)
	}
	summary.Signature = base64.StdEncoding.EncodeToString(signature)
	summary.SignatureAlg = s.signer.Algorithm()
	summary.KeyID = s.signer.KeyID()
	return summary, nil
}

func (s *Service) GetOracleSummary(ctx context.Context, attestationID string) (OracleSummary, error) {
	attestationID = strings.TrimSpace(attestationID)
	if attestationID == "" {
		return OracleSummary{}, s.mapError(ValidationError("attestation_id", "attestation id is required"))
	}
	summary, err := s.summaryStore.Get(ctx, attestationID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return OracleSummary{}, s.mapError(NotFoundError("oracle summary not found"))
		}
		return OracleSummary{}, s.mapError(err)
	}
	return summary, nil
}

// VerifyOracleSummary checks the summary signature with the configured
// verifier. A summary signed by another key fails with a mismatch.
func (s *Service) VerifyOracleSummary(ctx context.Context, summary OracleSummary) error {
	if s.verifier == nil {
		return s.mapError(fmt.Errorf("core: summary verifier is not configured"))
	}
	if s.signer != nil && summary.KeyID != "" && summary.KeyID != s.signer.KeyID() {
		return s.mapError(MismatchError("oracle summary was signed by an unknown key"))
	}
	signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(summary.Signature))
	if err != nil || len(signature) == 0 {
		return s.mapError(ValidationError("signature", "signature is not valid base64"))
	}
	payload, err := SummarySigningPayload(summary)
	if err != nil {
		return s.mapError(err)
	}
	if err := s.verifier.Verify(ctx, payload, signature); err != nil {
		return s.mapError(MismatchError("oracle summary signature does not verify"))
	}
	return nil
}
