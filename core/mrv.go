package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// IngestAttestation records a new MRV measurement for a project. Each call
// creates a new immutable attestation; earlier ones stay queryable.
func (s *Service) IngestAttestation(ctx context.Context, in IngestAttestationInput) (result IngestResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project_id": in.ProjectID}
	defer func() {
		fields["attestation_id"] = result.AttestationID
		s.observeOperation(ctx, startedAt, "ingest_attestation", err, fields)
	}()

	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" {
		err = s.mapError(ValidationError("project_id", "project id is required"))
		return IngestResult{}, err
	}
	if err = validateEvidenceReference(in.EvidenceReference); err != nil {
		err = s.mapError(err)
		return IngestResult{}, err
	}
	if err = validateMetrics(in.Metrics); err != nil {
		err = s.mapError(err)
		return IngestResult{}, err
	}
	schemaVersion := strings.TrimSpace(in.SchemaVersion)
	if schemaVersion == "" {
		schemaVersion = DefaultSchemaVersion
	}

	metrics := copyMetrics(in.Metrics)
	metricsHash, err := MetricsHash(metrics)
	if err != nil {
		err = s.mapError(err)
		return IngestResult{}, err
	}

	err = s.withLocks(ctx, []string{ProjectLockKey(projectID)}, func() error {
		if _, getErr := s.projectStore.Get(ctx, projectID); getErr != nil {
			if errors.Is(getErr, ErrRecordNotFound) {
				return NotFoundError("project not found")
			}
			return getErr
		}
		if ctxErr := checkContext(ctx); ctxErr != nil {
			return ctxErr
		}
		created, createErr := s.attestationStore.Create(ctx, Attestation{
			ID:                s.newID(),
			ProjectID:         projectID,
			Metrics:           metrics,
			MetricsHash:       metricsHash,
			EvidenceReference: strings.TrimSpace(in.EvidenceReference),
			SchemaVersion:     schemaVersion,
			IngestedAt:        s.now(),
		})
		if createErr != nil {
			return createErr
		}
		result = IngestResult{AttestationID: created.ID, MetricsHash: created.MetricsHash}
		return nil
	})
	if err != nil {
		err = s.mapError(err)
		return IngestResult{}, err
	}
	return result, nil
}

func (s *Service) GetLatestAttestation(ctx context.Context, projectID string) (Attestation, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return Attestation{}, s.mapError(ValidationError("project_id", "project id is required"))
	}
	attestation, err := s.attestationStore.GetLatest(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Attestation{}, s.mapError(NotFoundError("no attestation recorded for project"))
		}
		return Attestation{}, s.mapError(err)
	}
	return attestation, nil
}

func (s *Service) GetAttestation(ctx context.Context, attestationID string) (Attestation, error) {
	attestationID = strings.TrimSpace(attestationID)
	if attestationID == "" {
		return Attestation{}, s.mapError(ValidationError("attestation_id", "attestation id is required"))
	}
	attestation, err := s.attestationStore.Get(ctx, attestationID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Attestation{}, s.mapError(NotFoundError("attestation not found"))
		}
		return Attestation{}, s.mapError(err)
	}
	return attestation, nil
}

// ListAttestations returns every attestation for a project, oldest first.
func (s *Service) ListAttestations(ctx context.Context, projectID string) ([]Attestation, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, s.mapError(ValidationError("project_id", "project id is required"))
	}
	list, err := s.attestationStore.ListByProject(ctx, projectID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return list, nil
}
