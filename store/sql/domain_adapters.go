package sqlstore

import (
	"time"

	"github.com/goliatone/go-blueledger/core"
)

func newProjectRecord(project core.Project) *projectRecord {
	return &projectRecord{
		ID:              project.ID,
		Name:            project.Name,
		Description:     project.Description,
		Location:        project.Location,
		OwnerAddress:    project.OwnerAddress,
		Status:          string(project.Status),
		AreaHectares:    project.AreaHectares,
		Methodology:     project.Methodology,
		GeoReference:    project.GeoReference,
		Documents:       copyStrings(project.Documents),
		SubmittedAt:     project.SubmittedAt.UTC(),
		ApprovedAt:      copyTimePointer(project.ApprovedAt),
		ApprovedBy:      project.ApprovedBy,
		RejectedAt:      copyTimePointer(project.RejectedAt),
		RejectedBy:      project.RejectedBy,
		RejectionReason: project.RejectionReason,
		UpdatedAt:       project.UpdatedAt.UTC(),
	}
}

func (r *projectRecord) toDomain() core.Project {
	if r == nil {
		return core.Project{}
	}
	return core.Project{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		Location:        r.Location,
		OwnerAddress:    r.OwnerAddress,
		Status:          core.ProjectStatus(r.Status),
		AreaHectares:    r.AreaHectares,
		Methodology:     r.Methodology,
		GeoReference:    r.GeoReference,
		Documents:       copyStrings(r.Documents),
		SubmittedAt:     r.SubmittedAt.UTC(),
		ApprovedAt:      copyTimePointer(r.ApprovedAt),
		ApprovedBy:      r.ApprovedBy,
		RejectedAt:      copyTimePointer(r.RejectedAt),
		RejectedBy:      r.RejectedBy,
		RejectionReason: r.RejectionReason,
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func newAttestationRecord(attestation core.Attestation) *attestationRecord {
	return &attestationRecord{
		ID:                attestation.ID,
		ProjectID:         attestation.ProjectID,
		Sequence:          attestation.Sequence,
		Metrics:           copyMetrics(attestation.Metrics),
		MetricsHash:       attestation.MetricsHash,
		EvidenceReference: attestation.EvidenceReference,
		SchemaVersion:     attestation.SchemaVersion,
		IngestedAt:        attestation.IngestedAt.UTC(),
	}
}

func (r *attestationRecord) toDomain() core.Attestation {
	if r == nil {
		return core.Attestation{}
	}
	return core.Attestation{
		ID:                r.ID,
		ProjectID:         r.ProjectID,
		Metrics:           copyMetrics(r.Metrics),
		MetricsHash:       r.MetricsHash,
		EvidenceReference: r.EvidenceReference,
		SchemaVersion:     r.SchemaVersion,
		Sequence:          r.Sequence,
		IngestedAt:        r.IngestedAt.UTC(),
	}
}

func newOracleSummaryRecord(summary core.OracleSummary) *oracleSummaryRecord {
	return &oracleSummaryRecord{
		AttestationID:     summary.AttestationID,
		ProjectID:         summary.ProjectID,
		Vintage:           summary.Vintage,
		TCO2e:             summary.TCO2e,
		EvidenceReference: summary.EvidenceReference,
		MetricsHash:       summary.MetricsHash,
		Expiry:            summary.Expiry.UTC(),
		Signature:         summary.Signature,
		SignatureAlg:      summary.SignatureAlg,
		KeyID:             summary.KeyID,
		IssuedAt:          summary.IssuedAt.UTC(),
	}
}

func (r *oracleSummaryRecord) toDomain() core.OracleSummary {
	if r == nil {
		return core.OracleSummary{}
	}
	return core.OracleSummary{
		AttestationID:     r.AttestationID,
		ProjectID:         r.ProjectID,
		Vintage:           r.Vintage,
		TCO2e:             r.TCO2e,
		EvidenceReference: r.EvidenceReference,
		MetricsHash:       r.MetricsHash,
		Expiry:            r.Expiry.UTC(),
		Signature:         r.Signature,
		SignatureAlg:      r.SignatureAlg,
		KeyID:             r.KeyID,
		IssuedAt:          r.IssuedAt.UTC(),
	}
}

func newCreditLotRecord(lot core.CreditLot) *creditLotRecord {
	return &creditLotRecord{
		TokenID:           lot.TokenID,
		ProjectID:         lot.ProjectID,
		Vintage:           lot.Vintage,
		Amount:            lot.Amount,
		AttestationID:     lot.AttestationID,
		EvidenceReference: lot.EvidenceReference,
		Retired:           lot.Retired,
		Unallocated:       lot.Unallocated,
		ChainTxRef:        lot.ChainTxRef,
		ChainStatus:       string(lot.ChainStatus),
		MintedAt:          lot.MintedAt.UTC(),
		UpdatedAt:         lot.UpdatedAt.UTC(),
	}
}

func (r *creditLotRecord) toDomain() core.CreditLot {
	if r == nil {
		return core.CreditLot{}
	}
	return core.CreditLot{
		TokenID:           r.TokenID,
		ProjectID:         r.ProjectID,
		Vintage:           r.Vintage,
		Amount:            r.Amount,
		AttestationID:     r.AttestationID,
		EvidenceReference: r.EvidenceReference,
		Retired:           r.Retired,
		Unallocated:       r.Unallocated,
		ChainTxRef:        r.ChainTxRef,
		ChainStatus:       core.ChainStatus(r.ChainStatus),
		MintedAt:          r.MintedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func (r *holderBalanceRecord) toDomain() core.HolderBalance {
	if r == nil {
		return core.HolderBalance{}
	}
	return core.HolderBalance{
		HolderAddress: r.HolderAddress,
		Owned:         r.Owned,
		Retired:       r.Retired,
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func (r *holderPositionRecord) toDomain() core.HolderPosition {
	if r == nil {
		return core.HolderPosition{}
	}
	return core.HolderPosition{
		HolderAddress: r.HolderAddress,
		TokenID:       r.TokenID,
		Owned:         r.Owned,
		Retired:       r.Retired,
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func newCertificateRecord(certificate core.RetirementCertificate) *retirementCertificateRecord {
	return &retirementCertificateRecord{
		ID:            certificate.ID,
		HolderAddress: certificate.HolderAddress,
		TokenID:       certificate.TokenID,
		Amount:        certificate.Amount,
		Beneficiary:   certificate.Beneficiary,
		Purpose:       certificate.Purpose,
		ChainTxRef:    certificate.ChainTxRef,
		ChainStatus:   string(certificate.ChainStatus),
		RetiredAt:     certificate.RetiredAt.UTC(),
	}
}

func (r *retirementCertificateRecord) toDomain() core.RetirementCertificate {
	if r == nil {
		return core.RetirementCertificate{}
	}
	return core.RetirementCertificate{
		ID:            r.ID,
		HolderAddress: r.HolderAddress,
		TokenID:       r.TokenID,
		Amount:        r.Amount,
		Beneficiary:   r.Beneficiary,
		Purpose:       r.Purpose,
		ChainTxRef:    r.ChainTxRef,
		ChainStatus:   core.ChainStatus(r.ChainStatus),
		RetiredAt:     r.RetiredAt.UTC(),
	}
}

func newTransactionRecord(tx core.LedgerTransaction, sequence int64) *ledgerTransactionRecord {
	return &ledgerTransactionRecord{
		ID:                 tx.ID,
		Sequence:           sequence,
		Kind:               string(tx.Kind),
		TokenID:            tx.TokenID,
		ProjectID:          tx.ProjectID,
		FromAddress:        tx.FromAddress,
		ToAddress:          tx.ToAddress,
		Amount:             tx.Amount,
		PricePerCredit:     tx.PricePerCredit,
		TotalValue:         tx.TotalValue,
		CertificateID:      tx.CertificateID,
		ChainTxRef:         tx.ChainTxRef,
		ChainStatus:        string(tx.ChainStatus),
		ChainAttempts:      tx.ChainAttempts,
		ChainNextAttemptAt: copyTimePointer(tx.ChainNextAttemptAt),
		ChainLastError:     tx.ChainLastError,
		CreatedAt:          tx.CreatedAt.UTC(),
		UpdatedAt:          tx.UpdatedAt.UTC(),
	}
}

func (r *ledgerTransactionRecord) toDomain() core.LedgerTransaction {
	if r == nil {
		return core.LedgerTransaction{}
	}
	return core.LedgerTransaction{
		ID:                 r.ID,
		Kind:               core.TransactionKind(r.Kind),
		TokenID:            r.TokenID,
		ProjectID:          r.ProjectID,
		FromAddress:        r.FromAddress,
		ToAddress:          r.ToAddress,
		Amount:             r.Amount,
		PricePerCredit:     r.PricePerCredit,
		TotalValue:         r.TotalValue,
		CertificateID:      r.CertificateID,
		ChainTxRef:         r.ChainTxRef,
		ChainStatus:        core.ChainStatus(r.ChainStatus),
		ChainAttempts:      r.ChainAttempts,
		ChainNextAttemptAt: copyTimePointer(r.ChainNextAttemptAt),
		ChainLastError:     r.ChainLastError,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return append([]string(nil), in...)
}

func copyMetrics(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyTimePointer(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}
