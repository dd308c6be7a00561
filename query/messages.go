package query

import (
	"strings"

	"github.com/goliatone/go-blueledger/core"
)

const (
	TypeGetProject               = "blueledger.query.project.get"
	TypeListProjects             = "blueledger.query.project.list"
	TypeProjectStats             = "blueledger.query.project.stats"
	TypeGetAttestation           = "blueledger.query.attestation.get"
	TypeGetLatestAttestation     = "blueledger.query.attestation.latest"
	TypeListAttestations         = "blueledger.query.attestation.list"
	TypeGetOracleSummary         = "blueledger.query.oracle_summary.get"
	TypeVerifyOracleSummary      = "blueledger.query.oracle_summary.verify"
	TypeGetHolderBalance         = "blueledger.query.holder.balance"
	TypeListHolderPositions      = "blueledger.query.holder.positions"
	TypeListHolderTransactions   = "blueledger.query.holder.transactions"
	TypeGetCreditLot             = "blueledger.query.credit_lot.get"
	TypeGetRetirementCertificate = "blueledger.query.certificate.get"
	TypeListCreditLots           = "blueledger.query.credit_lot.list"
	TypeListCertificates         = "blueledger.query.certificate.list"
)

type GetProjectMessage struct {
	ProjectID string
}

func (GetProjectMessage) Type() string { return TypeGetProject }

func (m GetProjectMessage) Validate() error {
	return requireField("project_id", m.ProjectID)
}

// ListProjectsMessage filters by status. An empty status or "all" lists every
// project.
type ListProjectsMessage struct {
	Filter core.ProjectFilter
}

func (ListProjectsMessage) Type() string { return TypeListProjects }

func (m ListProjectsMessage) Validate() error {
	status := strings.TrimSpace(string(m.Filter.Status))
	if status == "" || strings.EqualFold(status, "all") {
		return nil
	}
	if !core.ProjectStatus(strings.ToLower(status)).Valid() {
		return queryValidationError("status", "unknown project status")
	}
	return nil
}

type ProjectStatsMessage struct{}

func (ProjectStatsMessage) Type() string { return TypeProjectStats }

func (ProjectStatsMessage) Validate() error { return nil }

type GetAttestationMessage struct {
	AttestationID string
}

func (GetAttestationMessage) Type() string { return TypeGetAttestation }

func (m GetAttestationMessage) Validate() error {
	return requireField("attestation_id", m.AttestationID)
}

type GetLatestAttestationMessage struct {
	ProjectID string
}

func (GetLatestAttestationMessage) Type() string { return TypeGetLatestAttestation }

func (m GetLatestAttestationMessage) Validate() error {
	return requireField("project_id", m.ProjectID)
}

type ListAttestationsMessage struct {
	ProjectID string
}

func (ListAttestationsMessage) Type() string { return TypeListAttestations }

func (m ListAttestationsMessage) Validate() error {
	return requireField("project_id", m.ProjectID)
}

type GetOracleSummaryMessage struct {
	AttestationID string
}

func (GetOracleSummaryMessage) Type() string { return TypeGetOracleSummary }

func (m GetOracleSummaryMessage) Validate() error {
	return requireField("attestation_id", m.AttestationID)
}

type VerifyOracleSummaryMessage struct {
	Summary core.OracleSummary
}

func (VerifyOracleSummaryMessage) Type() string { return TypeVerifyOracleSummary }

func (m VerifyOracleSummaryMessage) Validate() error {
	if err := requireField("attestation_id", m.Summary.AttestationID); err != nil {
		return err
	}
	return requireField("signature", m.Summary.Signature)
}

type GetHolderBalanceMessage struct {
	Holder string
}

func (GetHolderBalanceMessage) Type() string { return TypeGetHolderBalance }

func (m GetHolderBalanceMessage) Validate() error {
	return requireField("holder", m.Holder)
}

type ListHolderPositionsMessage struct {
	Holder string
}

func (ListHolderPositionsMessage) Type() string { return TypeListHolderPositions }

func (m ListHolderPositionsMessage) Validate() error {
	return requireField("holder", m.Holder)
}

type ListHolderTransactionsMessage struct {
	Holder string
}

func (ListHolderTransactionsMessage) Type() string { return TypeListHolderTransactions }

func (m ListHolderTransactionsMessage) Validate() error {
	return requireField("holder", m.Holder)
}

type GetCreditLotMessage struct {
	TokenID string
}

func (GetCreditLotMessage) Type() string { return TypeGetCreditLot }

func (m GetCreditLotMessage) Validate() error {
	return requireField("token_id", m.TokenID)
}

type GetRetirementCertificateMessage struct {
	CertificateID string
}

func (GetRetirementCertificateMessage) Type() string { return TypeGetRetirementCertificate }

func (m GetRetirementCertificateMessage) Validate() error {
	return requireField("certificate_id", m.CertificateID)
}

// ListCreditLotsMessage lists every minted lot, or one project's lots.
type ListCreditLotsMessage struct {
	Filter core.CreditLotFilter
}

func (ListCreditLotsMessage) Type() string { return TypeListCreditLots }

type ListRetirementCertificatesMessage struct {
	Filter core.CertificateFilter
}

func (ListRetirementCertificatesMessage) Type() string { return TypeListCertificates }

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return queryValidationError(field, field+" is required")
	}
	return nil
}
