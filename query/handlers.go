package query

import (
	"context"

	"github.com/goliatone/go-blueledger/core"
)

type ProjectReader interface {
	GetProject(ctx context.Context, projectID string) (core.Project, error)
	ListProjects(ctx context.Context, filter core.ProjectFilter) ([]core.Project, error)
	ProjectStats(ctx context.Context) (core.ProjectStats, error)
}

type AttestationReader interface {
	GetAttestation(ctx context.Context, attestationID string) (core.Attestation, error)
	GetLatestAttestation(ctx context.Context, projectID string) (core.Attestation, error)
	ListAttestations(ctx context.Context, projectID string) ([]core.Attestation, error)
}

type SummaryReader interface {
	GetOracleSummary(ctx context.Context, attestationID string) (core.OracleSummary, error)
	VerifyOracleSummary(ctx context.Context, summary core.OracleSummary) error
}

type LedgerReader interface {
	GetHolderBalance(ctx context.Context, holder string) (core.HolderBalance, error)
	ListHolderPositions(ctx context.Context, holder string) ([]core.HolderPosition, error)
	ListHolderTransactions(ctx context.Context, holder string) ([]core.LedgerTransaction, error)
	GetCreditLot(ctx context.Context, tokenID string) (core.CreditLot, error)
	GetRetirementCertificate(ctx context.Context, certificateID string) (core.RetirementCertificate, error)
	ListCreditLots(ctx context.Context, filter core.CreditLotFilter) ([]core.CreditLot, error)
	ListRetirementCertificates(ctx context.Context, filter core.CertificateFilter) ([]core.RetirementCertificate, error)
}

// SummaryVerification reports whether a presented summary carries a valid
// oracle signature.
type SummaryVerification struct {
	AttestationID string
	Valid         bool
	Reason        string
}

type GetProjectQuery struct {
	reader ProjectReader
}

func NewGetProjectQuery(reader ProjectReader) *GetProjectQuery {
	return &GetProjectQuery{reader: reader}
}

func (q *GetProjectQuery) Query(ctx context.Context, msg GetProjectMessage) (core.Project, error) {
	if q == nil || q.reader == nil {
		return core.Project{}, queryDependencyError("query: project reader is required")
	}
	return q.reader.GetProject(ctx, msg.ProjectID)
}

type ListProjectsQuery struct {
	reader ProjectReader
}

func NewListProjectsQuery(reader ProjectReader) *ListProjectsQuery {
	return &ListProjectsQuery{reader: reader}
}

func (q *ListProjectsQuery) Query(ctx context.Context, msg ListProjectsMessage) ([]core.Project, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: project reader is required")
	}
	return q.reader.ListProjects(ctx, msg.Filter)
}

type ProjectStatsQuery struct {
	reader ProjectReader
}

func NewProjectStatsQuery(reader ProjectReader) *ProjectStatsQuery {
	return &ProjectStatsQuery{reader: reader}
}

func (q *ProjectStatsQuery) Query(ctx context.Context, _ ProjectStatsMessage) (core.ProjectStats, error) {
	if q == nil || q.reader == nil {
		return core.ProjectStats{}, queryDependencyError("query: project reader is required")
	}
	return q.reader.ProjectStats(ctx)
}

type GetAttestationQuery struct {
	reader AttestationReader
}

func NewGetAttestationQuery(reader AttestationReader) *GetAttestationQuery {
	return &GetAttestationQuery{reader: reader}
}

func (q *GetAttestationQuery) Query(ctx context.Context, msg GetAttestationMessage) (core.Attestation, error) {
	if q == nil || q.reader == nil {
		return core.Attestation{}, queryDependencyError("query: attestation reader is required")
	}
	return q.reader.GetAttestation(ctx, msg.AttestationID)
}

type GetLatestAttestationQuery struct {
	reader AttestationReader
}

func NewGetLatestAttestationQuery(reader AttestationReader) *GetLatestAttestationQuery {
	return &GetLatestAttestationQuery{reader: reader}
}

func (q *GetLatestAttestationQuery) Query(ctx context.Context, msg GetLatestAttestationMessage) (core.Attestation, error) {
	if q == nil || q.reader == nil {
		return core.Attestation{}, queryDependencyError("query: attestation reader is required")
	}
	return q.reader.GetLatestAttestation(ctx, msg.ProjectID)
}

type ListAttestationsQuery struct {
	reader AttestationReader
}

func NewListAttestationsQuery(reader AttestationReader) *ListAttestationsQuery {
	return &ListAttestationsQuery{reader: reader}
}

func (q *ListAttestationsQuery) Query(ctx context.Context, msg ListAttestationsMessage) ([]core.Attestation, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: attestation reader is required")
	}
	return q.reader.ListAttestations(ctx, msg.ProjectID)
}

type GetOracleSummaryQuery struct {
	reader SummaryReader
}

func NewGetOracleSummaryQuery(reader SummaryReader) *GetOracleSummaryQuery {
	return &GetOracleSummaryQuery{reader: reader}
}

func (q *GetOracleSummaryQuery) Query(ctx context.Context, msg GetOracleSummaryMessage) (core.OracleSummary, error) {
	if q == nil || q.reader == nil {
		return core.OracleSummary{}, queryDependencyError("query: oracle summary reader is required")
	}
	return q.reader.GetOracleSummary(ctx, msg.AttestationID)
}

type VerifyOracleSummaryQuery struct {
	reader SummaryReader
}

func NewVerifyOracleSummaryQuery(reader SummaryReader) *VerifyOracleSummaryQuery {
	return &VerifyOracleSummaryQuery{reader: reader}
}

// Query reports a tampered or foreign summary as Valid=false. Lookup and
// infrastructure failures are returned as errors.
func (q *VerifyOracleSummaryQuery) Query(ctx context.Context, msg VerifyOracleSummaryMessage) (SummaryVerification, error) {
	if q == nil || q.reader == nil {
		return SummaryVerification{}, queryDependencyError("query: oracle summary reader is required")
	}
	out := SummaryVerification{AttestationID: msg.Summary.AttestationID}
	err := q.reader.VerifyOracleSummary(ctx, msg.Summary)
	switch {
	case err == nil:
		out.Valid = true
		return out, nil
	case core.IsKind(err, core.LedgerErrorMismatch), core.IsKind(err, core.LedgerErrorValidation):
		out.Reason = err.Error()
		return out, nil
	default:
		return SummaryVerification{}, err
	}
}

type GetHolderBalanceQuery struct {
	reader LedgerReader
}

func NewGetHolderBalanceQuery(reader LedgerReader) *GetHolderBalanceQuery {
	return &GetHolderBalanceQuery{reader: reader}
}

func (q *GetHolderBalanceQuery) Query(ctx context.Context, msg GetHolderBalanceMessage) (core.HolderBalance, error) {
	if q == nil || q.reader == nil {
		return core.HolderBalance{}, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.GetHolderBalance(ctx, msg.Holder)
}

type ListHolderPositionsQuery struct {
	reader LedgerReader
}

func NewListHolderPositionsQuery(reader LedgerReader) *ListHolderPositionsQuery {
	return &ListHolderPositionsQuery{reader: reader}
}

func (q *ListHolderPositionsQuery) Query(ctx context.Context, msg ListHolderPositionsMessage) ([]core.HolderPosition, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.ListHolderPositions(ctx, msg.Holder)
}

type ListHolderTransactionsQuery struct {
	reader LedgerReader
}

func NewListHolderTransactionsQuery(reader LedgerReader) *ListHolderTransactionsQuery {
	return &ListHolderTransactionsQuery{reader: reader}
}

func (q *ListHolderTransactionsQuery) Query(
	ctx context.Context,
	msg ListHolderTransactionsMessage,
) ([]core.LedgerTransaction, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.ListHolderTransactions(ctx, msg.Holder)
}

type GetCreditLotQuery struct {
	reader LedgerReader
}

func NewGetCreditLotQuery(reader LedgerReader) *GetCreditLotQuery {
	return &GetCreditLotQuery{reader: reader}
}

func (q *GetCreditLotQuery) Query(ctx context.Context, msg GetCreditLotMessage) (core.CreditLot, error) {
	if q == nil || q.reader == nil {
		return core.CreditLot{}, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.GetCreditLot(ctx, msg.TokenID)
}

type GetRetirementCertificateQuery struct {
	reader LedgerReader
}

func NewGetRetirementCertificateQuery(reader LedgerReader) *GetRetirementCertificateQuery {
	return &GetRetirementCertificateQuery{reader: reader}
}

func (q *GetRetirementCertificateQuery) Query(
	ctx context.Context,
	msg GetRetirementCertificateMessage,
) (core.RetirementCertificate, error) {
	if q == nil || q.reader == nil {
		return core.RetirementCertificate{}, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.GetRetirementCertificate(ctx, msg.CertificateID)
}

type ListCreditLotsQuery struct {
	reader LedgerReader
}

func NewListCreditLotsQuery(reader LedgerReader) *ListCreditLotsQuery {
	return &ListCreditLotsQuery{reader: reader}
}

func (q *ListCreditLotsQuery) Query(ctx context.Context, msg ListCreditLotsMessage) ([]core.CreditLot, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.ListCreditLots(ctx, msg.Filter)
}

type ListRetirementCertificatesQuery struct {
	reader LedgerReader
}

func NewListRetirementCertificatesQuery(reader LedgerReader) *ListRetirementCertificatesQuery {
	return &ListRetirementCertificatesQuery{reader: reader}
}

func (q *ListRetirementCertificatesQuery) Query(
	ctx context.Context,
	msg ListRetirementCertificatesMessage,
) ([]core.RetirementCertificate, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.ListRetirementCertificates(ctx, msg.Filter)
}
