package query

import (
	"github.com/goliatone/go-blueledger/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetProjectMessage, core.Project]                                 = (*GetProjectQuery)(nil)
	_ gocmd.Querier[ListProjectsMessage, []core.Project]                             = (*ListProjectsQuery)(nil)
	_ gocmd.Querier[ProjectStatsMessage, core.ProjectStats]                          = (*ProjectStatsQuery)(nil)
	_ gocmd.Querier[GetAttestationMessage, core.Attestation]                         = (*GetAttestationQuery)(nil)
	_ gocmd.Querier[GetLatestAttestationMessage, core.Attestation]                   = (*GetLatestAttestationQuery)(nil)
	_ gocmd.Querier[ListAttestationsMessage, []core.Attestation]                     = (*ListAttestationsQuery)(nil)
	_ gocmd.Querier[GetOracleSummaryMessage, core.OracleSummary]                     = (*GetOracleSummaryQuery)(nil)
	_ gocmd.Querier[VerifyOracleSummaryMessage, SummaryVerification]                 = (*VerifyOracleSummaryQuery)(nil)
	_ gocmd.Querier[GetHolderBalanceMessage, core.HolderBalance]                     = (*GetHolderBalanceQuery)(nil)
	_ gocmd.Querier[ListHolderPositionsMessage, []core.HolderPosition]               = (*ListHolderPositionsQuery)(nil)
	_ gocmd.Querier[ListHolderTransactionsMessage, []core.LedgerTransaction]         = (*ListHolderTransactionsQuery)(nil)
	_ gocmd.Querier[GetCreditLotMessage, core.CreditLot]                             = (*GetCreditLotQuery)(nil)
	_ gocmd.Querier[GetRetirementCertificateMessage, core.RetirementCertificate]     = (*GetRetirementCertificateQuery)(nil)
	_ gocmd.Querier[ListCreditLotsMessage, []core.CreditLot]                         = (*ListCreditLotsQuery)(nil)
	_ gocmd.Querier[ListRetirementCertificatesMessage, []core.RetirementCertificate] = (*ListRetirementCertificatesQuery)(nil)

	_ ProjectReader     = (*core.Service)(nil)
	_ AttestationReader = (*core.Service)(nil)
	_ SummaryReader     = (*core.Service)(nil)
	_ LedgerReader      = (*core.Service)(nil)
)
