package blueledger

import (
	"fmt"

	ledgercommand "github.com/goliatone/go-blueledger/command"
	ledgerquery "github.com/goliatone/go-blueledger/query"
)

type CommandQueryService interface {
	ledgercommand.MutatingService
	ledgerquery.ProjectReader
	ledgerquery.AttestationReader
	ledgerquery.SummaryReader
	ledgerquery.LedgerReader
}

type Commands struct {
	SubmitProject      *ledgercommand.SubmitProjectCommand
	ApproveProject     *ledgercommand.ApproveProjectCommand
	RejectProject      *ledgercommand.RejectProjectCommand
	IngestAttestation  *ledgercommand.IngestAttestationCommand
	IssueOracleSummary *ledgercommand.IssueOracleSummaryCommand
	MintCredits        *ledgercommand.MintCreditsCommand
	TransferCredits    *ledgercommand.TransferCreditsCommand
	RetireCredits      *ledgercommand.RetireCreditsCommand
	ReconcileChain     *ledgercommand.ReconcileChainCommand
}

type Queries struct {
	GetProject               *ledgerquery.GetProjectQuery
	ListProjects             *ledgerquery.ListProjectsQuery
	ProjectStats             *ledgerquery.ProjectStatsQuery
	GetAttestation           *ledgerquery.GetAttestationQuery
	GetLatestAttestation     *ledgerquery.GetLatestAttestationQuery
	ListAttestations         *ledgerquery.ListAttestationsQuery
	GetOracleSummary         *ledgerquery.GetOracleSummaryQuery
	VerifyOracleSummary      *ledgerquery.VerifyOracleSummaryQuery
	GetHolderBalance         *ledgerquery.GetHolderBalanceQuery
	ListHolderPositions      *ledgerquery.ListHolderPositionsQuery
	ListHolderTransactions   *ledgerquery.ListHolderTransactionsQuery
	GetCreditLot             *ledgerquery.GetCreditLotQuery
	GetRetirementCertificate *ledgerquery.GetRetirementCertificateQuery
	ListCreditLots           *ledgerquery.ListCreditLotsQuery
	ListCertificates         *ledgerquery.ListRetirementCertificatesQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("blueledger: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		SubmitProject:      ledgercommand.NewSubmitProjectCommand(service),
		ApproveProject:     ledgercommand.NewApproveProjectCommand(service),
		RejectProject:      ledgercommand.NewRejectProjectCommand(service),
		IngestAttestation:  ledgercommand.NewIngestAttestationCommand(service),
		IssueOracleSummary: ledgercommand.NewIssueOracleSummaryCommand(service),
		MintCredits:        ledgercommand.NewMintCreditsCommand(service),
		TransferCredits:    ledgercommand.NewTransferCreditsCommand(service),
		RetireCredits:      ledgercommand.NewRetireCreditsCommand(service),
		ReconcileChain:     ledgercommand.NewReconcileChainCommand(service),
	}
	facade.queries = Queries{
		GetProject:               ledgerquery.NewGetProjectQuery(service),
		ListProjects:             ledgerquery.NewListProjectsQuery(service),
		ProjectStats:             ledgerquery.NewProjectStatsQuery(service),
		GetAttestation:           ledgerquery.NewGetAttestationQuery(service),
		GetLatestAttestation:     ledgerquery.NewGetLatestAttestationQuery(service),
		ListAttestations:         ledgerquery.NewListAttestationsQuery(service),
		GetOracleSummary:         ledgerquery.NewGetOracleSummaryQuery(service),
		VerifyOracleSummary:      ledgerquery.NewVerifyOracleSummaryQuery(service),
		GetHolderBalance:         ledgerquery.NewGetHolderBalanceQuery(service),
		ListHolderPositions:      ledgerquery.NewListHolderPositionsQuery(service),
		ListHolderTransactions:   ledgerquery.NewListHolderTransactionsQuery(service),
		GetCreditLot:             ledgerquery.NewGetCreditLotQuery(service),
		GetRetirementCertificate: ledgerquery.NewGetRetirementCertificateQuery(service),
		ListCreditLots:           ledgerquery.NewListCreditLotsQuery(service),
		ListCertificates:         ledgerquery.NewListRetirementCertificatesQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
