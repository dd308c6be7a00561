package command

import (
	"github.com/goliatone/go-blueledger/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[SubmitProjectMessage]      = (*SubmitProjectCommand)(nil)
	_ gocmd.Commander[ApproveProjectMessage]     = (*ApproveProjectCommand)(nil)
	_ gocmd.Commander[RejectProjectMessage]      = (*RejectProjectCommand)(nil)
	_ gocmd.Commander[IngestAttestationMessage]  = (*IngestAttestationCommand)(nil)
	_ gocmd.Commander[IssueOracleSummaryMessage] = (*IssueOracleSummaryCommand)(nil)
	_ gocmd.Commander[MintCreditsMessage]        = (*MintCreditsCommand)(nil)
	_ gocmd.Commander[TransferCreditsMessage]    = (*TransferCreditsCommand)(nil)
	_ gocmd.Commander[RetireCreditsMessage]      = (*RetireCreditsCommand)(nil)
	_ gocmd.Commander[ReconcileChainMessage]     = (*ReconcileChainCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)
