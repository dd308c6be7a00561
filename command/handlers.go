package command

import (
	"context"

	"github.com/goliatone/go-blueledger/core"
	gocmd "github.com/goliatone/go-command"
)

// MutatingService is the write side of the ledger.
type MutatingService interface {
	SubmitProject(ctx context.Context, in core.SubmitProjectInput) (core.Project, error)
	ApproveProject(ctx context.Context, projectID string, approver string) (core.Project, error)
	RejectProject(ctx context.Context, projectID string, approver string, reason string) (core.Project, error)
	IngestAttestation(ctx context.Context, in core.IngestAttestationInput) (core.IngestResult, error)
	IssueOracleSummary(ctx context.Context, attestationID string) (core.OracleSummary, error)
	MintCredits(ctx context.Context, req core.MintRequest) (core.MintResult, error)
	TransferCredits(ctx context.Context, req core.TransferRequest) (core.TransferResult, error)
	RetireCredits(ctx context.Context, req core.RetireRequest) (core.RetireResult, error)
	ReconcileChain(ctx context.Context, batchSize int) (core.ReconcileStats, error)
}

type SubmitProjectCommand struct {
	service MutatingService
}

func NewSubmitProjectCommand(service MutatingService) *SubmitProjectCommand {
	return &SubmitProjectCommand{service: service}
}

func (c *SubmitProjectCommand) Execute(ctx context.Context, msg SubmitProjectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: project service is required")
	}
	out, err := c.service.SubmitProject(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ApproveProjectCommand struct {
	service MutatingService
}

func NewApproveProjectCommand(service MutatingService) *ApproveProjectCommand {
	return &ApproveProjectCommand{service: service}
}

func (c *ApproveProjectCommand) Execute(ctx context.Context, msg ApproveProjectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: project service is required")
	}
	out, err := c.service.ApproveProject(ctx, msg.ProjectID, msg.Approver)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RejectProjectCommand struct {
	service MutatingService
}

func NewRejectProjectCommand(service MutatingService) *RejectProjectCommand {
	return &RejectProjectCommand{service: service}
}

func (c *RejectProjectCommand) Execute(ctx context.Context, msg RejectProjectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: project service is required")
	}
	out, err := c.service.RejectProject(ctx, msg.ProjectID, msg.Approver, msg.Reason)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type IngestAttestationCommand struct {
	service MutatingService
}

func NewIngestAttestationCommand(service MutatingService) *IngestAttestationCommand {
	return &IngestAttestationCommand{service: service}
}

func (c *IngestAttestationCommand) Execute(ctx context.Context, msg IngestAttestationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: mrv service is required")
	}
	out, err := c.service.IngestAttestation(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type IssueOracleSummaryCommand struct {
	service MutatingService
}

func NewIssueOracleSummaryCommand(service MutatingService) *IssueOracleSummaryCommand {
	return &IssueOracleSummaryCommand{service: service}
}

func (c *IssueOracleSummaryCommand) Execute(ctx context.Context, msg IssueOracleSummaryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: oracle service is required")
	}
	out, err := c.service.IssueOracleSummary(ctx, msg.AttestationID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type MintCreditsCommand struct {
	service MutatingService
}

func NewMintCreditsCommand(service MutatingService) *MintCreditsCommand {
	return &MintCreditsCommand{service: service}
}

// Execute stores the result even when only the chain submission failed, so
// callers can still read the committed token id.
func (c *MintCreditsCommand) Execute(ctx context.Context, msg MintCreditsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ledger service is required")
	}
	out, err := c.service.MintCredits(ctx, msg.Request)
	if err != nil && !core.IsChainError(err) {
		return err
	}
	storeResult(ctx, out)
	return err
}

type TransferCreditsCommand struct {
	service MutatingService
}

func NewTransferCreditsCommand(service MutatingService) *TransferCreditsCommand {
	return &TransferCreditsCommand{service: service}
}

func (c *TransferCreditsCommand) Execute(ctx context.Context, msg TransferCreditsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ledger service is required")
	}
	out, err := c.service.TransferCredits(ctx, msg.Request)
	if err != nil && !core.IsChainError(err) {
		return err
	}
	storeResult(ctx, out)
	return err
}

type RetireCreditsCommand struct {
	service MutatingService
}

func NewRetireCreditsCommand(service MutatingService) *RetireCreditsCommand {
	return &RetireCreditsCommand{service: service}
}

func (c *RetireCreditsCommand) Execute(ctx context.Context, msg RetireCreditsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ledger service is required")
	}
	out, err := c.service.RetireCredits(ctx, msg.Request)
	if err != nil && !core.IsChainError(err) {
		return err
	}
	storeResult(ctx, out)
	return err
}

type ReconcileChainCommand struct {
	service MutatingService
}

func NewReconcileChainCommand(service MutatingService) *ReconcileChainCommand {
	return &ReconcileChainCommand{service: service}
}

func (c *ReconcileChainCommand) Execute(ctx context.Context, msg ReconcileChainMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ledger service is required")
	}
	out, err := c.service.ReconcileChain(ctx, msg.BatchSize)
	storeResult(ctx, out)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
