package command

import (
	"strings"

	"github.com/goliatone/go-blueledger/core"
)

const (
	TypeSubmitProject      = "blueledger.command.project.submit"
	TypeApproveProject     = "blueledger.command.project.approve"
	TypeRejectProject      = "blueledger.command.project.reject"
	TypeIngestAttestation  = "blueledger.command.attestation.ingest"
	TypeIssueOracleSummary = "blueledger.command.oracle_summary.issue"
	TypeMintCredits        = "blueledger.command.credits.mint"
	TypeTransferCredits    = "blueledger.command.credits.transfer"
	TypeRetireCredits      = "blueledger.command.credits.retire"
	TypeReconcileChain     = "blueledger.command.chain.reconcile"
)

type SubmitProjectMessage struct {
	Input core.SubmitProjectInput
}

func (SubmitProjectMessage) Type() string { return TypeSubmitProject }

func (m SubmitProjectMessage) Validate() error {
	if strings.TrimSpace(m.Input.Name) == "" {
		return commandValidationError("name", "name is required")
	}
	if strings.TrimSpace(m.Input.Location) == "" {
		return commandValidationError("location", "location is required")
	}
	if strings.TrimSpace(m.Input.OwnerAddress) == "" {
		return commandValidationError("owner_address", "owner address is required")
	}
	if strings.TrimSpace(m.Input.Methodology) == "" {
		return commandValidationError("methodology", "methodology is required")
	}
	if m.Input.AreaHectares <= 0 {
		return commandValidationError("area_hectares", "area must be > 0")
	}
	return nil
}

type ApproveProjectMessage struct {
	ProjectID string
	Approver  string
}

func (ApproveProjectMessage) Type() string { return TypeApproveProject }

func (m ApproveProjectMessage) Validate() error {
	return requireField("project_id", m.ProjectID)
}

type RejectProjectMessage struct {
	ProjectID string
	Approver  string
	Reason    string
}

func (RejectProjectMessage) Type() string { return TypeRejectProject }

func (m RejectProjectMessage) Validate() error {
	if err := requireField("project_id", m.ProjectID); err != nil {
		return err
	}
	return requireField("reason", m.Reason)
}

type IngestAttestationMessage struct {
	Input core.IngestAttestationInput
}

func (IngestAttestationMessage) Type() string { return TypeIngestAttestation }

func (m IngestAttestationMessage) Validate() error {
	if err := requireField("project_id", m.Input.ProjectID); err != nil {
		return err
	}
	if err := requireField("evidence_reference", m.Input.EvidenceReference); err != nil {
		return err
	}
	if len(m.Input.Metrics) == 0 {
		return commandValidationError("metrics", "metrics are required")
	}
	return nil
}

type IssueOracleSummaryMessage struct {
	AttestationID string
}

func (IssueOracleSummaryMessage) Type() string { return TypeIssueOracleSummary }

func (m IssueOracleSummaryMessage) Validate() error {
	return requireField("attestation_id", m.AttestationID)
}

type MintCreditsMessage struct {
	Request core.MintRequest
}

func (MintCreditsMessage) Type() string { return TypeMintCredits }

func (m MintCreditsMessage) Validate() error {
	if err := requireField("project_id", m.Request.ProjectID); err != nil {
		return err
	}
	if err := requireField("attestation_id", m.Request.AttestationID); err != nil {
		return err
	}
	return requirePositive("amount", m.Request.Amount)
}

type TransferCreditsMessage struct {
	Request core.TransferRequest
}

func (TransferCreditsMessage) Type() string { return TypeTransferCredits }

func (m TransferCreditsMessage) Validate() error {
	if err := requireField("token_id", m.Request.TokenID); err != nil {
		return err
	}
	if err := requireField("from", m.Request.From); err != nil {
		return err
	}
	if err := requireField("to", m.Request.To); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.From) == strings.TrimSpace(m.Request.To) {
		return commandInvalidInputError("command: sender and recipient must differ")
	}
	return requirePositive("amount", m.Request.Amount)
}

type RetireCreditsMessage struct {
	Request core.RetireRequest
}

func (RetireCreditsMessage) Type() string { return TypeRetireCredits }

func (m RetireCreditsMessage) Validate() error {
	if err := requireField("holder", m.Request.Holder); err != nil {
		return err
	}
	if err := requireField("token_id", m.Request.TokenID); err != nil {
		return err
	}
	return requirePositive("amount", m.Request.Amount)
}

// ReconcileChainMessage resubmits due chain transactions. A zero BatchSize
// uses the configured default.
type ReconcileChainMessage struct {
	BatchSize int
}

func (ReconcileChainMessage) Type() string { return TypeReconcileChain }

func (m ReconcileChainMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batch_size", "batch size must be >= 0")
	}
	return nil
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return commandValidationError(field, field+" is required")
	}
	return nil
}

func requirePositive(field string, value int64) error {
	if value <= 0 {
		return commandValidationError(field, field+" must be > 0")
	}
	return nil
}
