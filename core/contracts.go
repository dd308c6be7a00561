package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type IDGenerator interface {
	NewID() string
}

type ProjectStore interface {
	Create(ctx context.Context, project Project) (Project, error)
	Get(ctx context.Context, id string) (Project, error)
	List(ctx context.Context, filter ProjectFilter) ([]Project, error)
	Update(ctx context.Context, project Project) (Project, error)
}

type AttestationStore interface {
	// Create persists a new attestation and assigns its per-project sequence.
	Create(ctx context.Context, attestation Attestation) (Attestation, error)
	Get(ctx context.Context, id string) (Attestation, error)
	GetLatest(ctx context.Context, projectID string) (Attestation, error)
	ListByProject(ctx context.Context, projectID string) ([]Attestation, error)
}

type SummaryStore interface {
	// Create fails with ErrRecordExists when a summary already exists.
	Create(ctx context.Context, summary OracleSummary) (OracleSummary, error)
	Get(ctx context.Context, attestationID string) (OracleSummary, error)
}

type LedgerStore interface {
	GetLot(ctx context.Context, tokenID string) (CreditLot, error)
	FindLotByAttestation(ctx context.Context, attestationID string) (CreditLot, bool, error)
	// GetBalance returns a zero balance for unknown holders.
	GetBalance(ctx context.Context, holder string) (HolderBalance, error)
	// GetPosition returns a zero position when the holder has none in the lot.
	GetPosition(ctx context.Context, holder string, tokenID string) (HolderPosition, error)
	ListLotPositions(ctx context.Context, tokenID string) ([]HolderPosition, error)
	ListHolderPositions(ctx context.Context, holder string) ([]HolderPosition, error)
	ListHolderTransactions(ctx context.Context, holder string) ([]LedgerTransaction, error)
	GetCertificate(ctx context.Context, id string) (RetirementCertificate, error)
	ListLots(ctx context.Context, filter CreditLotFilter) ([]CreditLot, error)
	ListCertificates(ctx context.Context, filter CertificateFilter) ([]RetirementCertificate, error)
	Commit(ctx context.Context, mutation LedgerMutation) error
	ListPendingChainTransactions(ctx context.Context, now time.Time, limit int) ([]LedgerTransaction, error)
	// ClaimChainTransaction moves a due pending transaction's next attempt to
	// claim.LeaseUntil. It reports false when the transaction is not pending,
	// not due, or its attempt count moved on.
	ClaimChainTransaction(ctx context.Context, claim ChainClaim) (bool, error)
	// RecordChainResult returns ErrChainResultStale unless the transaction is
	// still pending and result.Attempts is above the stored count.
	RecordChainResult(ctx context.Context, result ChainResult) error
}

type StoreProvider interface {
	ProjectStore() ProjectStore
	AttestationStore() AttestationStore
	SummaryStore() SummaryStore
	LedgerStore() LedgerStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// RecordLocker provides blocking exclusion scopes over record keys.
// AcquireAll takes every key or none of them.
type RecordLocker interface {
	AcquireAll(ctx context.Context, keys []string, ttl time.Duration) (LockHandle, error)
}

type SummarySigner interface {
	Algorithm() string
	KeyID() string
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

type SummaryVerifier interface {
	Verify(ctx context.Context, payload []byte, signature []byte) error
}

type IssuanceRequest struct {
	ProjectID         string
	AttestationID     string
	AreaHectares      float64
	TCO2e             float64
	Amount            int64
	CreditsPerHectare float64
	CapByArea         bool
}

type IssuanceDecision struct {
	Allowed bool
	Cap     int64
	Capped  bool
	Reason  string
}

type IssuancePolicy interface {
	Evaluate(ctx context.Context, req IssuanceRequest) (IssuanceDecision, error)
}

type ChainOperation struct {
	Kind              TransactionKind
	TransactionID     string
	TokenID           string
	CertificateID     string
	FromAddress       string
	ToAddress         string
	Amount            int64
	EvidenceReference string
}

// ChainAdapter submits ledger operations to an external chain and returns an
// opaque transaction reference. TransactionID is stable across retries.
type ChainAdapter interface {
	Submit(ctx context.Context, op ChainOperation) (string, error)
}

type ProvenanceValidator interface {
	ValidateLot(lot CreditLot, positions []HolderPosition) error
	ValidateHolder(balance HolderBalance, positions []HolderPosition) error
}

type ProjectRegistry interface {
	SubmitProject(ctx context.Context, in SubmitProjectInput) (Project, error)
	ApproveProject(ctx context.Context, projectID string, approver string) (Project, error)
	RejectProject(ctx context.Context, projectID string, approver string, reason string) (Project, error)
	GetProject(ctx context.Context, projectID string) (Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error)
	ProjectStats(ctx context.Context) (ProjectStats, error)
}

type MRVRegistry interface {
	IngestAttestation(ctx context.Context, in IngestAttestationInput) (IngestResult, error)
	GetLatestAttestation(ctx context.Context, projectID string) (Attestation, error)
	GetAttestation(ctx context.Context, attestationID string) (Attestation, error)
	ListAttestations(ctx context.Context, projectID string) ([]Attestation, error)
}

type OracleIssuer interface {
	IssueOracleSummary(ctx context.Context, attestationID string) (OracleSummary, error)
	GetOracleSummary(ctx context.Context, attestationID string) (OracleSummary, error)
	VerifyOracleSummary(ctx context.Context, summary OracleSummary) error
}

type CreditLedger interface {
	MintCredits(ctx context.Context, req MintRequest) (MintResult, error)
	TransferCredits(ctx context.Context, req TransferRequest) (TransferResult, error)
	RetireCredits(ctx context.Context, req RetireRequest) (RetireResult, error)
	GetHolderBalance(ctx context.Context, holder string) (HolderBalance, error)
	ListHolderPositions(ctx context.Context, holder string) ([]HolderPosition, error)
	ListHolderTransactions(ctx context.Context, holder string) ([]LedgerTransaction, error)
	GetCreditLot(ctx context.Context, tokenID string) (CreditLot, error)
	GetRetirementCertificate(ctx context.Context, certificateID string) (RetirementCertificate, error)
	ListCreditLots(ctx context.Context, filter CreditLotFilter) ([]CreditLot, error)
	ListRetirementCertificates(ctx context.Context, filter CertificateFilter) ([]RetirementCertificate, error)
	ReconcileChain(ctx context.Context, batchSize int) (ReconcileStats, error)
}

type Ledger interface {
	ProjectRegistry
	MRVRegistry
	OracleIssuer
	CreditLedger
}
