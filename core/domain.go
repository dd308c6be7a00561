package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrRecordNotFound                 = errors.New("core: record not found")
	ErrRecordExists                   = errors.New("core: record already exists")
	ErrInvalidProjectStatusTransition = errors.New("core: invalid project status transition")
	ErrAttestationAlreadyMinted       = errors.New("core: attestation already backs a credit lot")
	// ErrChainResultStale reports a chain result older than the one stored,
	// or one recorded after the transaction left the pending state.
	ErrChainResultStale = errors.New("core: chain result is stale")
)

const (
	MetricTCO2e          = "tCO2e"
	DefaultSchemaVersion = "1.0.0"
	DefaultApprover      = "admin"
)

type ProjectStatus string

const (
	ProjectStatusSubmitted ProjectStatus = "submitted"
	ProjectStatusApproved  ProjectStatus = "approved"
	ProjectStatusRejected  ProjectStatus = "rejected"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusSubmitted, ProjectStatusApproved, ProjectStatusRejected:
		return true
	default:
		return false
	}
}

type Project struct {
	ID              string
	Name            string
	Description     string
	Location        string
	OwnerAddress    string
	Status          ProjectStatus
	AreaHectares    float64
	Methodology     string
	GeoReference    string
	Documents       []string
	SubmittedAt     time.Time
	ApprovedAt      *time.Time
	ApprovedBy      string
	RejectedAt      *time.Time
	RejectedBy      string
	RejectionReason string
	UpdatedAt       time.Time
}

// TransitionTo moves a submitted project into one of its terminal states.
func (p *Project) TransitionTo(status ProjectStatus, actor string, reason string, now time.Time) error {
	if p == nil {
		return nil
	}
	if !projectTransitionAllowed(p.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidProjectStatusTransition, p.Status, status)
	}
	at := now.UTC()
	p.Status = status
	p.UpdatedAt = at
	switch status {
	case ProjectStatusApproved:
		p.ApprovedAt = &at
		p.ApprovedBy = strings.TrimSpace(actor)
	case ProjectStatusRejected:
		p.RejectedAt = &at
		p.RejectedBy = strings.TrimSpace(actor)
		p.RejectionReason = strings.TrimSpace(reason)
	}
	return nil
}

func projectTransitionAllowed(current, next ProjectStatus) bool {
	allowed := map[ProjectStatus]map[ProjectStatus]struct{}{
		ProjectStatusSubmitted: {
			ProjectStatusApproved: {},
			ProjectStatusRejected: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

type SubmitProjectInput struct {
	Name         string
	Description  string
	Location     string
	OwnerAddress string
	AreaHectares float64
	Methodology  string
	GeoReference string
	Documents    []string
}

type ProjectFilter struct {
	Status ProjectStatus
}

// CreditLotFilter narrows ListCreditLots. Empty fields match every lot.
type CreditLotFilter struct {
	ProjectID string
}

// CertificateFilter narrows ListRetirementCertificates. Empty fields match
// every certificate.
type CertificateFilter struct {
	TokenID string
	Holder  string
}

type ProjectStats struct {
	Total     int
	Submitted int
	Approved  int
	Rejected  int
}

type Attestation struct {
	ID                string
	ProjectID         string
	Metrics           map[string]float64
	MetricsHash       string
	EvidenceReference string
	SchemaVersion     string
	Sequence          int64
	IngestedAt        time.Time
}

func (a Attestation) TCO2e() float64 {
	return a.Metrics[MetricTCO2e]
}

type IngestAttestationInput struct {
	ProjectID         string
	Metrics           map[string]float64
	EvidenceReference string
	SchemaVersion     string
}

type IngestResult struct {
	AttestationID string
	MetricsHash   string
}

type OracleSummary struct {
	AttestationID     string
	ProjectID         string
	Vintage           int
	TCO2e             float64
	EvidenceReference string
	MetricsHash       string
	Expiry            time.Time
	Signature         string
	SignatureAlg      string
	KeyID             string
	IssuedAt          time.Time
}

// Usable reports whether the summary still authorizes minting at now.
func (s OracleSummary) Usable(now time.Time) bool {
	return now.Before(s.Expiry)
}

type ChainStatus string

const (
	ChainStatusPending   ChainStatus = "pending"
	ChainStatusSubmitted ChainStatus = "submitted"
	ChainStatusFailed    ChainStatus = "failed"
)

type CreditLot struct {
	TokenID           string
	ProjectID         string
	Vintage           int
	Amount            int64
	AttestationID     string
	EvidenceReference string
	Retired           int64
	Unallocated       int64
	ChainTxRef        string
	ChainStatus       ChainStatus
	MintedAt          time.Time
	UpdatedAt         time.Time
}

// Outstanding is the quantity of the lot that has not been retired.
func (l CreditLot) Outstanding() int64 {
	return l.Amount - l.Retired
}

type HolderBalance struct {
	HolderAddress string
	Owned         int64
	Retired       int64
	UpdatedAt     time.Time
}

// HolderPosition tracks what one holder owns and has retired from one lot.
type HolderPosition struct {
	HolderAddress string
	TokenID       string
	Owned         int64
	Retired       int64
	UpdatedAt     time.Time
}

type RetirementCertificate struct {
	ID            string
	HolderAddress string
	TokenID       string
	Amount        int64
	Beneficiary   string
	Purpose       string
	ChainTxRef    string
	ChainStatus   ChainStatus
	RetiredAt     time.Time
}

type TransactionKind string

const (
	TransactionKindMint     TransactionKind = "mint"
	TransactionKindTransfer TransactionKind = "transfer"
	TransactionKindRetire   TransactionKind = "retire"
)

type LedgerTransaction struct {
	ID                 string
	Kind               TransactionKind
	TokenID            string
	ProjectID          string
	FromAddress        string
	ToAddress          string
	Amount             int64
	PricePerCredit     int64
	TotalValue         int64
	CertificateID      string
	ChainTxRef         string
	ChainStatus        ChainStatus
	ChainAttempts      int
	ChainNextAttemptAt *time.Time
	ChainLastError     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Involves reports whether holder is a party to the transaction.
func (t LedgerTransaction) Involves(holder string) bool {
	holder = strings.TrimSpace(holder)
	return holder != "" && (t.FromAddress == holder || t.ToAddress == holder)
}

type MintRequest struct {
	ProjectID     string
	AttestationID string
	Amount        int64
}

type MintResult struct {
	TokenID       string
	TransactionID string
	ChainTxRef    string
	ChainStatus   ChainStatus
}

type TransferRequest struct {
	TokenID string
	From    string
	To      string
	Amount  int64
}

type TransferResult struct {
	TransactionID  string
	TotalValue     int64
	PricePerCredit int64
	ChainTxRef     string
	ChainStatus    ChainStatus
}

type RetireRequest struct {
	Holder      string
	TokenID     string
	Amount      int64
	Beneficiary string
	Purpose     string
}

type RetireResult struct {
	CertificateID string
	TransactionID string
	ChainTxRef    string
	ChainStatus   ChainStatus
}

// LedgerMutation is the full set of record changes one ledger operation
// commits. Stores apply it atomically or not at all.
type LedgerMutation struct {
	Lot         CreditLot
	CreateLot   bool
	Balances    []HolderBalance
	Positions   []HolderPosition
	Certificate *RetirementCertificate
	Transaction LedgerTransaction
}

// ChainResult records the outcome of one chain submission attempt.
type ChainResult struct {
	TransactionID string
	TxRef         string
	Status        ChainStatus
	Attempts      int
	NextAttemptAt *time.Time
	LastError     string
	RecordedAt    time.Time
}

// ChainClaim leases one pending transaction to a single reconciler. The
// claim holds only while the stored attempt count still equals Attempts.
type ChainClaim struct {
	TransactionID string
	Attempts      int
	Now           time.Time
	LeaseUntil    time.Time
}

type ReconcileStats struct {
	Claimed   int
	Submitted int
	Retried   int
	Failed    int
	// Skipped counts transactions another reconciler claimed or settled first.
	Skipped int
}
