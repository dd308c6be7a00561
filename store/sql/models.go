package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type projectRecord struct {
	bun.BaseModel `bun:"table:blueledger_projects,alias:bp"`

	ID              string     `bun:"id,pk"`
	Name            string     `bun:"name,notnull"`
	Description     string     `bun:"description,notnull"`
	Location        string     `bun:"location,notnull"`
	OwnerAddress    string     `bun:"owner_address,notnull"`
	Status          string     `bun:"status,notnull"`
	AreaHectares    float64    `bun:"area_hectares,notnull"`
	Methodology     string     `bun:"methodology,notnull"`
	GeoReference    string     `bun:"geo_reference,notnull"`
	Documents       []string   `bun:"documents,type:jsonb,notnull"`
	SubmittedAt     time.Time  `bun:"submitted_at,notnull"`
	ApprovedAt      *time.Time `bun:"approved_at,nullzero"`
	ApprovedBy      string     `bun:"approved_by,notnull"`
	RejectedAt      *time.Time `bun:"rejected_at,nullzero"`
	RejectedBy      string     `bun:"rejected_by,notnull"`
	RejectionReason string     `bun:"rejection_reason,notnull"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type attestationRecord struct {
	bun.BaseModel `bun:"table:blueledger_attestations,alias:ba"`

	ID                string             `bun:"id,pk"`
	ProjectID         string             `bun:"project_id,notnull"`
	Sequence          int64              `bun:"sequence,notnull"`
	Metrics           map[string]float64 `bun:"metrics,type:jsonb,notnull"`
	MetricsHash       string             `bun:"metrics_hash,notnull"`
	EvidenceReference string             `bun:"evidence_reference,notnull"`
	SchemaVersion     string             `bun:"schema_version,notnull"`
	IngestedAt        time.Time          `bun:"ingested_at,notnull"`
}

type oracleSummaryRecord struct {
	bun.BaseModel `bun:"table:blueledger_oracle_summaries,alias:bos"`

	AttestationID     string    `bun:"attestation_id,pk"`
	ProjectID         string    `bun:"project_id,notnull"`
	Vintage           int       `bun:"vintage,notnull"`
	TCO2e             float64   `bun:"tco2e,notnull"`
	EvidenceReference string    `bun:"evidence_reference,notnull"`
	MetricsHash       string    `bun:"metrics_hash,notnull"`
	Expiry            time.Time `bun:"expiry,notnull"`
	Signature         string    `bun:"signature,notnull"`
	SignatureAlg      string    `bun:"signature_alg,notnull"`
	KeyID             string    `bun:"key_id,notnull"`
	IssuedAt          time.Time `bun:"issued_at,notnull"`
}

type creditLotRecord struct {
	bun.BaseModel `bun:"table:blueledger_credit_lots,alias:bcl"`

	TokenID           string    `bun:"token_id,pk"`
	ProjectID         string    `bun:"project_id,notnull"`
	Vintage           int       `bun:"vintage,notnull"`
	Amount            int64     `bun:"amount,notnull"`
	AttestationID     string    `bun:"attestation_id,notnull"`
	EvidenceReference string    `bun:"evidence_reference,notnull"`
	Retired           int64     `bun:"retired,notnull"`
	Unallocated       int64     `bun:"unallocated,notnull"`
	ChainTxRef        string    `bun:"chain_tx_ref,notnull"`
	ChainStatus       string    `bun:"chain_status,notnull"`
	MintedAt          time.Time `bun:"minted_at,notnull"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type holderBalanceRecord struct {
	bun.BaseModel `bun:"table:blueledger_holder_balances,alias:bhb"`

	HolderAddress string    `bun:"holder_address,pk"`
	Owned         int64     `bun:"owned,notnull"`
	Retired       int64     `bun:"retired,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type holderPositionRecord struct {
	bun.BaseModel `bun:"table:blueledger_holder_positions,alias:bhp"`

	HolderAddress string    `bun:"holder_address,pk"`
	TokenID       string    `bun:"token_id,pk"`
	Owned         int64     `bun:"owned,notnull"`
	Retired       int64     `bun:"retired,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type retirementCertificateRecord struct {
	bun.BaseModel `bun:"table:blueledger_retirement_certificates,alias:brc"`

	ID            string    `bun:"id,pk"`
	HolderAddress string    `bun:"holder_address,notnull"`
	TokenID       string    `bun:"token_id,notnull"`
	Amount        int64     `bun:"amount,notnull"`
	Beneficiary   string    `bun:"beneficiary,notnull"`
	Purpose       string    `bun:"purpose,notnull"`
	ChainTxRef    string    `bun:"chain_tx_ref,notnull"`
	ChainStatus   string    `bun:"chain_status,notnull"`
	RetiredAt     time.Time `bun:"retired_at,notnull"`
}

type ledgerTransactionRecord struct {
	bun.BaseModel `bun:"table:blueledger_transactions,alias:btx"`

	ID                 string     `bun:"id,pk"`
	Sequence           int64      `bun:"sequence,notnull"`
	Kind               string     `bun:"kind,notnull"`
	TokenID            string     `bun:"token_id,notnull"`
	ProjectID          string     `bun:"project_id,notnull"`
	FromAddress        string     `bun:"from_address,notnull"`
	ToAddress          string     `bun:"to_address,notnull"`
	Amount             int64      `bun:"amount,notnull"`
	PricePerCredit     int64      `bun:"price_per_credit,notnull"`
	TotalValue         int64      `bun:"total_value,notnull"`
	CertificateID      string     `bun:"certificate_id,notnull"`
	ChainTxRef         string     `bun:"chain_tx_ref,notnull"`
	ChainStatus        string     `bun:"chain_status,notnull"`
	ChainAttempts      int        `bun:"chain_attempts,notnull"`
	ChainNextAttemptAt *time.Time `bun:"chain_next_attempt_at,nullzero"`
	ChainLastError     string     `bun:"chain_last_error,notnull"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
