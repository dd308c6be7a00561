package blueledger

import "github.com/goliatone/go-blueledger/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Ledger = core.Ledger
type RecordLocker = core.RecordLocker
type SummarySigner = core.SummarySigner
type SummaryVerifier = core.SummaryVerifier
type IssuancePolicy = core.IssuancePolicy
type ChainAdapter = core.ChainAdapter
type ProvenanceValidator = core.ProvenanceValidator

type SubmitProjectInput = core.SubmitProjectInput
type IngestAttestationInput = core.IngestAttestationInput

type MintRequest = core.MintRequest
type TransferRequest = core.TransferRequest
type RetireRequest = core.RetireRequest

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorMapper         = core.WithErrorMapper
	WithPersistenceClient   = core.WithPersistenceClient
	WithRepositoryFactory   = core.WithRepositoryFactory
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithClock               = core.WithClock
	WithIDGenerator         = core.WithIDGenerator
	WithRecordLocker        = core.WithRecordLocker
	WithSigner              = core.WithSigner
	WithVerifier            = core.WithVerifier
	WithIssuancePolicy      = core.WithIssuancePolicy
	WithChainAdapter        = core.WithChainAdapter
	WithProvenanceValidator = core.WithProvenanceValidator
	WithProjectStore        = core.WithProjectStore
	WithAttestationStore    = core.WithAttestationStore
	WithSummaryStore        = core.WithSummaryStore
	WithLedgerStore         = core.WithLedgerStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
