package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig       Config
	logger              Logger
	loggerProvider      LoggerProvider
	metricsRecorder     MetricsRecorder
	errorMapper         ErrorMapper
	persistenceClient   any
	repositoryFactory   any
	configProvider      ConfigProvider
	optionsResolver     OptionsResolver
	clock               func() time.Time
	idGenerator         IDGenerator
	recordLocker        RecordLocker
	signer              SummarySigner
	verifier            SummaryVerifier
	issuancePolicy      IssuancePolicy
	chainAdapter        ChainAdapter
	provenanceValidator ProvenanceValidator
	projectStore        ProjectStore
	attestationStore    AttestationStore
	summaryStore        SummaryStore
	ledgerStore         LedgerStore
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

// WithRepositoryFactory accepts either a RepositoryStoreFactory or a
// StoreProvider.
func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithIDGenerator(generator IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.idGenerator = generator
	}
}

func WithRecordLocker(locker RecordLocker) Option {
	return func(b *serviceBuilder) {
		b.recordLocker = locker
	}
}

// WithSigner sets the oracle summary signer. When the signer also verifies,
// it is used as the verifier unless WithVerifier overrides it.
func WithSigner(signer SummarySigner) Option {
	return func(b *serviceBuilder) {
		b.signer = signer
	}
}

func WithVerifier(verifier SummaryVerifier) Option {
	return func(b *serviceBuilder) {
		b.verifier = verifier
	}
}

func WithIssuancePolicy(policy IssuancePolicy) Option {
	return func(b *serviceBuilder) {
		b.issuancePolicy = policy
	}
}

func WithChainAdapter(adapter ChainAdapter) Option {
	return func(b *serviceBuilder) {
		b.chainAdapter = adapter
	}
}

func WithProvenanceValidator(validator ProvenanceValidator) Option {
	return func(b *serviceBuilder) {
		b.provenanceValidator = validator
	}
}

func WithProjectStore(store ProjectStore) Option {
	return func(b *serviceBuilder) {
		b.projectStore = store
	}
}

func WithAttestationStore(store AttestationStore) Option {
	return func(b *serviceBuilder) {
		b.attestationStore = store
	}
}

func WithSummaryStore(store SummaryStore) Option {
	return func(b *serviceBuilder) {
		b.summaryStore = store
	}
}

func WithLedgerStore(store LedgerStore) Option {
	return func(b *serviceBuilder) {
		b.ledgerStore = store
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("blueledger", nil, nil)
	return serviceBuilder{
		runtimeConfig:       runtime,
		loggerProvider:      loggerProvider,
		logger:              logger,
		metricsRecorder:     NopMetricsRecorder{},
		errorMapper:         defaultErrorMapper,
		configProvider:      NewCfgxConfigProvider(nil),
		optionsResolver:     GoOptionsResolver{},
		idGenerator:         UUIDGenerator{},
		issuancePolicy:      AreaCapPolicy{},
		provenanceValidator: ConservationValidator{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return ledgerErrorMapper(err)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded config, and runtime overrides in
// that order of precedence. Zero values in the upper layers do not override.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.Oracle.SummaryTTLSeconds != 0 {
		layer["oracle"] = map[string]any{
			"summary_ttl_seconds": cfg.Oracle.SummaryTTLSeconds,
		}
	}

	issuance := map[string]any{}
	if includeZero || cfg.Issuance.CreditsPerHectare != 0 {
		issuance["credits_per_hectare"] = cfg.Issuance.CreditsPerHectare
	}
	if includeZero || cfg.Issuance.DisableAreaCap {
		issuance["disable_area_cap"] = cfg.Issuance.DisableAreaCap
	}
	if len(issuance) > 0 {
		layer["issuance"] = issuance
	}

	if includeZero || cfg.Pricing.PricePerCredit != 0 {
		layer["pricing"] = map[string]any{
			"price_per_credit": cfg.Pricing.PricePerCredit,
		}
	}
	if includeZero || cfg.Locks.TTLSeconds != 0 {
		layer["locks"] = map[string]any{
			"ttl_seconds": cfg.Locks.TTLSeconds,
		}
	}

	chain := map[string]any{}
	if includeZero || cfg.Chain.MaxAttempts != 0 {
		chain["max_attempts"] = cfg.Chain.MaxAttempts
	}
	if includeZero || cfg.Chain.BatchSize != 0 {
		chain["batch_size"] = cfg.Chain.BatchSize
	}
	if includeZero || cfg.Chain.InitialBackoffSeconds != 0 {
		chain["initial_backoff_seconds"] = cfg.Chain.InitialBackoffSeconds
	}
	if includeZero || cfg.Chain.MaxBackoffSeconds != 0 {
		chain["max_backoff_seconds"] = cfg.Chain.MaxBackoffSeconds
	}
	if includeZero || cfg.Chain.ClaimTTLSeconds != 0 {
		chain["claim_ttl_seconds"] = cfg.Chain.ClaimTTLSeconds
	}
	if len(chain) > 0 {
		layer["chain"] = chain
	}
	return layer
}
