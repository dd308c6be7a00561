package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config              Config
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
	chainReconciler     *ChainReconciler
}

type ServiceDependencies struct {
	Logger              Logger
	LoggerProvider      LoggerProvider
	MetricsRecorder     MetricsRecorder
	ErrorMapper         ErrorMapper
	PersistenceClient   any
	RepositoryFactory   any
	ConfigProvider      ConfigProvider
	OptionsResolver     OptionsResolver
	IDGenerator         IDGenerator
	RecordLocker        RecordLocker
	Signer              SummarySigner
	Verifier            SummaryVerifier
	IssuancePolicy      IssuancePolicy
	ChainAdapter        ChainAdapter
	ProvenanceValidator ProvenanceValidator
	ProjectStore        ProjectStore
	AttestationStore    AttestationStore
	SummaryStore        SummaryStore
	LedgerStore         LedgerStore
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("blueledger", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("blueledger"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}
	if builder.idGenerator == nil {
		builder.idGenerator = UUIDGenerator{}
	}
	if builder.recordLocker == nil {
		builder.recordLocker = NewMemoryRecordLocker()
	}
	if builder.signer == nil {
		signer, err := GenerateEd25519SummarySigner(nil)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		builder.signer = signer
	}
	if builder.verifier == nil {
		if verifier, ok := builder.signer.(SummaryVerifier); ok {
			builder.verifier = verifier
		}
	}
	if builder.issuancePolicy == nil {
		builder.issuancePolicy = AreaCapPolicy{}
	}
	if builder.chainAdapter == nil {
		builder.chainAdapter = NewSimulatedChainAdapter()
	}
	if builder.provenanceValidator == nil {
		builder.provenanceValidator = ConservationValidator{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := builder.resolveStores(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	reconciler, err := NewChainReconciler(builder.ledgerStore, builder.chainAdapter, finalConfig.ChainReconcilerConfig())
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	reconciler.now = builder.clock

	return &Service{
		config:              finalConfig,
		logger:              logger,
		loggerProvider:      provider,
		metricsRecorder:     builder.metricsRecorder,
		errorMapper:         builder.errorMapper,
		persistenceClient:   builder.persistenceClient,
		repositoryFactory:   builder.repositoryFactory,
		configProvider:      builder.configProvider,
		optionsResolver:     builder.optionsResolver,
		clock:               builder.clock,
		idGenerator:         builder.idGenerator,
		recordLocker:        builder.recordLocker,
		signer:              builder.signer,
		verifier:            builder.verifier,
		issuancePolicy:      builder.issuancePolicy,
		chainAdapter:        builder.chainAdapter,
		provenanceValidator: builder.provenanceValidator,
		projectStore:        builder.projectStore,
		attestationStore:    builder.attestationStore,
		summaryStore:        builder.summaryStore,
		ledgerStore:         builder.ledgerStore,
		chainReconciler:     reconciler,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

// resolveStores fills missing stores from the repository factory, then falls
// back to a shared in-memory store.
func (b *serviceBuilder) resolveStores() error {
	if b.missingStores() && b.repositoryFactory != nil {
		var provider StoreProvider
		switch factory := b.repositoryFactory.(type) {
		case RepositoryStoreFactory:
			built, err := factory.BuildStores(b.persistenceClient)
			if err != nil {
				return err
			}
			provider = built
		case StoreProvider:
			provider = factory
		default:
			return fmt.Errorf("core: unsupported repository factory %T", b.repositoryFactory)
		}
		b.fillStores(provider)
	}
	if b.missingStores() {
		b.fillStores(NewMemoryStore())
	}
	return nil
}

func (b *serviceBuilder) missingStores() bool {
	return b.projectStore == nil || b.attestationStore == nil || b.summaryStore == nil || b.ledgerStore == nil
}

func (b *serviceBuilder) fillStores(provider StoreProvider) {
	if provider == nil {
		return
	}
	if b.projectStore == nil {
		b.projectStore = provider.ProjectStore()
	}
	if b.attestationStore == nil {
		b.attestationStore = provider.AttestationStore()
	}
	if b.summaryStore == nil {
		b.summaryStore = provider.SummaryStore()
	}
	if b.ledgerStore == nil {
		b.ledgerStore = provider.LedgerStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:              s.logger,
		LoggerProvider:      s.loggerProvider,
		MetricsRecorder:     s.metricsRecorder,
		ErrorMapper:         s.errorMapper,
		PersistenceClient:   s.persistenceClient,
		RepositoryFactory:   s.repositoryFactory,
		ConfigProvider:      s.configProvider,
		OptionsResolver:     s.optionsResolver,
		IDGenerator:         s.idGenerator,
		RecordLocker:        s.recordLocker,
		Signer:              s.signer,
		Verifier:            s.verifier,
		IssuancePolicy:      s.issuancePolicy,
		ChainAdapter:        s.chainAdapter,
		ProvenanceValidator: s.provenanceValidator,
		ProjectStore:        s.projectStore,
		AttestationStore:    s.attestationStore,
		SummaryStore:        s.summaryStore,
		LedgerStore:         s.ledgerStore,
	}
}

func (s *Service) ChainReconciler() *ChainReconciler {
	if s == nil {
		return nil
	}
	return s.chainReconciler
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) newID() string {
	return strings.TrimSpace(s.idGenerator.NewID())
}

// withLocks runs fn while holding every key. Keys are acquired in sorted
// order by the locker.
func (s *Service) withLocks(ctx context.Context, keys []string, fn func() error) error {
	handle, err := s.recordLocker.AcquireAll(ctx, keys, s.config.LockTTL())
	if err != nil {
		return err
	}
	defer func() {
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			s.logWarn(ctx, "lock release failed", map[string]any{
				"keys":  keys,
				"error": unlockErr.Error(),
			})
		}
	}()
	return fn()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
