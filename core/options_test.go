package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

type failingStoreFactory struct {
	err error
}

func (f failingStoreFactory) BuildStores(any) (StoreProvider, error) {
	return nil, f.err
}

type recordingStoreFactory struct {
	client   any
	provider StoreProvider
}

func (f *recordingStoreFactory) BuildStores(client any) (StoreProvider, error) {
	f.client = client
	return f.provider, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default config provider and options resolver")
	}
	if deps.RecordLocker == nil || deps.IDGenerator == nil {
		t.Fatalf("expected default locker and id generator")
	}
	if deps.Signer == nil || deps.Verifier == nil {
		t.Fatalf("expected generated signer to double as verifier")
	}
	if deps.Signer.Algorithm() != SignatureAlgEd25519 {
		t.Fatalf("expected ed25519 default signer, got %s", deps.Signer.Algorithm())
	}
	if deps.ChainAdapter == nil || deps.IssuancePolicy == nil || deps.ProvenanceValidator == nil {
		t.Fatalf("expected default chain adapter, issuance policy and provenance validator")
	}
	if deps.ProjectStore == nil || deps.AttestationStore == nil || deps.SummaryStore == nil || deps.LedgerStore == nil {
		t.Fatalf("expected in-memory stores by default")
	}
	if svc.ChainReconciler() == nil {
		t.Fatalf("expected chain reconciler")
	}

	cfg := svc.Config()
	if cfg.ServiceName != "blueledger" {
		t.Fatalf("expected default service_name=blueledger, got %q", cfg.ServiceName)
	}
	if cfg.Issuance.CreditsPerHectare != 10 {
		t.Fatalf("expected 10 credits per hectare by default, got %v", cfg.Issuance.CreditsPerHectare)
	}
	if cfg.SummaryTTL().Hours() != 24 {
		t.Fatalf("expected 24h summary ttl, got %s", cfg.SummaryTTL())
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	persistenceClient := &struct{ Name string }{Name: "persistence"}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	resolved := DefaultConfig()
	resolved.ServiceName = "resolved"
	optionsResolver := &fixedOptionsResolver{cfg: resolved}
	locker := NewMemoryRecordLocker()
	chain := NewSimulatedChainAdapter()
	ids := &sequenceIDGenerator{prefix: "id_"}

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithPersistenceClient(persistenceClient),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithRecordLocker(locker),
		WithChainAdapter(chain),
		WithIDGenerator(ids),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolvedLogger := deps.LoggerProvider.GetLogger("blueledger.override"); resolvedLogger != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.PersistenceClient != persistenceClient {
		t.Fatalf("expected custom persistence client override")
	}
	if deps.ConfigProvider != configProvider || deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom config provider and options resolver")
	}
	if deps.RecordLocker != locker || deps.ChainAdapter != chain || deps.IDGenerator != ids {
		t.Fatalf("expected locker, chain adapter and id generator overrides")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}

	_, err = svc.GetProject(context.Background(), "missing")
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Message != "mapped" {
		t.Fatalf("expected custom error mapper to be applied, got %v", err)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"issuance": map[string]any{
			"credits_per_hectare": 4,
		},
		"pricing": map[string]any{
			"price_per_credit": 75,
		},
	}})

	svc, err := NewService(Config{ServiceName: "from-runtime"}, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.Issuance.CreditsPerHectare != 4 {
		t.Fatalf("expected config layer credits_per_hectare, got %v", cfg.Issuance.CreditsPerHectare)
	}
	if cfg.Pricing.PricePerCredit != 75 {
		t.Fatalf("expected config layer price_per_credit, got %d", cfg.Pricing.PricePerCredit)
	}
	if cfg.Chain.MaxAttempts != DefaultConfig().Chain.MaxAttempts {
		t.Fatalf("expected default chain attempts to survive layering, got %d", cfg.Chain.MaxAttempts)
	}
}

func TestNewService_YAMLConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blueledger.yaml")
	doc := []byte("service_name: ledger-test\noracle:\n  summary_ttl_seconds: 600\nissuance:\n  disable_area_cap: true\n")
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	svc, err := NewService(Config{}, WithConfigProvider(NewCfgxConfigProvider(YAMLConfigLoader{Path: path})))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "ledger-test" {
		t.Fatalf("expected yaml service name, got %q", cfg.ServiceName)
	}
	if cfg.SummaryTTL().Minutes() != 10 {
		t.Fatalf("expected 10m summary ttl, got %s", cfg.SummaryTTL())
	}
	if !cfg.Issuance.DisableAreaCap {
		t.Fatalf("expected area cap to be disabled from yaml")
	}
}

func TestYAMLConfigLoader_EmptyAndInvalid(t *testing.T) {
	raw, err := YAMLConfigLoader{}.LoadRaw(context.Background())
	if err != nil || len(raw) != 0 {
		t.Fatalf("expected empty raw config, got %#v err=%v", raw, err)
	}
	if _, err := (YAMLConfigLoader{Data: []byte("service_name: [")}).LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected decode error for malformed yaml")
	}
}

func TestConfigValidate_RejectsNegativeValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pricing.PricePerCredit = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative price to be rejected")
	}
	cfg = DefaultConfig()
	cfg.Oracle.SummaryTTLSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero summary ttl to be rejected")
	}
}

func TestNewService_RepositoryFactory(t *testing.T) {
	store := NewMemoryStore()
	factory := &recordingStoreFactory{provider: store}
	client := &struct{}{}
	svc, err := NewService(Config{}, WithRepositoryFactory(factory), WithPersistenceClient(client))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if factory.client != client {
		t.Fatalf("expected persistence client to be passed to the store factory")
	}
	if _, err := svc.SubmitProject(context.Background(), SubmitProjectInput{
		Name: "Seagrass", Location: "Bay", OwnerAddress: "0x1", AreaHectares: 2, Methodology: "VM0033",
	}); err != nil {
		t.Fatalf("submit project: %v", err)
	}
	projects, _ := store.ProjectStore().List(context.Background(), ProjectFilter{})
	if len(projects) != 1 {
		t.Fatalf("expected project to land in factory-built store, got %d", len(projects))
	}

	_, err = NewService(Config{}, WithRepositoryFactory(failingStoreFactory{err: errors.New("db down")}))
	if err == nil {
		t.Fatalf("expected store factory failure to abort construction")
	}
}
