package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (g *sequenceIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s%d", g.prefix, g.next)
}

type failingChainAdapter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (a *failingChainAdapter) Submit(context.Context, ChainOperation) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return "", a.err
}

type ledgerFixture struct {
	svc     *Service
	store   *MemoryStore
	clock   *testClock
	chain   *SimulatedChainAdapter
	project Project
}

const testOwner = "0xowner"

func newLedgerFixture(t *testing.T, opts ...Option) *ledgerFixture {
	t.Helper()
	store := NewMemoryStore()
	clock := newTestClock()
	chain := NewSimulatedChainAdapter()
	base := []Option{
		WithRepositoryFactory(store),
		WithClock(clock.Now),
		WithChainAdapter(chain),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &ledgerFixture{svc: svc, store: store, clock: clock, chain: chain}
}

func (f *ledgerFixture) submitProject(t *testing.T, area float64) Project {
	t.Helper()
	project, err := f.svc.SubmitProject(context.Background(), SubmitProjectInput{
		Name:         "Mangrove Restoration",
		Description:  "Replanting along the estuary",
		Location:     "Sundarbans",
		OwnerAddress: testOwner,
		AreaHectares: area,
		Methodology:  "VM0033",
	})
	if err != nil {
		t.Fatalf("submit project: %v", err)
	}
	return project
}

func (f *ledgerFixture) approvedProject(t *testing.T, area float64) Project {
	t.Helper()
	project := f.submitProject(t, area)
	approved, err := f.svc.ApproveProject(context.Background(), project.ID, "admin")
	if err != nil {
		t.Fatalf("approve project: %v", err)
	}
	f.project = approved
	return approved
}

func (f *ledgerFixture) issuedSummary(t *testing.T, projectID string, tco2e float64) OracleSummary {
	t.Helper()
	ingested, err := f.svc.IngestAttestation(context.Background(), IngestAttestationInput{
		ProjectID:         projectID,
		Metrics:           map[string]float64{MetricTCO2e: tco2e},
		EvidenceReference: "Qm123",
	})
	if err != nil {
		t.Fatalf("ingest attestation: %v", err)
	}
	summary, err := f.svc.IssueOracleSummary(context.Background(), ingested.AttestationID)
	if err != nil {
		t.Fatalf("issue summary: %v", err)
	}
	return summary
}

// mintedLot runs the full path from project submission to a minted lot.
func (f *ledgerFixture) mintedLot(t *testing.T, amount int64) MintResult {
	t.Helper()
	project := f.approvedProject(t, 150.5)
	summary := f.issuedSummary(t, project.ID, 61.2)
	result, err := f.svc.MintCredits(context.Background(), MintRequest{
		ProjectID:     project.ID,
		AttestationID: summary.AttestationID,
		Amount:        amount,
	})
	if err != nil {
		t.Fatalf("mint credits: %v", err)
	}
	return result
}

func (f *ledgerFixture) balance(t *testing.T, holder string) HolderBalance {
	t.Helper()
	balance, err := f.svc.GetHolderBalance(context.Background(), holder)
	if err != nil {
		t.Fatalf("get balance %s: %v", holder, err)
	}
	return balance
}

func assertKind(t *testing.T, err error, kind string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := ErrorKind(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func assertConserved(t *testing.T, f *ledgerFixture, tokenID string) {
	t.Helper()
	ctx := context.Background()
	lot, err := f.store.LedgerStore().GetLot(ctx, tokenID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	positions, err := f.store.LedgerStore().ListLotPositions(ctx, tokenID)
	if err != nil {
		t.Fatalf("list lot positions: %v", err)
	}
	if err := (ConservationValidator{}).ValidateLot(lot, positions); err != nil {
		t.Fatalf("lot %s not conserved: %v", tokenID, err)
	}
}
