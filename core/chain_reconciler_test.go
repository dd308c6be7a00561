package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestChainReconcilerConfig_BackoffIsCapped(t *testing.T) {
	cfg := ChainReconcilerConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	cases := map[int]time.Duration{
		0: time.Second,
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 5 * time.Second,
		9: 5 * time.Second,
	}
	for attempt, want := range cases {
		if got := cfg.BackoffAfter(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestNewChainReconciler_RequiresDependencies(t *testing.T) {
	if _, err := NewChainReconciler(nil, NewSimulatedChainAdapter(), ChainReconcilerConfig{}); err == nil {
		t.Fatalf("expected missing store error")
	}
	if _, err := NewChainReconciler(NewMemoryStore().LedgerStore(), nil, ChainReconcilerConfig{}); err == nil {
		t.Fatalf("expected missing adapter error")
	}
}

func TestReconcileChain_RetriesThenSubmits(t *testing.T) {
	f := newLedgerFixture(t)
	f.chain.FailNext(1)
	project := f.approvedProject(t, 100)
	summary := f.issuedSummary(t, project.ID, 20)
	ctx := context.Background()

	minted, err := f.svc.MintCredits(ctx, MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 100})
	if !IsChainError(err) {
		t.Fatalf("expected chain error on first submission, got %v", err)
	}
	if minted.TokenID == "" || minted.ChainStatus != ChainStatusPending {
		t.Fatalf("expected committed lot with pending chain status, got %+v", minted)
	}
	if f.balance(t, testOwner).Owned != 100 {
		t.Fatalf("expected mint to stay committed despite chain failure")
	}

	stats, err := f.svc.ReconcileChain(ctx, 10)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if stats.Claimed != 0 {
		t.Fatalf("expected nothing due before backoff elapses, got %+v", stats)
	}

	f.clock.Advance(time.Minute)
	stats, err = f.svc.ReconcileChain(ctx, 10)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if stats.Claimed != 1 || stats.Submitted != 1 {
		t.Fatalf("expected one submitted transaction, got %+v", stats)
	}
	lot, err := f.svc.GetCreditLot(ctx, minted.TokenID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if lot.ChainStatus != ChainStatusSubmitted || lot.ChainTxRef != SimulatedChainTxRef(minted.TransactionID) {
		t.Fatalf("expected lot chain reference to be recorded, got %+v", lot)
	}

	f.clock.Advance(time.Hour)
	stats, _ = f.svc.ReconcileChain(ctx, 10)
	if stats.Claimed != 0 {
		t.Fatalf("expected submitted transactions to leave the queue, got %+v", stats)
	}
}

func TestReconcileChain_MarksFailedAfterMaxAttempts(t *testing.T) {
	adapter := &failingChainAdapter{err: errors.New("rpc unavailable")}
	cfg := DefaultConfig()
	cfg.Chain.MaxAttempts = 2
	store := NewMemoryStore()
	clock := newTestClock()
	svc, err := NewService(cfg,
		WithRepositoryFactory(store),
		WithClock(clock.Now),
		WithChainAdapter(adapter),
		WithLogger(stubLogger{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f := &ledgerFixture{svc: svc, store: store, clock: clock}
	project := f.approvedProject(t, 100)
	summary := f.issuedSummary(t, project.ID, 20)
	ctx := context.Background()

	minted, err := svc.MintCredits(ctx, MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 10})
	if !IsChainError(err) {
		t.Fatalf("expected chain error, got %v", err)
	}

	clock.Advance(time.Hour)
	stats, err := svc.ReconcileChain(ctx, 0)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected transaction to be marked failed, got %+v", stats)
	}
	lot, _ := svc.GetCreditLot(ctx, minted.TokenID)
	if lot.ChainStatus != ChainStatusFailed {
		t.Fatalf("expected failed chain status on lot, got %s", lot.ChainStatus)
	}
	if adapter.calls != 2 {
		t.Fatalf("expected two submission attempts, got %d", adapter.calls)
	}

	clock.Advance(time.Hour)
	stats, _ = svc.ReconcileChain(ctx, 0)
	if stats.Claimed != 0 {
		t.Fatalf("expected failed transactions to stay out of the queue, got %+v", stats)
	}
	if f.balance(t, testOwner).Owned != 10 {
		t.Fatalf("expected ledger state to survive chain failure")
	}
}

// gatedChainAdapter fails the first submission, holds the second until
// release is closed, and fails every later one.
type gatedChainAdapter struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (a *gatedChainAdapter) Submit(_ context.Context, op ChainOperation) (string, error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	a.mu.Unlock()
	switch call {
	case 1:
		return "", errors.New("rpc unavailable")
	case 2:
		<-a.release
		return SimulatedChainTxRef(op.TransactionID), nil
	default:
		return "", errors.New("duplicate submission")
	}
}

func (a *gatedChainAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestReconcileChain_ConcurrentRunsSubmitOnce(t *testing.T) {
	adapter := &gatedChainAdapter{release: make(chan struct{})}
	store := NewMemoryStore()
	clock := newTestClock()
	svc, err := NewService(DefaultConfig(),
		WithRepositoryFactory(store),
		WithClock(clock.Now),
		WithChainAdapter(adapter),
		WithLogger(stubLogger{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f := &ledgerFixture{svc: svc, store: store, clock: clock}
	project := f.approvedProject(t, 100)
	summary := f.issuedSummary(t, project.ID, 20)
	ctx := context.Background()

	minted, err := svc.MintCredits(ctx, MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 10})
	if !IsChainError(err) {
		t.Fatalf("expected chain error, got %v", err)
	}
	clock.Advance(time.Minute)

	type outcome struct {
		stats ReconcileStats
		err   error
	}
	results := make(chan outcome, 2)
	for range 2 {
		go func() {
			stats, err := svc.ReconcileChain(ctx, 10)
			results <- outcome{stats: stats, err: err}
		}()
	}

	var total ReconcileStats
	first := <-results
	close(adapter.release)
	second := <-results
	for _, res := range []outcome{first, second} {
		if res.err != nil {
			t.Fatalf("reconcile: %v", res.err)
		}
		total.Claimed += res.stats.Claimed
		total.Submitted += res.stats.Submitted
	}
	if total.Claimed != 1 || total.Submitted != 1 {
		t.Fatalf("expected exactly one claim and submission, got %+v / %+v", first.stats, second.stats)
	}
	if adapter.Calls() != 2 {
		t.Fatalf("expected mint plus one reconcile submission, got %d calls", adapter.Calls())
	}

	lot, err := svc.GetCreditLot(ctx, minted.TokenID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if lot.ChainStatus != ChainStatusSubmitted {
		t.Fatalf("expected submitted lot, got %s", lot.ChainStatus)
	}

	clock.Advance(time.Hour)
	stats, err := svc.ReconcileChain(ctx, 10)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if stats.Claimed != 0 || adapter.Calls() != 2 {
		t.Fatalf("expected submitted transaction to stay settled, got %+v after %d calls", stats, adapter.Calls())
	}
}

func TestMemoryLedgerStore_ChainClaimAndStaleResults(t *testing.T) {
	f := newLedgerFixture(t)
	f.chain.FailNext(1)
	project := f.approvedProject(t, 100)
	summary := f.issuedSummary(t, project.ID, 20)
	ctx := context.Background()
	minted, err := f.svc.MintCredits(ctx, MintRequest{ProjectID: project.ID, AttestationID: summary.AttestationID, Amount: 10})
	if !IsChainError(err) {
		t.Fatalf("expected chain error, got %v", err)
	}
	ledger := f.store.LedgerStore()
	now := f.clock.Now().Add(time.Minute)

	if ok, err := ledger.ClaimChainTransaction(ctx, ChainClaim{TransactionID: minted.TransactionID, Attempts: 0, Now: now, LeaseUntil: now.Add(time.Minute)}); err != nil || ok {
		t.Fatalf("expected claim with an outdated attempt count to fail, got %v %v", ok, err)
	}
	claim := ChainClaim{TransactionID: minted.TransactionID, Attempts: 1, Now: now, LeaseUntil: now.Add(time.Minute)}
	if ok, err := ledger.ClaimChainTransaction(ctx, claim); err != nil || !ok {
		t.Fatalf("expected first claim to win, got %v %v", ok, err)
	}
	if ok, _ := ledger.ClaimChainTransaction(ctx, claim); ok {
		t.Fatalf("expected second claim inside the lease to lose")
	}
	if pending, _ := ledger.ListPendingChainTransactions(ctx, now, 10); len(pending) != 0 {
		t.Fatalf("expected claimed transaction to leave the due list, got %d", len(pending))
	}

	if err := ledger.RecordChainResult(ctx, ChainResult{TransactionID: minted.TransactionID, Status: ChainStatusSubmitted, TxRef: "0xabc", Attempts: 2, RecordedAt: now}); err != nil {
		t.Fatalf("record submitted: %v", err)
	}
	retry := now.Add(time.Minute)
	late := ChainResult{TransactionID: minted.TransactionID, Status: ChainStatusPending, Attempts: 3, NextAttemptAt: &retry, LastError: "timeout", RecordedAt: now}
	if err := ledger.RecordChainResult(ctx, late); !errors.Is(err, ErrChainResultStale) {
		t.Fatalf("expected late failure to be stale, got %v", err)
	}
	lot, _ := f.svc.GetCreditLot(ctx, minted.TokenID)
	if lot.ChainStatus != ChainStatusSubmitted || lot.ChainTxRef != "0xabc" {
		t.Fatalf("expected submitted status to survive, got %+v", lot)
	}
}
