package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-blueledger/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubSummaryStore struct {
	mu        sync.Mutex
	summaries map[string]core.OracleSummary
	getCalls  int
}

func (s *stubSummaryStore) Create(_ context.Context, summary core.OracleSummary) (core.OracleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summaries == nil {
		s.summaries = map[string]core.OracleSummary{}
	}
	s.summaries[summary.AttestationID] = summary
	return summary, nil
}

func (s *stubSummaryStore) Get(_ context.Context, attestationID string) (core.OracleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	summary, ok := s.summaries[attestationID]
	if !ok {
		return core.OracleSummary{}, core.ErrRecordNotFound
	}
	return summary, nil
}

func TestCachedSummaryStore_Get_MissFetchThenHit(t *testing.T) {
	base := &stubSummaryStore{}
	store, err := NewCachedSummaryStore(base, newTestSummaryCacheService(t))
	if err != nil {
		t.Fatalf("new cached summary store: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Create(ctx, core.OracleSummary{AttestationID: "att 1", TCO2e: 42, Signature: "sig"}); err != nil {
		t.Fatalf("create summary: %v", err)
	}

	for i := 0; i < 3; i++ {
		summary, err := store.Get(ctx, "att 1")
		if err != nil {
			t.Fatalf("get summary: %v", err)
		}
		if summary.TCO2e != 42 {
			t.Fatalf("unexpected summary %#v", summary)
		}
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base fetch, got %d", base.getCalls)
	}
}

func TestCachedSummaryStore_PropagatesBaseErrors(t *testing.T) {
	store, err := NewCachedSummaryStore(&stubSummaryStore{}, newTestSummaryCacheService(t))
	if err != nil {
		t.Fatalf("new cached summary store: %v", err)
	}
	if _, err := store.Get(context.Background(), "att_missing"); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
	if _, err := store.Get(context.Background(), "  "); err == nil {
		t.Fatalf("expected blank attestation id error")
	}
}

func TestSummaryCacheKey_EscapesIdentifier(t *testing.T) {
	key, err := SummaryCacheKey("att/1")
	if err != nil {
		t.Fatalf("summary cache key: %v", err)
	}
	if key != "blueledger::oracle_summary::v1::att%2F1" {
		t.Fatalf("unexpected cache key %q", key)
	}
}

func newTestSummaryCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
