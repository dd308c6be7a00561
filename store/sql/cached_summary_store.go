package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-blueledger/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const summaryCacheKeyPrefix = "blueledger::oracle_summary::v1"

// CachedSummaryStore serves summary reads through a cache. Summaries never
// change after they are written, so entries only need clearing on create.
type CachedSummaryStore struct {
	base  core.SummaryStore
	cache repositorycache.CacheService
}

func NewCachedSummaryStore(base core.SummaryStore, cacheService repositorycache.CacheService) (*CachedSummaryStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base summary store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: summary cache service is required")
	}
	return &CachedSummaryStore{base: base, cache: cacheService}, nil
}

// SummaryCacheKey returns blueledger::oracle_summary::v1::<attestation_id>
// with the id URL-path escaped.
func SummaryCacheKey(attestationID string) (string, error) {
	attestationID = strings.TrimSpace(attestationID)
	if attestationID == "" {
		return "", fmt.Errorf("sqlstore: attestation id is required")
	}
	return summaryCacheKeyPrefix + "::" + url.PathEscape(attestationID), nil
}

func (s *CachedSummaryStore) Create(ctx context.Context, summary core.OracleSummary) (core.OracleSummary, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OracleSummary{}, fmt.Errorf("sqlstore: cached summary store is not configured")
	}
	created, err := s.base.Create(ctx, summary)
	if err != nil {
		return core.OracleSummary{}, err
	}
	cacheKey, err := SummaryCacheKey(created.AttestationID)
	if err != nil {
		return core.OracleSummary{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.OracleSummary{}, err
	}
	return created, nil
}

func (s *CachedSummaryStore) Get(ctx context.Context, attestationID string) (core.OracleSummary, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.OracleSummary{}, fmt.Errorf("sqlstore: cached summary store is not configured")
	}
	cacheKey, err := SummaryCacheKey(attestationID)
	if err != nil {
		return core.OracleSummary{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.OracleSummary, error) {
		return s.base.Get(ctx, strings.TrimSpace(attestationID))
	})
}

var _ core.SummaryStore = (*CachedSummaryStore)(nil)
