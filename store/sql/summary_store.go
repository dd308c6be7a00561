package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-blueledger/core"
	"github.com/uptrace/bun"
)

// SummaryStore persists signed oracle summaries. Rows are write-once.
type SummaryStore struct {
	db *bun.DB
}

func NewSummaryStore(db *bun.DB) (*SummaryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &SummaryStore{db: db}, nil
}

func (s *SummaryStore) Create(ctx context.Context, summary core.OracleSummary) (core.OracleSummary, error) {
	if s == nil || s.db == nil {
		return core.OracleSummary{}, fmt.Errorf("sqlstore: summary store is not configured")
	}
	summary.AttestationID = strings.TrimSpace(summary.AttestationID)
	if summary.AttestationID == "" {
		return core.OracleSummary{}, fmt.Errorf("sqlstore: attestation id is required")
	}
	record := newOracleSummaryRecord(summary)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.OracleSummary{}, core.ErrRecordExists
		}
		return core.OracleSummary{}, err
	}
	return record.toDomain(), nil
}

func (s *SummaryStore) Get(ctx context.Context, attestationID string) (core.OracleSummary, error) {
	if s == nil || s.db == nil {
		return core.OracleSummary{}, fmt.Errorf("sqlstore: summary store is not configured")
	}
	record := &oracleSummaryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.attestation_id = ?", strings.TrimSpace(attestationID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.OracleSummary{}, core.ErrRecordNotFound
		}
		return core.OracleSummary{}, err
	}
	return record.toDomain(), nil
}
