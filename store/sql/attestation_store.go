package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-blueledger/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type AttestationStore struct {
	db   *bun.DB
	repo repository.Repository[*attestationRecord]
}

func NewAttestationStore(db *bun.DB) (*AttestationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*attestationRecord](db, attestationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid attestation repository wiring: %w", err)
		}
	}
	return &AttestationStore{db: db, repo: repo}, nil
}

// Create assigns the next per-project sequence inside the insert transaction.
// The (project_id, sequence) unique index rejects a concurrent duplicate.
func (s *AttestationStore) Create(ctx context.Context, attestation core.Attestation) (core.Attestation, error) {
	if s == nil || s.db == nil {
		return core.Attestation{}, fmt.Errorf("sqlstore: attestation store is not configured")
	}
	attestation.ID = strings.TrimSpace(attestation.ID)
	attestation.ProjectID = strings.TrimSpace(attestation.ProjectID)
	if attestation.ID == "" || attestation.ProjectID == "" {
		return core.Attestation{}, fmt.Errorf("sqlstore: attestation id and project id are required")
	}

	var out core.Attestation
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var current int64
		if err := tx.NewSelect().
			Model((*attestationRecord)(nil)).
			ColumnExpr("COALESCE(MAX(sequence), 0)").
			Where("project_id = ?", attestation.ProjectID).
			Scan(ctx, &current); err != nil {
			return err
		}
		attestation.Sequence = current + 1
		record := newAttestationRecord(attestation)
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return core.ErrRecordExists
			}
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Attestation{}, err
	}
	return out, nil
}

func (s *AttestationStore) Get(ctx context.Context, id string) (core.Attestation, error) {
	if s == nil || s.db == nil {
		return core.Attestation{}, fmt.Errorf("sqlstore: attestation store is not configured")
	}
	record := &attestationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Attestation{}, core.ErrRecordNotFound
		}
		return core.Attestation{}, err
	}
	return record.toDomain(), nil
}

func (s *AttestationStore) GetLatest(ctx context.Context, projectID string) (core.Attestation, error) {
	if s == nil || s.db == nil {
		return core.Attestation{}, fmt.Errorf("sqlstore: attestation store is not configured")
	}
	record := &attestationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.project_id = ?", strings.TrimSpace(projectID)).
		OrderExpr("?TableAlias.ingested_at DESC").
		OrderExpr("?TableAlias.sequence DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Attestation{}, core.ErrRecordNotFound
		}
		return core.Attestation{}, err
	}
	return record.toDomain(), nil
}

func (s *AttestationStore) ListByProject(ctx context.Context, projectID string) ([]core.Attestation, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: attestation store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("project_id", "=", strings.TrimSpace(projectID)),
		repository.OrderBy("ingested_at ASC"),
		repository.OrderBy("sequence ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Attestation, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
