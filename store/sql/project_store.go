package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-blueledger/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ProjectStore struct {
	db   *bun.DB
	repo repository.Repository[*projectRecord]
}

func NewProjectStore(db *bun.DB) (*ProjectStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*projectRecord](db, projectHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid project repository wiring: %w", err)
		}
	}
	return &ProjectStore{db: db, repo: repo}, nil
}

func (s *ProjectStore) Create(ctx context.Context, project core.Project) (core.Project, error) {
	if s == nil || s.db == nil {
		return core.Project{}, fmt.Errorf("sqlstore: project store is not configured")
	}
	project.ID = strings.TrimSpace(project.ID)
	if project.ID == "" {
		return core.Project{}, fmt.Errorf("sqlstore: project id is required")
	}
	record := newProjectRecord(project)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Project{}, core.ErrRecordExists
		}
		return core.Project{}, err
	}
	return record.toDomain(), nil
}

func (s *ProjectStore) Get(ctx context.Context, id string) (core.Project, error) {
	if s == nil || s.db == nil {
		return core.Project{}, fmt.Errorf("sqlstore: project store is not configured")
	}
	record := &projectRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Project{}, core.ErrRecordNotFound
		}
		return core.Project{}, err
	}
	return record.toDomain(), nil
}

func (s *ProjectStore) List(ctx context.Context, filter core.ProjectFilter) ([]core.Project, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: project store is not configured")
	}
	criteria := []repository.SelectCriteria{
		repository.OrderBy("submitted_at ASC"),
		repository.OrderBy("id ASC"),
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		criteria = append(criteria, repository.SelectBy("status", "=", status))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Project, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ProjectStore) Update(ctx context.Context, project core.Project) (core.Project, error) {
	if s == nil || s.repo == nil {
		return core.Project{}, fmt.Errorf("sqlstore: project store is not configured")
	}
	id := strings.TrimSpace(project.ID)
	if id == "" {
		return core.Project{}, fmt.Errorf("sqlstore: project id is required")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return core.Project{}, err
	}
	record := newProjectRecord(project)
	updated, err := s.repo.Update(ctx, record, repository.UpdateByID(id))
	if err != nil {
		return core.Project{}, err
	}
	return updated.toDomain(), nil
}
