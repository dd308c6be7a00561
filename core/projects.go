package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

func (s *Service) SubmitProject(ctx context.Context, in SubmitProjectInput) (project Project, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"owner_address": in.OwnerAddress}
	defer func() {
		fields["project_id"] = project.ID
		s.observeOperation(ctx, startedAt, "submit_project", err, fields)
	}()

	if err = validateSubmitProject(in); err != nil {
		err = s.mapError(err)
		return Project{}, err
	}
	if err = checkContext(ctx); err != nil {
		err = s.mapError(err)
		return Project{}, err
	}

	now := s.now()
	project, err = s.projectStore.Create(ctx, Project{
		ID:           s.newID(),
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Location:     strings.TrimSpace(in.Location),
		OwnerAddress: strings.TrimSpace(in.OwnerAddress),
		Status:       ProjectStatusSubmitted,
		AreaHectares: in.AreaHectares,
		Methodology:  strings.TrimSpace(in.Methodology),
		GeoReference: strings.TrimSpace(in.GeoReference),
		Documents:    copyStrings(in.Documents),
		SubmittedAt:  now,
		UpdatedAt:    now,
	})
	if err != nil {
		err = s.mapError(err)
		return Project{}, err
	}
	return project, nil
}

func validateSubmitProject(in SubmitProjectInput) error {
	required := []struct {
		field string
		value string
	}{
		{"name", in.Name},
		{"location", in.Location},
		{"owner_address", in.OwnerAddress},
		{"methodology", in.Methodology},
	}
	for _, item := range required {
		if strings.TrimSpace(item.value) == "" {
			return ValidationError(item.field, item.field+" is required")
		}
	}
	if math.IsNaN(in.AreaHectares) || math.IsInf(in.AreaHectares, 0) || in.AreaHectares <= 0 {
		return ValidationError("area_hectares", "area_hectares must be > 0")
	}
	for i, doc := range in.Documents {
		if strings.TrimSpace(doc) == "" {
			return ValidationError(fmt.Sprintf("documents[%d]", i), "document reference must not be blank")
		}
	}
	return nil
}

func (s *Service) ApproveProject(ctx context.Context, projectID string, approver string) (project Project, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project_id": projectID, "approver": approver}
	defer func() {
		s.observeOperation(ctx, startedAt, "approve_project", err, fields)
	}()

	approver = strings.TrimSpace(approver)
	if approver == "" {
		approver = DefaultApprover
	}
	project, err = s.transitionProject(ctx, projectID, ProjectStatusApproved, approver, "")
	if err != nil {
		err = s.mapError(err)
		return Project{}, err
	}
	return project, nil
}

func (s *Service) RejectProject(ctx context.Context, projectID string, approver string, reason string) (project Project, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"project_id": projectID, "approver": approver}
	defer func() {
		s.observeOperation(ctx, startedAt, "reject_project", err, fields)
	}()

	if strings.TrimSpace(reason) == "" {
		err = s.mapError(ValidationError("reason", "rejection reason is required"))
		return Project{}, err
	}
	approver = strings.TrimSpace(approver)
	if approver == "" {
		approver = DefaultApprover
	}
	project, err = s.transitionProject(ctx, projectID, ProjectStatusRejected, approver, reason)
	if err != nil {
		err = s.mapError(err)
		return Project{}, err
	}
	return project, nil
}

// transitionProject serializes status changes per project so concurrent
// approve and reject calls produce exactly one winner.
func (s *Service) transitionProject(
	ctx context.Context,
	projectID string,
	status ProjectStatus,
	actor string,
	reason string,
) (Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return Project{}, ValidationError("project_id", "project id is required")
	}

	var updated Project
	err := s.withLocks(ctx, []string{ProjectLockKey(projectID)}, func() error {
		project, err := s.projectStore.Get(ctx, projectID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return NotFoundError("project not found")
			}
			return err
		}
		if err := project.TransitionTo(status, actor, reason, s.now()); err != nil {
			return InvalidStateError(fmt.Sprintf("project is %s and cannot become %s", project.Status, status))
		}
		if err := checkContext(ctx); err != nil {
			return err
		}
		updated, err = s.projectStore.Update(ctx, project)
		return err
	})
	if err != nil {
		return Project{}, err
	}
	return updated, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return Project{}, s.mapError(ValidationError("project_id", "project id is required"))
	}
	project, err := s.projectStore.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Project{}, s.mapError(NotFoundError("project not found"))
		}
		return Project{}, s.mapError(err)
	}
	return project, nil
}

// ListProjects treats an empty status or "all" as no filter.
func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	status := ProjectStatus(strings.ToLower(strings.TrimSpace(string(filter.Status))))
	if status == "all" {
		status = ""
	}
	if status != "" && !status.Valid() {
		return nil, s.mapError(ValidationError("status", fmt.Sprintf("unknown project status %q", filter.Status)))
	}
	projects, err := s.projectStore.List(ctx, ProjectFilter{Status: status})
	if err != nil {
		return nil, s.mapError(err)
	}
	return projects, nil
}

func (s *Service) ProjectStats(ctx context.Context) (ProjectStats, error) {
	projects, err := s.projectStore.List(ctx, ProjectFilter{})
	if err != nil {
		return ProjectStats{}, s.mapError(err)
	}
	stats := ProjectStats{Total: len(projects)}
	for _, project := range projects {
		switch project.Status {
		case ProjectStatusSubmitted:
			stats.Submitted++
		case ProjectStatusApproved:
			stats.Approved++
		case ProjectStatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}
