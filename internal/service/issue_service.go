package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/postgres"
)

// IssueAdminStore is the issue surface exposed to the HTTP boundary
type IssueAdminStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error)
	List(ctx context.Context, projectID uuid.UUID, filter postgres.IssueListFilter, opts *postgres.ListOptions) ([]*domain.Issue, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status, changedBy string, at time.Time) (*domain.Issue, error)
	UpdateAssignment(ctx context.Context, id uuid.UUID, assignedTo, changedBy string, at time.Time) (*domain.Issue, error)
}

// IssueService serves issue reads and status transitions
type IssueService struct {
	issues IssueAdminStore
	logger *zap.Logger
	now    func() time.Time
}

// NewIssueService creates an issue service
func NewIssueService(issues IssueAdminStore, logger *zap.Logger) *IssueService {
	return &IssueService{issues: issues, logger: logger, now: time.Now}
}

// Get returns one issue scoped to a project
func (s *IssueService) Get(ctx context.Context, projectID, id uuid.UUID) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.ProjectID != projectID {
		return nil, domain.ErrNotFound
	}
	return issue, nil
}

// List returns a project's issues, most recently seen first
func (s *IssueService) List(ctx context.Context, projectID uuid.UUID, filter postgres.IssueListFilter, opts *postgres.ListOptions) ([]*domain.Issue, error) {
	if filter.Status != "" && !domain.ValidIssueStatuses[filter.Status] {
		return nil, domain.ValidationErrors{{Field: "status", Message: fmt.Sprintf("unknown status %q", filter.Status)}}
	}
	return s.issues.List(ctx, projectID, filter, opts)
}

// UpdateStatus transitions an issue and appends to its status history
func (s *IssueService) UpdateStatus(ctx context.Context, projectID, id uuid.UUID, status, changedBy string) (*domain.Issue, error) {
	if !domain.ValidIssueStatuses[status] {
		return nil, domain.ValidationErrors{{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}}
	}
	if _, err := s.Get(ctx, projectID, id); err != nil {
		return nil, err
	}
	return s.issues.UpdateStatus(ctx, id, status, changedBy, s.now())
}

// Assign sets the issue owner and appends to its assignment history
func (s *IssueService) Assign(ctx context.Context, projectID, id uuid.UUID, assignedTo, changedBy string) (*domain.Issue, error) {
	if _, err := s.Get(ctx, projectID, id); err != nil {
		return nil, err
	}
	return s.issues.UpdateAssignment(ctx, id, assignedTo, changedBy, s.now())
}
