package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/postgres"
)

// IssueStore is the issue persistence surface ingestion requires
type IssueStore interface {
	GetByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (*domain.Issue, error)
	Create(ctx context.Context, issue *domain.Issue) error
	ApplyOccurrence(ctx context.Context, id uuid.UUID, patch postgres.OccurrencePatch) (*domain.Issue, error)
}

// OccurrenceWriter appends immutable occurrence records
type OccurrenceWriter interface {
	Insert(ctx context.Context, occurrence *domain.Occurrence) error
}

// AnalyticsInvalidator is the external analytics cache hook fired after every
// successful ingest. Failures are logged, never surfaced.
type AnalyticsInvalidator interface {
	InvalidateProject(ctx context.Context, projectID uuid.UUID)
}

// TriggerRunner is the alerting pipeline entry point fired after persistence
type TriggerRunner interface {
	EvaluateAndDispatch(ctx context.Context, project *domain.Project, issue *domain.Issue, occurrence *domain.Occurrence, isNew bool, event *domain.ErrorEvent) (int, error)
}

// IngestResult is the outcome of one accepted event
type IngestResult struct {
	Issue       *domain.Issue
	Occurrence  *domain.Occurrence
	Fingerprint string
	IsNew       bool
}

// IngestService is the event intake path: sanitize, fingerprint, upsert the
// issue, append the occurrence, then fan out the trigger pipeline without
// blocking the response.
type IngestService struct {
	sanitizer     *Sanitizer
	fingerprinter *Fingerprinter
	issues        IssueStore
	occurrences   OccurrenceWriter
	analytics     AnalyticsInvalidator
	trigger       TriggerRunner
	logger        *zap.Logger
	now           func() time.Time
	asyncTimeout  time.Duration
}

// NewIngestService creates the ingestion pipeline
func NewIngestService(sanitizer *Sanitizer, fingerprinter *Fingerprinter, issues IssueStore, occurrences OccurrenceWriter, analytics AnalyticsInvalidator, trigger TriggerRunner, logger *zap.Logger) *IngestService {
	return &IngestService{
		sanitizer:     sanitizer,
		fingerprinter: fingerprinter,
		issues:        issues,
		occurrences:   occurrences,
		analytics:     analytics,
		trigger:       trigger,
		logger:        logger,
		now:           time.Now,
		asyncTimeout:  30 * time.Second,
	}
}

// Ingest processes one raw event for an authenticated project
func (s *IngestService) Ingest(ctx context.Context, project *domain.Project, raw *domain.ErrorEvent) (*IngestResult, error) {
	event := s.sanitizer.SanitizeEvent(raw, project.Scrub)
	fingerprint := s.fingerprinter.Fingerprint(event.Message, event.StackTrace)

	timestamp := s.now()
	if event.Timestamp != nil {
		timestamp = *event.Timestamp
	}

	var expiresAt *time.Time
	if project.RetentionDays > 0 {
		t := timestamp.Add(time.Duration(project.RetentionDays) * 24 * time.Hour)
		expiresAt = &t
	}

	issue, isNew, err := s.upsertIssue(ctx, project, event, fingerprint, timestamp, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
	}

	occurrence := &domain.Occurrence{
		ID:          uuid.New(),
		IssueID:     issue.ID,
		ProjectID:   project.ID,
		Fingerprint: fingerprint,
		Timestamp:   timestamp,
		Environment: event.Environment,
		Metadata:    event.Metadata,
		UserContext: event.UserContext,
		StackTrace:  event.StackTrace,
		ExpiresAt:   expiresAt,
	}
	if err := s.occurrences.Insert(ctx, occurrence); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
	}

	s.fanOut(project, issue, occurrence, isNew, event)

	return &IngestResult{
		Issue:       issue,
		Occurrence:  occurrence,
		Fingerprint: fingerprint,
		IsNew:       isNew,
	}, nil
}

// upsertIssue applies the dedup path. Losing the unique-key creation race
// falls back to reading the winner and applying the update path.
func (s *IngestService) upsertIssue(ctx context.Context, project *domain.Project, event *domain.ErrorEvent, fingerprint string, timestamp time.Time, expiresAt *time.Time) (*domain.Issue, bool, error) {
	existing, err := s.issues.GetByFingerprint(ctx, project.ID, fingerprint)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	if existing != nil {
		updated, err := s.applyOccurrence(ctx, existing.ID, event, timestamp, expiresAt)
		if err != nil {
			return nil, false, err
		}
		return updated, false, nil
	}

	issue := &domain.Issue{
		ID:          uuid.New(),
		ProjectID:   project.ID,
		Message:     event.Message,
		Environment: event.Environment,
		StackTrace:  event.StackTrace,
		Fingerprint: fingerprint,
		Count:       1,
		FirstSeen:   timestamp,
		LastSeen:    timestamp,
		Status:      domain.IssueStatusNew,
		StatusHistory: []domain.StatusChange{{
			Status:    domain.IssueStatusNew,
			ChangedAt: timestamp,
		}},
		AssignmentHistory: []domain.AssignmentChange{},
		Metadata:          event.Metadata,
		UserContext:       event.UserContext,
		ExpiresAt:         expiresAt,
		CreatedAt:         timestamp,
		UpdatedAt:         timestamp,
	}
	if issue.Metadata == nil {
		issue.Metadata = map[string]any{}
	}
	if issue.UserContext == nil {
		issue.UserContext = map[string]any{}
	}

	err = s.issues.Create(ctx, issue)
	if err == nil {
		return issue, true, nil
	}
	if !errors.Is(err, domain.ErrDuplicateEntry) {
		return nil, false, err
	}

	// Another writer created the issue first; fold into it.
	winner, err := s.issues.GetByFingerprint(ctx, project.ID, fingerprint)
	if err != nil {
		return nil, false, err
	}
	updated, err := s.applyOccurrence(ctx, winner.ID, event, timestamp, expiresAt)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

func (s *IngestService) applyOccurrence(ctx context.Context, issueID uuid.UUID, event *domain.ErrorEvent, timestamp time.Time, expiresAt *time.Time) (*domain.Issue, error) {
	return s.issues.ApplyOccurrence(ctx, issueID, postgres.OccurrencePatch{
		Message:        event.Message,
		Environment:    event.Environment,
		StackTrace:     event.StackTrace,
		Timestamp:      timestamp,
		Metadata:       event.Metadata,
		HasMetadata:    event.HasMetadata,
		UserContext:    event.UserContext,
		HasUserContext: event.HasUserContext,
		ExpiresAt:      expiresAt,
	})
}

// fanOut fires the analytics invalidation and the trigger pipeline without
// blocking or failing the ingestion response.
func (s *IngestService) fanOut(project *domain.Project, issue *domain.Issue, occurrence *domain.Occurrence, isNew bool, event *domain.ErrorEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.asyncTimeout)
		defer cancel()
		s.analytics.InvalidateProject(ctx, project.ID)
	}()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.asyncTimeout)
		defer cancel()
		if _, err := s.trigger.EvaluateAndDispatch(ctx, project, issue, occurrence, isNew, event); err != nil {
			s.logger.Warn("trigger pipeline failed",
				zap.String("project_id", project.ID.String()),
				zap.String("issue_id", issue.ID.String()),
				zap.Error(err),
			)
		}
	}()
}
