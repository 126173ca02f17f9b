package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
)

// RetentionProjectLister returns projects with a retention window configured
type RetentionProjectLister interface {
	ListWithRetention(ctx context.Context) ([]*domain.Project, error)
}

// IssuePruner deletes aged issues
type IssuePruner interface {
	DeleteOlderThan(ctx context.Context, projectID uuid.UUID, cutoff time.Time) (int64, error)
}

// OccurrencePruner deletes aged occurrences
type OccurrencePruner interface {
	DeleteOlderThan(ctx context.Context, projectID uuid.UUID, cutoff time.Time) error
}

// RetentionService deletes issues and occurrences older than each project's
// retention window. Per-project failures are logged and do not stop the scan.
type RetentionService struct {
	projects    RetentionProjectLister
	issues      IssuePruner
	occurrences OccurrencePruner
	interval    time.Duration
	logger      *zap.Logger
	now         func() time.Time

	stopCh chan struct{}
}

// NewRetentionService creates the retention scheduler
func NewRetentionService(projects RetentionProjectLister, issues IssuePruner, occurrences OccurrencePruner, interval time.Duration, logger *zap.Logger) *RetentionService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionService{
		projects:    projects,
		issues:      issues,
		occurrences: occurrences,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop is called
func (s *RetentionService) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Warn("retention scan failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				return
			}
		}
	}()
	s.logger.Info("retention scheduler started", zap.Duration("interval", s.interval))
}

// Stop terminates the cleanup loop
func (s *RetentionService) Stop() {
	close(s.stopCh)
}

// RunOnce performs one cleanup pass over all retention-enabled projects
func (s *RetentionService) RunOnce(ctx context.Context) error {
	projects, err := s.projects.ListWithRetention(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, project := range projects {
		if project.RetentionDays < 1 {
			continue
		}
		cutoff := now.Add(-time.Duration(project.RetentionDays) * 24 * time.Hour)

		if err := s.occurrences.DeleteOlderThan(ctx, project.ID, cutoff); err != nil {
			s.logger.Warn("occurrence cleanup failed",
				zap.String("project_id", project.ID.String()),
				zap.Error(err),
			)
		}
		deleted, err := s.issues.DeleteOlderThan(ctx, project.ID, cutoff)
		if err != nil {
			s.logger.Warn("issue cleanup failed",
				zap.String("project_id", project.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if deleted > 0 {
			s.logger.Info("aged issues deleted",
				zap.String("project_id", project.ID.String()),
				zap.Int64("count", deleted),
			)
		}
	}
	return nil
}
