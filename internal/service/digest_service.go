package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/postgres"
)

// DigestQueue is the pending-digest surface the scheduler consumes
type DigestQueue interface {
	ListPendingMembers(ctx context.Context) ([]postgres.PendingMember, error)
	ListPending(ctx context.Context, projectID, memberID uuid.UUID) ([]*domain.DigestEntry, error)
	MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// MemberDirectory resolves digest recipients and records delivery
type MemberDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TeamMember, error)
	MarkDigestSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ProjectLookup resolves projects for digest rendering
type ProjectLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
}

// DigestMailer renders and sends one digest email
type DigestMailer interface {
	SendDigest(ctx context.Context, project *domain.Project, member *domain.TeamMember, entries []*domain.DigestEntry) error
}

// DigestService drains the digest queue on a fixed tick. A member is due
// when their cadence window (daily 24h, weekly 7d) has elapsed since the
// last digest. Entries for members who disabled email are consumed silently.
type DigestService struct {
	queue    DigestQueue
	members  MemberDirectory
	projects ProjectLookup
	mailer   DigestMailer
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	stopCh chan struct{}
}

// NewDigestService creates the digest scheduler
func NewDigestService(queue DigestQueue, members MemberDirectory, projects ProjectLookup, mailer DigestMailer, interval time.Duration, logger *zap.Logger) *DigestService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &DigestService{
		queue:    queue,
		members:  members,
		projects: projects,
		mailer:   mailer,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the scheduler loop until Stop is called
func (s *DigestService) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Warn("digest run failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				return
			}
		}
	}()
	s.logger.Info("digest scheduler started", zap.Duration("interval", s.interval))
}

// Stop terminates the scheduler loop
func (s *DigestService) Stop() {
	close(s.stopCh)
}

// RunOnce processes every member with pending digest entries
func (s *DigestService) RunOnce(ctx context.Context) error {
	pending, err := s.queue.ListPendingMembers(ctx)
	if err != nil {
		return err
	}

	for _, pm := range pending {
		if err := s.processMember(ctx, pm); err != nil {
			s.logger.Warn("digest delivery failed",
				zap.String("project_id", pm.ProjectID.String()),
				zap.String("member_id", pm.MemberID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *DigestService) processMember(ctx context.Context, pm postgres.PendingMember) error {
	now := s.now()

	member, err := s.members.GetByID(ctx, pm.MemberID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.consumeEntries(ctx, pm, now)
		}
		return err
	}

	// Entries of members who disabled email are consumed without sending.
	if member.AlertPreferences.Email.Mode == domain.EmailModeDisabled {
		return s.consumeEntries(ctx, pm, now)
	}

	if !s.cadenceElapsed(member, now) {
		return nil
	}

	entries, err := s.queue.ListPending(ctx, pm.ProjectID, pm.MemberID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	project, err := s.projects.GetByID(ctx, pm.ProjectID)
	if err != nil {
		return err
	}

	if err := s.mailer.SendDigest(ctx, project, member, entries); err != nil {
		return err
	}

	ids := make([]uuid.UUID, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	if err := s.queue.MarkProcessed(ctx, ids, now); err != nil {
		return err
	}
	return s.members.MarkDigestSent(ctx, pm.MemberID, now)
}

func (s *DigestService) consumeEntries(ctx context.Context, pm postgres.PendingMember, now time.Time) error {
	entries, err := s.queue.ListPending(ctx, pm.ProjectID, pm.MemberID)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	return s.queue.MarkProcessed(ctx, ids, now)
}

func (s *DigestService) cadenceElapsed(member *domain.TeamMember, now time.Time) bool {
	window := 24 * time.Hour
	if member.AlertPreferences.Email.Digest.Cadence == domain.DigestCadenceWeekly {
		window = 7 * 24 * time.Hour
	}
	lastSent := member.AlertPreferences.Email.Digest.LastSentAt
	if lastSent == nil {
		return true
	}
	return now.Sub(*lastSent) >= window
}
