package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/postgres"
)

type fakeQueue struct {
	entries   map[uuid.UUID][]*domain.DigestEntry // keyed by member id
	processed []uuid.UUID
}

func (f *fakeQueue) ListPendingMembers(_ context.Context) ([]postgres.PendingMember, error) {
	var out []postgres.PendingMember
	for memberID, entries := range f.entries {
		if len(entries) > 0 {
			out = append(out, postgres.PendingMember{ProjectID: entries[0].ProjectID, MemberID: memberID})
		}
	}
	return out, nil
}

func (f *fakeQueue) ListPending(_ context.Context, _, memberID uuid.UUID) ([]*domain.DigestEntry, error) {
	return f.entries[memberID], nil
}

func (f *fakeQueue) MarkProcessed(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	f.processed = append(f.processed, ids...)
	return nil
}

type fakeDirectory struct {
	members    map[uuid.UUID]*domain.TeamMember
	digestSent []uuid.UUID
}

func (f *fakeDirectory) GetByID(_ context.Context, id uuid.UUID) (*domain.TeamMember, error) {
	if m, ok := f.members[id]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDirectory) MarkDigestSent(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.digestSent = append(f.digestSent, id)
	return nil
}

type fakeProjects struct {
	project *domain.Project
}

func (f *fakeProjects) GetByID(_ context.Context, _ uuid.UUID) (*domain.Project, error) {
	return f.project, nil
}

type fakeMailer struct {
	digests []fakeDigest
	err     error
}

type fakeDigest struct {
	member  *domain.TeamMember
	entries []*domain.DigestEntry
}

func (f *fakeMailer) SendDigest(_ context.Context, _ *domain.Project, member *domain.TeamMember, entries []*domain.DigestEntry) error {
	if f.err != nil {
		return f.err
	}
	f.digests = append(f.digests, fakeDigest{member: member, entries: entries})
	return nil
}

func digestMember(mode, cadence string, lastSent *time.Time) *domain.TeamMember {
	return &domain.TeamMember{
		ID:     uuid.New(),
		Email:  "batch@example.com",
		Active: true,
		AlertPreferences: domain.AlertPreferences{Email: domain.EmailPrefs{
			Mode:   mode,
			Digest: domain.DigestPrefs{Cadence: cadence, LastSentAt: lastSent},
		}},
	}
}

func queuedEntries(projectID, memberID uuid.UUID, n int) []*domain.DigestEntry {
	entries := make([]*domain.DigestEntry, n)
	for i := range entries {
		entries[i] = &domain.DigestEntry{
			ID:        uuid.New(),
			ProjectID: projectID,
			MemberID:  memberID,
			Alert:     &domain.AlertPayload{Title: "boom"},
			CreatedAt: time.Now(),
		}
	}
	return entries
}

func TestDigestRunOnceSendsDueDigest(t *testing.T) {
	projectID := uuid.New()
	member := digestMember(domain.EmailModeDigest, domain.DigestCadenceDaily, nil)

	queue := &fakeQueue{entries: map[uuid.UUID][]*domain.DigestEntry{
		member.ID: queuedEntries(projectID, member.ID, 3),
	}}
	directory := &fakeDirectory{members: map[uuid.UUID]*domain.TeamMember{member.ID: member}}
	mailer := &fakeMailer{}
	svc := NewDigestService(queue, directory, &fakeProjects{project: &domain.Project{ID: projectID, Name: "checkout"}}, mailer, time.Minute, zap.NewNop())

	require.NoError(t, svc.RunOnce(context.Background()))

	require.Len(t, mailer.digests, 1)
	assert.Len(t, mailer.digests[0].entries, 3)
	assert.Len(t, queue.processed, 3)
	assert.Equal(t, []uuid.UUID{member.ID}, directory.digestSent)
}

func TestDigestCadenceNotElapsedSkipsMember(t *testing.T) {
	projectID := uuid.New()
	recent := time.Now().Add(-2 * time.Hour)
	member := digestMember(domain.EmailModeDigest, domain.DigestCadenceDaily, &recent)

	queue := &fakeQueue{entries: map[uuid.UUID][]*domain.DigestEntry{
		member.ID: queuedEntries(projectID, member.ID, 2),
	}}
	directory := &fakeDirectory{members: map[uuid.UUID]*domain.TeamMember{member.ID: member}}
	mailer := &fakeMailer{}
	svc := NewDigestService(queue, directory, &fakeProjects{project: &domain.Project{ID: projectID}}, mailer, time.Minute, zap.NewNop())

	require.NoError(t, svc.RunOnce(context.Background()))

	assert.Empty(t, mailer.digests)
	assert.Empty(t, queue.processed, "entries stay queued until the cadence elapses")
}

func TestDigestWeeklyCadence(t *testing.T) {
	projectID := uuid.New()
	threeDays := time.Now().Add(-3 * 24 * time.Hour)
	member := digestMember(domain.EmailModeDigest, domain.DigestCadenceWeekly, &threeDays)

	queue := &fakeQueue{entries: map[uuid.UUID][]*domain.DigestEntry{
		member.ID: queuedEntries(projectID, member.ID, 1),
	}}
	directory := &fakeDirectory{members: map[uuid.UUID]*domain.TeamMember{member.ID: member}}
	mailer := &fakeMailer{}
	svc := NewDigestService(queue, directory, &fakeProjects{project: &domain.Project{ID: projectID}}, mailer, time.Minute, zap.NewNop())

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Empty(t, mailer.digests, "three days is inside the weekly window")

	eightDays := time.Now().Add(-8 * 24 * time.Hour)
	member.AlertPreferences.Email.Digest.LastSentAt = &eightDays
	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Len(t, mailer.digests, 1)
}

func TestDigestDisabledMemberConsumedSilently(t *testing.T) {
	projectID := uuid.New()
	member := digestMember(domain.EmailModeDisabled, domain.DigestCadenceDaily, nil)

	queue := &fakeQueue{entries: map[uuid.UUID][]*domain.DigestEntry{
		member.ID: queuedEntries(projectID, member.ID, 2),
	}}
	directory := &fakeDirectory{members: map[uuid.UUID]*domain.TeamMember{member.ID: member}}
	mailer := &fakeMailer{}
	svc := NewDigestService(queue, directory, &fakeProjects{project: &domain.Project{ID: projectID}}, mailer, time.Minute, zap.NewNop())

	require.NoError(t, svc.RunOnce(context.Background()))

	assert.Empty(t, mailer.digests)
	assert.Len(t, queue.processed, 2, "entries are drained without an email")
	assert.Empty(t, directory.digestSent)
}

func TestDigestMissingMemberConsumedSilently(t *testing.T) {
	projectID := uuid.New()
	ghost := uuid.New()

	queue := &fakeQueue{entries: map[uuid.UUID][]*domain.DigestEntry{
		ghost: queuedEntries(projectID, ghost, 1),
	}}
	mailer := &fakeMailer{}
	svc := NewDigestService(queue, &fakeDirectory{}, &fakeProjects{project: &domain.Project{ID: projectID}}, mailer, time.Minute, zap.NewNop())

	require.NoError(t, svc.RunOnce(context.Background()))

	assert.Empty(t, mailer.digests)
	assert.Len(t, queue.processed, 1)
}

func TestDigestMailerFailureLeavesEntriesQueued(t *testing.T) {
	projectID := uuid.New()
	member := digestMember(domain.EmailModeDigest, domain.DigestCadenceDaily, nil)

	queue := &fakeQueue{entries: map[uuid.UUID][]*domain.DigestEntry{
		member.ID: queuedEntries(projectID, member.ID, 2),
	}}
	directory := &fakeDirectory{members: map[uuid.UUID]*domain.TeamMember{member.ID: member}}
	mailer := &fakeMailer{err: assert.AnError}
	svc := NewDigestService(queue, directory, &fakeProjects{project: &domain.Project{ID: projectID}}, mailer, time.Minute, zap.NewNop())

	// RunOnce logs the failure and keeps going
	require.NoError(t, svc.RunOnce(context.Background()))

	assert.Empty(t, queue.processed)
	assert.Empty(t, directory.digestSent)
}
