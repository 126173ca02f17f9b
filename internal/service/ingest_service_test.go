package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/postgres"
)

type fakeIssueStore struct {
	mu       sync.Mutex
	byFp     map[string]*domain.Issue
	created  []*domain.Issue
	patches  []postgres.OccurrencePatch
	createFn func(issue *domain.Issue) error
}

func newFakeIssueStore() *fakeIssueStore {
	return &fakeIssueStore{byFp: make(map[string]*domain.Issue)}
}

func (f *fakeIssueStore) GetByFingerprint(_ context.Context, _ uuid.UUID, fingerprint string) (*domain.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.byFp[fingerprint]; ok {
		return issue, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeIssueStore) Create(_ context.Context, issue *domain.Issue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createFn != nil {
		if err := f.createFn(issue); err != nil {
			return err
		}
	}
	f.byFp[issue.Fingerprint] = issue
	f.created = append(f.created, issue)
	return nil
}

func (f *fakeIssueStore) ApplyOccurrence(_ context.Context, id uuid.UUID, patch postgres.OccurrencePatch) (*domain.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	for _, issue := range f.byFp {
		if issue.ID == id {
			issue.Count++
			if patch.Timestamp.After(issue.LastSeen) {
				issue.LastSeen = patch.Timestamp
			}
			return issue, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeOccurrenceWriter struct {
	mu       sync.Mutex
	inserted []*domain.Occurrence
	err      error
}

func (f *fakeOccurrenceWriter) Insert(_ context.Context, occurrence *domain.Occurrence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, occurrence)
	return nil
}

type fakeAnalytics struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeAnalytics) InvalidateProject(_ context.Context, _ uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeAnalytics) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTrigger struct {
	mu    sync.Mutex
	calls []bool // isNew per call
}

func (f *fakeTrigger) EvaluateAndDispatch(_ context.Context, _ *domain.Project, _ *domain.Issue, _ *domain.Occurrence, isNew bool, _ *domain.ErrorEvent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, isNew)
	return 0, nil
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestIngest(issues *fakeIssueStore, occurrences *fakeOccurrenceWriter, trigger *fakeTrigger, analytics *fakeAnalytics) *IngestService {
	return NewIngestService(NewSanitizer(), NewFingerprinter(), issues, occurrences, analytics, trigger, zap.NewNop())
}

func ingestProject() *domain.Project {
	return &domain.Project{ID: uuid.New(), Name: "checkout", RetentionDays: 30}
}

func TestIngestCreatesNewIssue(t *testing.T) {
	issues := newFakeIssueStore()
	occurrences := &fakeOccurrenceWriter{}
	trigger := &fakeTrigger{}
	analytics := &fakeAnalytics{}
	svc := newTestIngest(issues, occurrences, trigger, analytics)

	project := ingestProject()
	result, err := svc.Ingest(context.Background(), project, &domain.ErrorEvent{
		Message:     "boom",
		Environment: "production",
		StackTrace:  []domain.StackFrame{{File: "app.js", Line: 10, Function: "handler"}},
	})
	require.NoError(t, err)

	assert.True(t, result.IsNew)
	assert.Equal(t, int64(1), result.Issue.Count)
	assert.Equal(t, domain.IssueStatusNew, result.Issue.Status)
	require.Len(t, result.Issue.StatusHistory, 1)
	assert.NotEmpty(t, result.Fingerprint)
	require.NotNil(t, result.Issue.ExpiresAt)

	require.Len(t, occurrences.inserted, 1)
	assert.Equal(t, result.Issue.ID, occurrences.inserted[0].IssueID)
	assert.Equal(t, result.Fingerprint, occurrences.inserted[0].Fingerprint)

	require.Eventually(t, func() bool { return trigger.count() == 1 && analytics.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestIngestDeduplicatesByFingerprint(t *testing.T) {
	issues := newFakeIssueStore()
	occurrences := &fakeOccurrenceWriter{}
	trigger := &fakeTrigger{}
	svc := newTestIngest(issues, occurrences, trigger, &fakeAnalytics{})

	project := ingestProject()
	event := &domain.ErrorEvent{
		Message:    "boom",
		StackTrace: []domain.StackFrame{{File: "app.js", Line: 10, Function: "handler"}},
	}

	first, err := svc.Ingest(context.Background(), project, event)
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), project, event)
	require.NoError(t, err)

	assert.True(t, first.IsNew)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Issue.ID, second.Issue.ID)
	assert.Equal(t, int64(2), second.Issue.Count)
	assert.Len(t, issues.created, 1)
	assert.Len(t, occurrences.inserted, 2, "every event appends an occurrence")
}

func TestIngestSanitizesBeforeFingerprinting(t *testing.T) {
	issues := newFakeIssueStore()
	occurrences := &fakeOccurrenceWriter{}
	svc := newTestIngest(issues, occurrences, &fakeTrigger{}, &fakeAnalytics{})

	project := ingestProject()
	result, err := svc.Ingest(context.Background(), project, &domain.ErrorEvent{
		Message: "login failed password=hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, "login failed password=[REDACTED]", result.Issue.Message)

	// same failure with a different secret groups into the same issue
	again, err := svc.Ingest(context.Background(), project, &domain.ErrorEvent{
		Message: "login failed password=hunter3",
	})
	require.NoError(t, err)
	assert.Equal(t, result.Issue.ID, again.Issue.ID)
}

func TestIngestCreationRaceFallsBackToUpdate(t *testing.T) {
	issues := newFakeIssueStore()
	winner := &domain.Issue{ID: uuid.New(), Count: 1, Status: domain.IssueStatusNew}
	raced := false
	issues.createFn = func(issue *domain.Issue) error {
		// a concurrent writer already created the issue
		winner.Fingerprint = issue.Fingerprint
		issues.byFp[issue.Fingerprint] = winner
		raced = true
		return domain.ErrDuplicateEntry
	}

	svc := newTestIngest(issues, &fakeOccurrenceWriter{}, &fakeTrigger{}, &fakeAnalytics{})
	result, err := svc.Ingest(context.Background(), ingestProject(), &domain.ErrorEvent{Message: "boom"})
	require.NoError(t, err)

	assert.True(t, raced)
	assert.False(t, result.IsNew)
	assert.Equal(t, winner.ID, result.Issue.ID)
	assert.Equal(t, int64(2), result.Issue.Count)
}

func TestIngestOccurrenceWriteFailureIsTransient(t *testing.T) {
	issues := newFakeIssueStore()
	occurrences := &fakeOccurrenceWriter{err: assert.AnError}
	trigger := &fakeTrigger{}
	svc := newTestIngest(issues, occurrences, trigger, &fakeAnalytics{})

	_, err := svc.Ingest(context.Background(), ingestProject(), &domain.ErrorEvent{Message: "boom"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransientStore)
	assert.Equal(t, 0, trigger.count(), "no trigger fan-out on failed persistence")
}

func TestIngestHonorsEventTimestamp(t *testing.T) {
	issues := newFakeIssueStore()
	occurrences := &fakeOccurrenceWriter{}
	svc := newTestIngest(issues, occurrences, &fakeTrigger{}, &fakeAnalytics{})

	reported := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	result, err := svc.Ingest(context.Background(), ingestProject(), &domain.ErrorEvent{
		Message:   "boom",
		Timestamp: &reported,
	})
	require.NoError(t, err)
	assert.Equal(t, reported, result.Issue.FirstSeen)
	assert.Equal(t, reported, occurrences.inserted[0].Timestamp)
	require.NotNil(t, result.Issue.ExpiresAt)
	assert.Equal(t, reported.Add(30*24*time.Hour), *result.Issue.ExpiresAt)
}

func TestIngestNoRetentionNoExpiry(t *testing.T) {
	issues := newFakeIssueStore()
	svc := newTestIngest(issues, &fakeOccurrenceWriter{}, &fakeTrigger{}, &fakeAnalytics{})

	project := ingestProject()
	project.RetentionDays = 0
	result, err := svc.Ingest(context.Background(), project, &domain.ErrorEvent{Message: "boom"})
	require.NoError(t, err)
	assert.Nil(t, result.Issue.ExpiresAt)
	assert.Nil(t, result.Occurrence.ExpiresAt)
}
