package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
)

type fakeRuleLister struct {
	rules []*domain.AlertRule
	err   error
}

func (f *fakeRuleLister) ListEnabled(_ context.Context, _ uuid.UUID) ([]*domain.AlertRule, error) {
	return f.rules, f.err
}

type countCall struct {
	fingerprint string
	environment string
	from        time.Time
	to          time.Time
}

type fakeCounter struct {
	mu    sync.Mutex
	calls []countCall
	fn    func(call countCall) (int64, error)
}

func (f *fakeCounter) CountWindow(_ context.Context, _ uuid.UUID, fingerprint, environment string, from, to time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := countCall{fingerprint: fingerprint, environment: environment, from: from, to: to}
	f.calls = append(f.calls, call)
	if f.fn != nil {
		return f.fn(call)
	}
	return 0, nil
}

type noopEnricher struct{ calls int }

func (f *noopEnricher) Enrich(_ context.Context, _ *domain.Project, _ *domain.Issue, _ *domain.AlertRule, _ *domain.AlertPayload) {
	f.calls++
}

type fakeNotifier struct {
	alerts []*domain.AlertPayload
	rules  []*domain.AlertRule
	err    error
}

func (f *fakeNotifier) ProcessTriggeredAlert(_ context.Context, _ *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload) error {
	if f.err != nil {
		return f.err
	}
	f.rules = append(f.rules, rule)
	f.alerts = append(f.alerts, alert)
	return nil
}

func newTestTrigger(rules *fakeRuleLister, counter *fakeCounter, notifier *fakeNotifier) *TriggerService {
	return NewTriggerService(rules, counter, NewRuleEvaluator(), &noopEnricher{}, notifier, "http://dash.example.com/", zap.NewNop())
}

func triggerFixtures() (*domain.Project, *domain.Issue, *domain.Occurrence) {
	project := &domain.Project{ID: uuid.New(), Name: "checkout"}
	issue := &domain.Issue{
		ID:          uuid.New(),
		ProjectID:   project.ID,
		Message:     "TypeError: cannot read name",
		Fingerprint: "fp-1",
		Environment: "production",
		Count:       25,
	}
	occurrence := &domain.Occurrence{
		IssueID:     issue.ID,
		ProjectID:   project.ID,
		Fingerprint: "fp-1",
		Environment: "production",
		Timestamp:   time.Now(),
	}
	return project, issue, occurrence
}

func thresholdTriggerRule(threshold int, window float64) *domain.AlertRule {
	return &domain.AlertRule{
		ID:      uuid.New(),
		Name:    "too many errors",
		Type:    domain.RuleTypeThreshold,
		Enabled: true,
		Conditions: domain.RuleConditions{
			Threshold:     threshold,
			WindowMinutes: window,
		},
	}
}

func TestTriggerThresholdRuleDispatches(t *testing.T) {
	rules := &fakeRuleLister{rules: []*domain.AlertRule{thresholdTriggerRule(10, 5)}}
	counter := &fakeCounter{fn: func(countCall) (int64, error) { return 25, nil }}
	notifier := &fakeNotifier{}
	svc := newTestTrigger(rules, counter, notifier)

	project, issue, occurrence := triggerFixtures()
	triggered, err := svc.EvaluateAndDispatch(context.Background(), project, issue, occurrence, false, &domain.ErrorEvent{})
	require.NoError(t, err)
	assert.Equal(t, 1, triggered)

	require.Len(t, counter.calls, 1)
	assert.Equal(t, "fp-1", counter.calls[0].fingerprint)
	assert.Equal(t, "", counter.calls[0].environment, "no environment restriction means an unfiltered count")
	assert.WithinDuration(t, counter.calls[0].to.Add(-5*time.Minute), counter.calls[0].from, time.Second)

	require.Len(t, notifier.alerts, 1)
	alert := notifier.alerts[0]
	assert.Equal(t, issue.Message, alert.Title)
	assert.Equal(t, "Detected 25 occurrences in the last 5 minutes (threshold 10).", alert.Summary)
	assert.Equal(t, domain.SeverityHigh, alert.Severity)
	assert.Equal(t, rules.rules[0].ID, alert.Metadata.RuleID)
	assert.Equal(t, fmt.Sprintf("http://dash.example.com/projects/%s/issues/%s", project.ID, issue.ID), alert.Links.Dashboard)
}

func TestTriggerSkipsCountingRulesWithoutFingerprint(t *testing.T) {
	rules := &fakeRuleLister{rules: []*domain.AlertRule{thresholdTriggerRule(1, 5)}}
	counter := &fakeCounter{}
	notifier := &fakeNotifier{}
	svc := newTestTrigger(rules, counter, notifier)

	project, issue, occurrence := triggerFixtures()
	occurrence.Fingerprint = ""

	triggered, err := svc.EvaluateAndDispatch(context.Background(), project, issue, occurrence, false, &domain.ErrorEvent{})
	require.NoError(t, err)
	assert.Equal(t, 0, triggered)
	assert.Empty(t, counter.calls)
	assert.Empty(t, notifier.alerts)
}

func TestTriggerSpikeUsesBaselineWindow(t *testing.T) {
	rule := &domain.AlertRule{
		ID:      uuid.New(),
		Name:    "error spike",
		Type:    domain.RuleTypeSpike,
		Enabled: true,
		Conditions: domain.RuleConditions{
			IncreasePercent: 200,
			WindowMinutes:   10,
			BaselineMinutes: 60,
		},
	}
	counter := &fakeCounter{fn: func(call countCall) (int64, error) {
		// first call covers the hot window, second the baseline before it
		if call.to.Sub(call.from) > 30*time.Minute {
			return 60, nil
		}
		return 40, nil
	}}
	notifier := &fakeNotifier{}
	svc := newTestTrigger(&fakeRuleLister{rules: []*domain.AlertRule{rule}}, counter, notifier)

	project, issue, occurrence := triggerFixtures()
	triggered, err := svc.EvaluateAndDispatch(context.Background(), project, issue, occurrence, false, &domain.ErrorEvent{})
	require.NoError(t, err)
	assert.Equal(t, 1, triggered)

	require.Len(t, counter.calls, 2)
	assert.Equal(t, counter.calls[0].from, counter.calls[1].to, "baseline window ends where the hot window starts")

	require.Len(t, notifier.alerts, 1)
	assert.Contains(t, notifier.alerts[0].Summary, "Error rate increased by")
	assert.Equal(t, domain.ReasonSpikeDetected, notifier.alerts[0].Metadata.Reason)
}

func TestTriggerCounterFailureSkipsRuleOnly(t *testing.T) {
	rules := &fakeRuleLister{rules: []*domain.AlertRule{
		thresholdTriggerRule(1, 5),
		{ID: uuid.New(), Name: "first seen", Type: domain.RuleTypeNewError, Enabled: true},
	}}
	counter := &fakeCounter{fn: func(countCall) (int64, error) { return 0, assert.AnError }}
	notifier := &fakeNotifier{}
	svc := newTestTrigger(rules, counter, notifier)

	project, issue, occurrence := triggerFixtures()
	triggered, err := svc.EvaluateAndDispatch(context.Background(), project, issue, occurrence, true, &domain.ErrorEvent{})
	require.NoError(t, err)
	assert.Equal(t, 1, triggered, "new_error rule still fires")
	require.Len(t, notifier.rules, 1)
	assert.Equal(t, domain.RuleTypeNewError, notifier.rules[0].Type)
}

func TestTriggerNotifierFailureDoesNotCount(t *testing.T) {
	rules := &fakeRuleLister{rules: []*domain.AlertRule{
		{ID: uuid.New(), Name: "first seen", Type: domain.RuleTypeNewError, Enabled: true},
	}}
	notifier := &fakeNotifier{err: assert.AnError}
	svc := newTestTrigger(rules, &fakeCounter{}, notifier)

	project, issue, occurrence := triggerFixtures()
	triggered, err := svc.EvaluateAndDispatch(context.Background(), project, issue, occurrence, true, &domain.ErrorEvent{})
	require.NoError(t, err)
	assert.Equal(t, 0, triggered)
}

func TestTriggerEnvironmentScopedCount(t *testing.T) {
	rule := thresholdTriggerRule(10, 5)
	rule.Conditions.Environments = []string{"production"}
	counter := &fakeCounter{fn: func(countCall) (int64, error) { return 3, nil }}
	svc := newTestTrigger(&fakeRuleLister{rules: []*domain.AlertRule{rule}}, counter, &fakeNotifier{})

	project, issue, occurrence := triggerFixtures()
	_, err := svc.EvaluateAndDispatch(context.Background(), project, issue, occurrence, false, &domain.ErrorEvent{})
	require.NoError(t, err)

	require.Len(t, counter.calls, 1)
	assert.Equal(t, "production", counter.calls[0].environment)
}

func TestTriggerCriticalSeverityFromMetadata(t *testing.T) {
	rule := &domain.AlertRule{
		ID:      uuid.New(),
		Name:    "sev gate",
		Type:    domain.RuleTypeCritical,
		Enabled: true,
		Conditions: domain.RuleConditions{
			Severity: "critical",
		},
	}
	notifier := &fakeNotifier{}
	svc := newTestTrigger(&fakeRuleLister{rules: []*domain.AlertRule{rule}}, &fakeCounter{}, notifier)

	project, issue, occurrence := triggerFixtures()
	occurrence.Metadata = map[string]any{"severity": "critical"}

	triggered, err := svc.EvaluateAndDispatch(context.Background(), project, issue, occurrence, false, &domain.ErrorEvent{})
	require.NoError(t, err)
	assert.Equal(t, 1, triggered)
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, domain.SeverityCritical, notifier.alerts[0].Severity)
	assert.Contains(t, notifier.alerts[0].Summary, "Critical alert triggered in production")
}
