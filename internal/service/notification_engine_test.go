package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/memory"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []dispatchCall
	failAll bool
}

type dispatchCall struct {
	alert    *domain.AlertPayload
	channels []domain.ChannelRef
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ *domain.Project, _ *domain.AlertRule, alert *domain.AlertPayload, channels []domain.ChannelRef) []ChannelResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{alert: alert, channels: channels})
	result := ChannelResult{Type: "webhook", Target: "http://example.com"}
	if f.failAll {
		result.Error = errors.New("connection refused")
	}
	return []ChannelResult{result}
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDispatcher) call(i int) dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func newTestEngine(window time.Duration, dispatcher *fakeDispatcher) *NotificationEngine {
	cfg := NotificationEngineConfig{
		AggregationWindow:        window,
		DefaultCooldownMinutes:   30,
		DefaultEscalationMinutes: 120,
	}
	return NewNotificationEngine(cfg, memory.NewNotificationStateStore(), dispatcher, zap.NewNop())
}

func engineAlert(title string) *domain.AlertPayload {
	return &domain.AlertPayload{
		Title:        title,
		Summary:      "summary",
		Severity:     "high",
		Environments: []string{"production"},
		Occurrences:  3,
	}
}

func engineRule() *domain.AlertRule {
	return &domain.AlertRule{
		ID:       uuid.New(),
		Name:     "too many errors",
		Type:     domain.RuleTypeThreshold,
		Enabled:  true,
		Channels: []domain.ChannelRef{{Type: "webhook", Target: "http://example.com"}},
	}
}

func TestProcessTriggeredAlertZeroWindowDispatchesSynchronously(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(0, dispatcher)
	defer engine.Stop()

	project := &domain.Project{ID: uuid.New(), Name: "checkout"}
	rule := engineRule()

	err := engine.ProcessTriggeredAlert(context.Background(), project, rule, engineAlert("boom"))
	require.NoError(t, err)
	require.Equal(t, 1, dispatcher.callCount())

	sent := dispatcher.call(0).alert
	assert.Equal(t, "boom", sent.Title)
	require.NotNil(t, sent.Metadata.Aggregation)
	assert.False(t, sent.Metadata.Aggregation.Aggregated)
	assert.Equal(t, 1, sent.Metadata.Aggregation.Count)
	assert.NotEmpty(t, sent.ID)
}

func TestProcessTriggeredAlertAggregatesBurst(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(50*time.Millisecond, dispatcher)
	defer engine.Stop()

	project := &domain.Project{ID: uuid.New()}
	rule := engineRule()

	for i := 0; i < 5; i++ {
		require.NoError(t, engine.ProcessTriggeredAlert(context.Background(), project, rule, engineAlert("boom")))
	}
	assert.Equal(t, 0, dispatcher.callCount(), "nothing dispatched inside the window")

	require.Eventually(t, func() bool { return dispatcher.callCount() == 1 }, time.Second, 10*time.Millisecond)

	sent := dispatcher.call(0).alert
	require.NotNil(t, sent.Metadata.Aggregation)
	assert.True(t, sent.Metadata.Aggregation.Aggregated)
	assert.Equal(t, 5, sent.Metadata.Aggregation.Count)
	assert.NotEmpty(t, sent.Metadata.Aggregation.Sample)
	assert.Equal(t, "5 alerts triggered for too many errors", sent.Title)
	assert.Equal(t, int64(15), sent.Occurrences)
}

func TestAggregationTakesMaxSeverityAndUnionsEnvironments(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(20*time.Millisecond, dispatcher)
	defer engine.Stop()

	project := &domain.Project{ID: uuid.New()}
	rule := engineRule()

	low := engineAlert("one")
	low.Severity = "low"
	low.Environments = []string{"staging"}
	critical := engineAlert("two")
	critical.Severity = "critical"
	critical.Environments = []string{"production"}

	require.NoError(t, engine.ProcessTriggeredAlert(context.Background(), project, rule, low))
	require.NoError(t, engine.ProcessTriggeredAlert(context.Background(), project, rule, critical))

	require.Eventually(t, func() bool { return dispatcher.callCount() == 1 }, time.Second, 10*time.Millisecond)

	sent := dispatcher.call(0).alert
	assert.Equal(t, "critical", sent.Severity)
	assert.ElementsMatch(t, []string{"staging", "production"}, sent.Environments)
}

func TestCooldownSuppressesSecondDispatch(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(0, dispatcher)
	defer engine.Stop()

	project := &domain.Project{ID: uuid.New()}
	rule := engineRule()
	rule.CooldownMinutes = 30

	require.NoError(t, engine.ProcessTriggeredAlert(context.Background(), project, rule, engineAlert("first")))
	require.Equal(t, 1, dispatcher.callCount())

	// second trigger inside the cooldown is buffered, not dispatched
	require.NoError(t, engine.ProcessTriggeredAlert(context.Background(), project, rule, engineAlert("second")))
	assert.Equal(t, 1, dispatcher.callCount())
}

func TestDispatchFailureKeepsBucket(t *testing.T) {
	dispatcher := &fakeDispatcher{failAll: true}
	engine := newTestEngine(0, dispatcher)
	defer engine.Stop()

	project := &domain.Project{ID: uuid.New()}
	rule := engineRule()

	err := engine.ProcessTriggeredAlert(context.Background(), project, rule, engineAlert("boom"))
	assert.Error(t, err)

	// failed dispatch records no cooldown, so the retry can deliver
	dispatcher.mu.Lock()
	dispatcher.failAll = false
	dispatcher.mu.Unlock()
	require.Eventually(t, func() bool { return dispatcher.callCount() >= 2 }, 3*time.Second, 20*time.Millisecond)
}

func escalatingRule(afterMinutes float64) *domain.AlertRule {
	rule := engineRule()
	rule.Escalation = &domain.EscalationPolicy{
		Enabled:  true,
		Channels: []domain.ChannelRef{{Type: "email", Target: "manager@example.com"}},
		Levels: []domain.EscalationLevel{
			{Name: "Manager", AfterMinutes: afterMinutes},
		},
	}
	return rule
}

func TestEscalationFiresAfterDelay(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(0, dispatcher)
	defer engine.Stop()

	project := &domain.Project{ID: uuid.New()}
	rule := escalatingRule(0.001) // clamped to the minimum timer delay

	require.NoError(t, engine.ProcessTriggeredAlert(context.Background(), project, rule, engineAlert("boom")))
	require.Equal(t, 1, dispatcher.callCount())

	require.Eventually(t, func() bool { return dispatcher.callCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	escalation := dispatcher.call(1)
	assert.Equal(t, "Escalation: boom", escalation.alert.Title)
	assert.Equal(t, domain.SeverityCritical, escalation.alert.Severity)
	assert.True(t, escalation.alert.Metadata.Escalation)
	assert.Equal(t, dispatcher.call(0).alert.ID, escalation.alert.Metadata.OriginalAlertID)
	// escalation goes to the level channels, not the rule channels
	require.Len(t, escalation.channels, 1)
	assert.Equal(t, "email", escalation.channels[0].Type)
}

func TestAcknowledgeCancelsEscalation(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(0, dispatcher)
	defer engine.Stop()

	project := &domain.Project{ID: uuid.New()}
	rule := escalatingRule(60)

	require.NoError(t, engine.ProcessTriggeredAlert(context.Background(), project, rule, engineAlert("boom")))
	require.Equal(t, 1, dispatcher.callCount())
	alertID := dispatcher.call(0).alert.ID

	assert.True(t, engine.Acknowledge(context.Background(), alertID))
	// second ack finds nothing but stays safe
	assert.False(t, engine.Acknowledge(context.Background(), alertID))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, dispatcher.callCount())
}

func TestResolveUnknownAlertReturnsFalse(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(0, dispatcher)
	defer engine.Stop()

	assert.False(t, engine.Resolve(context.Background(), "missing-alert"))
}

func TestInitializeRestoresEscalations(t *testing.T) {
	store := memory.NewNotificationStateStore()
	dispatcher := &fakeDispatcher{}
	cfg := NotificationEngineConfig{DefaultCooldownMinutes: 30, DefaultEscalationMinutes: 120}

	project := &domain.Project{ID: uuid.New()}
	rule := escalatingRule(60)
	entry := &domain.EscalationEntry{
		ID:      "alert-restored",
		Project: project,
		Rule:    rule,
		Alert:   engineAlert("restored"),
		SentAt:  time.Now().Add(-2 * time.Hour),
		PendingLevels: []domain.EscalationLevelState{{
			Name:         "Manager",
			AfterMinutes: 60,
			Channels:     rule.Escalation.Channels,
			TriggerAt:    time.Now().Add(-time.Hour), // already due
		}},
	}
	require.NoError(t, store.SaveEscalation(context.Background(), entry))

	// settled entries are purged, not re-armed
	settled := &domain.EscalationEntry{
		ID:            "alert-settled",
		Project:       project,
		Rule:          rule,
		Alert:         engineAlert("settled"),
		Resolved:      true,
		PendingLevels: entry.PendingLevels,
	}
	require.NoError(t, store.SaveEscalation(context.Background(), settled))

	engine := NewNotificationEngine(cfg, store, dispatcher, zap.NewNop())
	defer engine.Stop()
	require.NoError(t, engine.Initialize(context.Background()))

	// the overdue level fires after the minimum delay, never inline
	assert.Equal(t, 0, dispatcher.callCount())
	require.Eventually(t, func() bool { return dispatcher.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Escalation: restored", dispatcher.call(0).alert.Title)

	remaining, err := store.ListEscalations(context.Background())
	require.NoError(t, err)
	for _, r := range remaining {
		assert.NotEqual(t, "alert-settled", r.ID)
	}
}

func TestEscalationLevelsSortedAscending(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(0, dispatcher)
	defer engine.Stop()

	rule := engineRule()
	rule.Escalation = &domain.EscalationPolicy{
		Enabled: true,
		Levels: []domain.EscalationLevel{
			{Name: "Director", AfterMinutes: 120, Channels: []domain.ChannelRef{{Type: "email", Target: "dir@example.com"}}},
			{Name: "Manager", AfterMinutes: 30, Channels: []domain.ChannelRef{{Type: "email", Target: "mgr@example.com"}}},
		},
	}

	levels := engine.escalationLevels(rule, time.Now())
	require.Len(t, levels, 2)
	assert.Equal(t, "Manager", levels[0].Name)
	assert.Equal(t, "Director", levels[1].Name)
}

func TestEscalationDisabledProducesNoLevels(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(0, dispatcher)
	defer engine.Stop()

	rule := engineRule()
	assert.Empty(t, engine.escalationLevels(rule, time.Now()))

	rule.Escalation = &domain.EscalationPolicy{Enabled: false}
	assert.Empty(t, engine.escalationLevels(rule, time.Now()))
}

func TestEscalationEnabledWithoutLevelsSynthesizesDefault(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	engine := newTestEngine(0, dispatcher)
	defer engine.Stop()

	rule := engineRule()
	rule.Escalation = &domain.EscalationPolicy{
		Enabled:  true,
		Channels: []domain.ChannelRef{{Type: "email", Target: "mgr@example.com"}},
	}

	levels := engine.escalationLevels(rule, time.Now())
	require.Len(t, levels, 1)
	assert.Equal(t, "Manager escalation", levels[0].Name)
	assert.Equal(t, 120.0, levels[0].AfterMinutes)
	assert.Equal(t, rule.Escalation.Channels, levels[0].Channels)
}
