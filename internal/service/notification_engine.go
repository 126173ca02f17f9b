package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
)

// NotificationStateStore is the persistence contract for cooldowns and
// in-flight escalations. Both a document-backed and an in-memory
// implementation satisfy it.
type NotificationStateStore interface {
	SaveCooldown(ctx context.Context, entry domain.CooldownEntry) error
	ListCooldowns(ctx context.Context) ([]domain.CooldownEntry, error)
	DeleteCooldown(ctx context.Context, key string) error
	SaveEscalation(ctx context.Context, entry *domain.EscalationEntry) error
	ListEscalations(ctx context.Context) ([]*domain.EscalationEntry, error)
	DeleteEscalation(ctx context.Context, id string) error
}

// AlertDispatcher fans an alert out to delivery channels
type AlertDispatcher interface {
	Dispatch(ctx context.Context, project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload, channels []domain.ChannelRef) []ChannelResult
}

const minTimerDelay = 10 * time.Millisecond

type aggregationBucket struct {
	project   *domain.Project
	rule      *domain.AlertRule
	alerts    []*domain.AlertPayload
	startedAt time.Time
	timer     *time.Timer
}

type escalationState struct {
	entry *domain.EscalationEntry
	timer *time.Timer
}

// NotificationEngineConfig tunes aggregation, cooldown and escalation
type NotificationEngineConfig struct {
	AggregationWindow        time.Duration
	DefaultCooldownMinutes   float64
	DefaultEscalationMinutes float64
}

// NotificationEngine buckets triggered alerts per rule, enforces per-rule
// cooldowns, dispatches aggregated payloads and drives multi-level
// escalation. All mutable state lives behind one mutex; dispatch always runs
// outside the critical section on read-only snapshots.
type NotificationEngine struct {
	cfg        NotificationEngineConfig
	store      NotificationStateStore
	dispatcher AlertDispatcher
	logger     *zap.Logger
	now        func() time.Time

	mu          sync.Mutex
	cooldowns   map[string]int64
	buckets     map[string]*aggregationBucket
	escalations map[string]*escalationState
}

// NewNotificationEngine creates an engine; call Initialize before first use
func NewNotificationEngine(cfg NotificationEngineConfig, store NotificationStateStore, dispatcher AlertDispatcher, logger *zap.Logger) *NotificationEngine {
	if cfg.AggregationWindow < 0 {
		cfg.AggregationWindow = 0
	}
	if cfg.DefaultCooldownMinutes <= 0 {
		cfg.DefaultCooldownMinutes = 30
	}
	if cfg.DefaultEscalationMinutes <= 0 {
		cfg.DefaultEscalationMinutes = 120
	}
	e := &NotificationEngine{
		cfg:         cfg,
		store:       store,
		dispatcher:  dispatcher,
		logger:      logger,
		now:         time.Now,
		cooldowns:   make(map[string]int64),
		buckets:     make(map[string]*aggregationBucket),
		escalations: make(map[string]*escalationState),
	}
	return e
}

func (e *NotificationEngine) lock()   { e.mu.Lock() }
func (e *NotificationEngine) unlock() { e.mu.Unlock() }

// Initialize restores cooldowns and escalation timers from the state store.
// Entries already acknowledged or resolved are purged; a level whose trigger
// instant has passed fires after a minimum delay rather than inline.
func (e *NotificationEngine) Initialize(ctx context.Context) error {
	cooldowns, err := e.store.ListCooldowns(ctx)
	if err != nil {
		return err
	}
	escalations, err := e.store.ListEscalations(ctx)
	if err != nil {
		return err
	}

	e.lock()
	for _, c := range cooldowns {
		e.cooldowns[c.Key] = c.TimestampMs
	}
	e.unlock()

	for _, entry := range escalations {
		if entry.Acknowledged || entry.Resolved {
			if err := e.store.DeleteEscalation(ctx, entry.ID); err != nil {
				e.logger.Warn("failed to purge settled escalation", zap.String("alert_id", entry.ID), zap.Error(err))
			}
			continue
		}
		if entry.CurrentLevel >= len(entry.PendingLevels) || entry.Rule == nil || entry.Alert == nil || entry.Project == nil {
			if err := e.store.DeleteEscalation(ctx, entry.ID); err != nil {
				e.logger.Warn("failed to purge malformed escalation", zap.String("alert_id", entry.ID), zap.Error(err))
			}
			continue
		}
		e.armEscalation(entry)
	}

	e.logger.Info("notification state restored",
		zap.Int("cooldowns", len(cooldowns)),
		zap.Int("escalations", len(escalations)),
	)
	return nil
}

// Stop cancels every pending timer. State already persisted survives for the
// next Initialize.
func (e *NotificationEngine) Stop() {
	e.lock()
	defer e.unlock()
	for _, bucket := range e.buckets {
		if bucket.timer != nil {
			bucket.timer.Stop()
		}
	}
	for _, state := range e.escalations {
		if state.timer != nil {
			state.timer.Stop()
		}
	}
}

// ProcessTriggeredAlert adds a snapshot of the alert to the rule's
// aggregation bucket. A zero aggregation window flushes synchronously.
func (e *NotificationEngine) ProcessTriggeredAlert(ctx context.Context, project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload) error {
	key := rule.ID.String()

	e.lock()
	bucket, ok := e.buckets[key]
	if !ok {
		bucket = &aggregationBucket{
			project:   project,
			rule:      rule,
			startedAt: e.now(),
		}
		e.buckets[key] = bucket
	}
	bucket.alerts = append(bucket.alerts, alert.Clone())

	if e.cfg.AggregationWindow == 0 {
		e.unlock()
		return e.flushBucket(ctx, key)
	}

	if bucket.timer == nil {
		delay := e.cfg.AggregationWindow
		if delay < minTimerDelay {
			delay = minTimerDelay
		}
		bucket.timer = time.AfterFunc(delay, func() {
			if err := e.flushBucket(context.Background(), key); err != nil {
				e.logger.Warn("aggregation flush failed", zap.String("rule_id", key), zap.Error(err))
			}
		})
	}
	e.unlock()
	return nil
}

// flushBucket dispatches the aggregated contents of one bucket, honoring the
// rule cooldown. On dispatch failure the bucket is kept and re-armed.
func (e *NotificationEngine) flushBucket(ctx context.Context, key string) error {
	e.lock()
	bucket, ok := e.buckets[key]
	if !ok || len(bucket.alerts) == 0 {
		e.unlock()
		return nil
	}
	if bucket.timer != nil {
		bucket.timer.Stop()
		bucket.timer = nil
	}

	now := e.now()
	cooldown := bucket.rule.CooldownMinutes
	if cooldown <= 0 {
		cooldown = e.cfg.DefaultCooldownMinutes
	}
	if last, ok := e.cooldowns[key]; ok && cooldown > 0 {
		elapsed := now.UnixMilli() - last
		cooldownMs := int64(cooldown * 60000)
		if elapsed < cooldownMs {
			remaining := time.Duration(cooldownMs-elapsed) * time.Millisecond
			delay := remaining
			if e.cfg.AggregationWindow > delay {
				delay = e.cfg.AggregationWindow
			}
			bucket.timer = time.AfterFunc(delay, func() {
				if err := e.flushBucket(context.Background(), key); err != nil {
					e.logger.Warn("aggregation flush failed after cooldown", zap.String("rule_id", key), zap.Error(err))
				}
			})
			e.unlock()
			return nil
		}
	}

	project, rule := bucket.project, bucket.rule
	aggregated := e.aggregate(bucket, now)
	e.unlock()

	if err := e.dispatchAlert(ctx, project, rule, aggregated); err != nil {
		e.lock()
		if bucket, ok := e.buckets[key]; ok && bucket.timer == nil {
			delay := e.cfg.AggregationWindow
			if delay < time.Second {
				delay = time.Second
			}
			bucket.timer = time.AfterFunc(delay, func() {
				if err := e.flushBucket(context.Background(), key); err != nil {
					e.logger.Warn("aggregation flush retry failed", zap.String("rule_id", key), zap.Error(err))
				}
			})
		}
		e.unlock()
		return err
	}

	e.lock()
	delete(e.buckets, key)
	e.cooldowns[key] = now.UnixMilli()
	e.unlock()

	if err := e.store.SaveCooldown(ctx, domain.CooldownEntry{Key: key, TimestampMs: now.UnixMilli()}); err != nil {
		e.logger.Warn("failed to persist cooldown", zap.String("rule_id", key), zap.Error(err))
	}
	return nil
}

// aggregate derives a single alert from the bucket's snapshots. Caller holds
// the engine lock.
func (e *NotificationEngine) aggregate(bucket *aggregationBucket, endedAt time.Time) *domain.AlertPayload {
	windowMinutes := e.cfg.AggregationWindow.Minutes()

	if len(bucket.alerts) == 1 {
		alert := bucket.alerts[0].Clone()
		alert.Metadata.Aggregation = &domain.AggregationInfo{
			Aggregated:    false,
			Count:         1,
			WindowMinutes: windowMinutes,
			StartedAt:     bucket.startedAt,
			EndedAt:       endedAt,
		}
		return alert
	}

	first := bucket.alerts[0]
	out := first.Clone()
	out.Title = fmt.Sprintf("%d alerts triggered for %s", len(bucket.alerts), bucket.rule.Name)
	out.Summary = fmt.Sprintf("%d alerts between %s and %s.",
		len(bucket.alerts),
		bucket.startedAt.UTC().Format(time.RFC3339),
		endedAt.UTC().Format(time.RFC3339),
	)
	out.ID = fmt.Sprintf("agg-%s-%d", bucket.rule.ID, endedAt.UnixMilli())

	envSet := make(map[string]bool)
	var envs []string
	var occurrences, affectedUsers int64
	severity := ""
	firstDetected := first.FirstDetectedAt
	lastDetected := first.LastDetectedAt
	sample := make([]domain.AggregationSample, 0, 10)

	for _, a := range bucket.alerts {
		if domain.SeverityRank(a.Severity) > domain.SeverityRank(severity) {
			severity = a.Severity
		}
		for _, env := range a.Environments {
			if !envSet[env] {
				envSet[env] = true
				envs = append(envs, env)
			}
		}
		occurrences += a.Occurrences
		affectedUsers += a.AffectedUsers
		if !a.FirstDetectedAt.IsZero() && (firstDetected.IsZero() || a.FirstDetectedAt.Before(firstDetected)) {
			firstDetected = a.FirstDetectedAt
		}
		if a.LastDetectedAt.After(lastDetected) {
			lastDetected = a.LastDetectedAt
		}
		if len(sample) < 10 {
			env := ""
			if len(a.Environments) > 0 {
				env = a.Environments[0]
			}
			sample = append(sample, domain.AggregationSample{
				ID:             a.ID,
				Title:          a.Title,
				Severity:       a.Severity,
				Environment:    env,
				Occurrences:    a.Occurrences,
				LastDetectedAt: a.LastDetectedAt,
			})
		}
	}

	out.Severity = severity
	out.Environments = envs
	out.Occurrences = occurrences
	out.AffectedUsers = affectedUsers
	out.FirstDetectedAt = firstDetected
	out.LastDetectedAt = lastDetected
	out.Metadata.Aggregation = &domain.AggregationInfo{
		Aggregated:    true,
		Count:         len(bucket.alerts),
		WindowMinutes: windowMinutes,
		StartedAt:     bucket.startedAt,
		EndedAt:       endedAt,
		Sample:        sample,
	}
	return out
}

// dispatchAlert delivers one alert and persists its cooldown and escalation
// entry. It fails only when every channel failed.
func (e *NotificationEngine) dispatchAlert(ctx context.Context, project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	results := e.dispatcher.Dispatch(ctx, project, rule, alert, rule.Channels)
	if AllFailed(results) {
		return fmt.Errorf("all %d channels failed for alert %s", len(results), alert.ID)
	}

	sentAt := e.now()
	levels := e.escalationLevels(rule, sentAt)
	if len(levels) == 0 {
		return nil
	}

	entry := &domain.EscalationEntry{
		ID:            alert.ID,
		Project:       project,
		Rule:          rule,
		Alert:         alert.Clone(),
		SentAt:        sentAt,
		PendingLevels: levels,
		CurrentLevel:  0,
	}
	if err := e.store.SaveEscalation(ctx, entry); err != nil {
		e.logger.Warn("failed to persist escalation entry", zap.String("alert_id", entry.ID), zap.Error(err))
	}
	e.armEscalation(entry)
	return nil
}

// escalationLevels normalizes the rule's escalation ladder. When enabled with
// no explicit levels, a single default manager level is synthesized.
func (e *NotificationEngine) escalationLevels(rule *domain.AlertRule, sentAt time.Time) []domain.EscalationLevelState {
	esc := rule.Escalation
	if esc == nil || !esc.Enabled {
		return nil
	}

	levels := esc.Levels
	if len(levels) == 0 {
		levels = []domain.EscalationLevel{{
			Name:         "Manager escalation",
			AfterMinutes: e.cfg.DefaultEscalationMinutes,
			Channels:     esc.Channels,
		}}
	}

	out := make([]domain.EscalationLevelState, 0, len(levels))
	for _, level := range levels {
		after := level.AfterMinutes
		if after < 0.01 {
			after = 0.01
		}
		channels := level.Channels
		if len(channels) == 0 {
			channels = esc.Channels
		}
		out = append(out, domain.EscalationLevelState{
			Name:         level.Name,
			AfterMinutes: after,
			Channels:     channels,
			TriggerAt:    sentAt.Add(time.Duration(after * float64(time.Minute))),
		})
	}

	// Levels fire in ascending order regardless of configuration order.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].AfterMinutes < out[j-1].AfterMinutes; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (e *NotificationEngine) armEscalation(entry *domain.EscalationEntry) {
	level := entry.PendingLevels[entry.CurrentLevel]
	delay := time.Until(level.TriggerAt)
	if delay < minTimerDelay {
		delay = minTimerDelay
	}

	e.lock()
	if existing, ok := e.escalations[entry.ID]; ok && existing.timer != nil {
		existing.timer.Stop()
	}
	state := &escalationState{entry: entry}
	state.timer = time.AfterFunc(delay, func() {
		e.fireEscalation(context.Background(), entry.ID)
	})
	e.escalations[entry.ID] = state
	e.unlock()
}

// fireEscalation dispatches one escalation level if the alert is still open,
// then advances or retires the entry.
func (e *NotificationEngine) fireEscalation(ctx context.Context, alertID string) {
	e.lock()
	state, ok := e.escalations[alertID]
	if !ok {
		e.unlock()
		return
	}
	entry := state.entry
	if entry.Acknowledged || entry.Resolved || entry.CurrentLevel >= len(entry.PendingLevels) {
		delete(e.escalations, alertID)
		e.unlock()
		if err := e.store.DeleteEscalation(ctx, alertID); err != nil {
			e.logger.Warn("failed to delete settled escalation", zap.String("alert_id", alertID), zap.Error(err))
		}
		return
	}
	level := entry.PendingLevels[entry.CurrentLevel]
	project, rule := entry.Project, entry.Rule

	subAlert := entry.Alert.Clone()
	subAlert.ID = fmt.Sprintf("%s-escalation-%s", alertID, formatMinutes(level.AfterMinutes))
	subAlert.Title = "Escalation: " + entry.Alert.Title
	subAlert.Summary = fmt.Sprintf("Alert unresolved for %s minutes.", formatMinutes(level.AfterMinutes))
	subAlert.Severity = domain.SeverityCritical
	subAlert.Metadata.Escalation = true
	subAlert.Metadata.OriginalAlertID = alertID
	subAlert.Metadata.LevelName = level.Name
	subAlert.Metadata.AfterMinutes = level.AfterMinutes
	e.unlock()

	results := e.dispatcher.Dispatch(ctx, project, rule, subAlert, level.Channels)
	if AllFailed(results) {
		e.logger.Warn("escalation dispatch failed on every channel",
			zap.String("alert_id", alertID),
			zap.String("level", level.Name),
		)
	}

	e.lock()
	state, ok = e.escalations[alertID]
	if !ok {
		// Acknowledged or resolved while dispatching.
		e.unlock()
		return
	}
	entry = state.entry
	entry.CurrentLevel++
	done := entry.CurrentLevel >= len(entry.PendingLevels)
	if done {
		delete(e.escalations, alertID)
	}
	e.unlock()

	if done {
		if err := e.store.DeleteEscalation(ctx, alertID); err != nil {
			e.logger.Warn("failed to delete exhausted escalation", zap.String("alert_id", alertID), zap.Error(err))
		}
		return
	}
	if err := e.store.SaveEscalation(ctx, entry); err != nil {
		e.logger.Warn("failed to persist escalation progress", zap.String("alert_id", alertID), zap.Error(err))
	}
	e.armEscalation(entry)
}

// Acknowledge stops all pending escalation levels for an alert. Idempotent;
// returns whether an entry was found.
func (e *NotificationEngine) Acknowledge(ctx context.Context, alertID string) bool {
	return e.settle(ctx, alertID, true, false)
}

// Resolve stops all pending escalation levels for an alert. Idempotent;
// returns whether an entry was found.
func (e *NotificationEngine) Resolve(ctx context.Context, alertID string) bool {
	return e.settle(ctx, alertID, false, true)
}

func (e *NotificationEngine) settle(ctx context.Context, alertID string, acknowledged, resolved bool) bool {
	e.lock()
	state, ok := e.escalations[alertID]
	if ok {
		state.entry.Acknowledged = state.entry.Acknowledged || acknowledged
		state.entry.Resolved = state.entry.Resolved || resolved
		if state.timer != nil {
			state.timer.Stop()
		}
		delete(e.escalations, alertID)
	}
	e.unlock()

	if err := e.store.DeleteEscalation(ctx, alertID); err != nil {
		e.logger.Warn("failed to delete escalation entry", zap.String("alert_id", alertID), zap.Error(err))
	}
	return ok
}

func formatMinutes(minutes float64) string {
	return strconv.FormatFloat(minutes, 'f', -1, 64)
}
