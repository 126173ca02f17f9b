package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
)

// RuleLister loads the rules to evaluate for a project
type RuleLister interface {
	ListEnabled(ctx context.Context, projectID uuid.UUID) ([]*domain.AlertRule, error)
}

// OccurrenceCounter provides the windowed counts that threshold and spike
// rules evaluate against.
type OccurrenceCounter interface {
	CountWindow(ctx context.Context, projectID uuid.UUID, fingerprint, environment string, from, to time.Time) (int64, error)
}

// AlertEnricher fills the contextual insight block of an alert payload
type AlertEnricher interface {
	Enrich(ctx context.Context, project *domain.Project, issue *domain.Issue, rule *domain.AlertRule, alert *domain.AlertPayload)
}

// AlertNotifier receives triggered alerts for aggregation and dispatch
type AlertNotifier interface {
	ProcessTriggeredAlert(ctx context.Context, project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload) error
}

// TriggerService runs every enabled rule of a project against a fresh
// occurrence. Rules are evaluated independently; one failing rule never stops
// the others. Dispatch happens sequentially in rule order.
type TriggerService struct {
	rules        RuleLister
	occurrences  OccurrenceCounter
	evaluator    *RuleEvaluator
	enricher     AlertEnricher
	notifier     AlertNotifier
	dashboardURL string
	logger       *zap.Logger
	now          func() time.Time
}

// NewTriggerService creates a trigger pipeline
func NewTriggerService(rules RuleLister, occurrences OccurrenceCounter, evaluator *RuleEvaluator, enricher AlertEnricher, notifier AlertNotifier, dashboardURL string, logger *zap.Logger) *TriggerService {
	return &TriggerService{
		rules:        rules,
		occurrences:  occurrences,
		evaluator:    evaluator,
		enricher:     enricher,
		notifier:     notifier,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		logger:       logger,
		now:          time.Now,
	}
}

// EvaluateAndDispatch evaluates all enabled rules for the occurrence and
// hands triggered alerts to the notification engine. Returns the number of
// rules that triggered.
func (s *TriggerService) EvaluateAndDispatch(ctx context.Context, project *domain.Project, issue *domain.Issue, occurrence *domain.Occurrence, isNew bool, event *domain.ErrorEvent) (int, error) {
	rules, err := s.rules.ListEnabled(ctx, project.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load alert rules: %w", err)
	}

	base := s.baseMetrics(occurrence, isNew)
	if base.Severity == "" {
		if severity, ok := stringField(event.Metadata, "severity"); ok {
			base.Severity = severity
		}
	}
	triggered := 0

	for _, rule := range rules {
		result, err := s.evaluateRule(ctx, project, rule, base)
		if err != nil {
			s.logger.Warn("rule evaluation failed",
				zap.String("rule_id", rule.ID.String()),
				zap.String("project_id", project.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if result == nil || !result.Triggered {
			continue
		}

		alert := s.buildAlert(project, issue, rule, result, base)
		s.enricher.Enrich(ctx, project, issue, rule, alert)

		if err := s.notifier.ProcessTriggeredAlert(ctx, project, rule, alert); err != nil {
			s.logger.Warn("alert handoff failed",
				zap.String("rule_id", rule.ID.String()),
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			continue
		}
		triggered++
	}

	return triggered, nil
}

// evaluateRule builds the per-rule metrics and runs the evaluator. Returns
// nil (not an error) when the rule is skipped.
func (s *TriggerService) evaluateRule(ctx context.Context, project *domain.Project, rule *domain.AlertRule, base domain.RuleMetrics) (*domain.EvalResult, error) {
	metrics := base

	needsCounts := rule.Type == domain.RuleTypeThreshold || rule.Type == domain.RuleTypeSpike
	if needsCounts {
		if metrics.Fingerprint == "" {
			s.logger.Info("skipping rule without fingerprint",
				zap.String("rule_id", rule.ID.String()),
				zap.String("rule_type", rule.Type),
			)
			return nil, nil
		}

		now := s.now()
		windowMinutes := rule.Conditions.WindowMinutes
		windowStart := now.Add(-time.Duration(windowMinutes * float64(time.Minute)))

		environment := ""
		if len(rule.Conditions.Environments) > 0 {
			environment = metrics.Environment
		}

		windowCount, err := s.occurrences.CountWindow(ctx, project.ID, metrics.Fingerprint, environment, windowStart, now)
		if err != nil {
			return nil, fmt.Errorf("window count failed: %w", err)
		}
		metrics.WindowStart = windowStart
		metrics.WindowMinutes = windowMinutes
		metrics.WindowCount = windowCount

		if rule.Type == domain.RuleTypeSpike {
			baselineMinutes := rule.Conditions.BaselineMinutes
			baselineStart := windowStart.Add(-time.Duration(baselineMinutes * float64(time.Minute)))
			baselineCount, err := s.occurrences.CountWindow(ctx, project.ID, metrics.Fingerprint, environment, baselineStart, windowStart)
			if err != nil {
				return nil, fmt.Errorf("baseline count failed: %w", err)
			}
			metrics.BaselineMinutes = baselineMinutes
			metrics.BaselineCount = baselineCount
		}
	}

	result := s.evaluator.Evaluate(rule, &metrics)
	return &result, nil
}

// baseMetrics derives the rule-independent metrics block from the occurrence
func (s *TriggerService) baseMetrics(occurrence *domain.Occurrence, isNew bool) domain.RuleMetrics {
	metrics := domain.RuleMetrics{
		Environment: occurrence.Environment,
		Fingerprint: occurrence.Fingerprint,
		IsNew:       isNew,
	}

	for _, frame := range occurrence.StackTrace {
		if frame.File != "" {
			metrics.File = frame.File
			metrics.SourceFile = frame.File
			break
		}
	}

	if severity, ok := stringField(occurrence.Metadata, "severity"); ok {
		metrics.Severity = severity
	}

	seen := make(map[string]bool)
	for _, key := range []string{"segment", "plan", "tier"} {
		if v, ok := stringField(occurrence.UserContext, key); ok && !seen[strings.ToLower(v)] {
			seen[strings.ToLower(v)] = true
			metrics.UserSegments = append(metrics.UserSegments, v)
		}
	}
	for _, key := range []string{"userSegment", "user_segment"} {
		if v, ok := stringField(occurrence.Metadata, key); ok && !seen[strings.ToLower(v)] {
			seen[strings.ToLower(v)] = true
			metrics.UserSegments = append(metrics.UserSegments, v)
		}
	}

	return metrics
}

// buildAlert assembles the payload for a triggered rule with a
// reason-specific summary.
func (s *TriggerService) buildAlert(project *domain.Project, issue *domain.Issue, rule *domain.AlertRule, result *domain.EvalResult, metrics domain.RuleMetrics) *domain.AlertPayload {
	summary := s.summaryFor(rule, result, metrics)
	severity := severityFor(rule, result, metrics)

	affectedUsers := int64(0)
	if len(issue.UserContext) > 0 {
		affectedUsers = 1
	}

	alert := &domain.AlertPayload{
		Title:           issue.Message,
		Summary:         summary,
		Severity:        severity,
		Environments:    []string{issue.Environment},
		Occurrences:     issue.Count,
		AffectedUsers:   affectedUsers,
		Fingerprint:     issue.Fingerprint,
		FirstDetectedAt: issue.FirstSeen,
		LastDetectedAt:  issue.LastSeen,
		Metadata: domain.AlertMetadata{
			RuleID:   rule.ID,
			RuleType: rule.Type,
			Reason:   result.Reason,
			Extra:    result.Context,
		},
	}
	if metrics.SourceFile != "" {
		if alert.Metadata.Extra == nil {
			alert.Metadata.Extra = map[string]any{}
		}
		alert.Metadata.Extra["source_file"] = metrics.SourceFile
	}

	if s.dashboardURL != "" {
		alert.Links.Dashboard = fmt.Sprintf("%s/projects/%s/issues/%s", s.dashboardURL, project.ID, issue.ID)
		alert.Links.Acknowledge = fmt.Sprintf("%s/alerts/acknowledge", s.dashboardURL)
	}
	return alert
}

func (s *TriggerService) summaryFor(rule *domain.AlertRule, result *domain.EvalResult, metrics domain.RuleMetrics) string {
	switch result.Reason {
	case domain.ReasonThresholdExceeded:
		return fmt.Sprintf("Detected %d occurrences in the last %s minutes (threshold %d).",
			metrics.WindowCount, formatMinutes(rule.Conditions.WindowMinutes), rule.Conditions.Threshold)
	case domain.ReasonSpikeDetected:
		increase := 0.0
		if v, ok := result.Context["increase_percent"].(float64); ok {
			increase = v
		}
		return fmt.Sprintf("Error rate increased by %.1f%% compared to baseline.", increase)
	case domain.ReasonNewError:
		return fmt.Sprintf("New fingerprint detected in %s.", metrics.Environment)
	case domain.ReasonCriticalSeverity, domain.ReasonCriticalFingerprint:
		return fmt.Sprintf("Critical alert triggered in %s (%s).", metrics.Environment, result.Reason)
	default:
		return fmt.Sprintf("Rule %s triggered.", rule.Name)
	}
}

func severityFor(rule *domain.AlertRule, result *domain.EvalResult, metrics domain.RuleMetrics) string {
	if result.Reason == domain.ReasonCriticalSeverity || result.Reason == domain.ReasonCriticalFingerprint {
		return domain.SeverityCritical
	}
	if metrics.Severity != "" {
		return strings.ToLower(metrics.Severity)
	}
	switch rule.Type {
	case domain.RuleTypeThreshold, domain.RuleTypeSpike:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

func stringField(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	if v, ok := m[key].(string); ok && v != "" {
		return v, true
	}
	return "", false
}
