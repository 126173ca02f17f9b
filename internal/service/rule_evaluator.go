package service

import (
	"math"
	"strings"

	"github.com/faultline/faultline/internal/domain"
)

// RuleEvaluator decides whether a rule fires for a metrics snapshot. Evaluate
// is a pure function over the rule and the metrics; it performs no I/O.
type RuleEvaluator struct{}

// NewRuleEvaluator creates a new rule evaluator
func NewRuleEvaluator() *RuleEvaluator {
	return &RuleEvaluator{}
}

// Evaluate runs the pre-filters and the type-specific condition
func (e *RuleEvaluator) Evaluate(rule *domain.AlertRule, metrics *domain.RuleMetrics) domain.EvalResult {
	result := domain.EvalResult{
		RuleID:          rule.ID,
		CooldownMinutes: rule.CooldownMinutes,
	}

	if !rule.Enabled {
		return result
	}
	if !environmentMatches(rule.Conditions.Environments, metrics.Environment) {
		return result
	}
	if rule.Conditions.Filter != nil && !evalFilter(rule.Conditions.Filter, metrics) {
		return result
	}

	switch rule.Type {
	case domain.RuleTypeThreshold:
		e.evalThreshold(rule, metrics, &result)
	case domain.RuleTypeSpike:
		e.evalSpike(rule, metrics, &result)
	case domain.RuleTypeNewError:
		if metrics.IsNew {
			result.Triggered = true
			result.Reason = domain.ReasonNewError
		}
	case domain.RuleTypeCritical:
		e.evalCritical(rule, metrics, &result)
	}

	return result
}

func (e *RuleEvaluator) evalThreshold(rule *domain.AlertRule, metrics *domain.RuleMetrics, result *domain.EvalResult) {
	cond := rule.Conditions
	if cond.Threshold <= 0 || cond.WindowMinutes <= 0 {
		return
	}
	// A stale window (measured wider than configured plus slack) never triggers.
	if metrics.WindowMinutes > cond.WindowMinutes+0.5 {
		return
	}
	if metrics.WindowCount >= int64(cond.Threshold) {
		result.Triggered = true
		result.Reason = domain.ReasonThresholdExceeded
		result.Context = map[string]any{
			"window_count":   metrics.WindowCount,
			"window_minutes": cond.WindowMinutes,
			"threshold":      cond.Threshold,
		}
	}
}

func (e *RuleEvaluator) evalSpike(rule *domain.AlertRule, metrics *domain.RuleMetrics, result *domain.EvalResult) {
	cond := rule.Conditions
	if cond.IncreasePercent <= 0 || cond.WindowMinutes <= 0 || cond.BaselineMinutes <= 0 {
		return
	}
	currentRate := float64(metrics.WindowCount) / cond.WindowMinutes
	baselineRate := float64(metrics.BaselineCount) / cond.BaselineMinutes
	if currentRate <= 0 || baselineRate <= 0 {
		return
	}
	increase := ((currentRate - baselineRate) / baselineRate) * 100
	if !math.IsInf(increase, 0) && !math.IsNaN(increase) && increase >= cond.IncreasePercent {
		result.Triggered = true
		result.Reason = domain.ReasonSpikeDetected
		result.Context = map[string]any{
			"current_rate":     currentRate,
			"baseline_rate":    baselineRate,
			"increase_percent": increase,
		}
	}
}

func (e *RuleEvaluator) evalCritical(rule *domain.AlertRule, metrics *domain.RuleMetrics, result *domain.EvalResult) {
	cond := rule.Conditions
	if cond.Severity != "" && strings.EqualFold(cond.Severity, metrics.Severity) {
		result.Triggered = true
		result.Reason = domain.ReasonCriticalSeverity
		return
	}
	if metrics.Fingerprint == "" {
		return
	}
	for _, fp := range cond.Fingerprints {
		if fp == metrics.Fingerprint {
			result.Triggered = true
			result.Reason = domain.ReasonCriticalFingerprint
			return
		}
	}
}

func environmentMatches(environments []string, environment string) bool {
	if len(environments) == 0 {
		return true
	}
	for _, env := range environments {
		if strings.EqualFold(env, environment) {
			return true
		}
	}
	return false
}

// evalFilter walks the structured filter tree. Combinators recurse; leaves
// compare lower-cased field values.
func evalFilter(node *domain.FilterNode, metrics *domain.RuleMetrics) bool {
	if node == nil {
		return true
	}
	if node.IsLeaf() {
		return evalLeaf(node, metrics)
	}
	switch node.Op {
	case domain.FilterOpAnd:
		for i := range node.Conditions {
			if !evalFilter(&node.Conditions[i], metrics) {
				return false
			}
		}
		return true
	case domain.FilterOpOr:
		for i := range node.Conditions {
			if evalFilter(&node.Conditions[i], metrics) {
				return true
			}
		}
		return false
	case domain.FilterOpNot:
		return node.Condition != nil && !evalFilter(node.Condition, metrics)
	default:
		return false
	}
}

func evalLeaf(leaf *domain.FilterNode, metrics *domain.RuleMetrics) bool {
	values := fieldValues(leaf.Field, metrics)
	// Absent field data fails every operator, including the negated ones, so
	// rules are not surprised by missing data.
	if len(values) == 0 {
		return false
	}

	switch leaf.Operator {
	case domain.FilterEquals:
		target := strings.ToLower(leaf.Value)
		if target == "" {
			return false
		}
		for _, v := range values {
			if v == target {
				return true
			}
		}
		return false
	case domain.FilterNotEquals:
		target := strings.ToLower(leaf.Value)
		if target == "" {
			return false
		}
		for _, v := range values {
			if v == target {
				return false
			}
		}
		return true
	case domain.FilterContains:
		target := strings.ToLower(leaf.Value)
		if target == "" {
			return false
		}
		for _, v := range values {
			if strings.Contains(v, target) {
				return true
			}
		}
		return false
	case domain.FilterNotContains:
		target := strings.ToLower(leaf.Value)
		if target == "" {
			return false
		}
		for _, v := range values {
			if strings.Contains(v, target) {
				return false
			}
		}
		return true
	case domain.FilterIn:
		candidates := lowerAll(leaf.Values)
		if len(candidates) == 0 {
			return false
		}
		for _, v := range values {
			if containsString(candidates, v) {
				return true
			}
		}
		return false
	case domain.FilterNotIn:
		candidates := lowerAll(leaf.Values)
		if len(candidates) == 0 {
			return false
		}
		for _, v := range values {
			if containsString(candidates, v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func fieldValues(field string, metrics *domain.RuleMetrics) []string {
	var raw []string
	switch field {
	case "environment":
		raw = []string{metrics.Environment}
	case "file":
		raw = []string{metrics.File, metrics.SourceFile}
	case "userSegment", "user_segment":
		raw = metrics.UserSegments
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if v != "" {
			values = append(values, strings.ToLower(v))
		}
	}
	return values
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, strings.ToLower(v))
		}
	}
	return out
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
