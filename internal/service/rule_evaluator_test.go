package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/faultline/faultline/internal/domain"
)

func thresholdRule(threshold int, windowMinutes float64) *domain.AlertRule {
	return &domain.AlertRule{
		Name:    "too many errors",
		Type:    domain.RuleTypeThreshold,
		Enabled: true,
		Conditions: domain.RuleConditions{
			Threshold:     threshold,
			WindowMinutes: windowMinutes,
		},
	}
}

func TestEvaluateThreshold(t *testing.T) {
	e := NewRuleEvaluator()

	tests := []struct {
		name      string
		rule      *domain.AlertRule
		metrics   *domain.RuleMetrics
		triggered bool
	}{
		{
			name:      "below threshold",
			rule:      thresholdRule(10, 5),
			metrics:   &domain.RuleMetrics{WindowCount: 9, WindowMinutes: 5},
			triggered: false,
		},
		{
			name:      "exactly at threshold",
			rule:      thresholdRule(10, 5),
			metrics:   &domain.RuleMetrics{WindowCount: 10, WindowMinutes: 5},
			triggered: true,
		},
		{
			name:      "above threshold",
			rule:      thresholdRule(10, 5),
			metrics:   &domain.RuleMetrics{WindowCount: 50, WindowMinutes: 5},
			triggered: true,
		},
		{
			name:      "measured window wider than configured",
			rule:      thresholdRule(10, 5),
			metrics:   &domain.RuleMetrics{WindowCount: 50, WindowMinutes: 8},
			triggered: false,
		},
		{
			name:      "zero threshold never fires",
			rule:      thresholdRule(0, 5),
			metrics:   &domain.RuleMetrics{WindowCount: 100, WindowMinutes: 5},
			triggered: false,
		},
		{
			name: "disabled rule never fires",
			rule: func() *domain.AlertRule {
				r := thresholdRule(10, 5)
				r.Enabled = false
				return r
			}(),
			metrics:   &domain.RuleMetrics{WindowCount: 100, WindowMinutes: 5},
			triggered: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate(tt.rule, tt.metrics)
			assert.Equal(t, tt.triggered, result.Triggered)
			if tt.triggered {
				assert.Equal(t, domain.ReasonThresholdExceeded, result.Reason)
				assert.Equal(t, tt.metrics.WindowCount, result.Context["window_count"])
			}
		})
	}
}

func TestEvaluateSpike(t *testing.T) {
	e := NewRuleEvaluator()
	rule := &domain.AlertRule{
		Type:    domain.RuleTypeSpike,
		Enabled: true,
		Conditions: domain.RuleConditions{
			IncreasePercent: 200,
			WindowMinutes:   10,
			BaselineMinutes: 60,
		},
	}

	tests := []struct {
		name          string
		windowCount   int64
		baselineCount int64
		triggered     bool
	}{
		{
			// current 3/min vs baseline 1/min is a 200% increase
			name:          "increase meets configured percent",
			windowCount:   30,
			baselineCount: 60,
			triggered:     true,
		},
		{
			name:          "increase below configured percent",
			windowCount:   12,
			baselineCount: 60,
			triggered:     false,
		},
		{
			name:          "zero baseline never fires",
			windowCount:   100,
			baselineCount: 0,
			triggered:     false,
		},
		{
			name:          "zero current rate never fires",
			windowCount:   0,
			baselineCount: 60,
			triggered:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate(rule, &domain.RuleMetrics{
				WindowCount:     tt.windowCount,
				WindowMinutes:   10,
				BaselineCount:   tt.baselineCount,
				BaselineMinutes: 60,
			})
			assert.Equal(t, tt.triggered, result.Triggered)
			if tt.triggered {
				assert.Equal(t, domain.ReasonSpikeDetected, result.Reason)
			}
		})
	}
}

func TestEvaluateNewError(t *testing.T) {
	e := NewRuleEvaluator()
	rule := &domain.AlertRule{Type: domain.RuleTypeNewError, Enabled: true}

	assert.True(t, e.Evaluate(rule, &domain.RuleMetrics{IsNew: true}).Triggered)
	assert.False(t, e.Evaluate(rule, &domain.RuleMetrics{IsNew: false}).Triggered)
}

func TestEvaluateCritical(t *testing.T) {
	e := NewRuleEvaluator()

	severityRule := &domain.AlertRule{
		Type:       domain.RuleTypeCritical,
		Enabled:    true,
		Conditions: domain.RuleConditions{Severity: "critical"},
	}
	result := e.Evaluate(severityRule, &domain.RuleMetrics{Severity: "CRITICAL"})
	assert.True(t, result.Triggered)
	assert.Equal(t, domain.ReasonCriticalSeverity, result.Reason)

	fpRule := &domain.AlertRule{
		Type:       domain.RuleTypeCritical,
		Enabled:    true,
		Conditions: domain.RuleConditions{Fingerprints: []string{"abc", "def"}},
	}
	result = e.Evaluate(fpRule, &domain.RuleMetrics{Fingerprint: "def"})
	assert.True(t, result.Triggered)
	assert.Equal(t, domain.ReasonCriticalFingerprint, result.Reason)

	assert.False(t, e.Evaluate(fpRule, &domain.RuleMetrics{Fingerprint: "zzz"}).Triggered)
	assert.False(t, e.Evaluate(fpRule, &domain.RuleMetrics{Fingerprint: ""}).Triggered)
}

func TestEvaluateEnvironmentPreFilter(t *testing.T) {
	e := NewRuleEvaluator()
	rule := thresholdRule(1, 5)
	rule.Conditions.Environments = []string{"Production"}

	prod := e.Evaluate(rule, &domain.RuleMetrics{Environment: "production", WindowCount: 5, WindowMinutes: 5})
	assert.True(t, prod.Triggered)

	staging := e.Evaluate(rule, &domain.RuleMetrics{Environment: "staging", WindowCount: 5, WindowMinutes: 5})
	assert.False(t, staging.Triggered)
}

func TestEvaluateFilterTree(t *testing.T) {
	e := NewRuleEvaluator()

	newFilterRule := func(filter *domain.FilterNode) *domain.AlertRule {
		r := thresholdRule(1, 5)
		r.Conditions.Filter = filter
		return r
	}
	hot := &domain.RuleMetrics{Environment: "production", File: "checkout.js", WindowCount: 5, WindowMinutes: 5}

	tests := []struct {
		name      string
		filter    *domain.FilterNode
		metrics   *domain.RuleMetrics
		triggered bool
	}{
		{
			name:      "equals matches case-insensitively",
			filter:    &domain.FilterNode{Field: "environment", Operator: domain.FilterEquals, Value: "PRODUCTION"},
			metrics:   hot,
			triggered: true,
		},
		{
			name:      "contains on file",
			filter:    &domain.FilterNode{Field: "file", Operator: domain.FilterContains, Value: "checkout"},
			metrics:   hot,
			triggered: true,
		},
		{
			name: "and requires all branches",
			filter: &domain.FilterNode{Op: domain.FilterOpAnd, Conditions: []domain.FilterNode{
				{Field: "environment", Operator: domain.FilterEquals, Value: "production"},
				{Field: "file", Operator: domain.FilterEquals, Value: "other.js"},
			}},
			metrics:   hot,
			triggered: false,
		},
		{
			name: "or passes with one branch",
			filter: &domain.FilterNode{Op: domain.FilterOpOr, Conditions: []domain.FilterNode{
				{Field: "environment", Operator: domain.FilterEquals, Value: "staging"},
				{Field: "file", Operator: domain.FilterContains, Value: "checkout"},
			}},
			metrics:   hot,
			triggered: true,
		},
		{
			name: "not inverts its child",
			filter: &domain.FilterNode{Op: domain.FilterOpNot, Condition: &domain.FilterNode{
				Field: "environment", Operator: domain.FilterEquals, Value: "staging",
			}},
			metrics:   hot,
			triggered: true,
		},
		{
			name:      "in operator",
			filter:    &domain.FilterNode{Field: "environment", Operator: domain.FilterIn, Values: []string{"staging", "production"}},
			metrics:   hot,
			triggered: true,
		},
		{
			name:      "not_equals over absent field fails closed",
			filter:    &domain.FilterNode{Field: "userSegment", Operator: domain.FilterNotEquals, Value: "beta"},
			metrics:   hot,
			triggered: false,
		},
		{
			name:      "not_contains over absent field fails closed",
			filter:    &domain.FilterNode{Field: "userSegment", Operator: domain.FilterNotContains, Value: "beta"},
			metrics:   hot,
			triggered: false,
		},
		{
			name:      "empty target value fails closed",
			filter:    &domain.FilterNode{Field: "environment", Operator: domain.FilterEquals, Value: ""},
			metrics:   hot,
			triggered: false,
		},
		{
			name:      "unknown operator fails closed",
			filter:    &domain.FilterNode{Field: "environment", Operator: "regex", Value: "prod.*"},
			metrics:   hot,
			triggered: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate(newFilterRule(tt.filter), tt.metrics)
			assert.Equal(t, tt.triggered, result.Triggered)
		})
	}
}

func TestEvaluateUserSegmentField(t *testing.T) {
	e := NewRuleEvaluator()
	rule := thresholdRule(1, 5)
	rule.Conditions.Filter = &domain.FilterNode{
		Field: "userSegment", Operator: domain.FilterIn, Values: []string{"enterprise"},
	}

	metrics := &domain.RuleMetrics{
		UserSegments:  []string{"free", "Enterprise"},
		WindowCount:   5,
		WindowMinutes: 5,
	}
	assert.True(t, e.Evaluate(rule, metrics).Triggered)
}
