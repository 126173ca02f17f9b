package domain

import (
	"time"

	"github.com/google/uuid"
)

// Alert rule types
const (
	RuleTypeThreshold = "threshold"
	RuleTypeSpike     = "spike"
	RuleTypeNewError  = "new_error"
	RuleTypeCritical  = "critical"
)

// Evaluation reason codes
const (
	ReasonThresholdExceeded   = "threshold_exceeded"
	ReasonSpikeDetected       = "spike_detected"
	ReasonNewError            = "new_error"
	ReasonCriticalSeverity    = "critical_severity"
	ReasonCriticalFingerprint = "critical_fingerprint"
)

// Alert severities, lowest to highest
const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SeverityRank orders severities for aggregation (critical highest)
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Notification channel types
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
	ChannelSlack   = "slack"
	ChannelDiscord = "discord"
	ChannelTeams   = "teams"
)

// ChannelRef names a delivery destination
type ChannelRef struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// Filter tree operators
const (
	FilterOpAnd = "and"
	FilterOpOr  = "or"
	FilterOpNot = "not"
)

// Filter leaf operators
const (
	FilterEquals      = "equals"
	FilterNotEquals   = "not_equals"
	FilterContains    = "contains"
	FilterNotContains = "not_contains"
	FilterIn          = "in"
	FilterNotIn       = "not_in"
)

// FilterNode is one node of a rule's structured filter tree. Interior nodes
// set Op plus Conditions (and/or) or Condition (not); leaves set Field,
// Operator and Value or Values.
type FilterNode struct {
	Op         string       `json:"op,omitempty"`
	Conditions []FilterNode `json:"conditions,omitempty"`
	Condition  *FilterNode  `json:"condition,omitempty"`

	Field    string   `json:"field,omitempty"`
	Operator string   `json:"operator,omitempty"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// IsLeaf reports whether the node is a field comparison rather than a combinator
func (n *FilterNode) IsLeaf() bool {
	return n.Op == ""
}

// RuleConditions holds the per-type condition shape of an alert rule.
// Threshold uses Threshold+WindowMinutes; spike adds IncreasePercent and
// BaselineMinutes; critical uses Severity and/or Fingerprints.
type RuleConditions struct {
	Threshold       int     `json:"threshold,omitempty"`
	WindowMinutes   float64 `json:"window_minutes,omitempty"`
	IncreasePercent float64 `json:"increase_percent,omitempty"`
	BaselineMinutes float64 `json:"baseline_minutes,omitempty"`

	Severity     string   `json:"severity,omitempty"`
	Fingerprints []string `json:"fingerprints,omitempty"`

	Environments []string    `json:"environments,omitempty"`
	Filter       *FilterNode `json:"filter,omitempty"`
}

// EscalationLevel is a single step of an escalation ladder
type EscalationLevel struct {
	Name         string       `json:"name"`
	AfterMinutes float64      `json:"after_minutes"`
	Channels     []ChannelRef `json:"channels,omitempty"`
}

// EscalationPolicy configures multi-level escalation for a rule
type EscalationPolicy struct {
	Enabled  bool              `json:"enabled"`
	Channels []ChannelRef      `json:"channels,omitempty"` // fallback when a level has none
	Levels   []EscalationLevel `json:"levels,omitempty"`
}

// AlertRule is a condition that, when satisfied by recent metrics for an
// issue, produces an alert payload.
type AlertRule struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	ProjectID       uuid.UUID         `json:"project_id" db:"project_id"`
	Name            string            `json:"name" db:"name"`
	Type            string            `json:"type" db:"type"`
	Conditions      RuleConditions    `json:"conditions" db:"conditions"`
	Channels        []ChannelRef      `json:"channels" db:"channels"`
	CooldownMinutes float64           `json:"cooldown_minutes" db:"cooldown_minutes"`
	Enabled         bool              `json:"enabled" db:"enabled"`
	Escalation      *EscalationPolicy `json:"escalation,omitempty" db:"escalation"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// RuleMetrics is the evaluator input derived by the trigger pipeline
type RuleMetrics struct {
	Environment  string
	Severity     string
	Fingerprint  string
	IsNew        bool
	File         string
	SourceFile   string
	UserSegments []string

	WindowStart   time.Time
	WindowMinutes float64
	WindowCount   int64

	BaselineMinutes float64
	BaselineCount   int64
}

// EvalResult is the outcome of evaluating one rule against metrics
type EvalResult struct {
	Triggered       bool
	Reason          string
	RuleID          uuid.UUID
	CooldownMinutes float64
	Context         map[string]any
}

// AggregationSample is a projected snapshot kept in aggregated metadata
type AggregationSample struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Severity       string    `json:"severity"`
	Environment    string    `json:"environment"`
	Occurrences    int64     `json:"occurrences"`
	LastDetectedAt time.Time `json:"last_detected_at"`
}

// AggregationInfo describes how an alert was aggregated before dispatch
type AggregationInfo struct {
	Aggregated    bool                `json:"aggregated"`
	Count         int                 `json:"count"`
	WindowMinutes float64             `json:"window_minutes"`
	StartedAt     time.Time           `json:"started_at"`
	EndedAt       time.Time           `json:"ended_at"`
	Sample        []AggregationSample `json:"sample,omitempty"`
}

// AlertMetadata carries rule provenance and pipeline annotations
type AlertMetadata struct {
	RuleID      uuid.UUID        `json:"rule_id"`
	RuleType    string           `json:"rule_type"`
	Reason      string           `json:"reason"`
	Aggregation *AggregationInfo `json:"aggregation,omitempty"`

	Escalation      bool    `json:"escalation,omitempty"`
	OriginalAlertID string  `json:"original_alert_id,omitempty"`
	LevelName       string  `json:"level_name,omitempty"`
	AfterMinutes    float64 `json:"after_minutes,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// AlertLinks are the action URLs rendered into every channel
type AlertLinks struct {
	Dashboard   string `json:"dashboard,omitempty"`
	Acknowledge string `json:"acknowledge,omitempty"`
	Unsubscribe string `json:"unsubscribe,omitempty"`
}

// IncidentRef is a projected issue used in alert context
type IncidentRef struct {
	ID          uuid.UUID `json:"id"`
	Message     string    `json:"message"`
	Environment string    `json:"environment"`
	Count       int64     `json:"count"`
	LastSeen    time.Time `json:"last_seen"`
	Status      string    `json:"status"`
}

// AlertContext is the best-effort contextual insight block
type AlertContext struct {
	RecentDeployments []Deployment  `json:"recent_deployments"`
	SimilarIncidents  []IncidentRef `json:"similar_incidents"`
	SuggestedFixes    []string      `json:"suggested_fixes"`
	WhyItMatters      string        `json:"why_it_matters,omitempty"`
	NextSteps         []string      `json:"next_steps,omitempty"`
}

// AlertPayload is the unit handed from the trigger pipeline through the
// notification engine to the channel dispatcher. Snapshots of it are
// persisted inside escalation state.
type AlertPayload struct {
	ID              string        `json:"id,omitempty"`
	Title           string        `json:"title"`
	Summary         string        `json:"summary"`
	Severity        string        `json:"severity"`
	Environments    []string      `json:"environment"`
	Occurrences     int64         `json:"occurrences"`
	AffectedUsers   int64         `json:"affected_users"`
	Fingerprint     string        `json:"fingerprint,omitempty"`
	FirstDetectedAt time.Time     `json:"first_detected_at"`
	LastDetectedAt  time.Time     `json:"last_detected_at"`
	Metadata        AlertMetadata `json:"metadata"`
	Links           AlertLinks    `json:"links"`
	Context         *AlertContext `json:"context,omitempty"`
}

// Clone returns a deep, JSON-safe copy of the payload so engine snapshots
// never share mutable state with the ingest path.
func (a *AlertPayload) Clone() *AlertPayload {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Environments = append([]string(nil), a.Environments...)
	if a.Metadata.Aggregation != nil {
		agg := *a.Metadata.Aggregation
		agg.Sample = append([]AggregationSample(nil), a.Metadata.Aggregation.Sample...)
		cp.Metadata.Aggregation = &agg
	}
	if a.Metadata.Extra != nil {
		extra := make(map[string]any, len(a.Metadata.Extra))
		for k, v := range a.Metadata.Extra {
			extra[k] = v
		}
		cp.Metadata.Extra = extra
	}
	if a.Context != nil {
		ctx := AlertContext{
			RecentDeployments: append([]Deployment(nil), a.Context.RecentDeployments...),
			SimilarIncidents:  append([]IncidentRef(nil), a.Context.SimilarIncidents...),
			SuggestedFixes:    append([]string(nil), a.Context.SuggestedFixes...),
			WhyItMatters:      a.Context.WhyItMatters,
			NextSteps:         append([]string(nil), a.Context.NextSteps...),
		}
		cp.Context = &ctx
	}
	return &cp
}

// CooldownEntry is one persisted cooldown row
type CooldownEntry struct {
	Key         string `json:"key"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// EscalationLevelState is a normalized escalation level with its absolute
// trigger instant, so progress survives restart.
type EscalationLevelState struct {
	Name         string       `json:"name"`
	AfterMinutes float64      `json:"after_minutes"`
	Channels     []ChannelRef `json:"channels"`
	TriggerAt    time.Time    `json:"trigger_at"`
}

// EscalationEntry is the persisted escalation state for one dispatched alert
type EscalationEntry struct {
	ID            string                 `json:"id"` // alert id
	Project       *Project               `json:"project"`
	Rule          *AlertRule             `json:"rule"`
	Alert         *AlertPayload          `json:"alert"`
	SentAt        time.Time              `json:"sent_at"`
	Acknowledged  bool                   `json:"acknowledged"`
	Resolved      bool                   `json:"resolved"`
	PendingLevels []EscalationLevelState `json:"pending_levels"`
	CurrentLevel  int                    `json:"current_level"`
}
