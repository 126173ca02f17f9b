package domain

import (
	"time"

	"github.com/google/uuid"
)

// Issue statuses
const (
	IssueStatusNew           = "new"
	IssueStatusOpen          = "open"
	IssueStatusInvestigating = "investigating"
	IssueStatusResolved      = "resolved"
	IssueStatusIgnored       = "ignored"
	IssueStatusMuted         = "muted"
)

// ValidIssueStatuses maps every allowed issue status
var ValidIssueStatuses = map[string]bool{
	IssueStatusNew:           true,
	IssueStatusOpen:          true,
	IssueStatusInvestigating: true,
	IssueStatusResolved:      true,
	IssueStatusIgnored:       true,
	IssueStatusMuted:         true,
}

// ScrubPolicy holds the per-project PII scrubbing switches
type ScrubPolicy struct {
	RemoveEmails bool `json:"remove_emails" db:"remove_emails"`
	RemovePhones bool `json:"remove_phones" db:"remove_phones"`
	RemoveIPs    bool `json:"remove_ips" db:"remove_ips"`
}

// Project represents a monitored application
type Project struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	Name          string      `json:"name" db:"name"`
	APIKeyHash    string      `json:"-" db:"api_key_hash"`
	APIKeyPreview string      `json:"api_key_preview" db:"api_key_preview"`
	RetentionDays int         `json:"retention_days" db:"retention_days"`
	Scrub         ScrubPolicy `json:"scrub" db:"scrub"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// StackFrame is a single frame of a stack trace
type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Function string `json:"function"`
	InApp    bool   `json:"in_app"`
}

// StatusChange is one append-only entry of an issue's status history
type StatusChange struct {
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
	ChangedBy string    `json:"changed_by,omitempty"`
}

// AssignmentChange is one append-only entry of an issue's assignment history
type AssignmentChange struct {
	AssignedTo string    `json:"assigned_to"`
	ChangedAt  time.Time `json:"changed_at"`
	ChangedBy  string    `json:"changed_by,omitempty"`
}

// Issue is the grouped error record identified by (project_id, fingerprint)
type Issue struct {
	ID                uuid.UUID          `json:"id" db:"id"`
	ProjectID         uuid.UUID          `json:"project_id" db:"project_id"`
	Message           string             `json:"message" db:"message"`
	Environment       string             `json:"environment" db:"environment"`
	StackTrace        []StackFrame       `json:"stack_trace" db:"stack_trace"`
	Fingerprint       string             `json:"fingerprint" db:"fingerprint"`
	Count             int64              `json:"count" db:"count"`
	FirstSeen         time.Time          `json:"first_seen" db:"first_seen"`
	LastSeen          time.Time          `json:"last_seen" db:"last_seen"`
	Status            string             `json:"status" db:"status"`
	AssignedTo        *string            `json:"assigned_to,omitempty" db:"assigned_to"`
	StatusHistory     []StatusChange     `json:"status_history" db:"status_history"`
	AssignmentHistory []AssignmentChange `json:"assignment_history" db:"assignment_history"`
	Metadata          map[string]any     `json:"metadata" db:"metadata"`
	UserContext       map[string]any     `json:"user_context" db:"user_context"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty" db:"resolved_at"`
	ExpiresAt         *time.Time         `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
}

// Occurrence is one reported instance of an issue. Immutable after insert.
type Occurrence struct {
	ID          uuid.UUID      `json:"id"`
	IssueID     uuid.UUID      `json:"issue_id"`
	ProjectID   uuid.UUID      `json:"project_id"`
	Fingerprint string         `json:"fingerprint"`
	Timestamp   time.Time      `json:"timestamp"`
	Environment string         `json:"environment"`
	Metadata    map[string]any `json:"metadata"`
	UserContext map[string]any `json:"user_context"`
	StackTrace  []StackFrame   `json:"stack_trace"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

// ErrorEvent is the raw inbound payload before sanitization.
// HasMetadata/HasUserContext record which optional top-level fields were
// present on the wire so the ingest path does not overwrite absent fields
// on an existing issue.
type ErrorEvent struct {
	Message     string         `json:"message"`
	StackTrace  []StackFrame   `json:"stack_trace"`
	Environment string         `json:"environment"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	UserContext map[string]any `json:"user_context,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Request     map[string]any `json:"request,omitempty"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`

	HasMetadata    bool `json:"-"`
	HasUserContext bool `json:"-"`
}

// Email delivery modes for team member alert preferences
const (
	EmailModeImmediate = "immediate"
	EmailModeDigest    = "digest"
	EmailModeDisabled  = "disabled"
)

// Digest cadences
const (
	DigestCadenceDaily  = "daily"
	DigestCadenceWeekly = "weekly"
)

// QuietHours describes a recipient's do-not-disturb window
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"` // "HH:MM"
	End      string `json:"end"`   // "HH:MM"
	Timezone string `json:"timezone"`
}

// DigestPrefs describes a recipient's digest cadence
type DigestPrefs struct {
	Cadence    string     `json:"cadence"`
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
}

// EmailPrefs holds email alert preferences for a team member
type EmailPrefs struct {
	Mode       string      `json:"mode"`
	QuietHours QuietHours  `json:"quiet_hours"`
	Digest     DigestPrefs `json:"digest"`
}

// AlertPreferences groups per-channel notification preferences
type AlertPreferences struct {
	Email EmailPrefs `json:"email"`
}

// TeamMember is a notification recipient scoped to a project.
// The core consumes members; it does not manage membership.
type TeamMember struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	ProjectID        uuid.UUID        `json:"project_id" db:"project_id"`
	Email            string           `json:"email" db:"email"`
	Active           bool             `json:"active" db:"active"`
	AlertPreferences AlertPreferences `json:"alert_preferences" db:"alert_preferences"`
	UnsubscribeToken string           `json:"-" db:"unsubscribe_token"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// Deployment is a release record used by the context enricher
type Deployment struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ProjectID   uuid.UUID `json:"project_id" db:"project_id"`
	Version     string    `json:"version" db:"version"`
	Environment string    `json:"environment" db:"environment"`
	DeployedBy  string    `json:"deployed_by" db:"deployed_by"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// DigestEntry is a queued alert awaiting inclusion in a digest email
type DigestEntry struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	ProjectID   uuid.UUID     `json:"project_id" db:"project_id"`
	MemberID    uuid.UUID     `json:"member_id" db:"member_id"`
	RuleID      uuid.UUID     `json:"rule_id" db:"rule_id"`
	Alert       *AlertPayload `json:"alert" db:"alert"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	Processed   bool          `json:"processed" db:"processed"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty" db:"processed_at"`
}
