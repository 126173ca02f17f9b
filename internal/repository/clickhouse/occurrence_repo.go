package clickhouse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/faultline/faultline/internal/domain"
)

// OccurrenceRepository handles occurrence data access in ClickHouse.
// Occurrences are append-only; windowed counts for rule evaluation read from
// here rather than from the mutable issue counters.
type OccurrenceRepository struct {
	conn driver.Conn
}

// NewOccurrenceRepository creates a new occurrence repository
func NewOccurrenceRepository(conn driver.Conn) *OccurrenceRepository {
	return &OccurrenceRepository{conn: conn}
}

// EnsureSchema creates the occurrences table if it does not exist
func (r *OccurrenceRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS occurrences (
			id UUID,
			issue_id UUID,
			project_id UUID,
			fingerprint String,
			timestamp DateTime64(3, 'UTC'),
			environment String,
			metadata String,
			user_context String,
			stack_trace String,
			expires_at Nullable(DateTime64(3, 'UTC'))
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (project_id, fingerprint, timestamp)
	`
	return r.conn.Exec(ctx, query)
}

// Insert inserts an occurrence into ClickHouse
func (r *OccurrenceRepository) Insert(ctx context.Context, o *domain.Occurrence) error {
	query := `
		INSERT INTO occurrences (
			id, issue_id, project_id, fingerprint, timestamp,
			environment, metadata, user_context, stack_trace, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	metadata, err := json.Marshal(o.Metadata)
	if err != nil {
		return err
	}
	userContext, err := json.Marshal(o.UserContext)
	if err != nil {
		return err
	}
	stackTrace, err := json.Marshal(o.StackTrace)
	if err != nil {
		return err
	}

	return r.conn.Exec(ctx, query,
		o.ID,
		o.IssueID,
		o.ProjectID,
		o.Fingerprint,
		o.Timestamp,
		o.Environment,
		string(metadata),
		string(userContext),
		string(stackTrace),
		o.ExpiresAt,
	)
}

// CountWindow counts occurrences of a fingerprint between from and to.
// An empty environment counts across all environments.
func (r *OccurrenceRepository) CountWindow(ctx context.Context, projectID uuid.UUID, fingerprint, environment string, from, to time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM occurrences
		WHERE project_id = ? AND fingerprint = ?
		  AND timestamp >= ? AND timestamp < ?
		  AND (? = '' OR environment = ?)
	`
	var count uint64
	if err := r.conn.QueryRow(ctx, query, projectID, fingerprint, from, to, environment, environment).Scan(&count); err != nil {
		return 0, err
	}
	return int64(count), nil
}

// ListRecent returns the latest occurrences of an issue, newest first
func (r *OccurrenceRepository) ListRecent(ctx context.Context, issueID uuid.UUID, limit int) ([]*domain.Occurrence, error) {
	query := `
		SELECT id, issue_id, project_id, fingerprint, timestamp,
		       environment, metadata, user_context, stack_trace
		FROM occurrences
		WHERE issue_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.conn.Query(ctx, query, issueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occurrences []*domain.Occurrence
	for rows.Next() {
		var o domain.Occurrence
		var metadata, userContext, stackTrace string
		if err := rows.Scan(
			&o.ID, &o.IssueID, &o.ProjectID, &o.Fingerprint, &o.Timestamp,
			&o.Environment, &metadata, &userContext, &stackTrace,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(metadata), &o.Metadata)
		_ = json.Unmarshal([]byte(userContext), &o.UserContext)
		_ = json.Unmarshal([]byte(stackTrace), &o.StackTrace)
		occurrences = append(occurrences, &o)
	}

	return occurrences, rows.Err()
}

// DeleteOlderThan drops occurrences older than cutoff for a project
func (r *OccurrenceRepository) DeleteOlderThan(ctx context.Context, projectID uuid.UUID, cutoff time.Time) error {
	query := `ALTER TABLE occurrences DELETE WHERE project_id = ? AND timestamp < ?`
	return r.conn.Exec(ctx, query, projectID, cutoff)
}
