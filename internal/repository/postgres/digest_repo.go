package postgres

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline/faultline/internal/domain"
)

// DigestRepository handles the queued-digest data access
type DigestRepository struct {
	db *pgxpool.Pool
}

// NewDigestRepository creates a new digest repository
func NewDigestRepository(db *pgxpool.Pool) *DigestRepository {
	return &DigestRepository{db: db}
}

// Enqueue stores an alert for later inclusion in a member's digest email
func (r *DigestRepository) Enqueue(ctx context.Context, e *domain.DigestEntry) error {
	query := `
		INSERT INTO digest_queue (id, project_id, member_id, rule_id, alert, created_at, processed)
		VALUES ($1, $2, $3, $4, $5, $6, false)
	`
	_, err := r.db.Exec(ctx, query, e.ID, e.ProjectID, e.MemberID, e.RuleID, e.Alert, e.CreatedAt)
	return err
}

// ListPending returns a member's unprocessed digest entries, oldest first
func (r *DigestRepository) ListPending(ctx context.Context, projectID, memberID uuid.UUID) ([]*domain.DigestEntry, error) {
	var entries []*domain.DigestEntry
	query := `
		SELECT id, project_id, member_id, rule_id, alert, created_at, processed, processed_at
		FROM digest_queue
		WHERE project_id = $1 AND member_id = $2 AND NOT processed
		ORDER BY created_at, id
	`
	if err := pgxscan.Select(ctx, r.db, &entries, query, projectID, memberID); err != nil {
		return nil, err
	}
	return entries, nil
}

// PendingMember identifies one (project, member) pair with queued entries
type PendingMember struct {
	ProjectID uuid.UUID `db:"project_id"`
	MemberID  uuid.UUID `db:"member_id"`
}

// ListPendingMembers returns every (project, member) pair with at least one
// unprocessed entry.
func (r *DigestRepository) ListPendingMembers(ctx context.Context) ([]PendingMember, error) {
	var members []PendingMember
	query := `
		SELECT DISTINCT project_id, member_id
		FROM digest_queue
		WHERE NOT processed
		ORDER BY project_id, member_id
	`
	if err := pgxscan.Select(ctx, r.db, &members, query); err != nil {
		return nil, err
	}
	return members, nil
}

// MarkProcessed stamps the given entries as consumed
func (r *DigestRepository) MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE digest_queue SET processed = true, processed_at = $2 WHERE id = ANY($1)`,
		ids, at,
	)
	return err
}
