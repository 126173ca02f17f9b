package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline/faultline/internal/domain"
)

// IssueRepository handles grouped issue data access
type IssueRepository struct {
	db *pgxpool.Pool
}

// NewIssueRepository creates a new issue repository
func NewIssueRepository(db *pgxpool.Pool) *IssueRepository {
	return &IssueRepository{db: db}
}

const issueColumns = `id, project_id, message, environment, stack_trace, fingerprint, count,
	first_seen, last_seen, status, assigned_to, status_history, assignment_history,
	metadata, user_context, resolved_at, expires_at, created_at, updated_at`

// Create inserts a new issue. Returns domain.ErrDuplicateEntry when another
// writer created the same (project_id, fingerprint) first, so the caller can
// fall back to the update path.
func (r *IssueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	query := `
		INSERT INTO issues (id, project_id, message, environment, stack_trace, fingerprint, count,
			first_seen, last_seen, status, assigned_to, status_history, assignment_history,
			metadata, user_context, resolved_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.db.Exec(ctx, query,
		issue.ID, issue.ProjectID, issue.Message, issue.Environment, issue.StackTrace,
		issue.Fingerprint, issue.Count, issue.FirstSeen, issue.LastSeen, issue.Status,
		issue.AssignedTo, issue.StatusHistory, issue.AssignmentHistory,
		issue.Metadata, issue.UserContext, issue.ResolvedAt, issue.ExpiresAt,
		issue.CreatedAt, issue.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEntry
	}
	return err
}

// GetByID retrieves an issue by ID
func (r *IssueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	var issue domain.Issue
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`
	if err := pgxscan.Get(ctx, r.db, &issue, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &issue, nil
}

// GetByFingerprint retrieves the issue grouping a fingerprint within a project
func (r *IssueRepository) GetByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (*domain.Issue, error) {
	var issue domain.Issue
	query := `SELECT ` + issueColumns + ` FROM issues WHERE project_id = $1 AND fingerprint = $2`
	if err := pgxscan.Get(ctx, r.db, &issue, query, projectID, fingerprint); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &issue, nil
}

// OccurrencePatch carries the deduplicated update applied when a new event
// maps to an existing issue. Metadata is merged key-by-key; UserContext is
// replaced only when the event carried one.
type OccurrencePatch struct {
	Message        string
	Environment    string
	StackTrace     []domain.StackFrame
	Timestamp      time.Time
	Metadata       map[string]any
	HasMetadata    bool
	UserContext    map[string]any
	HasUserContext bool
	ExpiresAt      *time.Time
}

// ApplyOccurrence folds one occurrence into an existing issue: count + 1,
// last_seen moves forward only, latest message/environment/stack win.
func (r *IssueRepository) ApplyOccurrence(ctx context.Context, id uuid.UUID, patch OccurrencePatch) (*domain.Issue, error) {
	var issue domain.Issue
	query := `
		UPDATE issues SET
			message = $2,
			environment = $3,
			stack_trace = $4,
			count = count + 1,
			last_seen = GREATEST(last_seen, $5),
			metadata = CASE WHEN $6 THEN metadata || $7 ELSE metadata END,
			user_context = CASE WHEN $8 THEN $9 ELSE user_context END,
			expires_at = COALESCE($10, expires_at),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + issueColumns
	err := pgxscan.Get(ctx, r.db, &issue, query,
		id, patch.Message, patch.Environment, patch.StackTrace, patch.Timestamp,
		patch.HasMetadata, patch.Metadata, patch.HasUserContext, patch.UserContext,
		patch.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &issue, nil
}

// UpdateStatus transitions an issue and appends to its status history
func (r *IssueRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status, changedBy string, at time.Time) (*domain.Issue, error) {
	issue, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	issue.Status = status
	issue.StatusHistory = append(issue.StatusHistory, domain.StatusChange{
		Status:    status,
		ChangedAt: at,
		ChangedBy: changedBy,
	})
	if status == domain.IssueStatusResolved {
		issue.ResolvedAt = &at
	} else {
		issue.ResolvedAt = nil
	}

	var updated domain.Issue
	query := `
		UPDATE issues SET status = $2, status_history = $3, resolved_at = $4, updated_at = now()
		WHERE id = $1
		RETURNING ` + issueColumns
	if err := pgxscan.Get(ctx, r.db, &updated, query, id, issue.Status, issue.StatusHistory, issue.ResolvedAt); err != nil {
		return nil, err
	}
	return &updated, nil
}

// UpdateAssignment assigns an issue and appends to its assignment history
func (r *IssueRepository) UpdateAssignment(ctx context.Context, id uuid.UUID, assignedTo, changedBy string, at time.Time) (*domain.Issue, error) {
	issue, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	issue.AssignmentHistory = append(issue.AssignmentHistory, domain.AssignmentChange{
		AssignedTo: assignedTo,
		ChangedAt:  at,
		ChangedBy:  changedBy,
	})
	var target *string
	if assignedTo != "" {
		target = &assignedTo
	}

	var updated domain.Issue
	query := `
		UPDATE issues SET assigned_to = $2, assignment_history = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + issueColumns
	if err := pgxscan.Get(ctx, r.db, &updated, query, id, target, issue.AssignmentHistory); err != nil {
		return nil, err
	}
	return &updated, nil
}

// IssueListFilter narrows List results
type IssueListFilter struct {
	Status      string
	Environment string
}

// List returns a project's issues, most recently seen first
func (r *IssueRepository) List(ctx context.Context, projectID uuid.UUID, filter IssueListFilter, opts *ListOptions) ([]*domain.Issue, error) {
	limit, offset := opts.limitOffset()
	var issues []*domain.Issue
	query := `
		SELECT ` + issueColumns + ` FROM issues
		WHERE project_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR environment = $3)
		ORDER BY last_seen DESC
		LIMIT $4 OFFSET $5
	`
	if err := pgxscan.Select(ctx, r.db, &issues, query, projectID, filter.Status, filter.Environment, limit, offset); err != nil {
		return nil, err
	}
	return issues, nil
}

// FindSimilar returns other issues of the project sharing the environment,
// most recently seen first, excluding the issue itself.
func (r *IssueRepository) FindSimilar(ctx context.Context, projectID, excludeID uuid.UUID, environment string, limit int) ([]*domain.Issue, error) {
	var issues []*domain.Issue
	query := `
		SELECT ` + issueColumns + ` FROM issues
		WHERE project_id = $1 AND id != $2 AND environment = $3
		ORDER BY last_seen DESC
		LIMIT $4
	`
	if err := pgxscan.Select(ctx, r.db, &issues, query, projectID, excludeID, environment, limit); err != nil {
		return nil, err
	}
	return issues, nil
}

// DeleteOlderThan removes issues last seen before cutoff. Returns rows deleted.
func (r *IssueRepository) DeleteOlderThan(ctx context.Context, projectID uuid.UUID, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM issues WHERE project_id = $1 AND last_seen < $2`, projectID, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
