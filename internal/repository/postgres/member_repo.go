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

// MemberRepository handles team member data access
type MemberRepository struct {
	db *pgxpool.Pool
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{db: db}
}

const memberColumns = `id, project_id, email, active, alert_preferences, unsubscribe_token, created_at, updated_at`

// GetByID retrieves a member by ID
func (r *MemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TeamMember, error) {
	var m domain.TeamMember
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE id = $1`
	if err := pgxscan.Get(ctx, r.db, &m, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetByEmail resolves a project member by address, case-insensitively
func (r *MemberRepository) GetByEmail(ctx context.Context, projectID uuid.UUID, email string) (*domain.TeamMember, error) {
	var m domain.TeamMember
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE project_id = $1 AND lower(email) = lower($2)`
	if err := pgxscan.Get(ctx, r.db, &m, query, projectID, email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetByUnsubscribeToken resolves a member from an unsubscribe link token
func (r *MemberRepository) GetByUnsubscribeToken(ctx context.Context, token string) (*domain.TeamMember, error) {
	var m domain.TeamMember
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE unsubscribe_token = $1 AND unsubscribe_token != ''`
	if err := pgxscan.Get(ctx, r.db, &m, query, token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListActive returns a project's active members
func (r *MemberRepository) ListActive(ctx context.Context, projectID uuid.UUID) ([]*domain.TeamMember, error) {
	var members []*domain.TeamMember
	query := `SELECT ` + memberColumns + ` FROM team_members WHERE project_id = $1 AND active ORDER BY email`
	if err := pgxscan.Select(ctx, r.db, &members, query, projectID); err != nil {
		return nil, err
	}
	return members, nil
}

// UpdatePreferences persists a member's alert preferences document
func (r *MemberRepository) UpdatePreferences(ctx context.Context, id uuid.UUID, prefs domain.AlertPreferences) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE team_members SET alert_preferences = $2, updated_at = now() WHERE id = $1`,
		id, prefs,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDigestSent records when a member's digest was last delivered
func (r *MemberRepository) MarkDigestSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	m, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	m.AlertPreferences.Email.Digest.LastSentAt = &at
	return r.UpdatePreferences(ctx, id, m.AlertPreferences)
}
