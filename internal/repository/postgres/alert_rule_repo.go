package postgres

import (
	"context"
	"errors"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline/faultline/internal/domain"
)

// AlertRuleRepository handles alert rule data access
type AlertRuleRepository struct {
	db *pgxpool.Pool
}

// NewAlertRuleRepository creates a new alert rule repository
func NewAlertRuleRepository(db *pgxpool.Pool) *AlertRuleRepository {
	return &AlertRuleRepository{db: db}
}

const ruleColumns = `id, project_id, name, type, conditions, channels, cooldown_minutes, enabled, escalation, created_at, updated_at`

// Create inserts a new alert rule
func (r *AlertRuleRepository) Create(ctx context.Context, rule *domain.AlertRule) error {
	query := `
		INSERT INTO alert_rules (id, project_id, name, type, conditions, channels, cooldown_minutes, enabled, escalation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		rule.ID, rule.ProjectID, rule.Name, rule.Type, rule.Conditions, rule.Channels,
		rule.CooldownMinutes, rule.Enabled, rule.Escalation, rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetByID retrieves an alert rule scoped to a project
func (r *AlertRuleRepository) GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.AlertRule, error) {
	var rule domain.AlertRule
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE project_id = $1 AND id = $2`
	if err := pgxscan.Get(ctx, r.db, &rule, query, projectID, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// List returns all rules of a project in creation order
func (r *AlertRuleRepository) List(ctx context.Context, projectID uuid.UUID) ([]*domain.AlertRule, error) {
	var rules []*domain.AlertRule
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE project_id = $1 ORDER BY created_at, id`
	if err := pgxscan.Select(ctx, r.db, &rules, query, projectID); err != nil {
		return nil, err
	}
	return rules, nil
}

// ListEnabled returns the enabled rules of a project in a stable order so
// evaluation is deterministic across requests.
func (r *AlertRuleRepository) ListEnabled(ctx context.Context, projectID uuid.UUID) ([]*domain.AlertRule, error) {
	var rules []*domain.AlertRule
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE project_id = $1 AND enabled ORDER BY created_at, id`
	if err := pgxscan.Select(ctx, r.db, &rules, query, projectID); err != nil {
		return nil, err
	}
	return rules, nil
}

// Update rewrites a rule's mutable fields
func (r *AlertRuleRepository) Update(ctx context.Context, rule *domain.AlertRule) error {
	query := `
		UPDATE alert_rules SET
			name = $3, type = $4, conditions = $5, channels = $6,
			cooldown_minutes = $7, enabled = $8, escalation = $9, updated_at = now()
		WHERE project_id = $1 AND id = $2
	`
	tag, err := r.db.Exec(ctx, query,
		rule.ProjectID, rule.ID, rule.Name, rule.Type, rule.Conditions, rule.Channels,
		rule.CooldownMinutes, rule.Enabled, rule.Escalation,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a rule
func (r *AlertRuleRepository) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM alert_rules WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
