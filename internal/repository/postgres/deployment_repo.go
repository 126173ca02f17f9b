package postgres

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline/faultline/internal/domain"
)

// DeploymentRepository handles deployment record data access
type DeploymentRepository struct {
	db *pgxpool.Pool
}

// NewDeploymentRepository creates a new deployment repository
func NewDeploymentRepository(db *pgxpool.Pool) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

// Create inserts a deployment record
func (r *DeploymentRepository) Create(ctx context.Context, d *domain.Deployment) error {
	query := `
		INSERT INTO deployments (id, project_id, version, environment, deployed_by, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, d.ID, d.ProjectID, d.Version, d.Environment, d.DeployedBy, d.Timestamp)
	return err
}

// List returns a project's deployments, newest first
func (r *DeploymentRepository) List(ctx context.Context, projectID uuid.UUID, opts *ListOptions) ([]*domain.Deployment, error) {
	limit, offset := opts.limitOffset()
	var deployments []*domain.Deployment
	query := `
		SELECT id, project_id, version, environment, deployed_by, timestamp
		FROM deployments
		WHERE project_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`
	if err := pgxscan.Select(ctx, r.db, &deployments, query, projectID, limit, offset); err != nil {
		return nil, err
	}
	return deployments, nil
}

// ListRecent returns deployments within the lookback window around a
// reference instant, newest first, capped at limit.
func (r *DeploymentRepository) ListRecent(ctx context.Context, projectID uuid.UUID, since, until time.Time, limit int) ([]*domain.Deployment, error) {
	var deployments []*domain.Deployment
	query := `
		SELECT id, project_id, version, environment, deployed_by, timestamp
		FROM deployments
		WHERE project_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp DESC
		LIMIT $4
	`
	if err := pgxscan.Select(ctx, r.db, &deployments, query, projectID, since, until, limit); err != nil {
		return nil, err
	}
	return deployments, nil
}
