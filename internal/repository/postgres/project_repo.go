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

// ProjectRepository handles project data access
type ProjectRepository struct {
	db *pgxpool.Pool
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, name, api_key_hash, api_key_preview, retention_days, scrub, created_at, updated_at`

// Create inserts a new project
func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	query := `
		INSERT INTO projects (id, name, api_key_hash, api_key_preview, retention_days, scrub, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.APIKeyHash, p.APIKeyPreview, p.RetentionDays, p.Scrub, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEntry
	}
	return err
}

// GetByID retrieves a project by ID
func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	var p domain.Project
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	if err := pgxscan.Get(ctx, r.db, &p, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByAPIKeyHash resolves a project from its hashed bearer credential
func (r *ProjectRepository) GetByAPIKeyHash(ctx context.Context, keyHash string) (*domain.Project, error) {
	var p domain.Project
	query := `SELECT ` + projectColumns + ` FROM projects WHERE api_key_hash = $1`
	if err := pgxscan.Get(ctx, r.db, &p, query, keyHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListWithRetention returns all projects with a positive retention window
func (r *ProjectRepository) ListWithRetention(ctx context.Context) ([]*domain.Project, error) {
	var projects []*domain.Project
	query := `SELECT ` + projectColumns + ` FROM projects WHERE retention_days >= 1 ORDER BY created_at`
	if err := pgxscan.Select(ctx, r.db, &projects, query); err != nil {
		return nil, err
	}
	return projects, nil
}

// Touch updates the project's updated_at timestamp
func (r *ProjectRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE projects SET updated_at = $2 WHERE id = $1`, id, at)
	return err
}
