package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/postgres"
)

// DeploymentService records and lists release markers used by the enricher
type DeploymentService struct {
	deployments *postgres.DeploymentRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewDeploymentService creates a deployment service
func NewDeploymentService(deployments *postgres.DeploymentRepository, logger *zap.Logger) *DeploymentService {
	return &DeploymentService{deployments: deployments, logger: logger, now: time.Now}
}

// Create records a deployment for a project
func (s *DeploymentService) Create(ctx context.Context, projectID uuid.UUID, version, environment, deployedBy string, at *time.Time) (*domain.Deployment, error) {
	if version == "" {
		return nil, domain.ValidationErrors{{Field: "version", Message: "version is required"}}
	}
	timestamp := s.now()
	if at != nil {
		timestamp = *at
	}
	deployment := &domain.Deployment{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Version:     version,
		Environment: environment,
		DeployedBy:  deployedBy,
		Timestamp:   timestamp,
	}
	if err := s.deployments.Create(ctx, deployment); err != nil {
		return nil, err
	}
	return deployment, nil
}

// List returns a project's deployments, newest first
func (s *DeploymentService) List(ctx context.Context, projectID uuid.UUID, opts *postgres.ListOptions) ([]*domain.Deployment, error) {
	return s.deployments.List(ctx, projectID, opts)
}
