package wire

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/api"
	"github.com/faultline/faultline/internal/api/handlers"
	"github.com/faultline/faultline/internal/service"
)

// HandlerSet provides all HTTP handler instances.
var HandlerSet = wire.NewSet(
	ProvideIngestHandler,
	ProvideAlertHandler,
	ProvideIssueHandler,
	ProvideDeploymentHandler,
	ProvideUnsubscribeHandler,
	ProvideHealthHandler,
	ProvideHandlers,
)

// ProvideIngestHandler creates a new IngestHandler.
func ProvideIngestHandler(ingest *service.IngestService, logger *zap.Logger) *handlers.IngestHandler {
	return handlers.NewIngestHandler(ingest, logger)
}

// ProvideAlertHandler creates a new AlertHandler.
func ProvideAlertHandler(
	rules *service.RuleService,
	engine *service.NotificationEngine,
	logger *zap.Logger,
) *handlers.AlertHandler {
	return handlers.NewAlertHandler(rules, engine, logger)
}

// ProvideIssueHandler creates a new IssueHandler.
func ProvideIssueHandler(issues *service.IssueService, logger *zap.Logger) *handlers.IssueHandler {
	return handlers.NewIssueHandler(issues, logger)
}

// ProvideDeploymentHandler creates a new DeploymentHandler.
func ProvideDeploymentHandler(
	deployments *service.DeploymentService,
	logger *zap.Logger,
) *handlers.DeploymentHandler {
	return handlers.NewDeploymentHandler(deployments, logger)
}

// ProvideUnsubscribeHandler creates a new UnsubscribeHandler.
func ProvideUnsubscribeHandler(
	members *service.MemberService,
	logger *zap.Logger,
) *handlers.UnsubscribeHandler {
	return handlers.NewUnsubscribeHandler(members, logger)
}

// ProvideHealthHandler creates a new HealthHandler.
func ProvideHealthHandler(db *pgxpool.Pool, conn driver.Conn) *handlers.HealthHandler {
	return handlers.NewHealthHandler(db, conn)
}

// ProvideHandlers creates the Handlers struct containing all handlers.
func ProvideHandlers(
	ingest *handlers.IngestHandler,
	alert *handlers.AlertHandler,
	issue *handlers.IssueHandler,
	deployment *handlers.DeploymentHandler,
	unsubscribe *handlers.UnsubscribeHandler,
	health *handlers.HealthHandler,
) api.Handlers {
	return api.Handlers{
		Ingest:      ingest,
		Alert:       alert,
		Issue:       issue,
		Deployment:  deployment,
		Unsubscribe: unsubscribe,
		Health:      health,
	}
}
