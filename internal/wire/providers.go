package wire

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/faultline/faultline/internal/api"
	"github.com/faultline/faultline/internal/config"
	chrepo "github.com/faultline/faultline/internal/repository/clickhouse"
	pgrepo "github.com/faultline/faultline/internal/repository/postgres"
	"github.com/faultline/faultline/internal/service"
)

// ProviderSet is the main provider set that includes all application dependencies.
var ProviderSet = wire.NewSet(
	DatabaseSet,
	RepositorySet,
	ServiceSet,
	HandlerSet,
	ProvideLogger,
	ProvideRouter,
	ProvideApplication,
)

// Application holds all the dependencies needed to run the server.
type Application struct {
	Config         *config.Config
	Logger         *zap.Logger
	PostgresPool   *pgxpool.Pool
	ClickHouseConn driver.Conn
	Router         *gin.Engine
	Handlers       api.Handlers

	Occurrences *chrepo.OccurrenceRepository
	Engine      *service.NotificationEngine
	Digests     *service.DigestService
	Retention   *service.RetentionService

	// Database wrappers with cleanup
	postgresWrapper   *PostgresDB
	clickhouseWrapper *ClickHouseDB
}

// Start brings the background pipeline up: the occurrence schema is ensured,
// pending cooldowns and escalations are restored, then the digest and
// retention schedulers begin ticking.
func (a *Application) Start(ctx context.Context) error {
	if err := a.Occurrences.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure occurrence schema: %w", err)
	}
	if err := a.Engine.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize notification engine: %w", err)
	}
	a.Digests.Start()
	a.Retention.Start()
	return nil
}

// Stop halts schedulers and pending timers before connections close.
func (a *Application) Stop() {
	a.Retention.Stop()
	a.Digests.Stop()
	a.Engine.Stop()
}

// Cleanup releases all resources.
func (a *Application) Cleanup() {
	if a.clickhouseWrapper != nil && a.clickhouseWrapper.Cleanup != nil {
		a.clickhouseWrapper.Cleanup()
	}
	if a.postgresWrapper != nil && a.postgresWrapper.Cleanup != nil {
		a.postgresWrapper.Cleanup()
	}
}

// ProvideLogger creates a configured zap logger.
func ProvideLogger(cfg *config.Config) *zap.Logger {
	var zapConfig zap.Config
	if cfg.IsDevelopment() {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	logger, err := zapConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	return logger
}

// ProvideRouter creates the Gin router with all routes configured.
func ProvideRouter(
	cfg *config.Config,
	h api.Handlers,
	projects *pgrepo.ProjectRepository,
	logger *zap.Logger,
) *gin.Engine {
	return api.SetupRouter(cfg, h, projects, logger)
}

// ProvideApplication assembles the Application.
func ProvideApplication(
	cfg *config.Config,
	logger *zap.Logger,
	postgresWrapper *PostgresDB,
	clickhouseWrapper *ClickHouseDB,
	router *gin.Engine,
	handlers api.Handlers,
	occurrences *chrepo.OccurrenceRepository,
	engine *service.NotificationEngine,
	digests *service.DigestService,
	retention *service.RetentionService,
) *Application {
	return &Application{
		Config:            cfg,
		Logger:            logger,
		PostgresPool:      postgresWrapper.Pool,
		ClickHouseConn:    clickhouseWrapper.Conn,
		Router:            router,
		Handlers:          handlers,
		Occurrences:       occurrences,
		Engine:            engine,
		Digests:           digests,
		Retention:         retention,
		postgresWrapper:   postgresWrapper,
		clickhouseWrapper: clickhouseWrapper,
	}
}
