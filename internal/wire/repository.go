package wire

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline/faultline/internal/config"
	chrepo "github.com/faultline/faultline/internal/repository/clickhouse"
	"github.com/faultline/faultline/internal/repository/memory"
	pgrepo "github.com/faultline/faultline/internal/repository/postgres"
	"github.com/faultline/faultline/internal/service"
)

// RepositorySet provides all repository instances.
var RepositorySet = wire.NewSet(
	// PostgreSQL repositories
	ProvideProjectRepository,
	ProvideIssueRepository,
	ProvideAlertRuleRepository,
	ProvideMemberRepository,
	ProvideDeploymentRepository,
	ProvideDigestRepository,
	// ClickHouse repositories
	ProvideOccurrenceRepository,
	// Notification state store, backed by memory or postgres
	ProvideNotificationStateStore,
)

// PostgreSQL Repositories

// ProvideProjectRepository creates a new ProjectRepository.
func ProvideProjectRepository(db *pgxpool.Pool) *pgrepo.ProjectRepository {
	return pgrepo.NewProjectRepository(db)
}

// ProvideIssueRepository creates a new IssueRepository.
func ProvideIssueRepository(db *pgxpool.Pool) *pgrepo.IssueRepository {
	return pgrepo.NewIssueRepository(db)
}

// ProvideAlertRuleRepository creates a new AlertRuleRepository.
func ProvideAlertRuleRepository(db *pgxpool.Pool) *pgrepo.AlertRuleRepository {
	return pgrepo.NewAlertRuleRepository(db)
}

// ProvideMemberRepository creates a new MemberRepository.
func ProvideMemberRepository(db *pgxpool.Pool) *pgrepo.MemberRepository {
	return pgrepo.NewMemberRepository(db)
}

// ProvideDeploymentRepository creates a new DeploymentRepository.
func ProvideDeploymentRepository(db *pgxpool.Pool) *pgrepo.DeploymentRepository {
	return pgrepo.NewDeploymentRepository(db)
}

// ProvideDigestRepository creates a new DigestRepository.
func ProvideDigestRepository(db *pgxpool.Pool) *pgrepo.DigestRepository {
	return pgrepo.NewDigestRepository(db)
}

// ClickHouse Repositories

// ProvideOccurrenceRepository creates a new OccurrenceRepository.
func ProvideOccurrenceRepository(conn driver.Conn) *chrepo.OccurrenceRepository {
	return chrepo.NewOccurrenceRepository(conn)
}

// ProvideNotificationStateStore selects the cooldown and escalation store
// by the configured driver. Memory loses state across restarts; postgres
// survives them.
func ProvideNotificationStateStore(cfg *config.Config, db *pgxpool.Pool) service.NotificationStateStore {
	if cfg.Alerting.StateDriver == "postgres" {
		return pgrepo.NewNotificationStateRepository(db)
	}
	return memory.NewNotificationStateStore()
}
