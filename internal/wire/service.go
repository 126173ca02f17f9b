package wire

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/config"
	chrepo "github.com/faultline/faultline/internal/repository/clickhouse"
	pgrepo "github.com/faultline/faultline/internal/repository/postgres"
	"github.com/faultline/faultline/internal/service"
)

// ServiceSet provides all service instances.
var ServiceSet = wire.NewSet(
	ProvideSanitizer,
	ProvideFingerprinter,
	ProvideRuleEvaluator,
	ProvideMailTransport,
	ProvideEmailService,
	ProvideChannelDispatcher,
	ProvideNotificationEngine,
	ProvideContextEnricher,
	ProvideTriggerService,
	ProvideAnalyticsInvalidator,
	ProvideIngestService,
	ProvideDigestService,
	ProvideRetentionService,
	ProvideRuleService,
	ProvideIssueService,
	ProvideMemberService,
	ProvideDeploymentService,
)

// ProvideSanitizer creates a new Sanitizer.
func ProvideSanitizer() *service.Sanitizer {
	return service.NewSanitizer()
}

// ProvideFingerprinter creates a new Fingerprinter.
func ProvideFingerprinter() *service.Fingerprinter {
	return service.NewFingerprinter()
}

// ProvideRuleEvaluator creates a new RuleEvaluator.
func ProvideRuleEvaluator() *service.RuleEvaluator {
	return service.NewRuleEvaluator()
}

// ProvideMailTransport selects the SendGrid transport when an API key is
// configured and the logging transport otherwise.
func ProvideMailTransport(cfg *config.Config, logger *zap.Logger) service.MailTransport {
	return service.NewMailTransport(cfg.Email.SendGridAPIKey, logger)
}

// ProvideEmailService creates a new EmailService.
func ProvideEmailService(
	transport service.MailTransport,
	members *pgrepo.MemberRepository,
	digests *pgrepo.DigestRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *service.EmailService {
	return service.NewEmailService(transport, members, digests, cfg.Email, logger)
}

// ProvideChannelDispatcher creates a new ChannelDispatcher.
func ProvideChannelDispatcher(
	email *service.EmailService,
	cfg *config.Config,
	logger *zap.Logger,
) *service.ChannelDispatcher {
	return service.NewChannelDispatcher(email, cfg.Alerting.WebhookTimeout(), logger)
}

// ProvideNotificationEngine creates a new NotificationEngine.
func ProvideNotificationEngine(
	cfg *config.Config,
	store service.NotificationStateStore,
	dispatcher *service.ChannelDispatcher,
	logger *zap.Logger,
) *service.NotificationEngine {
	engineCfg := service.NotificationEngineConfig{
		AggregationWindow:        cfg.Alerting.AggregationWindow(),
		DefaultCooldownMinutes:   cfg.Alerting.CooldownMinutes,
		DefaultEscalationMinutes: cfg.Alerting.EscalationMinutes,
	}
	return service.NewNotificationEngine(engineCfg, store, dispatcher, logger)
}

// ProvideContextEnricher creates a new ContextEnricher.
func ProvideContextEnricher(
	deployments *pgrepo.DeploymentRepository,
	issues *pgrepo.IssueRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *service.ContextEnricher {
	return service.NewContextEnricher(deployments, issues, cfg.Alerting.DeploymentLookback(), logger)
}

// ProvideTriggerService creates a new TriggerService.
func ProvideTriggerService(
	rules *pgrepo.AlertRuleRepository,
	occurrences *chrepo.OccurrenceRepository,
	evaluator *service.RuleEvaluator,
	enricher *service.ContextEnricher,
	engine *service.NotificationEngine,
	cfg *config.Config,
	logger *zap.Logger,
) *service.TriggerService {
	return service.NewTriggerService(rules, occurrences, evaluator, enricher, engine, cfg.Server.DashboardURL, logger)
}

// ProvideAnalyticsInvalidator creates the analytics cache hook.
func ProvideAnalyticsInvalidator(logger *zap.Logger) *service.LoggingAnalyticsInvalidator {
	return service.NewLoggingAnalyticsInvalidator(logger)
}

// ProvideIngestService creates a new IngestService.
func ProvideIngestService(
	sanitizer *service.Sanitizer,
	fingerprinter *service.Fingerprinter,
	issues *pgrepo.IssueRepository,
	occurrences *chrepo.OccurrenceRepository,
	analytics *service.LoggingAnalyticsInvalidator,
	trigger *service.TriggerService,
	logger *zap.Logger,
) *service.IngestService {
	return service.NewIngestService(sanitizer, fingerprinter, issues, occurrences, analytics, trigger, logger)
}

// ProvideDigestService creates a new DigestService.
func ProvideDigestService(
	queue *pgrepo.DigestRepository,
	members *pgrepo.MemberRepository,
	projects *pgrepo.ProjectRepository,
	mailer *service.EmailService,
	cfg *config.Config,
	logger *zap.Logger,
) *service.DigestService {
	return service.NewDigestService(queue, members, projects, mailer, cfg.Alerting.DigestInterval(), logger)
}

// ProvideRetentionService creates a new RetentionService.
func ProvideRetentionService(
	projects *pgrepo.ProjectRepository,
	issues *pgrepo.IssueRepository,
	occurrences *chrepo.OccurrenceRepository,
	cfg *config.Config,
	logger *zap.Logger,
) *service.RetentionService {
	return service.NewRetentionService(projects, issues, occurrences, cfg.Retention.CleanupInterval(), logger)
}

// ProvideRuleService creates a new RuleService.
func ProvideRuleService(rules *pgrepo.AlertRuleRepository, logger *zap.Logger) *service.RuleService {
	return service.NewRuleService(rules, logger)
}

// ProvideIssueService creates a new IssueService.
func ProvideIssueService(issues *pgrepo.IssueRepository, logger *zap.Logger) *service.IssueService {
	return service.NewIssueService(issues, logger)
}

// ProvideMemberService creates a new MemberService.
func ProvideMemberService(members *pgrepo.MemberRepository, logger *zap.Logger) *service.MemberService {
	return service.NewMemberService(members, logger)
}

// ProvideDeploymentService creates a new DeploymentService.
func ProvideDeploymentService(deployments *pgrepo.DeploymentRepository, logger *zap.Logger) *service.DeploymentService {
	return service.NewDeploymentService(deployments, logger)
}
