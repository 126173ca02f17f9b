package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
)

// DeploymentLookup lists recent deployments for enrichment
type DeploymentLookup interface {
	ListRecent(ctx context.Context, projectID uuid.UUID, since, until time.Time, limit int) ([]*domain.Deployment, error)
}

// SimilarIssueLookup finds related issues for enrichment
type SimilarIssueLookup interface {
	GetByFingerprint(ctx context.Context, projectID uuid.UUID, fingerprint string) (*domain.Issue, error)
	FindSimilar(ctx context.Context, projectID, excludeID uuid.UUID, environment string, limit int) ([]*domain.Issue, error)
}

// ContextEnricher attaches best-effort contextual insight to alert payloads:
// recent deployments, similar incidents, suggested fixes and next steps.
// Lookup failures degrade to empty sections and never block dispatch.
type ContextEnricher struct {
	deployments DeploymentLookup
	issues      SimilarIssueLookup
	lookback    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewContextEnricher creates an enricher with the given deployment lookback
func NewContextEnricher(deployments DeploymentLookup, issues SimilarIssueLookup, lookback time.Duration, logger *zap.Logger) *ContextEnricher {
	if lookback <= 0 {
		lookback = 12 * time.Hour
	}
	return &ContextEnricher{
		deployments: deployments,
		issues:      issues,
		lookback:    lookback,
		logger:      logger,
		now:         time.Now,
	}
}

// Enrich fills alert.Context in place
func (e *ContextEnricher) Enrich(ctx context.Context, project *domain.Project, issue *domain.Issue, rule *domain.AlertRule, alert *domain.AlertPayload) {
	alertCtx := &domain.AlertContext{
		RecentDeployments: []domain.Deployment{},
		SimilarIncidents:  []domain.IncidentRef{},
		SuggestedFixes:    []string{},
	}

	reference := alert.LastDetectedAt
	if reference.IsZero() {
		reference = e.now()
	}

	deployments, err := e.deployments.ListRecent(ctx, project.ID, reference.Add(-e.lookback), reference.Add(e.lookback), 3)
	if err != nil {
		e.logger.Debug("deployment lookup failed during enrichment", zap.Error(err))
	}
	for _, d := range deployments {
		alertCtx.RecentDeployments = append(alertCtx.RecentDeployments, *d)
	}

	alertCtx.SimilarIncidents = e.similarIncidents(ctx, project, issue, alert)
	alertCtx.SuggestedFixes = e.suggestedFixes(rule, alert, alertCtx.RecentDeployments)
	alertCtx.WhyItMatters = e.whyItMatters(alert)
	alertCtx.NextSteps = e.nextSteps(rule, alert, alertCtx)

	alert.Context = alertCtx
}

func (e *ContextEnricher) similarIncidents(ctx context.Context, project *domain.Project, issue *domain.Issue, alert *domain.AlertPayload) []domain.IncidentRef {
	refs := []domain.IncidentRef{}

	var excludeID uuid.UUID
	environment := ""
	if issue != nil {
		excludeID = issue.ID
		environment = issue.Environment
	} else if len(alert.Environments) > 0 {
		environment = alert.Environments[0]
	}

	if alert.Fingerprint != "" {
		if match, err := e.issues.GetByFingerprint(ctx, project.ID, alert.Fingerprint); err == nil && match != nil && match.ID != excludeID {
			refs = append(refs, issueToIncident(match))
		}
	}

	similar, err := e.issues.FindSimilar(ctx, project.ID, excludeID, environment, 3)
	if err != nil {
		e.logger.Debug("similar issue lookup failed during enrichment", zap.Error(err))
		return refs
	}
	for _, match := range similar {
		if len(refs) >= 3 {
			break
		}
		refs = append(refs, issueToIncident(match))
	}
	return refs
}

func issueToIncident(issue *domain.Issue) domain.IncidentRef {
	return domain.IncidentRef{
		ID:          issue.ID,
		Message:     issue.Message,
		Environment: issue.Environment,
		Count:       issue.Count,
		LastSeen:    issue.LastSeen,
		Status:      issue.Status,
	}
}

func (e *ContextEnricher) suggestedFixes(rule *domain.AlertRule, alert *domain.AlertPayload, deployments []domain.Deployment) []string {
	fixes := []string{}

	for _, d := range deployments {
		fixes = append(fixes, fmt.Sprintf("Review deployment %s from %s for regressions.", d.Version, d.Timestamp.Format(time.RFC3339)))
		break
	}

	switch rule.Type {
	case domain.RuleTypeThreshold:
		fixes = append(fixes, "Check for a shared upstream failure; the error volume crossed the configured threshold.")
	case domain.RuleTypeSpike:
		fixes = append(fixes, "Compare current traffic and release timing against the baseline window.")
	case domain.RuleTypeNewError:
		fixes = append(fixes, "Inspect the newest code paths; this fingerprint has not been seen before.")
	case domain.RuleTypeCritical:
		fixes = append(fixes, "Page the on-call owner; this matched a critical condition.")
	}

	if extra, ok := alert.Metadata.Extra["source_file"].(string); ok && extra != "" {
		fixes = append(fixes, fmt.Sprintf("Start from %s, the first frame of the stack trace.", extra))
	}

	return fixes
}

func (e *ContextEnricher) whyItMatters(alert *domain.AlertPayload) string {
	env := "unknown environments"
	if len(alert.Environments) > 0 {
		env = strings.Join(alert.Environments, ", ")
	}
	return fmt.Sprintf("A %s severity alert affecting %d users across %d occurrences in %s.",
		alert.Severity, alert.AffectedUsers, alert.Occurrences, env)
}

func (e *ContextEnricher) nextSteps(rule *domain.AlertRule, alert *domain.AlertPayload, alertCtx *domain.AlertContext) []string {
	steps := []string{"Open the issue from the alert link and inspect the latest stack trace."}

	if len(alertCtx.RecentDeployments) > 0 {
		steps = append(steps, "Correlate the first occurrence with the most recent deployment.")
	}
	if len(alertCtx.SimilarIncidents) > 0 {
		steps = append(steps, "Check similar incidents for an existing diagnosis or owner.")
	}
	if rule.Type == domain.RuleTypeSpike {
		steps = append(steps, "Verify whether traffic growth explains the rate increase before rolling back.")
	}
	if alert.Severity == domain.SeverityCritical {
		steps = append(steps, "Acknowledge the alert once someone owns the investigation.")
	}
	steps = append(steps, "Resolve the issue when a fix is deployed so escalations stop.")

	if len(steps) > 5 {
		steps = steps[:5]
	}
	return steps
}
