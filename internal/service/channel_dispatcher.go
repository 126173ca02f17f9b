package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
)

// EmailSender delivers an alert to a set of recipient addresses. The channel
// dispatcher delegates email channels to it; everything else goes over HTTP.
type EmailSender interface {
	SendAlert(ctx context.Context, project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload, recipients []string) error
}

// ChannelResult is the per-channel delivery outcome
type ChannelResult struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Error  error  `json:"error,omitempty"`
}

// ChannelDispatcher fans one alert out to every configured channel in order.
// A failing channel never skips the remaining ones; each result is captured.
type ChannelDispatcher struct {
	httpClient   *http.Client
	email        EmailSender
	slackBreaker *CircuitBreaker
	logger       *zap.Logger
}

// NewChannelDispatcher creates a dispatcher with the given webhook timeout
func NewChannelDispatcher(email EmailSender, timeout time.Duration, logger *zap.Logger) *ChannelDispatcher {
	if timeout <= 0 {
		timeout = 7 * time.Second
	}
	return &ChannelDispatcher{
		httpClient:   &http.Client{Timeout: timeout},
		email:        email,
		slackBreaker: NewCircuitBreaker("slack", 5, 5*time.Minute, logger),
		logger:       logger,
	}
}

// Dispatch delivers the alert to each channel sequentially and returns the
// per-channel outcomes. It only errors as a whole when every channel failed.
func (d *ChannelDispatcher) Dispatch(ctx context.Context, project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload, channels []domain.ChannelRef) []ChannelResult {
	results := make([]ChannelResult, 0, len(channels))
	for _, channel := range channels {
		err := d.dispatchOne(ctx, project, rule, alert, channel)
		if err != nil {
			d.logger.Warn("channel delivery failed",
				zap.String("channel", channel.Type),
				zap.String("target", channel.Target),
				zap.String("rule_id", rule.ID.String()),
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
		results = append(results, ChannelResult{Type: channel.Type, Target: channel.Target, Error: err})
	}
	return results
}

// AllFailed reports whether every channel in the result set errored
func AllFailed(results []ChannelResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Error == nil {
			return false
		}
	}
	return true
}

func (d *ChannelDispatcher) dispatchOne(ctx context.Context, project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload, channel domain.ChannelRef) error {
	switch channel.Type {
	case domain.ChannelEmail:
		return d.email.SendAlert(ctx, project, rule, alert, []string{channel.Target})
	case domain.ChannelWebhook:
		return d.postJSON(ctx, channel.Target, d.webhookPayload(project, rule, alert))
	case domain.ChannelSlack:
		if err := d.slackBreaker.Allow(); err != nil {
			return err
		}
		err := d.postJSON(ctx, channel.Target, d.slackPayload(project, rule, alert))
		if err != nil {
			d.slackBreaker.RecordFailure()
			return err
		}
		d.slackBreaker.RecordSuccess()
		return nil
	case domain.ChannelDiscord:
		return d.postJSON(ctx, channel.Target, d.discordPayload(project, rule, alert))
	case domain.ChannelTeams:
		return d.postJSON(ctx, channel.Target, d.teamsPayload(project, rule, alert))
	default:
		return fmt.Errorf("unsupported channel type %q", channel.Type)
	}
}

func (d *ChannelDispatcher) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *ChannelDispatcher) webhookPayload(project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload) map[string]any {
	return map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"project":   map[string]any{"id": project.ID, "name": project.Name},
		"rule":      map[string]any{"id": rule.ID, "name": rule.Name, "type": rule.Type},
		"alert":     alert,
		"links":     alert.Links,
	}
}

func (d *ChannelDispatcher) slackPayload(project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload) map[string]any {
	blocks := []map[string]any{
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*%s*\n%s", alert.Title, alert.Summary),
			},
		},
		{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("Project: *%s* | Rule: *%s*", project.Name, rule.Name)},
			},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Severity*\n%s", alert.Severity)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Environment*\n%s", environmentLabel(alert))},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Occurrences*\n%d", alert.Occurrences)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Affected users*\n%d", alert.AffectedUsers)},
			},
		},
	}

	if alert.Context != nil {
		if alert.Context.WhyItMatters != "" {
			blocks = append(blocks, map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": "*Why this matters*\n" + alert.Context.WhyItMatters},
			})
		}
		if len(alert.Context.RecentDeployments) > 0 {
			var lines []string
			for _, dep := range alert.Context.RecentDeployments {
				lines = append(lines, fmt.Sprintf("• %s (%s) at %s", dep.Version, dep.Environment, dep.Timestamp.Format(time.RFC3339)))
			}
			blocks = append(blocks, map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": "*Recent deployments*\n" + strings.Join(lines, "\n")},
			})
		}
		if len(alert.Context.SimilarIncidents) > 0 {
			var lines []string
			for _, inc := range alert.Context.SimilarIncidents {
				lines = append(lines, fmt.Sprintf("• %s (%s, %d occurrences)", inc.Message, inc.Environment, inc.Count))
			}
			blocks = append(blocks, map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": "*Similar incidents*\n" + strings.Join(lines, "\n")},
			})
		}
		if len(alert.Context.NextSteps) > 0 {
			var lines []string
			for i, step := range alert.Context.NextSteps {
				lines = append(lines, fmt.Sprintf("%d. %s", i+1, step))
			}
			blocks = append(blocks, map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": "*Next steps*\n" + strings.Join(lines, "\n")},
			})
		}
	}

	actions := []map[string]any{}
	if alert.Links.Dashboard != "" {
		actions = append(actions, map[string]any{
			"type":  "button",
			"style": "primary",
			"text":  map[string]any{"type": "plain_text", "text": "View Error"},
			"url":   alert.Links.Dashboard,
		})
	}
	if alert.Links.Acknowledge != "" {
		actions = append(actions, map[string]any{
			"type": "button",
			"text": map[string]any{"type": "plain_text", "text": "Acknowledge"},
			"url":  alert.Links.Acknowledge,
		})
	}
	if len(actions) > 0 {
		blocks = append(blocks, map[string]any{"type": "actions", "elements": actions})
	}

	return map[string]any{
		"text":   fmt.Sprintf("%s: %s", alert.Title, alert.Summary),
		"blocks": blocks,
	}
}

const discordFieldLimit = 1024

func (d *ChannelDispatcher) discordPayload(project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload) map[string]any {
	fields := []map[string]any{
		{"name": "Severity", "value": clampField(alert.Severity), "inline": true},
		{"name": "Environment", "value": clampField(environmentLabel(alert)), "inline": true},
		{"name": "Occurrences", "value": clampField(fmt.Sprintf("%d", alert.Occurrences)), "inline": true},
		{"name": "Affected users", "value": clampField(fmt.Sprintf("%d", alert.AffectedUsers)), "inline": true},
	}
	if alert.Context != nil && alert.Context.WhyItMatters != "" {
		fields = append(fields, map[string]any{
			"name": "Why this matters", "value": clampField(alert.Context.WhyItMatters), "inline": false,
		})
	}

	embed := map[string]any{
		"title":       alert.Title,
		"description": alert.Summary,
		"color":       0xff4d4f,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"footer":      map[string]any{"text": fmt.Sprintf("%s – %s", project.Name, rule.Name)},
		"fields":      fields,
	}
	if alert.Links.Dashboard != "" {
		embed["url"] = alert.Links.Dashboard
	}

	return map[string]any{"embeds": []map[string]any{embed}}
}

func (d *ChannelDispatcher) teamsPayload(project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload) map[string]any {
	card := map[string]any{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"summary":    alert.Title,
		"themeColor": "EA4C89",
		"title":      alert.Title,
		"sections": []map[string]any{
			{
				"activityTitle":    alert.Summary,
				"activitySubtitle": fmt.Sprintf("%s – %s", project.Name, rule.Name),
				"facts": []map[string]any{
					{"name": "Severity", "value": alert.Severity},
					{"name": "Environment", "value": environmentLabel(alert)},
					{"name": "Occurrences", "value": fmt.Sprintf("%d", alert.Occurrences)},
					{"name": "Affected users", "value": fmt.Sprintf("%d", alert.AffectedUsers)},
				},
			},
		},
	}
	if alert.Links.Dashboard != "" {
		card["potentialAction"] = []map[string]any{
			{
				"@type": "OpenUri",
				"name":  "View Error",
				"targets": []map[string]any{
					{"os": "default", "uri": alert.Links.Dashboard},
				},
			},
		}
	}
	return card
}

func environmentLabel(alert *domain.AlertPayload) string {
	if len(alert.Environments) == 0 {
		return "unknown"
	}
	return strings.Join(alert.Environments, ", ")
}

func clampField(value string) string {
	if len(value) <= discordFieldLimit {
		return value
	}
	return value[:discordFieldLimit]
}
