package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matcornic/hermes/v2"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/domain"
)

// MemberLookup resolves notification recipients to team members
type MemberLookup interface {
	GetByEmail(ctx context.Context, projectID uuid.UUID, email string) (*domain.TeamMember, error)
}

// DigestEnqueuer stores alerts routed away from immediate delivery
type DigestEnqueuer interface {
	Enqueue(ctx context.Context, entry *domain.DigestEntry) error
}

// EmailService renders and routes alert emails. Per recipient it honors the
// member's delivery mode and quiet hours: immediate, digest queue, or drop.
type EmailService struct {
	transport MailTransport
	members   MemberLookup
	digests   DigestEnqueuer
	cfg       config.EmailConfig
	product   hermes.Hermes
	logger    *zap.Logger
	now       func() time.Time
}

// NewEmailService creates the email pipeline entry point
func NewEmailService(transport MailTransport, members MemberLookup, digests DigestEnqueuer, cfg config.EmailConfig, logger *zap.Logger) *EmailService {
	return &EmailService{
		transport: transport,
		members:   members,
		digests:   digests,
		cfg:       cfg,
		product: hermes.Hermes{
			Product: hermes.Product{
				Name:      "Faultline",
				Copyright: "Faultline error monitoring",
			},
		},
		logger: logger,
		now:    time.Now,
	}
}

// SendAlert routes one alert to the given recipients. Recipients are
// deduplicated case-insensitively preserving first occurrence. Per-recipient
// failures are logged and do not abort the remaining recipients.
func (s *EmailService) SendAlert(ctx context.Context, project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload, recipients []string) error {
	var lastErr error
	for _, recipient := range dedupeRecipients(recipients) {
		if err := s.routeRecipient(ctx, project, rule, alert, recipient); err != nil {
			s.logger.Warn("email routing failed",
				zap.String("recipient", recipient),
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	return lastErr
}

func (s *EmailService) routeRecipient(ctx context.Context, project *domain.Project, rule *domain.AlertRule, alert *domain.AlertPayload, recipient string) error {
	member, err := s.members.GetByEmail(ctx, project.ID, recipient)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	// Unknown addresses get immediate delivery with no preferences.
	if member == nil {
		return s.sendImmediate(ctx, project, alert, recipient, "")
	}

	prefs := member.AlertPreferences.Email
	switch {
	case prefs.Mode == domain.EmailModeDisabled:
		return nil
	case prefs.Mode == domain.EmailModeDigest || QuietHoursActive(prefs.QuietHours, s.now()):
		return s.digests.Enqueue(ctx, &domain.DigestEntry{
			ID:        uuid.New(),
			ProjectID: project.ID,
			MemberID:  member.ID,
			RuleID:    rule.ID,
			Alert:     alert.Clone(),
			CreatedAt: s.now(),
		})
	default:
		return s.sendImmediate(ctx, project, alert, recipient, member.UnsubscribeToken)
	}
}

func (s *EmailService) sendImmediate(ctx context.Context, project *domain.Project, alert *domain.AlertPayload, recipient, unsubscribeToken string) error {
	body := s.alertBody(project, alert, unsubscribeToken)
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Severity), alert.Title)

	htmlBody, err := s.product.GenerateHTML(body)
	if err != nil {
		return err
	}
	textBody, err := s.product.GeneratePlainText(body)
	if err != nil {
		return err
	}

	return s.transport.Send(ctx, s.cfg.FromName, s.cfg.FromAddress, recipient, subject, htmlBody, textBody)
}

func (s *EmailService) alertBody(project *domain.Project, alert *domain.AlertPayload, unsubscribeToken string) hermes.Email {
	dictionary := []hermes.Entry{
		{Key: "Project", Value: project.Name},
		{Key: "Severity", Value: alert.Severity},
		{Key: "Environment", Value: strings.Join(alert.Environments, ", ")},
		{Key: "Occurrences", Value: fmt.Sprintf("%d", alert.Occurrences)},
		{Key: "Affected users", Value: fmt.Sprintf("%d", alert.AffectedUsers)},
		{Key: "Last detected", Value: alert.LastDetectedAt.Format(time.RFC1123)},
	}

	intros := []string{alert.Title, alert.Summary}
	if alert.Context != nil && alert.Context.WhyItMatters != "" {
		intros = append(intros, alert.Context.WhyItMatters)
	}

	var actions []hermes.Action
	if alert.Links.Dashboard != "" {
		actions = append(actions, hermes.Action{
			Instructions: "Open the issue to inspect occurrences and stack traces:",
			Button: hermes.Button{
				Color: "#ff4d4f",
				Text:  "View Error",
				Link:  alert.Links.Dashboard,
			},
		})
	}
	if alert.Links.Acknowledge != "" {
		actions = append(actions, hermes.Action{
			Instructions: "Acknowledge to stop pending escalations:",
			Button: hermes.Button{
				Text: "Acknowledge",
				Link: alert.Links.Acknowledge,
			},
		})
	}

	var outros []string
	if alert.Context != nil && len(alert.Context.NextSteps) > 0 {
		outros = append(outros, "Suggested next steps: "+strings.Join(alert.Context.NextSteps, "; "))
	}
	if link := s.unsubscribeLink(unsubscribeToken); link != "" {
		outros = append(outros, "To stop receiving these alerts, unsubscribe: "+link)
	}

	return hermes.Email{
		Body: hermes.Body{
			Intros:     intros,
			Dictionary: dictionary,
			Actions:    actions,
			Outros:     outros,
		},
	}
}

// SendDigest renders and delivers a batched digest of queued alerts
func (s *EmailService) SendDigest(ctx context.Context, project *domain.Project, member *domain.TeamMember, entries []*domain.DigestEntry) error {
	rows := make([][]hermes.Entry, 0, len(entries))
	for _, entry := range entries {
		alert := entry.Alert
		if alert == nil {
			continue
		}
		rows = append(rows, []hermes.Entry{
			{Key: "Alert", Value: alert.Title},
			{Key: "Severity", Value: alert.Severity},
			{Key: "Environment", Value: strings.Join(alert.Environments, ", ")},
			{Key: "Queued at", Value: entry.CreatedAt.Format(time.RFC1123)},
		})
	}

	outros := []string{}
	if link := s.unsubscribeLink(member.UnsubscribeToken); link != "" {
		outros = append(outros, "To stop receiving these digests, unsubscribe: "+link)
	}

	body := hermes.Email{
		Body: hermes.Body{
			Intros: []string{
				fmt.Sprintf("Here is your alert digest for %s: %d alerts since your last digest.", project.Name, len(rows)),
			},
			Table:  hermes.Table{Data: rows},
			Outros: outros,
		},
	}

	subject := fmt.Sprintf("[Faultline] %s digest: %d alerts", project.Name, len(rows))

	htmlBody, err := s.product.GenerateHTML(body)
	if err != nil {
		return err
	}
	textBody, err := s.product.GeneratePlainText(body)
	if err != nil {
		return err
	}

	return s.transport.Send(ctx, s.cfg.FromName, s.cfg.FromAddress, member.Email, subject, htmlBody, textBody)
}

func (s *EmailService) unsubscribeLink(token string) string {
	if token == "" || s.cfg.UnsubscribeBaseURL == "" {
		return ""
	}
	return s.cfg.UnsubscribeBaseURL + "?token=" + url.QueryEscape(token)
}

// dedupeRecipients removes duplicate addresses case-insensitively while
// preserving first occurrence order.
func dedupeRecipients(recipients []string) []string {
	seen := make(map[string]bool, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		key := strings.ToLower(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// QuietHoursActive reports whether now falls inside the recipient's
// do-not-disturb window. An unparseable timezone falls back to UTC; equal
// start and end means the window is inactive.
func QuietHoursActive(q domain.QuietHours, now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, okStart := parseMinuteOfDay(q.Start)
	end, okEnd := parseMinuteOfDay(q.End)
	if !okStart || !okEnd || start == end {
		return false
	}

	loc, err := time.LoadLocation(q.Timezone)
	if err != nil || q.Timezone == "" {
		loc = time.UTC
	}
	local := now.In(loc)
	current := local.Hour()*60 + local.Minute()

	if start < end {
		return current >= start && current < end
	}
	// Window spans midnight.
	return current >= start || current < end
}

func parseMinuteOfDay(value string) (int, bool) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
