package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
)

// RuleStore is the alert rule persistence surface
type RuleStore interface {
	Create(ctx context.Context, rule *domain.AlertRule) error
	GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.AlertRule, error)
	List(ctx context.Context, projectID uuid.UUID) ([]*domain.AlertRule, error)
	Update(ctx context.Context, rule *domain.AlertRule) error
	Delete(ctx context.Context, projectID, id uuid.UUID) error
}

// RuleService validates and persists alert rules
type RuleService struct {
	rules  RuleStore
	logger *zap.Logger
}

// NewRuleService creates a rule service
func NewRuleService(rules RuleStore, logger *zap.Logger) *RuleService {
	return &RuleService{rules: rules, logger: logger}
}

// Create validates and stores a new rule
func (s *RuleService) Create(ctx context.Context, projectID uuid.UUID, rule *domain.AlertRule) (*domain.AlertRule, error) {
	rule.ID = uuid.New()
	rule.ProjectID = projectID
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt

	if err := validateRule(rule); err != nil {
		return nil, err
	}
	normalizeRule(rule)

	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Get returns one rule scoped to a project
func (s *RuleService) Get(ctx context.Context, projectID, id uuid.UUID) (*domain.AlertRule, error) {
	return s.rules.GetByID(ctx, projectID, id)
}

// List returns all rules of a project
func (s *RuleService) List(ctx context.Context, projectID uuid.UUID) ([]*domain.AlertRule, error) {
	return s.rules.List(ctx, projectID)
}

// Update validates and rewrites an existing rule
func (s *RuleService) Update(ctx context.Context, projectID, id uuid.UUID, rule *domain.AlertRule) (*domain.AlertRule, error) {
	existing, err := s.rules.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, err
	}

	rule.ID = existing.ID
	rule.ProjectID = projectID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	if err := validateRule(rule); err != nil {
		return nil, err
	}
	normalizeRule(rule)

	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes a rule
func (s *RuleService) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	return s.rules.Delete(ctx, projectID, id)
}

func validateRule(rule *domain.AlertRule) error {
	var errs domain.ValidationErrors

	if rule.Name == "" {
		errs = append(errs, domain.ValidationError{Field: "name", Message: "name is required"})
	}
	if rule.CooldownMinutes < 0 {
		errs = append(errs, domain.ValidationError{Field: "cooldown_minutes", Message: "must not be negative"})
	}

	cond := rule.Conditions
	switch rule.Type {
	case domain.RuleTypeThreshold:
		if cond.Threshold <= 0 {
			errs = append(errs, domain.ValidationError{Field: "conditions.threshold", Message: "must be positive"})
		}
		if cond.WindowMinutes <= 0 {
			errs = append(errs, domain.ValidationError{Field: "conditions.window_minutes", Message: "must be positive"})
		}
	case domain.RuleTypeSpike:
		if cond.IncreasePercent <= 0 {
			errs = append(errs, domain.ValidationError{Field: "conditions.increase_percent", Message: "must be positive"})
		}
		if cond.WindowMinutes <= 0 {
			errs = append(errs, domain.ValidationError{Field: "conditions.window_minutes", Message: "must be positive"})
		}
		if cond.BaselineMinutes <= 0 {
			errs = append(errs, domain.ValidationError{Field: "conditions.baseline_minutes", Message: "must be positive"})
		}
	case domain.RuleTypeNewError:
		// No conditions required.
	case domain.RuleTypeCritical:
		if cond.Severity == "" && len(cond.Fingerprints) == 0 {
			errs = append(errs, domain.ValidationError{Field: "conditions", Message: "critical rules need a severity or fingerprints"})
		}
	default:
		errs = append(errs, domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown rule type %q", rule.Type)})
	}

	if len(rule.Channels) == 0 {
		errs = append(errs, domain.ValidationError{Field: "channels", Message: "at least one channel is required"})
	}
	for i, ch := range rule.Channels {
		switch ch.Type {
		case domain.ChannelEmail, domain.ChannelWebhook, domain.ChannelSlack, domain.ChannelDiscord, domain.ChannelTeams:
		default:
			errs = append(errs, domain.ValidationError{
				Field:   fmt.Sprintf("channels[%d].type", i),
				Message: fmt.Sprintf("unknown channel type %q", ch.Type),
			})
		}
		if ch.Target == "" {
			errs = append(errs, domain.ValidationError{
				Field:   fmt.Sprintf("channels[%d].target", i),
				Message: "target is required",
			})
		}
	}

	if esc := rule.Escalation; esc != nil && esc.Enabled {
		for i, level := range esc.Levels {
			if level.AfterMinutes <= 0 {
				errs = append(errs, domain.ValidationError{
					Field:   fmt.Sprintf("escalation.levels[%d].after_minutes", i),
					Message: "must be positive",
				})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// normalizeRule keeps escalation levels sorted ascending by afterMinutes
func normalizeRule(rule *domain.AlertRule) {
	if rule.Escalation == nil {
		return
	}
	sort.SliceStable(rule.Escalation.Levels, func(i, j int) bool {
		return rule.Escalation.Levels[i].AfterMinutes < rule.Escalation.Levels[j].AfterMinutes
	})
}
