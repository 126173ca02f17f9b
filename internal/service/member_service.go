package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/postgres"
)

// MemberService serves the unsubscribe flow for alert emails
type MemberService struct {
	members *postgres.MemberRepository
	logger  *zap.Logger
}

// NewMemberService creates a member service
func NewMemberService(members *postgres.MemberRepository, logger *zap.Logger) *MemberService {
	return &MemberService{members: members, logger: logger}
}

// Unsubscribe resolves a token and switches the member's email mode to
// disabled. Idempotent; an unknown token returns domain.ErrNotFound.
func (s *MemberService) Unsubscribe(ctx context.Context, token string) (*domain.TeamMember, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	member, err := s.members.GetByUnsubscribeToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if member.AlertPreferences.Email.Mode != domain.EmailModeDisabled {
		member.AlertPreferences.Email.Mode = domain.EmailModeDisabled
		if err := s.members.UpdatePreferences(ctx, member.ID, member.AlertPreferences); err != nil {
			return nil, err
		}
		s.logger.Info("member unsubscribed from alert emails",
			zap.String("member_id", member.ID.String()),
			zap.String("project_id", member.ProjectID.String()),
		)
	}
	return member, nil
}
