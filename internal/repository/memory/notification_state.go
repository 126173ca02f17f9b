package memory

import (
	"context"
	"sync"

	"github.com/faultline/faultline/internal/domain"
)

// NotificationStateStore is the in-process notification state backend used
// when ALERT_STATE_DRIVER is "memory". State does not survive restarts.
type NotificationStateStore struct {
	mu          sync.Mutex
	cooldowns   map[string]domain.CooldownEntry
	escalations map[string]*domain.EscalationEntry
}

// NewNotificationStateStore creates an empty in-memory state store
func NewNotificationStateStore() *NotificationStateStore {
	return &NotificationStateStore{
		cooldowns:   make(map[string]domain.CooldownEntry),
		escalations: make(map[string]*domain.EscalationEntry),
	}
}

// SaveCooldown upserts one cooldown entry
func (s *NotificationStateStore) SaveCooldown(_ context.Context, entry domain.CooldownEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[entry.Key] = entry
	return nil
}

// ListCooldowns returns every cooldown entry
func (s *NotificationStateStore) ListCooldowns(_ context.Context) ([]domain.CooldownEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.CooldownEntry, 0, len(s.cooldowns))
	for _, e := range s.cooldowns {
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteCooldown removes one cooldown entry
func (s *NotificationStateStore) DeleteCooldown(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cooldowns, key)
	return nil
}

// SaveEscalation upserts one escalation entry keyed by alert ID
func (s *NotificationStateStore) SaveEscalation(_ context.Context, entry *domain.EscalationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalations[entry.ID] = entry
	return nil
}

// ListEscalations returns every escalation entry
func (s *NotificationStateStore) ListEscalations(_ context.Context) ([]*domain.EscalationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*domain.EscalationEntry, 0, len(s.escalations))
	for _, e := range s.escalations {
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteEscalation removes one escalation entry
func (s *NotificationStateStore) DeleteEscalation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.escalations, id)
	return nil
}
