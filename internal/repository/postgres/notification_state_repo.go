package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faultline/faultline/internal/domain"
)

const (
	stateKindCooldown   = "cooldown"
	stateKindEscalation = "escalation"
)

// NotificationStateRepository persists notification engine state (cooldowns
// and in-flight escalations) as JSON documents so both survive restarts.
type NotificationStateRepository struct {
	db *pgxpool.Pool
}

// NewNotificationStateRepository creates a new notification state repository
func NewNotificationStateRepository(db *pgxpool.Pool) *NotificationStateRepository {
	return &NotificationStateRepository{db: db}
}

func (r *NotificationStateRepository) upsert(ctx context.Context, kind, key string, doc any) error {
	query := `
		INSERT INTO alert_state (kind, key, doc, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (kind, key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`
	if _, err := r.db.Exec(ctx, query, kind, key, doc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStateStore, err)
	}
	return nil
}

func (r *NotificationStateRepository) delete(ctx context.Context, kind, key string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM alert_state WHERE kind = $1 AND key = $2`, kind, key); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStateStore, err)
	}
	return nil
}

func (r *NotificationStateRepository) listDocs(ctx context.Context, kind string) ([][]byte, error) {
	var docs [][]byte
	query := `SELECT doc FROM alert_state WHERE kind = $1 ORDER BY key`
	if err := pgxscan.Select(ctx, r.db, &docs, query, kind); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStateStore, err)
	}
	return docs, nil
}

// SaveCooldown upserts one cooldown entry keyed by its dedup key
func (r *NotificationStateRepository) SaveCooldown(ctx context.Context, entry domain.CooldownEntry) error {
	return r.upsert(ctx, stateKindCooldown, entry.Key, entry)
}

// ListCooldowns returns every persisted cooldown entry
func (r *NotificationStateRepository) ListCooldowns(ctx context.Context) ([]domain.CooldownEntry, error) {
	docs, err := r.listDocs(ctx, stateKindCooldown)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.CooldownEntry, 0, len(docs))
	for _, doc := range docs {
		var e domain.CooldownEntry
		if err := json.Unmarshal(doc, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteCooldown removes one cooldown entry
func (r *NotificationStateRepository) DeleteCooldown(ctx context.Context, key string) error {
	return r.delete(ctx, stateKindCooldown, key)
}

// SaveEscalation upserts one escalation entry keyed by alert ID
func (r *NotificationStateRepository) SaveEscalation(ctx context.Context, entry *domain.EscalationEntry) error {
	return r.upsert(ctx, stateKindEscalation, entry.ID, entry)
}

// ListEscalations returns every persisted escalation entry. Documents that no
// longer unmarshal are deleted rather than returned.
func (r *NotificationStateRepository) ListEscalations(ctx context.Context) ([]*domain.EscalationEntry, error) {
	type row struct {
		Key string `db:"key"`
		Doc []byte `db:"doc"`
	}
	var rows []row
	query := `SELECT key, doc FROM alert_state WHERE kind = $1 ORDER BY key`
	if err := pgxscan.Select(ctx, r.db, &rows, query, stateKindEscalation); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStateStore, err)
	}
	entries := make([]*domain.EscalationEntry, 0, len(rows))
	for _, rw := range rows {
		var e domain.EscalationEntry
		if err := json.Unmarshal(rw.Doc, &e); err != nil || e.ID == "" {
			_ = r.delete(ctx, stateKindEscalation, rw.Key)
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// DeleteEscalation removes one escalation entry
func (r *NotificationStateRepository) DeleteEscalation(ctx context.Context, id string) error {
	return r.delete(ctx, stateKindEscalation, id)
}
