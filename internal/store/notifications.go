package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/model"
)

// RecordNotification appends one delivery to the ledger (§4.8). The ledger
// is append-only and is the source of truth for cooldown/daily-limit
// enforcement across restarts.
func (s *Store) RecordNotification(ctx context.Context, entry model.NotificationLedgerEntry) error {
	q := s.rebind(`INSERT INTO notification_history (id, item_id, recipient_id, sent_at, kind)
		VALUES ($1,$2,$3,$4,$5)`)
	_, err := s.db.ExecContext(ctx, q, uuid.New().String(), entry.ItemID.String(), entry.RecipientID,
		entry.SentAt.UTC().Format(timeLayout), string(entry.Kind))
	if err != nil {
		return fmt.Errorf("store: record notification: %w", err)
	}
	return nil
}

// LastNotification returns the most recent delivery for (itemID, recipientID),
// used by the cooldown check in the transition/notification pipeline (§4.8).
func (s *Store) LastNotification(ctx context.Context, itemID uuid.UUID, recipientID string) (model.NotificationLedgerEntry, error) {
	q := s.rebind(`SELECT item_id, recipient_id, sent_at, kind FROM notification_history
		WHERE item_id=$1 AND recipient_id=$2 ORDER BY sent_at DESC LIMIT 1`)
	row := s.db.QueryRowContext(ctx, q, itemID.String(), recipientID)

	var entry model.NotificationLedgerEntry
	var itemIDStr, sentAt, kind string
	err := row.Scan(&itemIDStr, &entry.RecipientID, &sentAt, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotificationLedgerEntry{}, ErrNotFound
	}
	if err != nil {
		return model.NotificationLedgerEntry{}, fmt.Errorf("store: last notification: %w", err)
	}
	entry.ItemID = uuid.MustParse(itemIDStr)
	entry.SentAt = parseTime(sentAt)
	entry.Kind = model.NotificationKind(kind)
	return entry, nil
}

// CountNotificationsSince counts deliveries to recipientID since windowStart,
// for the daily notification cap (§4.8).
func (s *Store) CountNotificationsSince(ctx context.Context, recipientID string, windowStart time.Time) (int, error) {
	q := s.rebind(`SELECT COUNT(*) FROM notification_history WHERE recipient_id=$1 AND sent_at >= $2`)
	var n int
	if err := s.db.QueryRowContext(ctx, q, recipientID, windowStart.UTC().Format(timeLayout)).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count notifications since: %w", err)
	}
	return n, nil
}
