package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/clock"
	"stockwatch/internal/model"
	"stockwatch/internal/store"
)

// Decision is the ledger's verdict for one candidate (item, recipient)
// delivery (§4.8, §8 scenarios 5-6).
type Decision int

const (
	// DecisionSend means the delivery should go out now.
	DecisionSend Decision = iota
	// DecisionSkipCooldown means a delivery to this recipient for this item
	// happened within cooldown_seconds; drop silently.
	DecisionSkipCooldown
	// DecisionSkipDailyLimit means the recipient is at its daily cap.
	DecisionSkipDailyLimit
	// DecisionDeferQuietHours means the recipient is in their quiet-hours
	// window; the event is not delivered now, and the dispatcher does not
	// re-queue it.
	DecisionDeferQuietHours
	// DecisionDropStale means the event is more than 24h old at evaluation
	// time.
	DecisionDropStale
	// DecisionSkipDisabled means the recipient has notifications turned off.
	DecisionSkipDisabled
)

const defaultCooldownSeconds = 600

// staleAge is the maximum age an event may reach before it is
// dropped instead of delivered (§8 scenario 6).
const staleAge = 24 * time.Hour

// Ledger gates deliveries against cooldown, daily limit and quiet hours,
// consulting the store's append-only notification_history table.
type Ledger struct {
	store *store.Store
	clock clock.Clock
}

func NewLedger(s *store.Store, clk clock.Clock) *Ledger {
	return &Ledger{store: s, clock: clk}
}

// Evaluate decides whether event should be delivered to recipient now,
// deferred, or dropped.
func (l *Ledger) Evaluate(ctx context.Context, event model.PendingEvent, recipient model.User) (Decision, error) {
	if l.clock.Since(event.DetectedAt) > staleAge {
		return DecisionDropStale, nil
	}

	if !recipient.NotificationsEnabled {
		return DecisionSkipDisabled, nil
	}

	cooldown := recipient.CooldownSeconds
	if cooldown <= 0 {
		cooldown = defaultCooldownSeconds
	}
	last, err := l.store.LastNotification(ctx, event.ItemID, recipient.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return DecisionSend, fmt.Errorf("ledger: last notification: %w", err)
	}
	if err == nil && l.clock.Since(last.SentAt) < time.Duration(cooldown)*time.Second {
		return DecisionSkipCooldown, nil
	}

	now := l.clock.Now()
	if recipient.QuietHours.Contains(now.Hour()) {
		return DecisionDeferQuietHours, nil
	}

	if recipient.DailyNotifyLimit > 0 {
		windowStart := now.Add(-24 * time.Hour)
		count, err := l.store.CountNotificationsSince(ctx, recipient.UserID, windowStart)
		if err != nil {
			return DecisionSend, fmt.Errorf("ledger: count notifications: %w", err)
		}
		if count >= recipient.DailyNotifyLimit {
			return DecisionSkipDailyLimit, nil
		}
	}

	return DecisionSend, nil
}

// Record appends a successful or skipped delivery to the ledger.
func (l *Ledger) Record(ctx context.Context, itemID uuid.UUID, recipientID string, kind model.NotificationKind) error {
	return l.store.RecordNotification(ctx, model.NotificationLedgerEntry{
		ItemID:      itemID,
		RecipientID: recipientID,
		SentAt:      l.clock.Now(),
		Kind:        kind,
	})
}
