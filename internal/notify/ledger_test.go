package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockwatch/internal/clock"
	"stockwatch/internal/model"
	"stockwatch/internal/store"
)

func newTestStoreForNotify(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite://file::memory:?cache=shared", clock.Real{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLedger_CooldownSkipsSecondDelivery(t *testing.T) {
	s := newTestStoreForNotify(t)
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	ledger := NewLedger(s, clk)

	itemID := uuid.New()
	recipient := model.User{UserID: "user-1", NotificationsEnabled: true, CooldownSeconds: 600}
	event := model.PendingEvent{ItemID: itemID, DetectedAt: clk.Now(), Kind: model.KindRestock}

	decision, err := ledger.Evaluate(ctx, event, recipient)
	require.NoError(t, err)
	require.Equal(t, DecisionSend, decision)
	require.NoError(t, ledger.Record(ctx, itemID, recipient.UserID, model.KindRestock))

	clk.Advance(5 * time.Minute)
	decision, err = ledger.Evaluate(ctx, event, recipient)
	require.NoError(t, err)
	require.Equal(t, DecisionSkipCooldown, decision)

	clk.Advance(6 * time.Minute)
	decision, err = ledger.Evaluate(ctx, event, recipient)
	require.NoError(t, err)
	require.Equal(t, DecisionSend, decision)
}

func TestLedger_DailyLimitSkipsOnceCapReached(t *testing.T) {
	s := newTestStoreForNotify(t)
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	ledger := NewLedger(s, clk)

	recipient := model.User{UserID: "user-2", NotificationsEnabled: true, CooldownSeconds: 1, DailyNotifyLimit: 2}

	for i := 0; i < 2; i++ {
		itemID := uuid.New()
		event := model.PendingEvent{ItemID: itemID, DetectedAt: clk.Now(), Kind: model.KindRestock}
		decision, err := ledger.Evaluate(ctx, event, recipient)
		require.NoError(t, err)
		require.Equal(t, DecisionSend, decision)
		require.NoError(t, ledger.Record(ctx, itemID, recipient.UserID, model.KindRestock))
		clk.Advance(time.Second)
	}

	itemID := uuid.New()
	event := model.PendingEvent{ItemID: itemID, DetectedAt: clk.Now(), Kind: model.KindRestock}
	decision, err := ledger.Evaluate(ctx, event, recipient)
	require.NoError(t, err)
	require.Equal(t, DecisionSkipDailyLimit, decision)
}

func TestLedger_QuietHoursDefersThenStaleAfter24h(t *testing.T) {
	s := newTestStoreForNotify(t)
	ctx := context.Background()
	// 02:00 local, inside a 23->7 quiet window.
	clk := clock.NewFake(time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC))
	ledger := NewLedger(s, clk)

	recipient := model.User{
		UserID:               "user-3",
		NotificationsEnabled: true,
		QuietHours:           model.QuietHours{StartHour: 23, EndHour: 7},
	}
	detectedAt := clk.Now()
	event := model.PendingEvent{ItemID: uuid.New(), DetectedAt: detectedAt, Kind: model.KindRestock}

	decision, err := ledger.Evaluate(ctx, event, recipient)
	require.NoError(t, err)
	require.Equal(t, DecisionDeferQuietHours, decision)

	clk.Advance(25 * time.Hour)
	decision, err = ledger.Evaluate(ctx, event, recipient)
	require.NoError(t, err)
	require.Equal(t, DecisionDropStale, decision)
}

func TestLedger_DisabledRecipientSkipped(t *testing.T) {
	s := newTestStoreForNotify(t)
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	ledger := NewLedger(s, clk)

	recipient := model.User{UserID: "user-4", NotificationsEnabled: false}
	event := model.PendingEvent{ItemID: uuid.New(), DetectedAt: clk.Now(), Kind: model.KindRestock}

	decision, err := ledger.Evaluate(ctx, event, recipient)
	require.NoError(t, err)
	require.Equal(t, DecisionSkipDisabled, decision)
}
