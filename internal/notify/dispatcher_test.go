package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockwatch/internal/clock"
	"stockwatch/internal/model"
	"stockwatch/internal/notify/channel"
	"stockwatch/internal/pubsub"
)

type fakeSink struct {
	mu   sync.Mutex
	sent []channel.Message
}

func (f *fakeSink) Type() channel.SinkType { return channel.SinkTypeEmail }

func (f *fakeSink) Send(_ context.Context, msg channel.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSink) Test(context.Context, string) error { return nil }

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestChannelDispatcher_SendBatchDeliversToAdminAndOwnerOnce(t *testing.T) {
	s := newTestStoreForNotify(t)
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: "admin-1", IsAdmin: true, NotificationsEnabled: true, CooldownSeconds: 600}))
	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: "owner-1", NotificationsEnabled: true, CooldownSeconds: 600}))

	item := model.Item{
		ItemID:    uuid.New(),
		OwnerID:   "owner-1",
		Name:      "Test VPS",
		URL:       "https://example.com/vps",
		Enabled:   true,
		CreatedAt: clk.Now(),
	}
	require.NoError(t, s.CreateItem(ctx, item))

	sink := &fakeSink{}
	ledger := NewLedger(s, clk)
	d := NewChannelDispatcher(s, ledger, []channel.Sink{sink}, pubsub.NewMemoryPubSub(), zap.NewNop())

	events := []model.PendingEvent{{
		ItemID:     item.ItemID,
		DetectedAt: clk.Now(),
		FromStatus: model.StatusUnavailable,
		ToStatus:   model.StatusAvailable,
		Confidence: 0.9,
		Kind:       model.KindRestock,
	}}

	require.NoError(t, d.SendBatch(ctx, events))
	require.Equal(t, 2, sink.count()) // one admin digest + one owner message

	// A second batch within cooldown delivers nothing further.
	clk.Advance(time.Minute)
	require.NoError(t, d.SendBatch(ctx, events))
	require.Equal(t, 2, sink.count())
}

func TestChannelDispatcher_SendAdminHealthBypassesBatcher(t *testing.T) {
	s := newTestStoreForNotify(t)
	ctx := context.Background()
	clk := clock.NewFake(time.Now())

	require.NoError(t, s.UpsertUser(ctx, model.User{UserID: "admin-2", IsAdmin: true, NotificationsEnabled: true}))

	item := model.Item{ItemID: uuid.New(), OwnerID: "owner-2", Name: "Flaky VPS", URL: "https://example.com/flaky", Enabled: true, CreatedAt: clk.Now()}
	require.NoError(t, s.CreateItem(ctx, item))

	sink := &fakeSink{}
	ledger := NewLedger(s, clk)
	d := NewChannelDispatcher(s, ledger, []channel.Sink{sink}, pubsub.NewMemoryPubSub(), zap.NewNop())

	require.NoError(t, d.SendAdminHealth(ctx, item, 5))
	require.Equal(t, 1, sink.count())
}
