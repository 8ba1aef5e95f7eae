package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockwatch/internal/clock"
	"stockwatch/internal/model"
	"stockwatch/internal/notify/channel"
	"stockwatch/internal/pubsub"
	"stockwatch/internal/store"
)

// Config configures the notification aggregator (§4.8).
type Config struct {
	// FlushInterval is the aggregation-tick cadence.
	FlushInterval time.Duration
}

// Manager owns the Batcher/Dispatcher/Ledger triad end to end, adapted
// from the teacher's alert.Manager.
type Manager struct {
	batcher    *Batcher
	dispatcher *ChannelDispatcher
	log        *zap.Logger
}

// NewManager wires a Batcher to a ChannelDispatcher backed by store and
// clk, delivering through sinks. events may be nil, disabling published
// NotificationEvents.
func NewManager(cfg Config, s *store.Store, clk clock.Clock, sinks []channel.Sink, events pubsub.PubSub, log *zap.Logger) *Manager {
	ledger := NewLedger(s, clk)
	dispatcher := NewChannelDispatcher(s, ledger, sinks, events, log)
	batcher := NewBatcher(BatcherConfig{FlushInterval: cfg.FlushInterval})
	batcher.SetDispatcher(dispatcher)

	return &Manager{batcher: batcher, dispatcher: dispatcher, log: log}
}

// Start begins the aggregation flush loop.
func (m *Manager) Start(ctx context.Context) {
	m.log.Info("notify: starting manager")
	m.batcher.Start(ctx)
}

// Stop halts the flush loop, flushing whatever is queued.
func (m *Manager) Stop(ctx context.Context) error {
	m.log.Info("notify: stopping manager")
	return m.batcher.Stop(ctx)
}

// Enqueue adds a transition to the next aggregation tick.
func (m *Manager) Enqueue(event model.PendingEvent) {
	m.batcher.Add(event)
}

// NotifyAdminHealth delivers an immediate, unbatched admin_health alert.
func (m *Manager) NotifyAdminHealth(ctx context.Context, item model.Item, consecutiveErrors int) error {
	if err := m.dispatcher.SendAdminHealth(ctx, item, consecutiveErrors); err != nil {
		return fmt.Errorf("notify: admin health: %w", err)
	}
	return nil
}
