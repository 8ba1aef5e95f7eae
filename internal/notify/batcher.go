package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"stockwatch/internal/logger"
	"stockwatch/internal/model"
)

// BatcherConfig configures the flush cadence.
type BatcherConfig struct {
	// FlushInterval is how often pending transitions are aggregated and
	// dispatched (§4.8's NotificationAggregator window).
	FlushInterval time.Duration
}

// Dispatcher delivers a batch of pending events through the configured
// sinks, applying ledger gating per recipient.
type Dispatcher interface {
	SendBatch(ctx context.Context, events []model.PendingEvent) error
}

// Batcher aggregates PendingEvents in memory and flushes them to a
// Dispatcher on a ticker, adapted from the teacher's alert.Batcher.
// Pending events are never persisted (§3): a restart drops whatever hadn't
// flushed yet.
type Batcher struct {
	config     BatcherConfig
	events     []model.PendingEvent
	mu         sync.Mutex
	dispatcher Dispatcher
	stopChan   chan struct{}
	doneChan   chan struct{}
}

func NewBatcher(config BatcherConfig) *Batcher {
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Minute
	}
	return &Batcher{
		config:   config,
		events:   make([]model.PendingEvent, 0),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (b *Batcher) SetDispatcher(d Dispatcher) {
	b.dispatcher = d
}

// Start begins the flush loop in a background goroutine.
func (b *Batcher) Start(ctx context.Context) {
	log := logger.GetLogger(ctx)
	log.Info("notify: starting batcher", zap.Duration("flush_interval", b.config.FlushInterval))
	go b.flushLoop(ctx)
}

// Stop halts the flush loop and performs one final flush.
func (b *Batcher) Stop(ctx context.Context) error {
	close(b.stopChan)
	<-b.doneChan
	return b.Flush(ctx)
}

// Add enqueues a transition for the next flush.
func (b *Batcher) Add(event model.PendingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Flush dispatches everything queued so far.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return nil
	}
	events := b.events
	b.events = make([]model.PendingEvent, 0)
	b.mu.Unlock()

	log := logger.GetLogger(ctx)
	log.Info("notify: flushing batch", zap.Int("count", len(events)))

	if b.dispatcher == nil {
		log.Warn("notify: no dispatcher set, dropping batch")
		return nil
	}
	return b.dispatcher.SendBatch(ctx, events)
}

// Count returns the number of events queued for the next flush.
func (b *Batcher) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *Batcher) flushLoop(ctx context.Context) {
	defer close(b.doneChan)

	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	log := logger.GetLogger(ctx)
	for {
		select {
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				log.Error("notify: flush failed", zap.Error(err))
			}
		case <-b.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
