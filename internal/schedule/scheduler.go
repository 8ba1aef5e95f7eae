// Package schedule drives the due-set polling loop: a ticker refreshes the
// set of items due for a check, and a bounded worker pool polls them,
// respecting per-host pacing and the process-wide shutdown grace period
// (§4.6, §5).
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockwatch/internal/clock"
	"stockwatch/internal/logger"
	"stockwatch/internal/model"
)

// Poller performs one end-to-end item check: fetch, detect, fuse, evaluate
// transition, record. The scheduler only owns pacing and concurrency; the
// poll itself is injected so the scheduler stays independently testable.
type Poller interface {
	Poll(ctx context.Context, item model.Item) error
}

// Scheduler is the single-process, non-clustered poll loop of §5: "parallel
// workers inside one process; no clustering".
type Scheduler struct {
	items         ItemSource
	poller        Poller
	hostLocks     *HostLockTable
	retry         *RetryPolicy
	clock         clock.Clock
	tickInterval  time.Duration
	maxWorkers    int
	shutdownGrace time.Duration
}

// ItemSource abstracts the store's due-set query so the scheduler doesn't
// import internal/store directly.
type ItemSource interface {
	ListDueItems(ctx context.Context, since time.Time) ([]model.Item, error)
}

func New(items ItemSource, poller Poller, hostLocks *HostLockTable, retry *RetryPolicy, clk clock.Clock, tickInterval time.Duration, maxWorkers int, shutdownGrace time.Duration) *Scheduler {
	return &Scheduler{
		items:         items,
		poller:        poller,
		hostLocks:     hostLocks,
		retry:         retry,
		clock:         clk,
		tickInterval:  tickInterval,
		maxWorkers:    maxWorkers,
		shutdownGrace: shutdownGrace,
	}
}

// Run drives the due-set refresh/dispatch loop until ctx is cancelled. On
// cancellation it lets the in-flight tick's grace context run for up to
// shutdownGrace before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logger.GetLogger(ctx)
	log.Info("scheduler: starting", zap.Duration("tick_interval", s.tickInterval), zap.Int("max_workers", s.maxWorkers))

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.dispatchDue(ctx, ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler: shutting down", zap.Duration("grace", s.shutdownGrace))
			return nil
		case <-ticker.C:
			// Workers get shutdownGrace beyond the parent's cancellation to
			// finish an in-flight poll cleanly, rather than being cut off
			// the instant ctx is cancelled (§4.6 shutdown grace).
			graceCtx, cancel := context.WithTimeout(context.Background(), s.tickInterval+s.shutdownGrace)
			s.dispatchDue(ctx, graceCtx)
			cancel()
		}
	}
}

// dispatchDue fetches the current due set (using listCtx, so cancellation
// aborts the query promptly) and fans polling out across a bounded
// errgroup derived from workCtx, serialized per host by HostLockTable.
//
// One item's failure must never abort its siblings' polls within the same
// tick, so every worker always returns nil to the group and its real error
// is collected separately into a multierror for the end-of-tick summary.
func (s *Scheduler) dispatchDue(listCtx, workCtx context.Context) {
	log := logger.GetLogger(listCtx)

	due, err := s.items.ListDueItems(listCtx, s.clock.Now())
	if err != nil {
		log.Error("scheduler: failed to list due items", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(workCtx)
	g.SetLimit(s.maxWorkers)

	var mu sync.Mutex
	var errs *multierror.Error

	for _, item := range due {
		item := item
		g.Go(func() error {
			if err := s.pollOne(gctx, item); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		log.Warn("scheduler: one or more polls failed", zap.Int("due_count", len(due)), zap.Error(err))
	}
}

// pollOne acquires the item's host lock (serializing all polls against the
// same host), then runs the poll with retry/backoff for transient errors.
func (s *Scheduler) pollOne(ctx context.Context, item model.Item) error {
	release, err := s.hostLocks.Acquire(ctx, item.URL)
	if err != nil {
		return err
	}
	defer release()

	return s.retry.Do(ctx, item, func() error {
		return s.poller.Poll(ctx, item)
	})
}
