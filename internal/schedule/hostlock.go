package schedule

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLockTable serialises polls against the same host and paces them at
// no more than one request per minDelay, merging the spec's separately
// described "host-lock" and "per-host min-delay" invariants into a single
// shared structure (§4.6, §5, §9).
type HostLockTable struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	limiters map[string]*rate.Limiter
	minDelay func() rate.Limit
}

// NewHostLockTable builds a table whose rate limiters use the given
// per-host minimum delay between requests.
func NewHostLockTable(minDelaySeconds func() rate.Limit) *HostLockTable {
	return &HostLockTable{
		gates:    make(map[string]chan struct{}),
		limiters: make(map[string]*rate.Limiter),
		minDelay: minDelaySeconds,
	}
}

// Acquire blocks until it is this caller's turn to poll targetURL's host:
// first the exclusive per-host gate, then the shared rate limiter. It
// returns a release func that must be called exactly once to free the gate
// for the next waiter.
func (t *HostLockTable) Acquire(ctx context.Context, targetURL string) (release func(), err error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("hostlock: parse url: %w", err)
	}
	host := u.Hostname()

	gate := t.gateFor(host)
	select {
	case gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	limiter := t.limiterFor(host)
	if err := limiter.Wait(ctx); err != nil {
		<-gate
		return nil, err
	}

	return func() { <-gate }, nil
}

func (t *HostLockTable) gateFor(host string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.gates[host]
	if !ok {
		g = make(chan struct{}, 1)
		t.gates[host] = g
	}
	return g
}

func (t *HostLockTable) limiterFor(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(t.minDelay(), 1)
		t.limiters[host] = l
	}
	return l
}
