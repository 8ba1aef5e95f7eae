package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"stockwatch/internal/clock"
	"stockwatch/internal/model"
)

type fakeItemSource struct {
	items []model.Item
}

func (f *fakeItemSource) ListDueItems(context.Context, time.Time) ([]model.Item, error) {
	return f.items, nil
}

type fakePoller struct {
	mu      sync.Mutex
	polled  []uuid.UUID
	failFor uuid.UUID
}

func (f *fakePoller) Poll(_ context.Context, item model.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled = append(f.polled, item.ItemID)
	if item.ItemID == f.failFor {
		return errors.New("boom")
	}
	return nil
}

func (f *fakePoller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.polled)
}

func newTestScheduler(items []model.Item, poller Poller) *Scheduler {
	hostLocks := NewHostLockTable(func() rate.Limit { return rate.Inf })
	retry := NewRetryPolicy(time.Millisecond, 0, time.Minute, func(time.Duration) {}, func(error) model.ErrorKind { return model.ErrorKindConnect })
	return New(&fakeItemSource{items: items}, poller, hostLocks, retry, clock.Real{}, time.Hour, 4, time.Second)
}

func TestScheduler_DispatchDuePollsAllItemsEvenIfOneFails(t *testing.T) {
	failID := uuid.New()
	items := []model.Item{
		{ItemID: failID, URL: "https://a.example.com/x"},
		{ItemID: uuid.New(), URL: "https://b.example.com/y"},
		{ItemID: uuid.New(), URL: "https://c.example.com/z"},
	}
	poller := &fakePoller{failFor: failID}
	s := newTestScheduler(items, poller)

	s.dispatchDue(context.Background(), context.Background())

	require.Equal(t, 3, poller.count())
}

func TestScheduler_DispatchDueNoItemsIsNoop(t *testing.T) {
	poller := &fakePoller{}
	s := newTestScheduler(nil, poller)

	s.dispatchDue(context.Background(), context.Background())

	require.Equal(t, 0, poller.count())
}
