package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/model"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	calls [][]model.PendingEvent
}

func (f *fakeDispatcher) SendBatch(_ context.Context, events []model.PendingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, events)
	return nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestBatcher_FlushSendsQueuedEventsAndClears(t *testing.T) {
	b := NewBatcher(BatcherConfig{FlushInterval: time.Hour})
	fd := &fakeDispatcher{}
	b.SetDispatcher(fd)

	b.Add(model.PendingEvent{ItemID: uuid.New(), Kind: model.KindRestock})
	b.Add(model.PendingEvent{ItemID: uuid.New(), Kind: model.KindOutage})
	require.Equal(t, 2, b.Count())

	require.NoError(t, b.Flush(context.Background()))
	require.Equal(t, 0, b.Count())
	require.Equal(t, 1, fd.callCount())
}

func TestBatcher_FlushWithNothingQueuedIsNoop(t *testing.T) {
	b := NewBatcher(BatcherConfig{FlushInterval: time.Hour})
	fd := &fakeDispatcher{}
	b.SetDispatcher(fd)

	require.NoError(t, b.Flush(context.Background()))
	require.Equal(t, 0, fd.callCount())
}

func TestBatcher_StartStopFlushesRemaining(t *testing.T) {
	b := NewBatcher(BatcherConfig{FlushInterval: time.Hour})
	fd := &fakeDispatcher{}
	b.SetDispatcher(fd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	b.Add(model.PendingEvent{ItemID: uuid.New(), Kind: model.KindRestock})
	require.NoError(t, b.Stop(context.Background()))
	require.Equal(t, 1, fd.callCount())
}
