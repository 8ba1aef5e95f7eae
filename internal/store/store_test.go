package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockwatch/internal/clock"
	"stockwatch/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite://file::memory:?cache=shared", clock.Real{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	it := model.Item{
		ItemID:    uuid.New(),
		OwnerID:   "user-1",
		Name:      "Test VPS plan",
		URL:       "https://example.com/plan",
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateItem(ctx, it))

	got, err := s.GetItem(ctx, it.ItemID)
	require.NoError(t, err)
	require.Equal(t, it.OwnerID, got.OwnerID)
	require.Equal(t, it.URL, got.URL)
	require.True(t, got.Enabled)
}

func TestCreateItem_DuplicateURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	it := model.Item{ItemID: uuid.New(), OwnerID: "user-1", Name: "a", URL: "https://example.com/x", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateItem(ctx, it))

	dup := model.Item{ItemID: uuid.New(), OwnerID: "user-1", Name: "b", URL: "https://example.com/x", CreatedAt: time.Now().UTC()}
	err := s.CreateItem(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicateURL)
}

func TestListDueItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := model.Item{ItemID: uuid.New(), OwnerID: "u", Name: "due", URL: "https://a.example/1", Enabled: true, CreatedAt: now}
	notDue := model.Item{ItemID: uuid.New(), OwnerID: "u", Name: "fresh", URL: "https://a.example/2", Enabled: true, CreatedAt: now}
	require.NoError(t, s.CreateItem(ctx, due))
	require.NoError(t, s.CreateItem(ctx, notDue))
	require.NoError(t, s.RecordCheck(ctx, model.CheckRecord{
		CheckID: uuid.New(), ItemID: notDue.ItemID, CheckTime: now, Verdict: model.StatusAvailable, Confidence: 0.9,
	}))

	items, err := s.ListDueItems(ctx, now.Add(-time.Minute))
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, it := range items {
		ids = append(ids, it.ItemID)
	}
	require.Contains(t, ids, due.ItemID)
	require.NotContains(t, ids, notDue.ItemID)
}

func TestRecordCheckUpdatesItemSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	it := model.Item{ItemID: uuid.New(), OwnerID: "u", Name: "n", URL: "https://b.example/1", Enabled: true, CreatedAt: now}
	require.NoError(t, s.CreateItem(ctx, it))

	require.NoError(t, s.RecordCheck(ctx, model.CheckRecord{
		CheckID: uuid.New(), ItemID: it.ItemID, CheckTime: now, Verdict: model.StatusAvailable, Confidence: 0.8,
	}))

	got, err := s.GetItem(ctx, it.ItemID)
	require.NoError(t, err)
	require.Equal(t, it.LastStatus, got.LastStatus)
	require.Equal(t, 0, got.ConsecutiveErrorCount)

	require.NoError(t, s.RecordCheck(ctx, model.CheckRecord{
		CheckID: uuid.New(), ItemID: it.ItemID, CheckTime: now.Add(time.Minute), Verdict: model.StatusError, Confidence: 0,
	}))
	got, err = s.GetItem(ctx, it.ItemID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ConsecutiveErrorCount)

	history, err := s.RecentHistory(ctx, it.ItemID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestNotificationLedgerCooldown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	itemID := uuid.New()

	_, err := s.LastNotification(ctx, itemID, "user-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.RecordNotification(ctx, model.NotificationLedgerEntry{
		ItemID: itemID, RecipientID: "user-1", SentAt: now, Kind: model.KindRestock,
	}))

	entry, err := s.LastNotification(ctx, itemID, "user-1")
	require.NoError(t, err)
	require.Equal(t, model.KindRestock, entry.Kind)

	count, err := s.CountNotificationsSince(ctx, "user-1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
