package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockwatch/internal/model"
)

func TestRetryPolicy_RetriesTransientThenSucceeds(t *testing.T) {
	var slept []time.Duration
	calls := 0
	p := NewRetryPolicy(10*time.Millisecond, 3, time.Minute,
		func(d time.Duration) { slept = append(slept, d) },
		func(error) model.ErrorKind { return model.ErrorKindTimeout })

	err := p.Do(context.Background(), model.Item{}, func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 sleeps between 3 calls, got %d", len(slept))
	}
}

func TestRetryPolicy_BlockedDoesNotRetry(t *testing.T) {
	calls := 0
	p := NewRetryPolicy(10*time.Millisecond, 3, time.Minute,
		func(time.Duration) {},
		func(error) model.ErrorKind { return model.ErrorKindBlocked })

	err := p.Do(context.Background(), model.Item{}, func() error {
		calls++
		return errors.New("blocked")
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for blocked error, got %d", calls)
	}
}

func TestRetryPolicy_ExhaustsMaxRetries(t *testing.T) {
	calls := 0
	p := NewRetryPolicy(time.Millisecond, 2, time.Minute,
		func(time.Duration) {},
		func(error) model.ErrorKind { return model.ErrorKindConnect })

	err := p.Do(context.Background(), model.Item{}, func() error {
		calls++
		return errors.New("still failing")
	})
	if err == nil {
		t.Fatal("expected final error to propagate")
	}
	if calls != 3 {
		t.Fatalf("expected max_retries+1=3 calls, got %d", calls)
	}
}
