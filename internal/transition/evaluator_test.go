package transition

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/clock"
	"stockwatch/internal/model"
)

func TestEvaluate_HighConfidenceRestockCommitsImmediately(t *testing.T) {
	e := New(0.6, 10, clock.NewFake(time.Now()))
	itemID := uuid.New()

	d := e.Evaluate(itemID, model.StatusUnavailable, 0, model.StatusAvailable, 0.8)
	if !d.Transitioned || d.ToStatus != model.StatusAvailable || d.Kind != model.KindRestock {
		t.Fatalf("expected immediate restock, got %+v", d)
	}
}

func TestEvaluate_LowConfidenceRestockNeedsCorroboration(t *testing.T) {
	e := New(0.6, 10, clock.NewFake(time.Now()))
	itemID := uuid.New()

	d := e.Evaluate(itemID, model.StatusUnavailable, 0, model.StatusAvailable, 0.65)
	if d.Transitioned {
		t.Fatalf("expected held pending flip, got immediate transition: %+v", d)
	}

	d = e.Evaluate(itemID, model.StatusUnavailable, 0, model.StatusAvailable, 0.65)
	if !d.Transitioned || d.ToStatus != model.StatusAvailable {
		t.Fatalf("expected corroborated restock to commit, got %+v", d)
	}
}

func TestEvaluate_BelowThresholdNeverCommits(t *testing.T) {
	e := New(0.6, 10, clock.NewFake(time.Now()))
	itemID := uuid.New()

	for i := 0; i < 3; i++ {
		d := e.Evaluate(itemID, model.StatusUnavailable, 0, model.StatusAvailable, 0.5)
		if d.Transitioned {
			t.Fatalf("did not expect transition below threshold, got %+v", d)
		}
	}
}

func TestEvaluate_OutageNeedsTwoOfLastThree(t *testing.T) {
	e := New(0.6, 10, clock.NewFake(time.Now()))
	itemID := uuid.New()

	d := e.Evaluate(itemID, model.StatusAvailable, 0, model.StatusUnavailable, 0.7)
	if d.Transitioned {
		t.Fatalf("single unavailable reading should not trigger outage, got %+v", d)
	}

	d = e.Evaluate(itemID, model.StatusAvailable, 0, model.StatusUnavailable, 0.7)
	if !d.Transitioned || d.Kind != model.KindOutage {
		t.Fatalf("expected outage after second unavailable reading, got %+v", d)
	}
}

func TestEvaluate_ErrorThresholdTriggersAdminHealth(t *testing.T) {
	e := New(0.6, 3, clock.NewFake(time.Now()))
	itemID := uuid.New()

	d := e.Evaluate(itemID, model.StatusAvailable, 3, model.StatusError, 0)
	if !d.Transitioned || d.Kind != model.KindAdminHealth {
		t.Fatalf("expected admin_health transition at error threshold, got %+v", d)
	}
}
