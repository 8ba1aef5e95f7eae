// Package transition implements the decision table and hysteresis rule that
// turn a single fused detector verdict into a (possibly deferred) status
// transition (§4.7).
package transition

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/clock"
	"stockwatch/internal/model"
)

// historySize is how many prior verdicts the "two-of-last-three" and
// "corroborated by previous k-1" rules look back over.
const historySize = 3

// pendingFlip records a single "available" reading held back from becoming
// the committed status until it is corroborated by the next tick or its
// confidence clears the hysteresis bar (§4.7, §8 "Hysteresis").
type pendingFlip struct {
	toStatus   model.Status
	confidence float64
	detectedAt time.Time
}

// Evaluator holds per-item recent-verdict history and any pending flip, so
// Evaluate can apply hysteresis across calls. All state is in-memory only:
// nothing loads it from the store, so after a restart every item's verdict
// history and pending flip start empty.
type Evaluator struct {
	mu              sync.Mutex
	history         map[uuid.UUID][]model.Status
	pending         map[uuid.UUID]pendingFlip
	confThreshold   float64
	errorThreshold  int
	clock           clock.Clock
}

func New(confidenceThreshold float64, errorThreshold int, clk clock.Clock) *Evaluator {
	return &Evaluator{
		history:        make(map[uuid.UUID][]model.Status),
		pending:        make(map[uuid.UUID]pendingFlip),
		confThreshold:  confidenceThreshold,
		errorThreshold: errorThreshold,
		clock:          clk,
	}
}

// Decision is the outcome of one Evaluate call: whether a transition fired,
// and if so, what notification kind it implies.
type Decision struct {
	Transitioned bool
	FromStatus   model.Status
	ToStatus     model.Status
	Kind         model.NotificationKind
}

// Evaluate applies the §4.7 decision table to one fused verdict, given the
// item's currently committed status and consecutive error count. It
// mutates the evaluator's per-item history/pending state.
func (e *Evaluator) Evaluate(itemID uuid.UUID, committed model.Status, consecutiveErrors int, verdict model.Status, confidence float64) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	hist := e.history[itemID]
	defer func() {
		hist = append(hist, verdict)
		if len(hist) > historySize {
			hist = hist[len(hist)-historySize:]
		}
		e.history[itemID] = hist
	}()

	if verdict == model.StatusError {
		if consecutiveErrors >= e.errorThreshold {
			return Decision{Transitioned: true, FromStatus: committed, ToStatus: model.StatusError, Kind: model.KindAdminHealth}
		}
		return Decision{}
	}

	switch committed {
	case model.StatusUnavailable, model.StatusUnknown:
		if verdict != model.StatusAvailable {
			delete(e.pending, itemID)
			return Decision{}
		}
		return e.evaluateRestock(itemID, committed, confidence, now, hist)

	case model.StatusAvailable:
		if verdict != model.StatusUnavailable || confidence < e.confThreshold {
			return Decision{}
		}
		if twoOfLastThreeUnavailable(hist, verdict) {
			return Decision{Transitioned: true, FromStatus: committed, ToStatus: model.StatusUnavailable, Kind: model.KindOutage}
		}
		return Decision{}

	default:
		return Decision{}
	}
}

// evaluateRestock implements the hysteresis rule from §4.7/§8: a single
// "available" reading only commits immediately if its confidence clears
// threshold+0.15; otherwise it is held as a pendingFlip and only commits
// once corroborated by the next tick's verdict.
func (e *Evaluator) evaluateRestock(itemID uuid.UUID, committed model.Status, confidence float64, now time.Time, hist []model.Status) Decision {
	if confidence < e.confThreshold {
		return Decision{}
	}

	if confidence >= e.confThreshold+0.15 {
		delete(e.pending, itemID)
		return Decision{Transitioned: true, FromStatus: committed, ToStatus: model.StatusAvailable, Kind: model.KindRestock}
	}

	if prior, ok := e.pending[itemID]; ok && prior.toStatus == model.StatusAvailable {
		// Corroborated by this tick: commit.
		delete(e.pending, itemID)
		return Decision{Transitioned: true, FromStatus: committed, ToStatus: model.StatusAvailable, Kind: model.KindRestock}
	}

	e.pending[itemID] = pendingFlip{toStatus: model.StatusAvailable, confidence: confidence, detectedAt: now}
	return Decision{}
}

func twoOfLastThreeUnavailable(hist []model.Status, current model.Status) bool {
	count := 0
	if current == model.StatusUnavailable {
		count++
	}
	for _, s := range hist {
		if s == model.StatusUnavailable {
			count++
		}
	}
	return count >= 2
}
