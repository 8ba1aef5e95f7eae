package detect

import (
	"context"
	"sync"
	"time"

	"stockwatch/internal/model"
)

// All is the fixed detector set run on every poll (§4.4).
var All = []Detector{KeywordDetector{}, DomDetector{}, ApiProbe{}, FingerprintDetector{}}

// RunAll invokes every detector concurrently, each under its own
// context.WithTimeout. A detector that doesn't respect cancellation has no
// result read once the timeout fires — Go cannot forcibly kill a goroutine —
// so a timed-out detector is recorded as inconclusive with evidence
// "timeout" rather than silently dropped, so Fuse still sees one entry per
// detector (§4.4).
func RunAll(ctx context.Context, in Input, perDetectorTimeout time.Duration) map[string]model.DetectorResult {
	results := make(map[string]model.DetectorResult, len(All))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, d := range All {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			dctx, cancel := context.WithTimeout(ctx, perDetectorTimeout)
			defer cancel()

			done := make(chan model.DetectorResult, 1)
			go func() { done <- d.Run(dctx, in) }()

			select {
			case r := <-done:
				mu.Lock()
				results[d.Name()] = r
				mu.Unlock()
			case <-dctx.Done():
				mu.Lock()
				results[d.Name()] = model.DetectorResult{
					Name:     d.Name(),
					Verdict:  model.StatusInconclusive,
					Evidence: "timeout",
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return results
}
