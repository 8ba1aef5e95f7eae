// Package detect implements the four heterogeneous availability signals
// (§4.4) and their weighted fusion into one verdict (§4.5).
package detect

import (
	"context"

	"stockwatch/internal/model"
)

// Input is everything a detector needs: the raw and (optionally) rendered
// page bodies plus any memoised per-item state (the D3 probe endpoint, the
// previously stored fingerprint).
type Input struct {
	URL              string
	RawBody          []byte
	RenderedBody     []byte // empty if rendering was skipped this poll
	PreviousFingerprint string
	APIProbeEndpoint string // memoised by a prior D3 discovery, empty if none yet
	HTTPDo           func(ctx context.Context, method, url string) (status int, body []byte, err error)
}

// Detector is the capability set every signal implements (§4.4).
type Detector interface {
	Name() string
	Weight(weights Weights) float64
	Run(ctx context.Context, in Input) model.DetectorResult
}

// Weights mirrors config.DetectorWeights without importing the config
// package, so detect has no dependency on process-level configuration.
type Weights struct {
	Keyword     float64
	Dom         float64
	APIProbe    float64
	Fingerprint float64
}
