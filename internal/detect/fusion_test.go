package detect

import (
	"testing"

	"stockwatch/internal/model"
)

func defaultWeights() Weights {
	return Weights{Keyword: 0.20, Dom: 0.35, APIProbe: 0.35, Fingerprint: 0.10}
}

func TestFuse_Deterministic(t *testing.T) {
	results := map[string]model.DetectorResult{
		"keyword": {Name: "keyword", Verdict: model.StatusAvailable, Confidence: 0.7},
		"dom":     {Name: "dom", Verdict: model.StatusAvailable, Confidence: 0.8},
	}
	w := defaultWeights()

	a := Fuse(results, w, 0.6)
	b := Fuse(results, w, 0.6)
	if a != b {
		t.Fatalf("Fuse is not deterministic: %+v != %+v", a, b)
	}
}

func TestFuse_APIProbeOverride(t *testing.T) {
	results := map[string]model.DetectorResult{
		"api_probe": {Name: "api_probe", Verdict: model.StatusAvailable, Confidence: 0.9},
		"keyword":   {Name: "keyword", Verdict: model.StatusUnavailable, Confidence: 0.6},
		"dom":       {Name: "dom", Verdict: model.StatusUnavailable, Confidence: 0.6},
	}
	got := Fuse(results, defaultWeights(), 0.6)
	if got.Verdict != model.StatusAvailable {
		t.Errorf("expected api_probe override to available, got %s", got.Verdict)
	}
}

func TestFuse_BelowThresholdIsInconclusive(t *testing.T) {
	results := map[string]model.DetectorResult{
		"keyword": {Name: "keyword", Verdict: model.StatusAvailable, Confidence: 0.3},
	}
	got := Fuse(results, defaultWeights(), 0.6)
	if got.Verdict != model.StatusInconclusive {
		t.Errorf("expected inconclusive below threshold, got %s", got.Verdict)
	}
}

func TestFuse_TieResolvesToInconclusive(t *testing.T) {
	results := map[string]model.DetectorResult{
		"keyword": {Name: "keyword", Verdict: model.StatusAvailable, Confidence: 0.6},
		"dom":     {Name: "dom", Verdict: model.StatusUnavailable, Confidence: 0.6 * 0.20 / 0.35},
	}
	w := defaultWeights()
	got := Fuse(results, w, 0.6)
	if got.Verdict != model.StatusInconclusive {
		t.Errorf("expected tie to resolve to inconclusive, got %+v", got)
	}
}

func TestFuse_FingerprintEscalation(t *testing.T) {
	withChange := map[string]model.DetectorResult{
		"keyword":     {Name: "keyword", Verdict: model.StatusAvailable, Confidence: 0.6},
		"fingerprint": {Name: "fingerprint", Verdict: model.StatusInconclusive, Confidence: 0.2, Evidence: "fingerprint changed: abc"},
	}
	w := Weights{Keyword: 1.0}
	got := Fuse(withChange, w, 0.6)
	if got.Confidence <= 0.6 {
		t.Errorf("expected fingerprint change to boost keyword confidence above 0.6, got %f", got.Confidence)
	}
}

func TestComputeFingerprint_StableAcrossIdenticalInput(t *testing.T) {
	body := []byte(`<html><body><div>hello</div></body></html>`)
	a := ComputeFingerprint(body, nil)
	b := ComputeFingerprint(body, nil)
	if a != b {
		t.Errorf("fingerprint not stable: %s != %s", a, b)
	}
}

func TestComputeFingerprint_ChangesWithStructure(t *testing.T) {
	a := ComputeFingerprint([]byte(`<html><body><div>x</div></body></html>`), nil)
	b := ComputeFingerprint([]byte(`<html><body><span>x</span></body></html>`), nil)
	if a == b {
		t.Errorf("expected differing DOM structure to produce different fingerprints")
	}
}

func TestKeywordDetector_Scenarios(t *testing.T) {
	d := KeywordDetector{}

	r := d.Run(nil, Input{RawBody: []byte("<p>Sorry, this item is Sold Out right now.</p>")})
	if r.Verdict != model.StatusUnavailable {
		t.Errorf("expected unavailable, got %s", r.Verdict)
	}

	r = d.Run(nil, Input{RawBody: []byte("<p>In Stock - Add to Cart</p>")})
	if r.Verdict != model.StatusAvailable {
		t.Errorf("expected available, got %s", r.Verdict)
	}

	r = d.Run(nil, Input{RawBody: []byte("<p>ＳＯＬＤ　ＯＵＴ</p>")})
	if r.Verdict != model.StatusUnavailable {
		t.Errorf("expected fullwidth sold out to match unavailable, got %s", r.Verdict)
	}
}
