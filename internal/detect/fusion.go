package detect

import (
	"strings"

	"stockwatch/internal/model"
)

// Fuse combines the four detector results into one verdict+confidence
// (§4.5). It is a pure function of its inputs, weights and threshold: same
// results, same weights, same output, always (§8 "Fusion determinism").
func Fuse(results map[string]model.DetectorResult, weights Weights, confidenceThreshold float64) model.DetectorResult {
	boosted := applyFingerprintEscalation(results)

	var availScore, unavailScore float64
	weightOf := func(name string) float64 {
		switch name {
		case "keyword":
			return weights.Keyword
		case "dom":
			return weights.Dom
		case "api_probe":
			return weights.APIProbe
		case "fingerprint":
			return weights.Fingerprint
		default:
			return 0
		}
	}

	for name, r := range boosted {
		w := weightOf(name)
		switch r.Verdict {
		case model.StatusAvailable:
			availScore += w * r.Confidence
		case model.StatusUnavailable:
			unavailScore += w * r.Confidence
		}
	}

	finalVerdict := model.StatusInconclusive
	finalConfidence := 0.0
	switch {
	case availScore > unavailScore:
		finalVerdict, finalConfidence = model.StatusAvailable, availScore
	case unavailScore > availScore:
		finalVerdict, finalConfidence = model.StatusUnavailable, unavailScore
	default:
		finalVerdict, finalConfidence = model.StatusInconclusive, 0
	}

	// D3 (api_probe) is authoritative when it speaks with high confidence,
	// overriding the weighted vote entirely (§4.5 rule 4).
	if probe, ok := boosted["api_probe"]; ok && probe.Confidence >= 0.85 && probe.Verdict != model.StatusInconclusive {
		return model.DetectorResult{
			Name:       "fusion",
			Verdict:    probe.Verdict,
			Confidence: probe.Confidence,
			Evidence:   "api_probe override: " + probe.Evidence,
		}
	}

	if finalConfidence < confidenceThreshold {
		finalVerdict = model.StatusInconclusive
	}

	return model.DetectorResult{
		Name:       "fusion",
		Verdict:    finalVerdict,
		Confidence: finalConfidence,
		Evidence:   evidenceSummary(boosted),
	}
}

// applyFingerprintEscalation boosts other detectors' confidence by 0.1 when
// the fingerprint changed and at least one other detector produced a
// non-inconclusive verdict (§4.4: "changed: escalates agreeing detectors").
func applyFingerprintEscalation(results map[string]model.DetectorResult) map[string]model.DetectorResult {
	fp, ok := results["fingerprint"]
	if !ok || !strings.HasPrefix(fp.Evidence, "fingerprint changed") {
		return results
	}

	out := make(map[string]model.DetectorResult, len(results))
	for name, r := range results {
		out[name] = r
	}
	for name, r := range out {
		if name == "fingerprint" {
			continue
		}
		if r.Verdict != model.StatusInconclusive {
			r.Confidence = clamp(r.Confidence+0.1, 0, 1)
			out[name] = r
		}
	}
	return out
}

func evidenceSummary(results map[string]model.DetectorResult) string {
	var parts []string
	for _, name := range []string{"keyword", "dom", "api_probe", "fingerprint"} {
		if r, ok := results[name]; ok {
			parts = append(parts, name+"="+string(r.Verdict))
		}
	}
	return strings.Join(parts, ", ")
}
