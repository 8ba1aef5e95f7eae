package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"stockwatch/internal/model"
)

// candidateEndpointPatterns match likely JSON stock endpoints discovered in
// a page's raw body or referenced resources (§4.4's discovery phase).
var candidateEndpointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`["'](/api/[^"']*stock[^"']*)["']`),
	regexp.MustCompile(`["'](/cart/[^"']*\.json)["']`),
	regexp.MustCompile(`["'](/product/[^"']*\.json)["']`),
}

// DiscoverEndpoint scans rawBody for the highest-scoring candidate endpoint
// path. The first pattern to match wins; callers memoise the result onto
// Item.APIProbeEndpoint so discovery only runs once per item (§4.4).
func DiscoverEndpoint(rawBody []byte) string {
	for _, pattern := range candidateEndpointPatterns {
		if m := pattern.FindSubmatch(rawBody); m != nil {
			return string(m[1])
		}
	}
	return ""
}

// ApiProbe is D3: on first poll, discovers a candidate JSON stock endpoint;
// on every subsequent poll it GETs the memoised endpoint and interprets the
// response (§4.4). A probe is authoritative (see Fuse's override rule) when
// it speaks with confidence ≥ 0.85.
type ApiProbe struct{}

func (ApiProbe) Name() string { return "api_probe" }

func (ApiProbe) Weight(w Weights) float64 { return w.APIProbe }

func (ApiProbe) Run(ctx context.Context, in Input) model.DetectorResult {
	endpoint := in.APIProbeEndpoint
	if endpoint == "" {
		endpoint = DiscoverEndpoint(in.RawBody)
	}
	if endpoint == "" || in.HTTPDo == nil {
		return model.DetectorResult{Name: "api_probe", Verdict: model.StatusInconclusive, Confidence: 0, Evidence: "no endpoint discovered"}
	}

	status, body, err := in.HTTPDo(ctx, http.MethodGet, endpoint)
	if err != nil || status >= 400 {
		return model.DetectorResult{Name: "api_probe", Verdict: model.StatusInconclusive, Confidence: 0, Evidence: "probe endpoint unreachable: " + endpoint}
	}

	verdict, conf, ok := interpretStockJSON(body)
	if !ok {
		return model.DetectorResult{Name: "api_probe", Verdict: model.StatusInconclusive, Confidence: 0.2, Evidence: "probe response had no recognised stock field"}
	}
	return model.DetectorResult{Name: "api_probe", Verdict: verdict, Confidence: conf, Evidence: "endpoint " + endpoint}
}

// stockFieldNames are the boolean/int keys the probe recognises, checked
// both at the top level and one level down (e.g. data.in_stock), per §4.4.
var stockFieldNames = []string{"in_stock", "available", "stock"}

func interpretStockJSON(body []byte) (model.Status, float64, bool) {
	var top map[string]any
	if err := json.Unmarshal(body, &top); err != nil {
		return "", 0, false
	}

	if v, handled := readStockField(top); handled {
		return v, 0.9, true
	}

	for _, nested := range top {
		if obj, ok := nested.(map[string]any); ok {
			if v, handled := readStockField(obj); handled {
				return v, 0.9, true
			}
		}
	}
	return "", 0, false
}

// readStockField inspects one JSON object for a recognised stock field.
// handled reports whether a recognised field was present at all.
func readStockField(obj map[string]any) (verdict model.Status, handled bool) {
	for _, name := range stockFieldNames {
		raw, present := obj[name]
		if !present {
			continue
		}
		switch v := raw.(type) {
		case bool:
			if v {
				return model.StatusAvailable, true
			}
			return model.StatusUnavailable, true
		case float64:
			if v > 0 {
				return model.StatusAvailable, true
			}
			return model.StatusUnavailable, true
		}
	}
	return "", false
}
