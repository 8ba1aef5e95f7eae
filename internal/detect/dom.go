package detect

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"stockwatch/internal/model"
)

// vendorRule is a per-vendor DOM rule: if selector matches, the item's
// availability is read directly off the matched element rather than the
// generic add-to-cart heuristic (§4.4: "a vendor-specific rule wins over
// the generic rule").
type vendorRule struct {
	hostSuffix      string
	selector        string
	unavailableText []string
}

var vendorRules = []vendorRule{
	{hostSuffix: "vultr.com", selector: "[data-availability]", unavailableText: []string{"sold out", "unavailable"}},
	{hostSuffix: "ovh.com", selector: ".product-unavailable", unavailableText: []string{"unavailable"}},
}

// genericAddSelectors match a submittable form pointing at an add/cart/buy
// endpoint, the fallback heuristic when no vendor rule applies.
var genericAddSelectors = []string{
	`form[action*="cart" i]`,
	`form[action*="buy" i]`,
	`form[action*="add" i]`,
	`button[name*="add-to-cart" i]`,
}

// DomDetector is D2: requires the rendered DOM (headless-browser output) and
// inspects button/form enabled-disabled state (§4.4).
type DomDetector struct{}

func (DomDetector) Name() string { return "dom" }

func (DomDetector) Weight(w Weights) float64 { return w.Dom }

func (DomDetector) Run(_ context.Context, in Input) model.DetectorResult {
	if len(in.RenderedBody) == 0 {
		return model.DetectorResult{Name: "dom", Verdict: model.StatusInconclusive, Confidence: 0, Evidence: "no rendered body"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(in.RenderedBody)))
	if err != nil {
		return model.DetectorResult{Name: "dom", Verdict: model.StatusInconclusive, Confidence: 0, Evidence: "parse error"}
	}

	for _, rule := range vendorRules {
		if !strings.Contains(in.URL, rule.hostSuffix) {
			continue
		}
		sel := doc.Find(rule.selector)
		if sel.Length() == 0 {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		for _, marker := range rule.unavailableText {
			if strings.Contains(text, marker) {
				return model.DetectorResult{Name: "dom", Verdict: model.StatusUnavailable, Confidence: 0.8, Evidence: "vendor rule: " + rule.selector}
			}
		}
		return model.DetectorResult{Name: "dom", Verdict: model.StatusAvailable, Confidence: 0.8, Evidence: "vendor rule: " + rule.selector}
	}

	for _, sel := range genericAddSelectors {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		if _, disabled := found.Attr("disabled"); disabled {
			return model.DetectorResult{Name: "dom", Verdict: model.StatusUnavailable, Confidence: 0.8, Evidence: "add-to-cart form disabled"}
		}
		return model.DetectorResult{Name: "dom", Verdict: model.StatusAvailable, Confidence: 0.8, Evidence: "add-to-cart form present and enabled"}
	}

	return model.DetectorResult{Name: "dom", Verdict: model.StatusInconclusive, Confidence: 0, Evidence: "no matching selector"}
}
