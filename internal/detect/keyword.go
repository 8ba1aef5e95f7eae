package detect

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/width"

	"stockwatch/internal/model"
)

// unavailableMarkers / availableMarkers are the curated multilingual lists
// from §4.4. Keep both lists scanned against normalised text so substring
// matching is case- and width-fold-insensitive across scripts.
var (
	unavailableMarkers = []string{
		"out of stock", "sold out", "unavailable", "currently unavailable",
		"no longer available", "缺货", "售罄", "补货中",
	}
	availableMarkers = []string{
		"add to cart", "buy now", "in stock", "add to basket",
		"立即购买", "现货",
	}
)

var caseFolder = cases.Fold()

// normalizeText folds full-width CJK punctuation/ASCII to standard form
// (golang.org/x/text/width) and case-folds Latin scripts (golang.org/x/text/cases)
// so "ＳＯＬＤ　ＯＵＴ" and "Sold Out" both match the same marker.
func normalizeText(s string) string {
	return caseFolder.String(width.Fold.String(s))
}

// KeywordDetector is D1: scans the lower-cased, HTML-stripped raw body
// against the unavailable/available marker lists (§4.4).
type KeywordDetector struct{}

func (KeywordDetector) Name() string { return "keyword" }

func (KeywordDetector) Weight(w Weights) float64 { return w.Keyword }

func (KeywordDetector) Run(_ context.Context, in Input) model.DetectorResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(in.RawBody)))
	var text string
	if err == nil {
		text = doc.Text()
	} else {
		text = string(in.RawBody)
	}
	normalized := normalizeText(text)

	unavailCount := countMatches(normalized, unavailableMarkers)
	availCount := countMatches(normalized, availableMarkers)

	switch {
	case unavailCount > 0 && availCount == 0:
		conf := clamp(0.6+0.1*float64(unavailCount), 0.6, 0.9)
		return model.DetectorResult{Name: "keyword", Verdict: model.StatusUnavailable, Confidence: conf, Evidence: "unavailable marker matched"}
	case availCount > 0 && unavailCount == 0:
		conf := clamp(0.6+0.1*float64(availCount), 0.6, 0.9)
		return model.DetectorResult{Name: "keyword", Verdict: model.StatusAvailable, Confidence: conf, Evidence: "available marker matched"}
	case availCount > 0 && unavailCount > 0:
		return model.DetectorResult{Name: "keyword", Verdict: model.StatusInconclusive, Confidence: 0.3, Evidence: "both marker sets matched"}
	default:
		return model.DetectorResult{Name: "keyword", Verdict: model.StatusInconclusive, Confidence: 0.0, Evidence: "no marker matched"}
	}
}

func countMatches(normalized string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(normalized, normalizeText(m)) {
			n++
		}
	}
	return n
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
