package detect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"stockwatch/internal/model"
)

// FingerprintDetector is D4: hashes a structural fingerprint of the page
// and compares it against the item's stored fingerprint_hash (§4.4). It
// never votes a direct verdict on its own; an unchanged fingerprint is weak
// negative evidence, a changed one escalates other detectors' confidence
// (applied by Fuse, not here — Run only reports what changed).
type FingerprintDetector struct{}

func (FingerprintDetector) Name() string { return "fingerprint" }

func (FingerprintDetector) Weight(w Weights) float64 { return w.Fingerprint }

func (FingerprintDetector) Run(_ context.Context, in Input) model.DetectorResult {
	hash := ComputeFingerprint(in.RawBody, in.RenderedBody)

	if in.PreviousFingerprint == "" || hash == in.PreviousFingerprint {
		return model.DetectorResult{Name: "fingerprint", Verdict: model.StatusInconclusive, Confidence: 0.2, Evidence: "fingerprint unchanged: " + hash}
	}
	return model.DetectorResult{Name: "fingerprint", Verdict: model.StatusInconclusive, Confidence: 0.2, Evidence: "fingerprint changed: " + hash}
}

// ComputeFingerprint prefers a DOM-skeleton hash (tag structure only, text
// and attribute values stripped) when a body is parseable, falling back to
// a length-bucketed, newline-normalised hash of the raw body otherwise
// (§4.4, Open Question 2's resolution).
func ComputeFingerprint(rawBody, renderedBody []byte) string {
	body := renderedBody
	if len(body) == 0 {
		body = rawBody
	}

	if skeleton, ok := domSkeleton(body); ok {
		return sha256Hex(skeleton)
	}
	return rawBodyFingerprint(rawBody)
}

// domSkeleton walks the parsed document keeping only element tag names in
// document order, discarding text nodes and attribute values.
func domSkeleton(body []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil || doc.Nodes == nil {
		return "", false
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			b.WriteString(n.Data)
			b.WriteByte('>')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

// rawBodyFingerprint normalises CRLF line endings to LF, hashes the result
// and appends its length rounded down to a multiple of 64 bytes (§4.4). Any
// other byte change, whitespace included, yields a different fingerprint.
func rawBodyFingerprint(body []byte) string {
	normalized := strings.ReplaceAll(string(body), "\r\n", "\n")
	bucket := (len(normalized) / 64) * 64
	return sha256Hex(normalized) + ":" + strconv.Itoa(bucket)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
