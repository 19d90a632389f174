// Package fetcher implements the fetch-with-fallback engine: a cheap direct
// request first, block-signature detection, and a shared headless-browser
// escalation for protected sites.
package fetcher

import (
	"bytes"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/entityscope/urlcurator/internal/curation"
)

// Default bot-protection body markers, matched case-insensitively.
var defaultBlockMarkers = []string{
	"captcha",
	"enable javascript",
	"checking your browser",
	"attention required",
	"ddos protection",
	"access denied",
	"are you a robot",
	"verify you are human",
}

// Challenge-page selectors that identify interstitial walls even when the
// marker text is obfuscated.
var defaultChallengeSelectors = []string{
	"#challenge-form",
	"#challenge-running",
	".cf-browser-verification",
}

// BlockDetector decides whether a direct-fetch response is a bot-protection
// block that warrants the browser path.
type BlockDetector struct {
	minHTMLBytes int
	markers      [][]byte
	selectors    []string
}

// NewBlockDetector constructs a detector. minBytes is the body size below
// which a response claiming to be blocked is treated as one; zero disables
// the short-body signal.
func NewBlockDetector(minBytes int, extraMarkers []string) *BlockDetector {
	markers := make([][]byte, 0, len(defaultBlockMarkers)+len(extraMarkers))
	for _, m := range defaultBlockMarkers {
		markers = append(markers, []byte(m))
	}
	for _, m := range extraMarkers {
		if m == "" {
			continue
		}
		markers = append(markers, bytes.ToLower([]byte(m)))
	}
	return &BlockDetector{
		minHTMLBytes: minBytes,
		markers:      markers,
		selectors:    defaultChallengeSelectors,
	}
}

// Blocked reports whether the response carries a block signal.
func (d *BlockDetector) Blocked(resp curation.FetchResponse) bool {
	if d == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	lowerBody := bytes.ToLower(resp.Body)
	if d.containsMarker(lowerBody) {
		return true
	}
	if d.shortBlockedBody(lowerBody) {
		return true
	}
	return d.hasChallengeSelector(resp.Body)
}

func (d *BlockDetector) containsMarker(lowerBody []byte) bool {
	if len(lowerBody) == 0 {
		return false
	}
	for _, m := range d.markers {
		if bytes.Contains(lowerBody, m) {
			return true
		}
	}
	return false
}

// An implausibly short body that claims to be blocked is a block signal;
// a short body on its own is not.
func (d *BlockDetector) shortBlockedBody(lowerBody []byte) bool {
	if d.minHTMLBytes <= 0 || len(lowerBody) == 0 || len(lowerBody) >= d.minHTMLBytes {
		return false
	}
	return bytes.Contains(lowerBody, []byte("blocked"))
}

func (d *BlockDetector) hasChallengeSelector(body []byte) bool {
	if len(body) == 0 || len(d.selectors) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	for _, sel := range d.selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
