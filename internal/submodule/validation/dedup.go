package validation

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

// trackingParams are stripped during normalization regardless of value.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {}, "utm_id": {},
	"gclid": {}, "fbclid": {}, "msclkid": {}, "dclid": {}, "twclid": {},
	"mc_cid": {}, "mc_eid": {}, "igshid": {}, "ref": {}, "ref_src": {},
}

// Normalize canonicalizes a URL for dedup comparison: lowercase scheme and
// host, default ports and fragments stripped, tracking parameters removed,
// remaining query sorted, trailing slash removed except at the root.
// Normalize is idempotent.
func Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if host, port, found := strings.Cut(u.Host, ":"); found {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			u.Host = host
		}
	}

	if u.RawQuery != "" {
		values, err := url.ParseQuery(u.RawQuery)
		if err == nil {
			for param := range values {
				if _, tracked := trackingParams[strings.ToLower(param)]; tracked {
					values.Del(param)
				}
			}
			u.RawQuery = sortedEncode(values)
		}
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// sortedEncode is url.Values.Encode with deterministic key order; Encode
// already sorts keys, values per key keep insertion order.
func sortedEncode(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Dedup keeps the first occurrence per normalized URL key.
type Dedup struct{}

// NewDedup returns the exact-dedup validation module.
func NewDedup() *Dedup {
	return &Dedup{}
}

// Info describes the module for the registry listing.
func (m *Dedup) Info() submodule.Info {
	return submodule.Info{
		ID:          "validation/dedup",
		Name:        "dedup",
		Type:        submodule.TypeValidation,
		Category:    "dedup",
		Description: "Keeps the first occurrence per normalized URL, scoped per entity or globally.",
		Cost:        submodule.CostCheap,
		Options: []submodule.Option{
			{Name: "scope", Type: "string", Description: "Dedup key scope.", Default: "entity", Enum: []string{"entity", "global"}},
			{Name: "preferred_method", Type: "string", Description: "Discovery method that wins ties; its candidates are considered first."},
			{Name: "ignore_query", Type: "bool", Description: "Drop the entire query string from the dedup key.", Default: false},
		},
	}
}

// Execute keeps the first candidate per key. When preferred_method is set,
// candidates from that method are considered first (stable within each
// group) so the preferred source wins ties.
func (m *Dedup) Execute(_ context.Context, urls []curation.URLCandidate, config map[string]any, mctx submodule.Context) (curation.ValidationResult, error) {
	scope := submodule.StringOption(config, "scope", "entity")
	preferred := submodule.StringOption(config, "preferred_method", "")
	ignoreQuery := submodule.BoolOption(config, "ignore_query", false)

	ordered := urls
	if preferred != "" {
		ordered = make([]curation.URLCandidate, 0, len(urls))
		for _, c := range urls {
			if c.DiscoveryMethod == preferred {
				ordered = append(ordered, c)
			}
		}
		for _, c := range urls {
			if c.DiscoveryMethod != preferred {
				ordered = append(ordered, c)
			}
		}
	}

	kept := make(map[string]string)
	var valid []curation.URLCandidate
	var invalid []curation.RejectedURL

	for _, c := range ordered {
		key := Normalize(c.URL)
		if ignoreQuery {
			if q := strings.Index(key, "?"); q >= 0 {
				key = key[:q]
			}
		}
		if scope == "entity" {
			key = c.EntityID + "|" + key
		}
		if winner, dup := kept[key]; dup {
			invalid = append(invalid, curation.RejectedURL{
				Candidate: c,
				Reason:    "duplicate_url",
				KeptURL:   winner,
			})
			continue
		}
		kept[key] = c.URL
		valid = append(valid, c)
	}

	mctx.Logger.Info("urls deduplicated", map[string]any{"input": len(urls), "kept": len(valid), "duplicates": len(invalid)})
	return partition(len(urls), valid, invalid), nil
}
