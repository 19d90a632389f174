package validation

import (
	"context"
	"net"
	"net/url"
	"strings"
	"unicode"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

const defaultMaxURLLength = 2048

// URLFormat rejects URLs that are structurally unusable before any
// content-aware filtering runs.
type URLFormat struct{}

// NewURLFormat returns the url-format validation module.
func NewURLFormat() *URLFormat {
	return &URLFormat{}
}

// Info describes the module for the registry listing.
func (m *URLFormat) Info() submodule.Info {
	return submodule.Info{
		ID:          "validation/url_format",
		Name:        "url_format",
		Type:        submodule.TypeValidation,
		Category:    "filter",
		Description: "Rejects empty, unparseable, wrongly schemed, hostless, or oversized URLs.",
		Cost:        submodule.CostCheap,
		Options: []submodule.Option{
			{Name: "allowed_schemes", Type: "strings", Description: "Accepted URL schemes.", Default: []string{"http", "https"}},
			{Name: "require_tld", Type: "bool", Description: "Require a dotted hostname unless it is an IPv4 address.", Default: true},
			{Name: "max_length", Type: "int", Description: "Maximum raw URL length.", Default: defaultMaxURLLength},
		},
	}
}

// Execute partitions the input into parseable and rejected URLs.
func (m *URLFormat) Execute(_ context.Context, urls []curation.URLCandidate, config map[string]any, mctx submodule.Context) (curation.ValidationResult, error) {
	schemes := submodule.StringsOption(config, "allowed_schemes", []string{"http", "https"})
	requireTLD := submodule.BoolOption(config, "require_tld", true)
	maxLength := submodule.IntOption(config, "max_length", defaultMaxURLLength)

	allowed := make(map[string]struct{}, len(schemes))
	for _, s := range schemes {
		allowed[strings.ToLower(s)] = struct{}{}
	}

	var valid []curation.URLCandidate
	var invalid []curation.RejectedURL
	reject := func(c curation.URLCandidate, reason, details string) {
		invalid = append(invalid, curation.RejectedURL{Candidate: c, Reason: reason, Details: details})
	}

	for _, c := range urls {
		raw := c.URL
		switch {
		case strings.TrimSpace(raw) == "":
			reject(c, "empty_url", "")
		case len(raw) > maxLength:
			reject(c, "url_too_long", "")
		case hasControlChars(raw):
			reject(c, "control_characters", "")
		default:
			u, err := url.Parse(raw)
			if err != nil {
				reject(c, "unparseable_url", err.Error())
				continue
			}
			if _, ok := allowed[strings.ToLower(u.Scheme)]; !ok {
				reject(c, "disallowed_scheme", u.Scheme)
				continue
			}
			host := u.Hostname()
			if host == "" {
				reject(c, "missing_hostname", "")
				continue
			}
			if requireTLD && !strings.Contains(host, ".") && net.ParseIP(host) == nil {
				reject(c, "missing_tld", host)
				continue
			}
			valid = append(valid, c)
		}
	}

	mctx.Logger.Info("url format checked", map[string]any{"input": len(urls), "valid": len(valid), "invalid": len(invalid)})
	return partition(len(urls), valid, invalid), nil
}

func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
