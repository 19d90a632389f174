package validation

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

// defaultExcludePatterns is the built-in catalogue of non-content URL shapes,
// matched against the full URL string case-insensitively.
var defaultExcludePatterns = []*regexp.Regexp{
	// auth and account flows
	regexp.MustCompile(`(?i)/(login|log-in|signin|sign-in|signup|sign-up|register|logout|log-out|password|forgot|reset|auth|sso|oauth)(/|$|\?)`),
	regexp.MustCompile(`(?i)/(account|my-account|profile|settings|preferences)(/|$|\?)`),
	// legal boilerplate
	regexp.MustCompile(`(?i)/(privacy|privacy-policy|terms|terms-of-service|terms-and-conditions|cookie-policy|cookies|legal|imprint|impressum|disclaimer|gdpr|accessibility)(/|$|\?)`),
	// e-commerce flows
	regexp.MustCompile(`(?i)/(cart|checkout|basket|order|payment|billing|shipping|wishlist|add-to-cart)(/|$|\?)`),
	// admin and machinery
	regexp.MustCompile(`(?i)/(admin|wp-admin|wp-login|wp-json|administrator|cpanel|phpmyadmin|cgi-bin|api|graphql|webhook)(/|$|\?)`),
	// binary and document files
	regexp.MustCompile(`(?i)\.(pdf|doc|docx|xls|xlsx|ppt|pptx|zip|gz|tar|rar|7z|exe|dmg|pkg|iso|csv|jpg|jpeg|png|gif|svg|webp|ico|mp3|mp4|avi|mov|wmv|css|js|woff2?|ttf|eot)(\?|$)`),
	// pagination and archives
	regexp.MustCompile(`(?i)/page/\d+(/|$|\?)`),
	regexp.MustCompile(`(?i)[?&](page|p|offset|start)=\d+`),
	regexp.MustCompile(`(?i)/\d{4}/\d{2}(/|$)\??$`),
	// bare listing roots
	regexp.MustCompile(`(?i)/(blog|news|tags?|categor(y|ies)|archives?|search|sitemap)/?(\?.*)?$`),
	// social network domains
	regexp.MustCompile(`(?i)^https?://([a-z0-9-]+\.)*(facebook|twitter|x|instagram|linkedin|youtube|tiktok|pinterest|reddit|snapchat|threads)\.com(/|$)`),
	// feeds
	regexp.MustCompile(`(?i)/(feed|rss|atom)(\.xml)?/?$`),
}

// PathFilter rejects non-content URLs using the default pattern catalogue
// plus caller-supplied include/exclude patterns.
type PathFilter struct{}

// NewPathFilter returns the path-filter validation module.
func NewPathFilter() *PathFilter {
	return &PathFilter{}
}

// Info describes the module for the registry listing.
func (m *PathFilter) Info() submodule.Info {
	return submodule.Info{
		ID:          "validation/path_filter",
		Name:        "path_filter",
		Type:        submodule.TypeValidation,
		Category:    "filter",
		Description: "Rejects auth, legal, e-commerce, admin, file, pagination, listing, social, and feed URLs; include patterns override excludes.",
		Cost:        submodule.CostCheap,
		Options: []submodule.Option{
			{Name: "include_patterns", Type: "strings", Description: "Regexes that force-keep matching URLs."},
			{Name: "exclude_patterns", Type: "strings", Description: "Extra regexes rejected in addition to the default catalogue."},
			{Name: "use_default_excludes", Type: "bool", Description: "Apply the built-in exclude catalogue.", Default: true},
			{Name: "restrict_to_domain", Type: "string", Description: "Reject URLs outside this domain (subdomains tolerated)."},
		},
	}
}

// Execute partitions the input by path shape. Include patterns are checked
// first and override every exclude rule.
func (m *PathFilter) Execute(_ context.Context, urls []curation.URLCandidate, config map[string]any, mctx submodule.Context) (curation.ValidationResult, error) {
	includes, err := compilePatterns(submodule.StringsOption(config, "include_patterns", nil))
	if err != nil {
		return curation.ValidationResult{}, fmt.Errorf("compile include patterns: %w", err)
	}
	excludes, err := compilePatterns(submodule.StringsOption(config, "exclude_patterns", nil))
	if err != nil {
		return curation.ValidationResult{}, fmt.Errorf("compile exclude patterns: %w", err)
	}
	if submodule.BoolOption(config, "use_default_excludes", true) {
		excludes = append(excludes, defaultExcludePatterns...)
	}
	domain := submodule.StringOption(config, "restrict_to_domain", "")

	var valid []curation.URLCandidate
	var invalid []curation.RejectedURL

	for _, c := range urls {
		if domain != "" {
			u, err := url.Parse(c.URL)
			if err != nil || !hostMatches(u.Hostname(), domain) {
				invalid = append(invalid, curation.RejectedURL{Candidate: c, Reason: "off_domain", Details: domain})
				continue
			}
		}
		if matchAny(includes, c.URL) {
			valid = append(valid, c)
			continue
		}
		if pattern := firstMatch(excludes, c.URL); pattern != "" {
			invalid = append(invalid, curation.RejectedURL{Candidate: c, Reason: "filtered_path", Details: pattern})
			continue
		}
		valid = append(valid, c)
	}

	mctx.Logger.Info("paths filtered", map[string]any{"input": len(urls), "valid": len(valid), "invalid": len(invalid)})
	return partition(len(urls), valid, invalid), nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	return firstMatch(patterns, s) != ""
}

func firstMatch(patterns []*regexp.Regexp, s string) string {
	for _, re := range patterns {
		if re.MatchString(s) {
			return re.String()
		}
	}
	return ""
}
