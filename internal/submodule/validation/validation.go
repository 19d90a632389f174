// Package validation holds the validation submodules: URL format checks,
// path filtering, exact deduplication, language deduplication, and
// content-type screening. Every module partitions its input so that
// |valid| + |invalid| equals the input length.
package validation

import (
	"strings"

	"github.com/entityscope/urlcurator/internal/curation"
)

// partition assembles a ValidationResult with stats filled from the two
// halves, tallying invalid rows by reason.
func partition(input int, valid []curation.URLCandidate, invalid []curation.RejectedURL) curation.ValidationResult {
	if valid == nil {
		valid = []curation.URLCandidate{}
	}
	if invalid == nil {
		invalid = []curation.RejectedURL{}
	}
	reasons := make(map[string]int)
	for _, r := range invalid {
		reasons[r.Reason]++
	}
	return curation.ValidationResult{
		Valid:   valid,
		Invalid: invalid,
		Stats: curation.ValidationStats{
			Input:   input,
			Valid:   len(valid),
			Invalid: len(invalid),
			Reasons: reasons,
		},
	}
}

// hostMatches reports whether host belongs to domain, tolerating a www
// prefix and subdomains.
func hostMatches(host, domain string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}
