package validation

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

// documentExtensions are extensions presumed to resolve to an HTML page.
var documentExtensions = map[string]struct{}{
	"": {}, ".html": {}, ".htm": {}, ".xhtml": {}, ".php": {}, ".asp": {}, ".aspx": {}, ".jsp": {},
}

// ContentType screens candidates by file extension so obvious non-page
// assets never reach the fetch-heavy stages.
type ContentType struct{}

// NewContentType returns the content-type validation module.
func NewContentType() *ContentType {
	return &ContentType{}
}

// Info describes the module for the registry listing.
func (m *ContentType) Info() submodule.Info {
	return submodule.Info{
		ID:          "validation/content_type",
		Name:        "content_type",
		Type:        submodule.TypeValidation,
		Category:    "filter",
		Description: "Rejects URLs whose file extension indicates a non-HTML asset.",
		Cost:        submodule.CostCheap,
		Options: []submodule.Option{
			{Name: "extra_extensions", Type: "strings", Description: "Additional extensions to treat as documents (with leading dot)."},
		},
	}
}

// Execute keeps extensionless and document-extension URLs.
func (m *ContentType) Execute(_ context.Context, urls []curation.URLCandidate, config map[string]any, mctx submodule.Context) (curation.ValidationResult, error) {
	extra := submodule.StringsOption(config, "extra_extensions", nil)
	allowed := make(map[string]struct{}, len(documentExtensions)+len(extra))
	for ext := range documentExtensions {
		allowed[ext] = struct{}{}
	}
	for _, ext := range extra {
		allowed[strings.ToLower(strings.TrimSpace(ext))] = struct{}{}
	}

	var valid []curation.URLCandidate
	var invalid []curation.RejectedURL
	for _, c := range urls {
		ext := extension(c.URL)
		if _, ok := allowed[ext]; ok {
			valid = append(valid, c)
			continue
		}
		invalid = append(invalid, curation.RejectedURL{Candidate: c, Reason: "non_document_type", Details: ext})
	}

	mctx.Logger.Info("content types screened", map[string]any{"input": len(urls), "valid": len(valid), "invalid": len(invalid)})
	return partition(len(urls), valid, invalid), nil
}

func extension(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
