package validation

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

// langSegment matches a leading two-letter language path segment, optionally
// region-qualified (en, en-us, en_US).
var langSegment = regexp.MustCompile(`^[a-zA-Z]{2}([-_][a-zA-Z]{2,4})?$`)

// LanguageDedup collapses translated duplicates of the same page down to one
// canonical URL per entity.
type LanguageDedup struct{}

// NewLanguageDedup returns the language-dedup validation module.
func NewLanguageDedup() *LanguageDedup {
	return &LanguageDedup{}
}

// Info describes the module for the registry listing.
func (m *LanguageDedup) Info() submodule.Info {
	return submodule.Info{
		ID:          "validation/language_dedup",
		Name:        "language_dedup",
		Type:        submodule.TypeValidation,
		Category:    "dedup",
		Description: "Groups translated page variants per entity by content slug and keeps one canonical language.",
		Cost:        submodule.CostCheap,
		Options: []submodule.Option{
			{Name: "preferred_languages", Type: "strings", Description: "Language codes walked in order when picking the canonical variant.", Default: []string{"en"}},
			{Name: "fallback", Type: "string", Description: "Tie-break when no preferred language is present.", Default: "first_seen", Enum: []string{"first_seen", "alphabetical"}},
		},
	}
}

// Execute groups candidates per entity by slug. Groups with one member are
// kept unconditionally; larger groups keep the preference-list winner and
// reject the rest with a pointer to the kept URL.
func (m *LanguageDedup) Execute(_ context.Context, urls []curation.URLCandidate, config map[string]any, mctx submodule.Context) (curation.ValidationResult, error) {
	preferred := submodule.StringsOption(config, "preferred_languages", []string{"en"})
	fallback := submodule.StringOption(config, "fallback", "first_seen")

	type member struct {
		index int
		lang  string
	}
	groups := make(map[string][]member)
	order := make([]string, 0)

	for i, c := range urls {
		lang, slug := splitLanguage(c)
		key := c.EntityID + "|" + slug
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], member{index: i, lang: lang})
	}

	keepIndex := make(map[int]bool, len(urls))
	keptURLFor := make(map[int]string, len(urls))

	for _, key := range order {
		members := groups[key]
		if len(members) == 1 {
			keepIndex[members[0].index] = true
			continue
		}

		winner := -1
		for _, lang := range preferred {
			for _, mem := range members {
				if strings.EqualFold(mem.lang, lang) {
					winner = mem.index
					break
				}
			}
			if winner >= 0 {
				break
			}
		}
		if winner < 0 {
			switch fallback {
			case "alphabetical":
				sorted := append([]member(nil), members...)
				sort.Slice(sorted, func(a, b int) bool { return sorted[a].lang < sorted[b].lang })
				winner = sorted[0].index
			default:
				winner = members[0].index
			}
		}

		keepIndex[winner] = true
		for _, mem := range members {
			if mem.index != winner {
				keptURLFor[mem.index] = urls[winner].URL
			}
		}
	}

	var valid []curation.URLCandidate
	var invalid []curation.RejectedURL
	for i, c := range urls {
		if keepIndex[i] {
			valid = append(valid, c)
			continue
		}
		invalid = append(invalid, curation.RejectedURL{
			Candidate: c,
			Reason:    "language_duplicate",
			KeptURL:   keptURLFor[i],
		})
	}

	mctx.Logger.Info("language variants collapsed", map[string]any{"input": len(urls), "kept": len(valid), "duplicates": len(invalid)})
	return partition(len(urls), valid, invalid), nil
}

// splitLanguage strips a leading language segment from the candidate's path
// and returns (language, slug). URLs without a language segment return an
// empty language and the full path as slug.
func splitLanguage(c curation.URLCandidate) (string, string) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", c.URL
	}
	path := strings.Trim(u.Path, "/")
	segments := strings.SplitN(path, "/", 2)
	if len(segments) > 0 && langSegment.MatchString(segments[0]) {
		lang := strings.ToLower(strings.SplitN(strings.ReplaceAll(segments[0], "_", "-"), "-", 2)[0])
		rest := ""
		if len(segments) == 2 {
			rest = segments[1]
		}
		return lang, strings.ToLower(u.Hostname()) + "/" + rest
	}
	return "", strings.ToLower(u.Hostname()) + "/" + path
}
