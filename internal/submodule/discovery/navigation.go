package discovery

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

// Per-entity error codes reported by the navigation module.
const (
	codePageLoadFailed    = "PAGE_LOAD_FAILED"
	codeNoNavigationFound = "NO_NAVIGATION_FOUND"
)

// regionSelectors maps each page region to the CSS heuristics tried when
// extracting its links.
var regionSelectors = map[string][]string{
	"header": {
		"header a[href]",
		"nav a[href]",
		"[role=navigation] a[href]",
		".navbar a[href]",
		".nav a[href]",
		".main-nav a[href]",
		"#menu a[href]",
	},
	"footer": {
		"footer a[href]",
		"[role=contentinfo] a[href]",
		".footer a[href]",
		"#footer a[href]",
	},
	"sidebar": {
		"aside a[href]",
		".sidebar a[href]",
		".side-nav a[href]",
		"#sidebar a[href]",
	},
}

// Navigation discovers URLs from the link structure of an entity's homepage.
type Navigation struct{}

// NewNavigation returns the navigation discovery module.
func NewNavigation() *Navigation {
	return &Navigation{}
}

// Info describes the module for the registry listing.
func (n *Navigation) Info() submodule.Info {
	return submodule.Info{
		ID:          "discovery/navigation",
		Name:        "navigation",
		Type:        submodule.TypeDiscovery,
		Category:    "crawl",
		Description: "Extracts header, footer, and sidebar navigation links from the entity homepage.",
		Cost:        submodule.CostMedium,
		Options: []submodule.Option{
			{Name: "batch_size", Type: "int", Description: "Entities processed in parallel per batch.", Default: defaultBatchSize},
			{Name: "regions", Type: "strings", Description: "Page regions to scan.", Default: []string{"header", "footer"}, Enum: []string{"header", "footer", "sidebar"}},
			{Name: "max_urls_per_entity", Type: "int", Description: "Cap on URLs collected per entity.", Default: 200},
			{Name: "use_browser", Type: "bool", Description: "Force the headless browser for the homepage fetch.", Default: false},
		},
	}
}

// Execute fetches each homepage and extracts links scoped to the selected
// regions. Zero links despite a successful load reports NO_NAVIGATION_FOUND,
// kept distinct from a load failure.
func (n *Navigation) Execute(ctx context.Context, entities []curation.Entity, config map[string]any, mctx submodule.Context) (curation.DiscoveryResult, error) {
	batchSize := submodule.IntOption(config, "batch_size", defaultBatchSize)
	regions := submodule.StringsOption(config, "regions", []string{"header", "footer"})
	maxURLs := submodule.IntOption(config, "max_urls_per_entity", 200)
	useBrowser := submodule.BoolOption(config, "use_browser", false)

	return forEachEntity(ctx, entities, batchSize, func(ctx context.Context, entity curation.Entity) entityOutcome {
		base, err := normalizeWebsite(entity.Website)
		if err != nil {
			return entityOutcome{err: entityError(entity, codePageLoadFailed, "entity has no usable website")}
		}

		resp, err := mctx.Fetcher.Fetch(ctx, curation.FetchRequest{URL: base.String(), ForceBrowser: useBrowser})
		if err != nil {
			mctx.Logger.Warn("homepage fetch failed", map[string]any{"entity": entity.Name, "url": base.String(), "error": err.Error()})
			return entityOutcome{err: entityError(entity, codePageLoadFailed, err.Error())}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return entityOutcome{err: entityError(entity, codePageLoadFailed, fmt.Sprintf("homepage returned status %d", resp.StatusCode))}
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return entityOutcome{err: entityError(entity, codePageLoadFailed, fmt.Sprintf("parse homepage: %v", err))}
		}

		seen := make(map[string]struct{})
		var candidates []curation.URLCandidate
		for _, region := range regions {
			for _, selector := range regionSelectors[region] {
				doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
					if len(candidates) >= maxURLs {
						return
					}
					href, ok := sel.Attr("href")
					if !ok {
						return
					}
					link := resolveLink(base, href)
					if link == "" {
						return
					}
					if _, dup := seen[link]; dup {
						return
					}
					seen[link] = struct{}{}
					candidates = append(candidates, curation.URLCandidate{
						EntityID:        entity.ID,
						EntityName:      entity.Name,
						URL:             link,
						DiscoveryMethod: "navigation",
						Metadata:        map[string]any{"region": region},
					})
				})
			}
		}

		if len(candidates) == 0 {
			return entityOutcome{err: entityError(entity, codeNoNavigationFound, fmt.Sprintf("no navigation links in regions %v", regions))}
		}
		mctx.Logger.Info("navigation extracted", map[string]any{"entity": entity.Name, "urls": len(candidates)})
		return entityOutcome{candidates: candidates}
	}), nil
}
