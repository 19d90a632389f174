package discovery

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

const codeAllSeedsFailed = "ALL_SEEDS_FAILED"

// commonPaths is the fixed catalogue appended when expand_common_paths is on.
var commonPaths = []string{
	"/about", "/about-us", "/company",
	"/careers", "/jobs", "/team",
	"/products", "/services", "/solutions",
	"/blog", "/news", "/press",
	"/contact", "/investors",
}

// SeedExpansion discovers URLs by fetching a seed list per entity and
// extracting same-domain links from each seed page.
type SeedExpansion struct{}

// NewSeedExpansion returns the seed-expansion discovery module.
func NewSeedExpansion() *SeedExpansion {
	return &SeedExpansion{}
}

// Info describes the module for the registry listing.
func (s *SeedExpansion) Info() submodule.Info {
	return submodule.Info{
		ID:          "discovery/seed_expansion",
		Name:        "seed_expansion",
		Type:        submodule.TypeDiscovery,
		Category:    "crawl",
		Description: "Fetches the homepage, explicit seeds, and optionally a catalogue of common paths, extracting links from each.",
		Cost:        submodule.CostExpensive,
		Options: []submodule.Option{
			{Name: "batch_size", Type: "int", Description: "Entities processed in parallel per batch.", Default: defaultBatchSize},
			{Name: "expand_common_paths", Type: "bool", Description: "Append the common-path catalogue to the seed list.", Default: false},
			{Name: "extract_links", Type: "bool", Description: "Extract same-domain links from each seed page.", Default: true},
			{Name: "max_urls_per_seed", Type: "int", Description: "Cap on links taken from one seed page.", Default: 50},
			{Name: "max_urls_per_entity", Type: "int", Description: "Cap on URLs collected per entity.", Default: 300},
		},
	}
}

// Execute fetches each seed once; a failed seed is logged and skipped so the
// remaining seeds still contribute.
func (s *SeedExpansion) Execute(ctx context.Context, entities []curation.Entity, config map[string]any, mctx submodule.Context) (curation.DiscoveryResult, error) {
	batchSize := submodule.IntOption(config, "batch_size", defaultBatchSize)
	expandCommon := submodule.BoolOption(config, "expand_common_paths", false)
	extractLinks := submodule.BoolOption(config, "extract_links", true)
	maxPerSeed := submodule.IntOption(config, "max_urls_per_seed", 50)
	maxPerEntity := submodule.IntOption(config, "max_urls_per_entity", 300)

	return forEachEntity(ctx, entities, batchSize, func(ctx context.Context, entity curation.Entity) entityOutcome {
		base, err := normalizeWebsite(entity.Website)
		if err != nil {
			return entityOutcome{err: entityError(entity, codeAllSeedsFailed, "entity has no usable website")}
		}

		seeds := s.seedList(base.String(), entity.SeedURLs, expandCommon)
		seen := make(map[string]struct{})
		var candidates []curation.URLCandidate
		fetched := 0

		for _, seed := range seeds {
			if len(candidates) >= maxPerEntity {
				break
			}
			resp, err := mctx.Fetcher.Fetch(ctx, curation.FetchRequest{URL: seed})
			if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
				detail := map[string]any{"entity": entity.Name, "seed": seed}
				if err != nil {
					detail["error"] = err.Error()
				} else {
					detail["status"] = resp.StatusCode
				}
				mctx.Logger.Warn("seed fetch failed", detail)
				continue
			}
			fetched++

			page := resp.FinalURL
			if page == "" {
				page = seed
			}
			if _, dup := seen[page]; !dup {
				seen[page] = struct{}{}
				candidates = append(candidates, curation.URLCandidate{
					EntityID:        entity.ID,
					EntityName:      entity.Name,
					URL:             page,
					DiscoveryMethod: "seed_expansion",
					Metadata:        map[string]any{"seed": seed, "kind": "seed_page"},
				})
			}

			if !extractLinks {
				continue
			}
			for _, link := range s.pageLinks(base, resp.Body, maxPerSeed) {
				if len(candidates) >= maxPerEntity {
					break
				}
				if _, dup := seen[link]; dup {
					continue
				}
				seen[link] = struct{}{}
				candidates = append(candidates, curation.URLCandidate{
					EntityID:        entity.ID,
					EntityName:      entity.Name,
					URL:             link,
					DiscoveryMethod: "seed_expansion",
					Metadata:        map[string]any{"seed": seed, "kind": "extracted_link"},
				})
			}
		}

		if fetched == 0 {
			return entityOutcome{err: entityError(entity, codeAllSeedsFailed, "no seed page could be fetched")}
		}
		mctx.Logger.Info("seeds expanded", map[string]any{"entity": entity.Name, "seeds": len(seeds), "fetched": fetched, "urls": len(candidates)})
		return entityOutcome{candidates: candidates}
	}), nil
}

// seedList builds the ordered, deduplicated seed URLs: homepage first, then
// explicit seeds, then the common-path catalogue.
func (s *SeedExpansion) seedList(homepage string, explicit []string, expandCommon bool) []string {
	seen := make(map[string]struct{})
	var seeds []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		seeds = append(seeds, u)
	}

	add(homepage)
	for _, seed := range explicit {
		add(seed)
	}
	if expandCommon {
		origin := strings.TrimSuffix(homepage, "/")
		for _, path := range commonPaths {
			add(origin + path)
		}
	}
	return seeds
}

// pageLinks extracts up to maxPerSeed same-domain links in document order.
func (s *SeedExpansion) pageLinks(base *url.URL, body []byte, maxPerSeed int) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		link := resolveLink(base, href)
		if link == "" {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		links = append(links, link)
		return len(links) < maxPerSeed
	})
	return links
}
