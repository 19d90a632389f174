package discovery

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

var errEmptyWebsite = errors.New("entity website is empty")

// sitemapLocations is the ordered probe list tried against each domain.
var sitemapLocations = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/sitemap.xml.gz",
	"/sitemap/sitemap.xml",
	"/wp-sitemap.xml",
}

// Per-entity error codes reported by the sitemap module.
const (
	codeSitemapNotFound = "SITEMAP_NOT_FOUND"
	codeSitemapParse    = "SITEMAP_PARSE_ERROR"
)

// sitemapIndex is the <sitemapindex> document listing child sitemaps.
type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// urlSet is the leaf <urlset> document listing page URLs.
type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// Sitemap discovers URLs by probing conventional sitemap locations.
type Sitemap struct{}

// NewSitemap returns the sitemap discovery module.
func NewSitemap() *Sitemap {
	return &Sitemap{}
}

// Info describes the module for the registry listing.
func (s *Sitemap) Info() submodule.Info {
	return submodule.Info{
		ID:          "discovery/sitemap",
		Name:        "sitemap",
		Type:        submodule.TypeDiscovery,
		Category:    "crawl",
		Description: "Probes conventional sitemap locations, follows sitemap indexes, and flattens all listed URLs.",
		Cost:        submodule.CostCheap,
		Options: []submodule.Option{
			{Name: "batch_size", Type: "int", Description: "Entities processed in parallel per batch.", Default: defaultBatchSize},
			{Name: "max_urls_per_entity", Type: "int", Description: "Cap on URLs collected per entity.", Default: 500},
		},
	}
}

// Execute probes each entity's domain for a sitemap and flattens its URLs.
func (s *Sitemap) Execute(ctx context.Context, entities []curation.Entity, config map[string]any, mctx submodule.Context) (curation.DiscoveryResult, error) {
	batchSize := submodule.IntOption(config, "batch_size", defaultBatchSize)
	maxURLs := submodule.IntOption(config, "max_urls_per_entity", 500)

	return forEachEntity(ctx, entities, batchSize, func(ctx context.Context, entity curation.Entity) entityOutcome {
		base, err := normalizeWebsite(entity.Website)
		if err != nil {
			return entityOutcome{err: entityError(entity, codeSitemapNotFound, "entity has no usable website")}
		}

		body, location := s.probe(ctx, mctx, base.Scheme+"://"+base.Host)
		if body == nil {
			mctx.Logger.Warn("no sitemap found", map[string]any{"entity": entity.Name, "domain": base.Host})
			return entityOutcome{err: entityError(entity, codeSitemapNotFound, fmt.Sprintf("no sitemap at any conventional location on %s", base.Host))}
		}

		locs, err := s.collect(ctx, mctx, body, location, maxURLs)
		if err != nil {
			return entityOutcome{err: entityError(entity, codeSitemapParse, err.Error())}
		}

		candidates := make([]curation.URLCandidate, 0, len(locs))
		for _, loc := range locs {
			candidates = append(candidates, curation.URLCandidate{
				EntityID:        entity.ID,
				EntityName:      entity.Name,
				URL:             loc,
				DiscoveryMethod: "sitemap",
				Metadata:        map[string]any{"sitemap": location},
			})
		}
		mctx.Logger.Info("sitemap parsed", map[string]any{"entity": entity.Name, "location": location, "urls": len(candidates)})
		return entityOutcome{candidates: candidates}
	}), nil
}

// probe tries each conventional location and returns the first body that
// looks like sitemap XML.
func (s *Sitemap) probe(ctx context.Context, mctx submodule.Context, origin string) ([]byte, string) {
	for _, path := range sitemapLocations {
		location := origin + path
		body, err := s.fetch(ctx, mctx, location)
		if err != nil || len(body) == 0 {
			continue
		}
		if bytes.Contains(body, []byte("<urlset")) || bytes.Contains(body, []byte("<sitemapindex")) {
			return body, location
		}
	}
	return nil, ""
}

// collect parses a sitemap body; index documents fan child fetches out in
// parallel and flatten their URLs, capped at maxURLs.
func (s *Sitemap) collect(ctx context.Context, mctx submodule.Context, body []byte, location string, maxURLs int) ([]string, error) {
	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		return s.collectIndex(ctx, mctx, index, maxURLs)
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", location, err)
	}
	locs := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			locs = append(locs, loc)
		}
		if len(locs) >= maxURLs {
			break
		}
	}
	return locs, nil
}

func (s *Sitemap) collectIndex(ctx context.Context, mctx submodule.Context, index sitemapIndex, maxURLs int) ([]string, error) {
	children := make([][]string, len(index.Sitemaps))
	var wg sync.WaitGroup
	for i, child := range index.Sitemaps {
		loc := strings.TrimSpace(child.Loc)
		if loc == "" {
			continue
		}
		wg.Add(1)
		go func(idx int, childLoc string) {
			defer wg.Done()
			body, err := s.fetch(ctx, mctx, childLoc)
			if err != nil {
				mctx.Logger.Warn("child sitemap fetch failed", map[string]any{"location": childLoc, "error": err.Error()})
				return
			}
			var set urlSet
			if err := xml.Unmarshal(body, &set); err != nil {
				mctx.Logger.Warn("child sitemap parse failed", map[string]any{"location": childLoc, "error": err.Error()})
				return
			}
			locs := make([]string, 0, len(set.URLs))
			for _, u := range set.URLs {
				if l := strings.TrimSpace(u.Loc); l != "" {
					locs = append(locs, l)
				}
			}
			children[idx] = locs
		}(i, loc)
	}
	wg.Wait()

	var out []string
	for _, locs := range children {
		for _, loc := range locs {
			if len(out) >= maxURLs {
				return out, nil
			}
			out = append(out, loc)
		}
	}
	return out, nil
}

// fetch retrieves one sitemap document, transparently decompressing .gz
// payloads.
func (s *Sitemap) fetch(ctx context.Context, mctx submodule.Context, location string) ([]byte, error) {
	resp, err := mctx.Fetcher.Fetch(ctx, curation.FetchRequest{URL: location})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 0 && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return nil, fmt.Errorf("fetch %s: status %d", location, resp.StatusCode)
	}
	body := resp.Body
	if strings.HasSuffix(strings.ToLower(location), ".gz") || isGzip(body) {
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", location, err)
		}
		defer reader.Close()
		body, err = io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", location, err)
		}
	}
	return body, nil
}

func isGzip(body []byte) bool {
	return len(body) > 2 && body[0] == 0x1f && body[1] == 0x8b
}
