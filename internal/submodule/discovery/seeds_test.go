package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entityscope/urlcurator/internal/curation"
)

const seedPageHTML = `<html><body>
<a href="/team">Team</a>
<a href="/jobs/engineer">Engineer</a>
<a href="https://elsewhere.test/x">Elsewhere</a>
</body></html>`

func TestSeedExpansionFailedSeedDoesNotAbortEntity(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]fakePage{
		"https://acme.test":         {body: "<html><body></body></html>"},
		"https://acme.test/careers": {body: seedPageHTML},
	})
	entities := []curation.Entity{{
		ID:       "e1",
		Name:     "Acme",
		Website:  "acme.test",
		SeedURLs: []string{"https://acme.test/broken", "https://acme.test/careers"},
	}}

	result, err := NewSeedExpansion().Execute(context.Background(), entities, nil, testContext(fetcher))
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	urls := make([]string, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		require.Equal(t, "seed_expansion", c.DiscoveryMethod)
		urls = append(urls, c.URL)
	}
	require.Contains(t, urls, "https://acme.test/careers")
	require.Contains(t, urls, "https://acme.test/team")
	require.Contains(t, urls, "https://acme.test/jobs/engineer")
	require.NotContains(t, urls, "https://elsewhere.test/x")
	require.NotContains(t, urls, "https://acme.test/broken")
}

func TestSeedExpansionAllSeedsFailedIsPerEntityError(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(nil)
	entities := []curation.Entity{{ID: "e1", Name: "Acme", Website: "acme.test"}}

	result, err := NewSeedExpansion().Execute(context.Background(), entities, nil, testContext(fetcher))
	require.NoError(t, err)
	require.Empty(t, result.Candidates)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "ALL_SEEDS_FAILED", result.Errors[0].Code)
}

func TestSeedExpansionCommonPathCatalogue(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]fakePage{
		"https://acme.test":       {body: "<html><body></body></html>"},
		"https://acme.test/about": {body: "<html><body></body></html>"},
	})
	entities := []curation.Entity{{ID: "e1", Name: "Acme", Website: "acme.test"}}

	result, err := NewSeedExpansion().Execute(context.Background(), entities,
		map[string]any{"expand_common_paths": true}, testContext(fetcher))
	require.NoError(t, err)
	require.Contains(t, fetcher.requested(), "https://acme.test/about")
	require.Contains(t, fetcher.requested(), "https://acme.test/careers")

	urls := make([]string, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		urls = append(urls, c.URL)
	}
	require.ElementsMatch(t, []string{"https://acme.test", "https://acme.test/about"}, urls)
}

func TestSeedExpansionPerSeedCap(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]fakePage{
		"https://acme.test": {body: seedPageHTML},
	})
	entities := []curation.Entity{{ID: "e1", Name: "Acme", Website: "acme.test"}}

	result, err := NewSeedExpansion().Execute(context.Background(), entities,
		map[string]any{"max_urls_per_seed": 1}, testContext(fetcher))
	require.NoError(t, err)
	// Seed page itself plus one extracted link.
	require.Len(t, result.Candidates, 2)
}
