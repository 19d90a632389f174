package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entityscope/urlcurator/internal/curation"
)

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTPS://Example.COM/Path/",
		"https://example.com:443/a?utm_source=x&b=2&a=1",
		"http://example.com:80/",
		"https://example.com/page#section",
		"https://example.com/a?fbclid=123&gclid=456",
		"not a url at all",
	}
	for _, raw := range inputs {
		once := Normalize(raw)
		require.Equal(t, once, Normalize(once), "normalize not idempotent for %q", raw)
	}
}

func TestNormalizeCanonicalizes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://example.com/a?a=1&b=2",
		Normalize("HTTPS://Example.com:443/a/?b=2&a=1&utm_campaign=x"))
	require.Equal(t, "https://example.com/", Normalize("https://example.com/"))
}

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	input := candidates("e1",
		"https://example.com/about",
		"https://EXAMPLE.com/about/",
		"https://example.com/careers",
	)
	result, err := NewDedup().Execute(context.Background(), input, nil, testContext())
	require.NoError(t, err)
	require.True(t, assertPartition(len(input), result))
	require.Len(t, result.Valid, 2)
	require.Len(t, result.Invalid, 1)
	require.Equal(t, "duplicate_url", result.Invalid[0].Reason)
	require.Equal(t, "https://example.com/about", result.Invalid[0].KeptURL)
}

func TestDedupScopeEntityVsGlobal(t *testing.T) {
	t.Parallel()

	input := append(candidates("e1", "https://example.com/about"),
		candidates("e2", "https://example.com/about")...)

	perEntity, err := NewDedup().Execute(context.Background(), input, map[string]any{"scope": "entity"}, testContext())
	require.NoError(t, err)
	require.Len(t, perEntity.Valid, 2)

	global, err := NewDedup().Execute(context.Background(), input, map[string]any{"scope": "global"}, testContext())
	require.NoError(t, err)
	require.Len(t, global.Valid, 1)
	require.Len(t, global.Invalid, 1)
}

func TestDedupPreferredMethodWinsTies(t *testing.T) {
	t.Parallel()

	input := []curation.URLCandidate{
		{EntityID: "e1", URL: "https://example.com/about", DiscoveryMethod: "sitemap"},
		{EntityID: "e1", URL: "https://example.com/about/", DiscoveryMethod: "navigation"},
	}
	result, err := NewDedup().Execute(context.Background(), input,
		map[string]any{"preferred_method": "navigation"}, testContext())
	require.NoError(t, err)
	require.Len(t, result.Valid, 1)
	require.Equal(t, "navigation", result.Valid[0].DiscoveryMethod)
	require.Equal(t, "https://example.com/about/", result.Invalid[0].KeptURL)
}

func TestDedupIgnoreQueryCollapsesVariants(t *testing.T) {
	t.Parallel()

	input := candidates("e1",
		"https://example.com/a?x=1",
		"https://example.com/a?x=2",
	)
	result, err := NewDedup().Execute(context.Background(), input,
		map[string]any{"ignore_query": true}, testContext())
	require.NoError(t, err)
	require.Len(t, result.Valid, 1)
	require.Len(t, result.Invalid, 1)
}
