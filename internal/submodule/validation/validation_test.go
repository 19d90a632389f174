package validation

import (
	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

// testContext returns a Context with a buffering logger and no store.
func testContext() submodule.Context {
	return submodule.Context{Logger: curation.NewRunLogger(nil)}
}

func candidates(entityID string, urls ...string) []curation.URLCandidate {
	out := make([]curation.URLCandidate, 0, len(urls))
	for _, u := range urls {
		out = append(out, curation.URLCandidate{
			EntityID:        entityID,
			EntityName:      "Acme",
			URL:             u,
			DiscoveryMethod: "sitemap",
		})
	}
	return out
}

// assertPartition checks the universal validation invariant.
func assertPartition(input int, result curation.ValidationResult) bool {
	return len(result.Valid)+len(result.Invalid) == input &&
		result.Stats.Input == input &&
		result.Stats.Valid == len(result.Valid) &&
		result.Stats.Invalid == len(result.Invalid)
}
