// Package discovery holds the discovery submodules: sitemap probing,
// navigation-link extraction, and seed expansion. All three fan entities out
// in bounded parallel batches and report per-entity errors alongside partial
// results instead of failing the run.
package discovery

import (
	"context"
	"sync"

	"github.com/entityscope/urlcurator/internal/curation"
)

const defaultBatchSize = 5

// entityOutcome is one entity's contribution: its candidates in source
// order plus an optional scoped error.
type entityOutcome struct {
	candidates []curation.URLCandidate
	err        *curation.EntityError
}

// forEachEntity runs fn for every entity with bounded concurrency. Batches
// execute sequentially, entities within a batch in parallel, and the merged
// result preserves entity input order.
func forEachEntity(ctx context.Context, entities []curation.Entity, batchSize int, fn func(ctx context.Context, entity curation.Entity) entityOutcome) curation.DiscoveryResult {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	outcomes := make([]entityOutcome, len(entities))

	for start := 0; start < len(entities); start += batchSize {
		end := start + batchSize
		if end > len(entities) {
			end = len(entities)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				outcomes[idx] = fn(ctx, entities[idx])
			}(i)
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	var result curation.DiscoveryResult
	for _, outcome := range outcomes {
		result.Candidates = append(result.Candidates, outcome.candidates...)
		if outcome.err != nil {
			result.Errors = append(result.Errors, *outcome.err)
		}
	}
	return result
}

func entityError(entity curation.Entity, code, message string) *curation.EntityError {
	return &curation.EntityError{
		EntityID:   entity.ID,
		EntityName: entity.Name,
		Code:       code,
		Message:    message,
	}
}
