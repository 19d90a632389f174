package snapshot

import (
	"context"
	"sync"

	"github.com/entityscope/urlcurator/internal/curation"
)

// Fetcher decorates a curation.Fetcher and archives every successful page
// body under the run it was fetched for.
type Fetcher struct {
	inner    curation.Fetcher
	archiver *Archiver
	runID    string

	mu   sync.Mutex
	uris []string
}

// WrapFetcher attaches archiving to inner for one run. When the archiver is
// disabled the inner fetcher is returned untouched.
func WrapFetcher(inner curation.Fetcher, archiver *Archiver, runID string) curation.Fetcher {
	if !archiver.Enabled() {
		return inner
	}
	return &Fetcher{inner: inner, archiver: archiver, runID: runID}
}

// Fetch delegates to the wrapped fetcher and archives 2xx bodies.
func (f *Fetcher) Fetch(ctx context.Context, request curation.FetchRequest) (curation.FetchResponse, error) {
	resp, err := f.inner.Fetch(ctx, request)
	if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if uri := f.archiver.Save(ctx, f.runID, resp.URL, resp.Body); uri != "" {
			f.mu.Lock()
			f.uris = append(f.uris, uri)
			f.mu.Unlock()
		}
	}
	return resp, err
}

// Archived returns the blob URIs written so far, in archive order.
func (f *Fetcher) Archived() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.uris))
	copy(out, f.uris)
	return out
}
