package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/submodule"
)

// fakeFetcher resolves URLs against a fixed page map; unknown URLs fail.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]fakePage
	requests []string
}

type fakePage struct {
	status int
	body   string
}

func newFakeFetcher(pages map[string]fakePage) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(_ context.Context, req curation.FetchRequest) (curation.FetchResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req.URL)
	f.mu.Unlock()

	page, ok := f.pages[req.URL]
	if !ok {
		return curation.FetchResponse{}, fmt.Errorf("connection refused: %s", req.URL)
	}
	status := page.status
	if status == 0 {
		status = 200
	}
	return curation.FetchResponse{
		URL:        req.URL,
		FinalURL:   req.URL,
		StatusCode: status,
		Body:       []byte(page.body),
	}, nil
}

func (f *fakeFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

func testContext(fetcher curation.Fetcher) submodule.Context {
	return submodule.Context{
		Logger:  curation.NewRunLogger(nil),
		Fetcher: fetcher,
	}
}
