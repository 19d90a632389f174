package curation

import (
	"context"
	"time"
)

// Fetcher resolves a URL to HTML content. Implementations must treat a
// failure as "no content for this URL" from the caller's point of view.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
