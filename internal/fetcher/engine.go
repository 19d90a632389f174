package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/metrics"
)

// Engine is the fetch-with-fallback implementation of curation.Fetcher.
// It tries the direct path first and escalates to the browser exactly once
// on a block signal or a direct failure.
type Engine struct {
	direct   curation.Fetcher
	browser  curation.Fetcher
	detector *BlockDetector
	logger   *zap.Logger
}

// NewEngine wires the two fetch paths. browser may be nil, in which case
// blocked responses are returned as-is.
func NewEngine(direct curation.Fetcher, browser curation.Fetcher, detector *BlockDetector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		direct:   direct,
		browser:  browser,
		detector: detector,
		logger:   logger,
	}
}

// Fetch resolves a URL to content. A failure on both paths returns an error;
// callers treat that as "no content for this URL" and continue.
func (e *Engine) Fetch(ctx context.Context, request curation.FetchRequest) (curation.FetchResponse, error) {
	if request.ForceBrowser {
		return e.fetchBrowser(ctx, request, nil)
	}

	resp, err := e.direct.Fetch(ctx, request)
	if err == nil && !e.detector.Blocked(resp) {
		metrics.ObserveFetch("ok", false)
		return resp, nil
	}

	if err != nil {
		e.logger.Debug("direct fetch failed, escalating",
			zap.String("url", request.URL), zap.Error(err))
	} else {
		e.logger.Debug("block signal detected, escalating",
			zap.String("url", request.URL), zap.Int("status", resp.StatusCode))
	}
	return e.fetchBrowser(ctx, request, err)
}

func (e *Engine) fetchBrowser(ctx context.Context, request curation.FetchRequest, directErr error) (curation.FetchResponse, error) {
	if e.browser == nil {
		metrics.ObserveFetch("failed", false)
		if directErr != nil {
			return curation.FetchResponse{}, fmt.Errorf("direct fetch failed and no browser configured: %w", directErr)
		}
		return curation.FetchResponse{}, fmt.Errorf("blocked response for %s and no browser configured", request.URL)
	}

	resp, err := e.browser.Fetch(ctx, request)
	if err != nil {
		metrics.ObserveFetch("failed", true)
		if directErr != nil {
			return curation.FetchResponse{}, fmt.Errorf("browser fetch failed after direct failure (%v): %w", directErr, err)
		}
		return curation.FetchResponse{}, fmt.Errorf("browser fetch failed: %w", err)
	}
	resp.UsedBrowser = true
	metrics.ObserveFetch("ok", true)
	return resp, nil
}
