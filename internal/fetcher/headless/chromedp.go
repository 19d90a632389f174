// Package headless implements the browser fallback path using chromedp.
//
// A single browser process is shared by every call. It is launched lazily on
// first use; concurrent first callers wait on a launch-in-progress marker
// instead of starting a second browser. Each Fetch runs in a fresh isolated
// tab context that is torn down on every exit path.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/entityscope/urlcurator/internal/curation"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher implements curation.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg     Config
	limiter chan struct{}

	mu         sync.Mutex
	launching  chan struct{}
	launchErr  error
	browserCtx context.Context
	cancels    []context.CancelFunc
	closeOnce  sync.Once
}

// New creates a headless fetcher. The browser is not launched until the
// first Fetch call.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Fetcher{cfg: cfg, limiter: limiter}, nil
}

// Close shuts down the shared browser once. Safe to call without a launch.
func (f *Fetcher) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := len(f.cancels) - 1; i >= 0; i-- {
			f.cancels[i]()
		}
		f.browserCtx = nil
	})
}

// Fetch navigates with the shared browser in a fresh tab and returns the
// rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request curation.FetchRequest) (curation.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return curation.FetchResponse{}, err
	}
	defer f.release()

	browserCtx, err := f.ensureBrowser(ctx)
	if err != nil {
		return curation.FetchResponse{}, err
	}

	// Isolated context per call, closed unconditionally.
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.runHeadless(tabCtx, request)
	if err != nil {
		return curation.FetchResponse{}, err
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}

	return curation.FetchResponse{
		URL:         request.URL,
		FinalURL:    responseURL,
		StatusCode:  status,
		Headers:     headers,
		Body:        []byte(html),
		Duration:    time.Since(start),
		UsedBrowser: true,
	}, nil
}

// ensureBrowser returns the shared browser context, launching it on first
// use. Competing callers during a launch wait for the marker channel rather
// than triggering a second launch.
func (f *Fetcher) ensureBrowser(ctx context.Context) (context.Context, error) {
	for {
		f.mu.Lock()
		if f.browserCtx != nil {
			browserCtx := f.browserCtx
			f.mu.Unlock()
			return browserCtx, nil
		}
		if f.launching != nil {
			marker := f.launching
			f.mu.Unlock()
			select {
			case <-marker:
			case <-ctx.Done():
				return nil, fmt.Errorf("wait for browser launch: %w", ctx.Err())
			}
			f.mu.Lock()
			err := f.launchErr
			f.mu.Unlock()
			if err != nil {
				return nil, err
			}
			continue
		}
		marker := make(chan struct{})
		f.launching = marker
		f.mu.Unlock()

		browserCtx, cancels, err := f.launch()

		f.mu.Lock()
		f.launching = nil
		f.launchErr = err
		if err == nil {
			f.browserCtx = browserCtx
			f.cancels = cancels
		}
		f.mu.Unlock()
		close(marker)

		if err != nil {
			return nil, err
		}
		return browserCtx, nil
	}
}

func (f *Fetcher) launch() (context.Context, []context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser process eagerly so launch failures surface here,
	// not inside the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	return browserCtx, []context.CancelFunc{allocCancel, browserCancel}, nil
}

func (f *Fetcher) runHeadless(ctx context.Context, request curation.FetchRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	wait := chromedp.WaitReady("body", chromedp.ByQuery)
	if request.WaitSelector != "" {
		wait = chromedp.WaitVisible(request.WaitSelector, chromedp.ByQuery)
	}
	actions := []chromedp.Action{
		f.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
		wait,
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, cloneHeader(m.headers), m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
