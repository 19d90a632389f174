package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entityscope/urlcurator/internal/curation"
)

type stubFetcher struct {
	resp  curation.FetchResponse
	err   error
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, req curation.FetchRequest) (curation.FetchResponse, error) {
	s.calls++
	if s.err != nil {
		return curation.FetchResponse{}, s.err
	}
	resp := s.resp
	resp.URL = req.URL
	return resp, nil
}

func TestEngineEscalatesBlockedResponseToBrowserOnce(t *testing.T) {
	t.Parallel()

	direct := &stubFetcher{resp: curation.FetchResponse{
		StatusCode: 403,
		Body:       []byte("<html>please solve this CAPTCHA</html>"),
	}}
	browser := &stubFetcher{resp: curation.FetchResponse{
		StatusCode: 200,
		Body:       []byte("<html>real content</html>"),
	}}
	engine := NewEngine(direct, browser, NewBlockDetector(0, nil), nil)

	resp, err := engine.Fetch(context.Background(), curation.FetchRequest{URL: "https://acme.test"})
	require.NoError(t, err)
	require.True(t, resp.UsedBrowser)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 1, direct.calls)
	require.Equal(t, 1, browser.calls)
}

func TestEngineReturnsDirectResponseWhenClean(t *testing.T) {
	t.Parallel()

	direct := &stubFetcher{resp: curation.FetchResponse{
		StatusCode: 200,
		Body:       []byte("<html>hello</html>"),
	}}
	browser := &stubFetcher{}
	engine := NewEngine(direct, browser, NewBlockDetector(0, nil), nil)

	resp, err := engine.Fetch(context.Background(), curation.FetchRequest{URL: "https://acme.test"})
	require.NoError(t, err)
	require.False(t, resp.UsedBrowser)
	require.Zero(t, browser.calls)
}

func TestEngineForceBrowserSkipsDirectPath(t *testing.T) {
	t.Parallel()

	direct := &stubFetcher{}
	browser := &stubFetcher{resp: curation.FetchResponse{StatusCode: 200}}
	engine := NewEngine(direct, browser, NewBlockDetector(0, nil), nil)

	resp, err := engine.Fetch(context.Background(), curation.FetchRequest{
		URL:          "https://acme.test",
		ForceBrowser: true,
	})
	require.NoError(t, err)
	require.True(t, resp.UsedBrowser)
	require.Zero(t, direct.calls)
	require.Equal(t, 1, browser.calls)
}

func TestEngineBothPathsFailingReturnsError(t *testing.T) {
	t.Parallel()

	direct := &stubFetcher{err: errors.New("connection refused")}
	browser := &stubFetcher{err: errors.New("navigation timeout")}
	engine := NewEngine(direct, browser, NewBlockDetector(0, nil), nil)

	_, err := engine.Fetch(context.Background(), curation.FetchRequest{URL: "https://down.test"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "navigation timeout")
	require.Contains(t, err.Error(), "connection refused")
}

func TestEngineNoBrowserConfigured(t *testing.T) {
	t.Parallel()

	direct := &stubFetcher{resp: curation.FetchResponse{StatusCode: 429}}
	engine := NewEngine(direct, nil, NewBlockDetector(0, nil), nil)

	_, err := engine.Fetch(context.Background(), curation.FetchRequest{URL: "https://acme.test"})
	require.Error(t, err)
	require.Equal(t, 1, direct.calls)
}
