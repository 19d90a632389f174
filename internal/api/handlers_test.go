package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entityscope/urlcurator/internal/approval"
	"github.com/entityscope/urlcurator/internal/clock/system"
	"github.com/entityscope/urlcurator/internal/config"
	"github.com/entityscope/urlcurator/internal/curation"
	eventsmem "github.com/entityscope/urlcurator/internal/events/memory"
	"github.com/entityscope/urlcurator/internal/id/uuid"
	"github.com/entityscope/urlcurator/internal/orchestrator"
	storemem "github.com/entityscope/urlcurator/internal/store/memory"
	"github.com/entityscope/urlcurator/internal/submodule/catalog"
)

type refusingFetcher struct{}

func (refusingFetcher) Fetch(context.Context, curation.FetchRequest) (curation.FetchResponse, error) {
	return curation.FetchResponse{}, errors.New("no network in tests")
}

func newTestServer(t *testing.T) (*Server, *storemem.Store) {
	t.Helper()

	registry, err := catalog.New()
	require.NoError(t, err)

	st := storemem.New()
	publisher := eventsmem.New()
	clk := system.New()
	ids := uuid.New()
	logger := zap.NewNop()

	orch := orchestrator.New(registry, st, refusingFetcher{}, nil, publisher, "curation-events", clk, ids, logger)
	approvals := approval.New(st, publisher, "curation-events", clk, logger)

	return NewServer(registry, orch, approvals, st, config.Config{}, logger), st
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = doJSON(t, s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestListSubmodulesReturnsCatalog(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/v1/submodules", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	submodules, ok := body["submodules"].([]any)
	require.True(t, ok)
	require.Len(t, submodules, 8)
}

func TestExecuteRejectsUnknownTypeAndName(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	payload := map[string]any{
		"entities": []curation.Entity{{ID: "e1", Name: "Acme", Website: "https://acme.test"}},
	}

	rec := doJSON(t, s, http.MethodPost, "/v1/submodules/mystery/dedup/execute", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/v1/submodules/validation/nonexistent/execute", payload)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteRejectsAmbiguousInput(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	payload := map[string]any{
		"entities": []curation.Entity{{ID: "e1", Name: "Acme", Website: "https://acme.test"}},
		"run_id":   "run-1",
	}

	rec := doJSON(t, s, http.MethodPost, "/v1/submodules/validation/dedup/execute", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody(t, rec)["error"], "input mode")
}

func TestExecuteDedupPreview(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t)
	payload := map[string]any{
		"entities": []curation.Entity{{ID: "e1", Name: "Acme", Website: "https://acme.test"}},
		"urls": []curation.URLCandidate{
			{EntityID: "e1", URL: "https://acme.test/about"},
			{EntityID: "e1", URL: "https://acme.test/about?utm_source=mail"},
			{EntityID: "e1", URL: "https://acme.test/careers"},
		},
	}

	rec := doJSON(t, s, http.MethodPost, "/v1/submodules/validation/dedup/execute", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp orchestrator.ExecuteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Preview)
	require.Equal(t, curation.RunStatusCompleted, resp.SubmoduleRun.Status)
	require.Equal(t, 2, resp.SubmoduleRun.ResultCount)
	require.Len(t, resp.SubmoduleRun.Results.Invalid, 1)

	// Preview persists nothing.
	_, err := st.GetSubmoduleRun(context.Background(), resp.SubmoduleRun.ID)
	require.Error(t, err)
}

func TestApproveFlowOverHTTP(t *testing.T) {
	t.Parallel()

	s, st := newTestServer(t)
	payload := map[string]any{
		"project_id": "proj-1",
		"entities":   []curation.Entity{{ID: "e1", Name: "Acme", Website: "https://acme.test"}},
		"urls": []curation.URLCandidate{
			{EntityID: "e1", URL: "https://acme.test/about"},
			{EntityID: "e1", URL: "https://acme.test/careers"},
		},
	}

	rec := doJSON(t, s, http.MethodPost, "/v1/submodules/validation/dedup/execute", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp orchestrator.ExecuteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Preview)
	runID := resp.SubmoduleRun.ID

	rec = doJSON(t, s, http.MethodGet, "/v1/submodule-runs/"+runID+"/approvals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	approvals, ok := decodeBody(t, rec)["approvals"].([]any)
	require.True(t, ok)
	require.Len(t, approvals, 2)

	rec = doJSON(t, s, http.MethodPost, "/v1/submodule-runs/"+runID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var decision approval.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	require.Equal(t, curation.RunStatusApproved, decision.Status)
	require.Equal(t, 2, decision.ApprovedCount)
	require.Equal(t, 2, decision.PromotedCount)
	require.Len(t, st.CuratedURLs(), 2)

	// Re-approval is an idempotent success.
	rec = doJSON(t, s, http.MethodPost, "/v1/submodule-runs/"+runID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	require.True(t, decision.AlreadyApproved)
	require.Len(t, st.CuratedURLs(), 2)
}

func TestDecideSingleResultOverHTTP(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	payload := map[string]any{
		"project_id": "proj-1",
		"entities":   []curation.Entity{{ID: "e1", Name: "Acme", Website: "https://acme.test"}},
		"urls": []curation.URLCandidate{
			{EntityID: "e1", URL: "https://acme.test/about"},
			{EntityID: "e1", URL: "https://acme.test/careers"},
		},
	}

	rec := doJSON(t, s, http.MethodPost, "/v1/submodules/validation/dedup/execute", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp orchestrator.ExecuteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	runID := resp.SubmoduleRun.ID

	rec = doJSON(t, s, http.MethodPost,
		fmt.Sprintf("/v1/submodule-runs/%s/results/0/decision", runID),
		decisionRequest{Approve: false, Reason: "wrong entity"})
	require.Equal(t, http.StatusOK, rec.Code)

	var decision approval.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	require.Equal(t, curation.RunStatusPartial, decision.Status)
	require.Equal(t, 1, decision.Counts.Pending)

	rec = doJSON(t, s, http.MethodPost,
		fmt.Sprintf("/v1/submodule-runs/%s/results/abc/decision", runID),
		decisionRequest{Approve: true})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunLookupsAndValidation(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/v1/submodule-runs/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/v1/submodule-runs/missing/approve", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/v1/submodule-runs/?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/v1/submodule-runs/?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/v1/submodule-runs/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs, ok := decodeBody(t, rec)["submodule_runs"].([]any)
	require.True(t, ok)
	require.Empty(t, runs)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	registry, err := catalog.New()
	require.NoError(t, err)
	st := storemem.New()
	clk := system.New()
	logger := zap.NewNop()
	orch := orchestrator.New(registry, st, refusingFetcher{}, nil, nil, "", clk, uuid.New(), logger)
	approvals := approval.New(st, nil, "", clk, logger)

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "sekrit"}}
	s := NewServer(registry, orch, approvals, st, cfg, logger)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
