package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/entityscope/urlcurator/internal/curation"
	eventsmemory "github.com/entityscope/urlcurator/internal/events/memory"
	"github.com/entityscope/urlcurator/internal/snapshot"
	snapshotmemory "github.com/entityscope/urlcurator/internal/snapshot/memory"
	storememory "github.com/entityscope/urlcurator/internal/store/memory"
	"github.com/entityscope/urlcurator/internal/submodule/catalog"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

// failingFetcher refuses every URL, simulating an unreachable domain.
type failingFetcher struct{}

func (failingFetcher) Fetch(_ context.Context, req curation.FetchRequest) (curation.FetchResponse, error) {
	return curation.FetchResponse{}, errors.New("no such host: " + req.URL)
}

func newOrchestrator(t *testing.T) (*Orchestrator, *storememory.Store, *eventsmemory.Publisher) {
	t.Helper()
	registry, err := catalog.New()
	require.NoError(t, err)
	st := storememory.New()
	publisher := eventsmemory.New()
	orch := New(
		registry,
		st,
		failingFetcher{},
		nil,
		publisher,
		"curation-events",
		fixedClock{at: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)},
		&seqIDs{},
		zap.NewNop(),
	)
	return orch, st, publisher
}

func TestExecutePreviewUnreachableDomainCompletesWithEntityError(t *testing.T) {
	t.Parallel()

	orch, st, publisher := newOrchestrator(t)
	resp, err := orch.Execute(context.Background(), ExecuteRequest{
		SubmoduleType: "discovery",
		SubmoduleName: "sitemap",
		Entities:      []curation.Entity{{Name: "Acme", Website: "acme.test"}},
	})
	require.NoError(t, err)
	require.True(t, resp.Preview)
	require.Equal(t, curation.RunStatusCompleted, resp.SubmoduleRun.Status)
	require.Zero(t, resp.SubmoduleRun.ResultCount)
	require.Len(t, resp.SubmoduleRun.Results.Errors, 1)
	require.Equal(t, "SITEMAP_NOT_FOUND", resp.SubmoduleRun.Results.Errors[0].Code)

	// Preview persists nothing.
	runs, err := st.ListSubmoduleRuns(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Empty(t, runs)

	// Start and complete events still fire.
	require.Len(t, publisher.Messages(), 2)
}

func TestExecuteProjectModeCreatesRunAndSnapshots(t *testing.T) {
	t.Parallel()

	orch, st, _ := newOrchestrator(t)
	resp, err := orch.Execute(context.Background(), ExecuteRequest{
		SubmoduleType: "discovery",
		SubmoduleName: "sitemap",
		ProjectID:     "proj-1",
		Entities:      []curation.Entity{{Name: "Acme", Website: "acme.test"}},
	})
	require.NoError(t, err)
	require.False(t, resp.Preview)
	require.NotEmpty(t, resp.RunID)
	require.Len(t, resp.EntityIDs, 1)
	require.NotEmpty(t, resp.EntityIDs[0])

	entities, err := st.GetEntities(context.Background(), resp.RunID, nil)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, "Acme", entities[0].Name)

	rec, err := st.GetSubmoduleRun(context.Background(), resp.SubmoduleRun.ID)
	require.NoError(t, err)
	require.Equal(t, resp.RunID, rec.RunID)
}

func TestExecuteRunModeLoadsStoredSnapshots(t *testing.T) {
	t.Parallel()

	orch, st, _ := newOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, curation.Run{ID: "run-1", ProjectID: "p1"}))
	require.NoError(t, st.CreateEntities(ctx, "run-1", []curation.Entity{
		{ID: "e1", Name: "Acme", Website: "acme.test"},
		{ID: "e2", Name: "Globex", Website: "globex.test"},
	}))

	resp, err := orch.Execute(ctx, ExecuteRequest{
		SubmoduleType: "discovery",
		SubmoduleName: "sitemap",
		RunID:         "run-1",
		EntityIDs:     []string{"e2"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"e2"}, resp.EntityIDs)
	require.Len(t, resp.SubmoduleRun.Results.Errors, 1)
	require.Equal(t, "Globex", resp.SubmoduleRun.Results.Errors[0].EntityName)
}

func TestExecuteRejectsAmbiguousAndEmptyInput(t *testing.T) {
	t.Parallel()

	orch, _, _ := newOrchestrator(t)
	_, err := orch.Execute(context.Background(), ExecuteRequest{
		SubmoduleType: "discovery",
		SubmoduleName: "sitemap",
		Entities:      []curation.Entity{{Name: "Acme", Website: "acme.test"}},
		RunID:         "run-1",
	})
	require.ErrorIs(t, err, ErrAmbiguousInput)

	_, err = orch.Execute(context.Background(), ExecuteRequest{
		SubmoduleType: "discovery",
		SubmoduleName: "sitemap",
	})
	require.ErrorIs(t, err, ErrNoEntities)
}

func TestExecuteUnknownSubmoduleIsClientError(t *testing.T) {
	t.Parallel()

	orch, st, _ := newOrchestrator(t)
	_, err := orch.Execute(context.Background(), ExecuteRequest{
		SubmoduleType: "discovery",
		SubmoduleName: "telepathy",
		Entities:      []curation.Entity{{Name: "Acme", Website: "acme.test"}},
	})
	require.ErrorIs(t, err, ErrUnknownSubmodule)

	runs, listErr := st.ListSubmoduleRuns(context.Background(), nil, 10, 0)
	require.NoError(t, listErr)
	require.Empty(t, runs, "no partial state on client errors")
}

func TestExecuteValidationWithExplicitURLsCreatesApprovals(t *testing.T) {
	t.Parallel()

	orch, st, _ := newOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, curation.Run{ID: "run-1", ProjectID: "p1"}))
	require.NoError(t, st.CreateEntities(ctx, "run-1", []curation.Entity{{ID: "e1", Name: "Acme", Website: "acme.test"}}))

	resp, err := orch.Execute(ctx, ExecuteRequest{
		SubmoduleType: "validation",
		SubmoduleName: "dedup",
		RunID:         "run-1",
		EntityIDs:     []string{"e1"},
		URLs: []curation.URLCandidate{
			{EntityID: "e1", URL: "https://acme.test/about"},
			{EntityID: "e1", URL: "https://acme.test/about/"},
			{EntityID: "e1", URL: "https://acme.test/careers"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, curation.RunStatusCompleted, resp.SubmoduleRun.Status)
	require.Equal(t, 2, resp.SubmoduleRun.ResultCount)
	require.Len(t, resp.SubmoduleRun.Results.Invalid, 1)
	require.NotNil(t, resp.SubmoduleRun.Results.Stats)

	rows, err := st.ListApprovals(ctx, resp.SubmoduleRun.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for i, row := range rows {
		require.Equal(t, i, row.ResultIndex)
		require.Equal(t, curation.ApprovalPending, row.Status)
	}
}

func TestExecuteValidationLoadsRunCandidatesWhenNoURLsGiven(t *testing.T) {
	t.Parallel()

	orch, st, _ := newOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, curation.Run{ID: "run-1", ProjectID: "p1"}))
	require.NoError(t, st.CreateEntities(ctx, "run-1", []curation.Entity{{ID: "e1", Name: "Acme", Website: "acme.test"}}))
	require.NoError(t, st.CreateSubmoduleRun(ctx, curation.SubmoduleRun{
		ID:            "sr-disc",
		RunID:         "run-1",
		SubmoduleType: "discovery",
		SubmoduleName: "sitemap",
		Status:        curation.RunStatusCompleted,
		Results: curation.Envelope{Items: []curation.URLCandidate{
			{EntityID: "e1", URL: "https://acme.test/a"},
			{EntityID: "e1", URL: "https://acme.test/a/"},
		}},
	}))

	resp, err := orch.Execute(ctx, ExecuteRequest{
		SubmoduleType: "validation",
		SubmoduleName: "dedup",
		RunID:         "run-1",
		EntityIDs:     []string{"e1"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.SubmoduleRun.ResultCount)
	require.Len(t, resp.SubmoduleRun.Results.Invalid, 1)
}

func TestExecuteCapturesRunLogs(t *testing.T) {
	t.Parallel()

	orch, _, _ := newOrchestrator(t)
	resp, err := orch.Execute(context.Background(), ExecuteRequest{
		SubmoduleType: "discovery",
		SubmoduleName: "sitemap",
		Entities:      []curation.Entity{{Name: "Acme", Website: "acme.test"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SubmoduleRun.Logs, "submodule warnings must be buffered on the record")
}

// sitemapFetcher serves a fixed urlset for every request.
type sitemapFetcher struct{}

func (sitemapFetcher) Fetch(_ context.Context, req curation.FetchRequest) (curation.FetchResponse, error) {
	body := `<?xml version="1.0"?><urlset><url><loc>https://acme.test/about</loc></url></urlset>`
	return curation.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

func TestExecuteRecordsSnapshotURIsInEnvelopeMetadata(t *testing.T) {
	t.Parallel()

	registry, err := catalog.New()
	require.NoError(t, err)
	st := storememory.New()
	blobs := snapshotmemory.NewBlobStore()
	archiver := snapshot.New(blobs, "pages", zap.NewNop())

	orch := New(
		registry,
		st,
		sitemapFetcher{},
		archiver,
		nil,
		"",
		fixedClock{at: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)},
		&seqIDs{},
		zap.NewNop(),
	)

	resp, err := orch.Execute(context.Background(), ExecuteRequest{
		SubmoduleType: "discovery",
		SubmoduleName: "sitemap",
		Entities:      []curation.Entity{{ID: "e1", Name: "Acme", Website: "https://acme.test"}},
	})
	require.NoError(t, err)
	require.Equal(t, curation.RunStatusCompleted, resp.SubmoduleRun.Status)
	require.Equal(t, 1, resp.SubmoduleRun.ResultCount)

	uris, ok := resp.SubmoduleRun.Results.Metadata["snapshots"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, uris)
	require.Contains(t, uris[0], "pages/"+resp.SubmoduleRun.ID+"/")
	require.Positive(t, blobs.Len())
}
