package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/store"
)

func TestCreateRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", "project-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.CreateRun(context.Background(), curation.Run{ID: "run-1", ProjectID: "project-1", CreatedAt: now})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntitiesMarshalsSeedURLs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)

	mock.ExpectExec("INSERT INTO run_entities").
		WithArgs("run-1", "e1", "Acme", "https://acme.test",
			[]byte(`["https://acme.test/about"]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.CreateEntities(context.Background(), "run-1", []curation.Entity{{
		ID:       "e1",
		Name:     "Acme",
		Website:  "https://acme.test",
		SeedURLs: []string{"https://acme.test/about"},
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntitiesScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)

	rows := pgxmock.NewRows([]string{"entity_id", "name", "website", "seed_urls"}).
		AddRow("e1", "Acme", "https://acme.test", []byte(`["https://acme.test/x"]`)).
		AddRow("e2", "Globex", "https://globex.test", []byte(nil))

	mock.ExpectQuery("SELECT entity_id, name, website, seed_urls").
		WithArgs("run-1", []string{}).
		WillReturnRows(rows)

	entities, err := s.GetEntities(context.Background(), "run-1", nil)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	require.Equal(t, []string{"https://acme.test/x"}, entities[0].SeedURLs)
	require.Equal(t, "Globex", entities[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntitiesEmptyResultIsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)

	mock.ExpectQuery("SELECT entity_id, name, website, seed_urls").
		WithArgs("run-1", []string{"missing"}).
		WillReturnRows(pgxmock.NewRows([]string{"entity_id", "name", "website", "seed_urls"}))

	_, err = s.GetEntities(context.Background(), "run-1", []string{"missing"})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntitiesMissingRelationDegrades(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)

	mock.ExpectQuery("SELECT entity_id, name, website, seed_urls").
		WithArgs("run-1", []string{}).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})

	_, err = s.GetEntities(context.Background(), "run-1", nil)
	require.ErrorIs(t, err, store.ErrRelationMissing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubmoduleRunNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)

	mock.ExpectQuery("SELECT id, run_id, submodule_type").
		WithArgs("sr-missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.GetSubmoduleRun(context.Background(), "sr-missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubmoduleRunUnpacksJSONColumns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)
	now := time.Unix(1700000000, 0).UTC()

	results, err := json.Marshal(curation.Envelope{
		Items: []curation.URLCandidate{{URL: "https://acme.test/a", EntityID: "e1"}},
	})
	require.NoError(t, err)
	cfg, err := json.Marshal(map[string]any{"scope": "entity"})
	require.NoError(t, err)
	logs, err := json.Marshal([]curation.LogLine{{Level: "info", Message: "line one", At: now}})
	require.NoError(t, err)
	runID := "run-1"

	rows := pgxmock.NewRows([]string{
		"id", "run_id", "submodule_type", "submodule_name", "entity_ids",
		"config", "status", "result_count", "results", "logs", "duration_ms",
		"error", "created_at", "approved_at", "rejected_at",
	}).AddRow(
		"sr-1", &runID, "validation", "dedup",
		[]string{"e1"}, cfg, curation.RunStatusCompleted, 1, results, logs,
		int64(42), (*string)(nil), now, (*time.Time)(nil), (*time.Time)(nil),
	)

	mock.ExpectQuery("SELECT id, run_id, submodule_type").
		WithArgs("sr-1").
		WillReturnRows(rows)

	rec, err := s.GetSubmoduleRun(context.Background(), "sr-1")
	require.NoError(t, err)
	require.Equal(t, "run-1", rec.RunID)
	require.Equal(t, "dedup", rec.SubmoduleName)
	require.Len(t, rec.Results.Items, 1)
	require.Equal(t, "https://acme.test/a", rec.Results.Items[0].URL)
	require.Equal(t, "entity", rec.Config["scope"])
	require.Len(t, rec.Logs, 1)
	require.Equal(t, "line one", rec.Logs[0].Message)
	require.Empty(t, rec.Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSubmoduleRunStatusMissingRowIsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE submodule_runs").
		WithArgs(curation.RunStatusApproved, &now, "sr-missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.UpdateSubmoduleRunStatus(context.Background(), "sr-missing", curation.RunStatusApproved, &now)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateApprovalsMissingRelationDegrades(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)

	mock.ExpectExec("INSERT INTO result_approvals").
		WithArgs("sr-1", 0, "https://acme.test/a", "e1", curation.ApprovalPending).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})

	err = s.CreateApprovals(context.Background(), []curation.ResultApproval{{
		SubmoduleRunID: "sr-1",
		ResultIndex:    0,
		ResultURL:      "https://acme.test/a",
		ResultEntityID: "e1",
		Status:         curation.ApprovalPending,
	}})
	require.ErrorIs(t, err, store.ErrRelationMissing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoteURLsCountsOnlyNewRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)
	now := time.Unix(1700000000, 0).UTC()
	runID := "run-1"

	mock.ExpectExec("INSERT INTO curated_urls").
		WithArgs(&runID, "e1", "Acme", "https://acme.test/a", "dedup", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO curated_urls").
		WithArgs(&runID, "e1", "Acme", "https://acme.test/b", "dedup", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := s.PromoteURLs(context.Background(), []curation.CuratedURL{
		{RunID: "run-1", EntityID: "e1", EntityName: "Acme", URL: "https://acme.test/a", Source: "dedup", AddedAt: now},
		{RunID: "run-1", EntityID: "e1", EntityName: "Acme", URL: "https://acme.test/b", Source: "dedup", AddedAt: now},
	})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountApprovals(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)

	mock.ExpectQuery("SELECT").
		WithArgs("sr-1").
		WillReturnRows(pgxmock.NewRows([]string{"total", "pending", "approved", "rejected"}).
			AddRow(4, 1, 2, 1))

	counts, err := s.CountApprovals(context.Background(), "sr-1")
	require.NoError(t, err)
	require.Equal(t, store.ApprovalCounts{Total: 4, Pending: 1, Approved: 2, Rejected: 1}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCandidateURLsFlattensEnvelopes(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)

	first, err := json.Marshal(curation.Envelope{Items: []curation.URLCandidate{
		{URL: "https://acme.test/a", EntityID: "e1"},
		{URL: "https://acme.test/b", EntityID: "e1"},
	}})
	require.NoError(t, err)
	second, err := json.Marshal(curation.Envelope{Items: []curation.URLCandidate{
		{URL: "https://acme.test/c", EntityID: "e2"},
	}})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT results").
		WithArgs("run-1", store.CandidatePageSize, 0).
		WillReturnRows(pgxmock.NewRows([]string{"results"}).
			AddRow(first).
			AddRow(second))

	urls, err := s.ListCandidateURLs(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, urls, 3)
	require.Equal(t, "https://acme.test/c", urls[2].URL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCandidateURLsMissingRelationIsEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewWithDB(mock)

	mock.ExpectQuery("SELECT results").
		WithArgs("run-1", store.CandidatePageSize, 0).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})

	urls, err := s.ListCandidateURLs(context.Background(), "run-1")
	require.NoError(t, err)
	require.Empty(t, urls)
	require.NoError(t, mock.ExpectationsWereMet())
}
