// Package postgres provides the pgx-backed Store implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/store"
)

// DB is the subset of pgxpool.Pool the store uses; pgxmock implements it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements store.Store on Postgres.
type Store struct {
	db DB
}

// New connects a pool for the given DSN.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &Store{db: pool}, nil
}

// NewWithDB wraps an existing connection (tests use pgxmock here).
func NewWithDB(db DB) *Store {
	return &Store{db: db}
}

// relationMissing translates the Postgres undefined-table error into the
// store sentinel so callers can degrade gracefully.
func relationMissing(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// CreateRun inserts a run record.
func (s *Store) CreateRun(ctx context.Context, run curation.Run) error {
	query := `
		INSERT INTO runs (id, project_id, created_at)
		VALUES ($1, $2, $3);
	`
	if _, err := s.db.Exec(ctx, query, run.ID, run.ProjectID, run.CreatedAt); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CreateEntities inserts entity snapshots and their run association.
func (s *Store) CreateEntities(ctx context.Context, runID string, entities []curation.Entity) error {
	query := `
		INSERT INTO run_entities (run_id, entity_id, name, website, seed_urls)
		VALUES ($1, $2, $3, $4, $5);
	`
	for _, e := range entities {
		seeds, err := json.Marshal(e.SeedURLs)
		if err != nil {
			return fmt.Errorf("marshal seed urls: %w", err)
		}
		if _, err := s.db.Exec(ctx, query, runID, e.ID, e.Name, e.Website, seeds); err != nil {
			return fmt.Errorf("insert entity %s: %w", e.ID, err)
		}
	}
	return nil
}

// GetEntities loads entity snapshots for a run, optionally filtered by ID.
func (s *Store) GetEntities(ctx context.Context, runID string, entityIDs []string) ([]curation.Entity, error) {
	query := `
		SELECT entity_id, name, website, seed_urls
		FROM run_entities
		WHERE run_id = $1
		  AND (cardinality($2::text[]) = 0 OR entity_id = ANY($2))
		ORDER BY entity_id;
	`
	if entityIDs == nil {
		entityIDs = []string{}
	}
	rows, err := s.db.Query(ctx, query, runID, entityIDs)
	if err != nil {
		if relationMissing(err) {
			return nil, store.ErrRelationMissing
		}
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []curation.Entity
	for rows.Next() {
		var (
			e     curation.Entity
			seeds []byte
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Website, &seeds); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		if len(seeds) > 0 {
			if err := json.Unmarshal(seeds, &e.SeedURLs); err != nil {
				return nil, fmt.Errorf("unmarshal seed urls: %w", err)
			}
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return out, nil
}

// CreateSubmoduleRun persists the full execution envelope.
func (s *Store) CreateSubmoduleRun(ctx context.Context, rec curation.SubmoduleRun) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("marshal results envelope: %w", err)
	}
	logs, err := json.Marshal(rec.Logs)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	query := `
		INSERT INTO submodule_runs
			(id, run_id, submodule_type, submodule_name, entity_ids, config,
			 status, result_count, results, logs, duration_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	_, err = s.db.Exec(ctx, query,
		rec.ID, nullable(rec.RunID), rec.SubmoduleType, rec.SubmoduleName,
		rec.EntityIDs, cfg, rec.Status, rec.ResultCount, results, logs,
		rec.DurationMS, nullable(rec.Error), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submodule run: %w", err)
	}
	return nil
}

// GetSubmoduleRun fetches an execution record by ID.
func (s *Store) GetSubmoduleRun(ctx context.Context, id string) (curation.SubmoduleRun, error) {
	query := `
		SELECT id, run_id, submodule_type, submodule_name, entity_ids, config,
		       status, result_count, results, logs, duration_ms, error,
		       created_at, approved_at, rejected_at
		FROM submodule_runs
		WHERE id = $1;
	`
	rec, err := scanSubmoduleRun(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return curation.SubmoduleRun{}, store.ErrNotFound
		}
		if relationMissing(err) {
			return curation.SubmoduleRun{}, store.ErrRelationMissing
		}
		return curation.SubmoduleRun{}, fmt.Errorf("get submodule run: %w", err)
	}
	return rec, nil
}

// UpdateSubmoduleRunStatus mutates the status fields only.
func (s *Store) UpdateSubmoduleRunStatus(ctx context.Context, id string, status curation.RunStatus, decidedAt *time.Time) error {
	query := `
		UPDATE submodule_runs
		SET status = $1,
		    approved_at = CASE WHEN $1 = 'approved' THEN $2 ELSE approved_at END,
		    rejected_at = CASE WHEN $1 = 'rejected' THEN $2 ELSE rejected_at END
		WHERE id = $3;
	`
	tag, err := s.db.Exec(ctx, query, status, decidedAt, id)
	if err != nil {
		return fmt.Errorf("update submodule run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListSubmoduleRuns returns records newest-first with optional status filter.
func (s *Store) ListSubmoduleRuns(ctx context.Context, status *curation.RunStatus, limit, offset int) ([]curation.SubmoduleRun, error) {
	query := `
		SELECT id, run_id, submodule_type, submodule_name, entity_ids, config,
		       status, result_count, results, logs, duration_ms, error,
		       created_at, approved_at, rejected_at
		FROM submodule_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		if relationMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list submodule runs: %w", err)
	}
	defer rows.Close()

	var out []curation.SubmoduleRun
	for rows.Next() {
		rec, err := scanSubmoduleRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submodule run: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// CreateApprovals inserts one row per flattened result. A missing relation
// surfaces as store.ErrRelationMissing for the caller to degrade on.
func (s *Store) CreateApprovals(ctx context.Context, rows []curation.ResultApproval) error {
	query := `
		INSERT INTO result_approvals
			(submodule_run_id, result_index, result_url, result_entity_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (submodule_run_id, result_index) DO NOTHING;
	`
	for _, row := range rows {
		if _, err := s.db.Exec(ctx, query,
			row.SubmoduleRunID, row.ResultIndex, row.ResultURL,
			row.ResultEntityID, row.Status,
		); err != nil {
			if relationMissing(err) {
				return store.ErrRelationMissing
			}
			return fmt.Errorf("insert approval %d: %w", row.ResultIndex, err)
		}
	}
	return nil
}

// ListApprovals returns all approval rows of a run in result-index order.
func (s *Store) ListApprovals(ctx context.Context, submoduleRunID string) ([]curation.ResultApproval, error) {
	query := `
		SELECT submodule_run_id, result_index, result_url, result_entity_id,
		       status, rejection_reason, decided_at
		FROM result_approvals
		WHERE submodule_run_id = $1
		ORDER BY result_index;
	`
	rows, err := s.db.Query(ctx, query, submoduleRunID)
	if err != nil {
		if relationMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []curation.ResultApproval
	for rows.Next() {
		var (
			row    curation.ResultApproval
			reason *string
		)
		if err := rows.Scan(
			&row.SubmoduleRunID, &row.ResultIndex, &row.ResultURL,
			&row.ResultEntityID, &row.Status, &reason, &row.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("scan approval row: %w", err)
		}
		if reason != nil {
			row.RejectionReason = *reason
		}
		out = append(out, row)
	}
	return out, nil
}

// UpdateApproval decides one pending row; deciding an already-decided row
// is a no-op so repeated operator actions stay idempotent.
func (s *Store) UpdateApproval(ctx context.Context, submoduleRunID string, resultIndex int, status curation.ApprovalStatus, reason string, decidedAt time.Time) error {
	query := `
		UPDATE result_approvals
		SET status = $1, rejection_reason = $2, decided_at = $3
		WHERE submodule_run_id = $4 AND result_index = $5 AND status = 'pending';
	`
	if _, err := s.db.Exec(ctx, query, status, nullable(reason), decidedAt, submoduleRunID, resultIndex); err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	return nil
}

// CountApprovals aggregates decision counts for a run.
func (s *Store) CountApprovals(ctx context.Context, submoduleRunID string) (store.ApprovalCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'approved'),
			COUNT(*) FILTER (WHERE status = 'rejected')
		FROM result_approvals
		WHERE submodule_run_id = $1;
	`
	var counts store.ApprovalCounts
	err := s.db.QueryRow(ctx, query, submoduleRunID).Scan(
		&counts.Total, &counts.Pending, &counts.Approved, &counts.Rejected,
	)
	if err != nil {
		if relationMissing(err) {
			return store.ApprovalCounts{}, store.ErrRelationMissing
		}
		return store.ApprovalCounts{}, fmt.Errorf("count approvals: %w", err)
	}
	return counts, nil
}

// PromoteURLs inserts curated rows with insert-or-ignore semantics so
// re-approval stays safe.
func (s *Store) PromoteURLs(ctx context.Context, rows []curation.CuratedURL) (int, error) {
	query := `
		INSERT INTO curated_urls (run_id, entity_id, entity_name, url, source, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_id, url) DO NOTHING;
	`
	inserted := 0
	for _, row := range rows {
		tag, err := s.db.Exec(ctx, query,
			nullable(row.RunID), row.EntityID, row.EntityName, row.URL,
			row.Source, row.AddedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("promote url %s: %w", row.URL, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListCandidateURLs pages through the candidate items of a run's completed
// submodule executions in capped batches up to the hard ceiling. A missing
// relation degrades to an empty result set.
func (s *Store) ListCandidateURLs(ctx context.Context, runID string) ([]curation.URLCandidate, error) {
	query := `
		SELECT results
		FROM submodule_runs
		WHERE run_id = $1 AND submodule_type = 'discovery'
		ORDER BY created_at
		LIMIT $2 OFFSET $3;
	`
	var out []curation.URLCandidate
	for offset := 0; ; offset += store.CandidatePageSize {
		rows, err := s.db.Query(ctx, query, runID, store.CandidatePageSize, offset)
		if err != nil {
			if relationMissing(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("page candidate urls: %w", err)
		}
		pageRows := 0
		for rows.Next() {
			pageRows++
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan results envelope: %w", err)
			}
			var envelope curation.Envelope
			if err := json.Unmarshal(raw, &envelope); err != nil {
				rows.Close()
				return nil, fmt.Errorf("unmarshal results envelope: %w", err)
			}
			for _, item := range envelope.Items {
				if len(out) >= store.CandidateHardCap {
					rows.Close()
					return out, nil
				}
				out = append(out, item)
			}
		}
		rows.Close()
		if pageRows < store.CandidatePageSize {
			return out, nil
		}
	}
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

func scanSubmoduleRun(row pgx.Row) (curation.SubmoduleRun, error) {
	var (
		rec     curation.SubmoduleRun
		runID   *string
		errText *string
		cfg     []byte
		results []byte
		logs    []byte
	)
	err := row.Scan(
		&rec.ID, &runID, &rec.SubmoduleType, &rec.SubmoduleName,
		&rec.EntityIDs, &cfg, &rec.Status, &rec.ResultCount, &results,
		&logs, &rec.DurationMS, &errText, &rec.CreatedAt,
		&rec.ApprovedAt, &rec.RejectedAt,
	)
	if err != nil {
		return curation.SubmoduleRun{}, err
	}
	if runID != nil {
		rec.RunID = *runID
	}
	if errText != nil {
		rec.Error = *errText
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &rec.Config); err != nil {
			return curation.SubmoduleRun{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return curation.SubmoduleRun{}, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &rec.Logs); err != nil {
			return curation.SubmoduleRun{}, fmt.Errorf("unmarshal logs: %w", err)
		}
	}
	return rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
