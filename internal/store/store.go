// Package store defines the persistence interface the pipeline consumes.
// The relational schema behind it is an external collaborator; the core only
// needs filter/range reads, inserts, and status updates, and must tolerate
// the target tables not existing yet.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/entityscope/urlcurator/internal/curation"
)

// ErrNotFound marks a missing record.
var ErrNotFound = errors.New("record not found")

// ErrRelationMissing marks the well-known "relation does not exist" signal
// from the datastore; callers degrade gracefully instead of failing.
var ErrRelationMissing = errors.New("relation does not exist")

// Candidate reads page through results because the datastore enforces a
// per-query row cap.
const (
	CandidatePageSize = 1000
	CandidateHardCap  = 50000
)

// ApprovalCounts aggregates the decision state of one submodule run.
type ApprovalCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Store is the datastore contract consumed by the orchestrator and the
// approval state machine.
type Store interface {
	// Runs and entity snapshots.
	CreateRun(ctx context.Context, run curation.Run) error
	CreateEntities(ctx context.Context, runID string, entities []curation.Entity) error
	GetEntities(ctx context.Context, runID string, entityIDs []string) ([]curation.Entity, error)

	// Submodule execution records.
	CreateSubmoduleRun(ctx context.Context, rec curation.SubmoduleRun) error
	GetSubmoduleRun(ctx context.Context, id string) (curation.SubmoduleRun, error)
	UpdateSubmoduleRunStatus(ctx context.Context, id string, status curation.RunStatus, decidedAt *time.Time) error
	ListSubmoduleRuns(ctx context.Context, status *curation.RunStatus, limit, offset int) ([]curation.SubmoduleRun, error)

	// Approval rows. CreateApprovals may return ErrRelationMissing.
	CreateApprovals(ctx context.Context, rows []curation.ResultApproval) error
	ListApprovals(ctx context.Context, submoduleRunID string) ([]curation.ResultApproval, error)
	UpdateApproval(ctx context.Context, submoduleRunID string, resultIndex int, status curation.ApprovalStatus, reason string, decidedAt time.Time) error
	CountApprovals(ctx context.Context, submoduleRunID string) (ApprovalCounts, error)

	// Durable URL set. Insert-or-ignore keyed on (entity, url); returns the
	// number of rows actually inserted.
	PromoteURLs(ctx context.Context, rows []curation.CuratedURL) (int, error)

	// ListCandidateURLs pages through the candidate set of a run in capped
	// batches up to the hard ceiling. Returns an empty slice when the
	// backing relation does not exist.
	ListCandidateURLs(ctx context.Context, runID string) ([]curation.URLCandidate, error)

	Ping(ctx context.Context) error
	Close()
}
