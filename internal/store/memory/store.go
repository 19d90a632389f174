// Package memory provides an in-memory Store for preview mode, development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/store"
)

// Store keeps every table in process memory behind one mutex.
type Store struct {
	mu        sync.RWMutex
	runs      map[string]curation.Run
	entities  map[string][]curation.Entity // run_id -> snapshots
	subRuns   map[string]curation.SubmoduleRun
	approvals map[string][]curation.ResultApproval // submodule_run_id -> rows
	curated   map[string]curation.CuratedURL       // entity_id|url -> row
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		runs:      make(map[string]curation.Run),
		entities:  make(map[string][]curation.Entity),
		subRuns:   make(map[string]curation.SubmoduleRun),
		approvals: make(map[string][]curation.ResultApproval),
		curated:   make(map[string]curation.CuratedURL),
	}
}

// CreateRun stores a run record.
func (s *Store) CreateRun(_ context.Context, run curation.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// CreateEntities stores entity snapshots for a run.
func (s *Store) CreateEntities(_ context.Context, runID string, entities []curation.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[runID] = append(s.entities[runID], entities...)
	return nil
}

// GetEntities loads entity snapshots for a run, optionally filtered by ID.
func (s *Store) GetEntities(_ context.Context, runID string, entityIDs []string) ([]curation.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, ok := s.entities[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if len(entityIDs) == 0 {
		out := make([]curation.Entity, len(all))
		copy(out, all)
		return out, nil
	}
	wanted := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = true
	}
	var out []curation.Entity
	for _, e := range all {
		if wanted[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// CreateSubmoduleRun stores an execution record.
func (s *Store) CreateSubmoduleRun(_ context.Context, rec curation.SubmoduleRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subRuns[rec.ID]; exists {
		return fmt.Errorf("submodule run %s already exists", rec.ID)
	}
	s.subRuns[rec.ID] = rec
	return nil
}

// GetSubmoduleRun fetches an execution record by ID.
func (s *Store) GetSubmoduleRun(_ context.Context, id string) (curation.SubmoduleRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.subRuns[id]
	if !ok {
		return curation.SubmoduleRun{}, store.ErrNotFound
	}
	return rec, nil
}

// UpdateSubmoduleRunStatus mutates only the status fields of a record.
func (s *Store) UpdateSubmoduleRunStatus(_ context.Context, id string, status curation.RunStatus, decidedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.subRuns[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	switch status {
	case curation.RunStatusApproved:
		rec.ApprovedAt = decidedAt
	case curation.RunStatusRejected:
		rec.RejectedAt = decidedAt
	}
	s.subRuns[id] = rec
	return nil
}

// ListSubmoduleRuns returns records sorted by creation time descending.
func (s *Store) ListSubmoduleRuns(_ context.Context, status *curation.RunStatus, limit, offset int) ([]curation.SubmoduleRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []curation.SubmoduleRun
	for _, rec := range s.subRuns {
		if status != nil && rec.Status != *status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateApprovals stores approval rows, one per flattened result.
func (s *Store) CreateApprovals(_ context.Context, rows []curation.ResultApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.approvals[row.SubmoduleRunID] = append(s.approvals[row.SubmoduleRunID], row)
	}
	return nil
}

// ListApprovals returns all approval rows of a run in result-index order.
func (s *Store) ListApprovals(_ context.Context, submoduleRunID string) ([]curation.ResultApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.approvals[submoduleRunID]
	out := make([]curation.ResultApproval, len(rows))
	copy(out, rows)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ResultIndex < out[j].ResultIndex
	})
	return out, nil
}

// UpdateApproval sets the decision on one row. Decided rows are immutable.
func (s *Store) UpdateApproval(_ context.Context, submoduleRunID string, resultIndex int, status curation.ApprovalStatus, reason string, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.approvals[submoduleRunID]
	if !ok {
		return store.ErrNotFound
	}
	for i, row := range rows {
		if row.ResultIndex != resultIndex {
			continue
		}
		if row.Status != curation.ApprovalPending {
			return nil
		}
		row.Status = status
		row.RejectionReason = reason
		row.DecidedAt = &decidedAt
		rows[i] = row
		return nil
	}
	return store.ErrNotFound
}

// CountApprovals aggregates decision counts for a run.
func (s *Store) CountApprovals(_ context.Context, submoduleRunID string) (store.ApprovalCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := store.ApprovalCounts{}
	for _, row := range s.approvals[submoduleRunID] {
		counts.Total++
		switch row.Status {
		case curation.ApprovalPending:
			counts.Pending++
		case curation.ApprovalApproved:
			counts.Approved++
		case curation.ApprovalRejected:
			counts.Rejected++
		}
	}
	return counts, nil
}

// PromoteURLs inserts curated rows, ignoring (entity, url) duplicates.
func (s *Store) PromoteURLs(_ context.Context, rows []curation.CuratedURL) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, row := range rows {
		key := row.EntityID + "|" + row.URL
		if _, exists := s.curated[key]; exists {
			continue
		}
		s.curated[key] = row
		inserted++
	}
	return inserted, nil
}

// ListCandidateURLs flattens the result items of completed submodule runs
// belonging to the given run, capped at the hard ceiling.
func (s *Store) ListCandidateURLs(_ context.Context, runID string) ([]curation.URLCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []curation.SubmoduleRun
	for _, rec := range s.subRuns {
		if rec.RunID == runID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	var out []curation.URLCandidate
	for _, rec := range recs {
		for _, item := range rec.Results.Items {
			if len(out) >= store.CandidateHardCap {
				return out, nil
			}
			out = append(out, item)
		}
	}
	return out, nil
}

// CuratedURLs returns the promoted URL set (test/inspection helper).
func (s *Store) CuratedURLs() []curation.CuratedURL {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]curation.CuratedURL, 0, len(s.curated))
	for _, row := range s.curated {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// Ping always succeeds for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() {}
