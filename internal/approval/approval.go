// Package approval implements the per-result decision state machine: single
// and batch decisions, derived run status, and promotion of approved URLs
// into the durable curated set.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/events"
	"github.com/entityscope/urlcurator/internal/metrics"
	"github.com/entityscope/urlcurator/internal/store"
)

// ErrRunNotDecidable marks a decision against a run whose execution never
// completed (still running, or failed).
var ErrRunNotDecidable = errors.New("submodule run is not in a decidable state")

// Manager owns every approval-state transition.
type Manager struct {
	store     store.Store
	publisher events.Publisher
	topic     string
	clock     curation.Clock
	logger    *zap.Logger
}

// New builds a Manager. publisher may be nil to disable event emission.
func New(st store.Store, publisher events.Publisher, topic string, clock curation.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		store:     st,
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		logger:    logger,
	}
}

// Decision is the outcome of a run-level approve or reject call.
type Decision struct {
	SubmoduleRunID  string               `json:"submodule_run_id"`
	Status          curation.RunStatus   `json:"status"`
	AlreadyApproved bool                 `json:"already_approved,omitempty"`
	AlreadyRejected bool                 `json:"already_rejected,omitempty"`
	ApprovedCount   int                  `json:"approved_count"`
	RejectedCount   int                  `json:"rejected_count"`
	PromotedCount   int                  `json:"promoted_count"`
	Counts          store.ApprovalCounts `json:"counts"`
}

// DeriveRunStatus computes the approval-derived status from decision counts.
// A run is approved when nothing is pending, partial when some rows are
// decided and some are not, and keeps its execution status otherwise. A run
// with zero approval rows is treated as immediately approvable.
func DeriveRunStatus(current curation.RunStatus, counts store.ApprovalCounts) curation.RunStatus {
	if counts.Total == 0 {
		return curation.RunStatusApproved
	}
	decided := counts.Approved + counts.Rejected
	switch {
	case counts.Pending == 0 && counts.Approved == 0:
		return curation.RunStatusRejected
	case counts.Pending == 0:
		return curation.RunStatusApproved
	case decided > 0:
		return curation.RunStatusPartial
	default:
		return current
	}
}

// ApproveRun approves every pending row of a run, promotes the approved
// URLs, and marks the run approved. Re-approving an approved run is a no-op
// success with AlreadyApproved set.
func (m *Manager) ApproveRun(ctx context.Context, submoduleRunID string) (Decision, error) {
	rec, err := m.store.GetSubmoduleRun(ctx, submoduleRunID)
	if err != nil {
		return Decision{}, fmt.Errorf("load submodule run: %w", err)
	}

	if rec.Status == curation.RunStatusApproved {
		counts, err := m.store.CountApprovals(ctx, submoduleRunID)
		if err != nil && !errors.Is(err, store.ErrRelationMissing) {
			return Decision{}, fmt.Errorf("count approvals: %w", err)
		}
		return Decision{
			SubmoduleRunID:  submoduleRunID,
			Status:          rec.Status,
			AlreadyApproved: true,
			ApprovedCount:   counts.Approved,
			RejectedCount:   counts.Rejected,
			Counts:          counts,
		}, nil
	}
	if !decidable(rec.Status) {
		return Decision{}, fmt.Errorf("%w: status %s", ErrRunNotDecidable, rec.Status)
	}

	now := m.clock.Now()
	rows, err := m.store.ListApprovals(ctx, submoduleRunID)
	if err != nil {
		return Decision{}, fmt.Errorf("list approvals: %w", err)
	}
	for _, row := range rows {
		if row.Status != curation.ApprovalPending {
			continue
		}
		if err := m.store.UpdateApproval(ctx, submoduleRunID, row.ResultIndex, curation.ApprovalApproved, "", now); err != nil {
			return Decision{}, fmt.Errorf("approve result %d: %w", row.ResultIndex, err)
		}
		metrics.ObserveApprovalDecision("approved")
	}

	counts, err := m.store.CountApprovals(ctx, submoduleRunID)
	if err != nil && !errors.Is(err, store.ErrRelationMissing) {
		return Decision{}, fmt.Errorf("count approvals: %w", err)
	}

	promoted, err := m.promote(ctx, rec)
	if err != nil {
		return Decision{}, fmt.Errorf("promote approved urls: %w", err)
	}

	status := DeriveRunStatus(rec.Status, counts)
	if err := m.store.UpdateSubmoduleRunStatus(ctx, submoduleRunID, status, &now); err != nil {
		return Decision{}, fmt.Errorf("update run status: %w", err)
	}

	m.emit(ctx, rec, string(status))
	return Decision{
		SubmoduleRunID: submoduleRunID,
		Status:         status,
		ApprovedCount:  counts.Approved,
		RejectedCount:  counts.Rejected,
		PromotedCount:  promoted,
		Counts:         counts,
	}, nil
}

// RejectRun rejects every pending row and marks the run rejected. Nothing is
// promoted. Re-rejecting is a no-op success with AlreadyRejected set.
func (m *Manager) RejectRun(ctx context.Context, submoduleRunID, reason string) (Decision, error) {
	rec, err := m.store.GetSubmoduleRun(ctx, submoduleRunID)
	if err != nil {
		return Decision{}, fmt.Errorf("load submodule run: %w", err)
	}

	if rec.Status == curation.RunStatusRejected {
		counts, err := m.store.CountApprovals(ctx, submoduleRunID)
		if err != nil && !errors.Is(err, store.ErrRelationMissing) {
			return Decision{}, fmt.Errorf("count approvals: %w", err)
		}
		return Decision{
			SubmoduleRunID:  submoduleRunID,
			Status:          rec.Status,
			AlreadyRejected: true,
			ApprovedCount:   counts.Approved,
			RejectedCount:   counts.Rejected,
			Counts:          counts,
		}, nil
	}
	if !decidable(rec.Status) {
		return Decision{}, fmt.Errorf("%w: status %s", ErrRunNotDecidable, rec.Status)
	}

	now := m.clock.Now()
	rows, err := m.store.ListApprovals(ctx, submoduleRunID)
	if err != nil {
		return Decision{}, fmt.Errorf("list approvals: %w", err)
	}
	for _, row := range rows {
		if row.Status != curation.ApprovalPending {
			continue
		}
		if err := m.store.UpdateApproval(ctx, submoduleRunID, row.ResultIndex, curation.ApprovalRejected, reason, now); err != nil {
			return Decision{}, fmt.Errorf("reject result %d: %w", row.ResultIndex, err)
		}
		metrics.ObserveApprovalDecision("rejected")
	}

	counts, err := m.store.CountApprovals(ctx, submoduleRunID)
	if err != nil && !errors.Is(err, store.ErrRelationMissing) {
		return Decision{}, fmt.Errorf("count approvals: %w", err)
	}

	if err := m.store.UpdateSubmoduleRunStatus(ctx, submoduleRunID, curation.RunStatusRejected, &now); err != nil {
		return Decision{}, fmt.Errorf("update run status: %w", err)
	}

	m.emit(ctx, rec, string(curation.RunStatusRejected))
	return Decision{
		SubmoduleRunID: submoduleRunID,
		Status:         curation.RunStatusRejected,
		ApprovedCount:  counts.Approved,
		RejectedCount:  counts.Rejected,
		Counts:         counts,
	}, nil
}

// DecideResult decides one result row and re-derives the run status.
// Deciding an already-decided row is a no-op; the derived status is
// reported either way.
func (m *Manager) DecideResult(ctx context.Context, submoduleRunID string, resultIndex int, approve bool, reason string) (Decision, error) {
	rec, err := m.store.GetSubmoduleRun(ctx, submoduleRunID)
	if err != nil {
		return Decision{}, fmt.Errorf("load submodule run: %w", err)
	}
	if !decidable(rec.Status) && rec.Status != curation.RunStatusPartial {
		return Decision{}, fmt.Errorf("%w: status %s", ErrRunNotDecidable, rec.Status)
	}

	now := m.clock.Now()
	status := curation.ApprovalRejected
	if approve {
		status = curation.ApprovalApproved
	}
	if err := m.store.UpdateApproval(ctx, submoduleRunID, resultIndex, status, reason, now); err != nil {
		return Decision{}, fmt.Errorf("decide result %d: %w", resultIndex, err)
	}
	metrics.ObserveApprovalDecision(string(status))

	counts, err := m.store.CountApprovals(ctx, submoduleRunID)
	if err != nil && !errors.Is(err, store.ErrRelationMissing) {
		return Decision{}, fmt.Errorf("count approvals: %w", err)
	}

	derived := DeriveRunStatus(rec.Status, counts)
	promoted := 0
	if derived != rec.Status {
		var decidedAt *time.Time
		if derived == curation.RunStatusApproved || derived == curation.RunStatusRejected {
			decidedAt = &now
		}
		if derived == curation.RunStatusApproved {
			if promoted, err = m.promote(ctx, rec); err != nil {
				return Decision{}, fmt.Errorf("promote approved urls: %w", err)
			}
		}
		if err := m.store.UpdateSubmoduleRunStatus(ctx, submoduleRunID, derived, decidedAt); err != nil {
			return Decision{}, fmt.Errorf("update run status: %w", err)
		}
		if derived == curation.RunStatusApproved || derived == curation.RunStatusRejected {
			m.emit(ctx, rec, string(derived))
		}
	}

	return Decision{
		SubmoduleRunID: submoduleRunID,
		Status:         derived,
		ApprovedCount:  counts.Approved,
		RejectedCount:  counts.Rejected,
		PromotedCount:  promoted,
		Counts:         counts,
	}, nil
}

// promote writes the approved rows of rec into the curated URL set with
// insert-or-ignore semantics. Each result's entity is resolved against the
// run's entity snapshots, falling back to the run's sole entity when the
// result carries no entity ID.
func (m *Manager) promote(ctx context.Context, rec curation.SubmoduleRun) (int, error) {
	rows, err := m.store.ListApprovals(ctx, rec.ID)
	if err != nil {
		return 0, fmt.Errorf("list approvals: %w", err)
	}

	var snapshots []curation.Entity
	if rec.RunID != "" {
		snapshots, err = m.store.GetEntities(ctx, rec.RunID, nil)
		if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrRelationMissing) {
			return 0, fmt.Errorf("load entity snapshots: %w", err)
		}
	}
	byID := make(map[string]curation.Entity, len(snapshots))
	for _, e := range snapshots {
		byID[e.ID] = e
	}

	now := m.clock.Now()
	var curated []curation.CuratedURL
	for _, row := range rows {
		if row.Status != curation.ApprovalApproved {
			continue
		}
		entityID := row.ResultEntityID
		entityName := ""
		if e, ok := byID[entityID]; ok {
			entityName = e.Name
		} else if entityID == "" && len(snapshots) == 1 {
			entityID = snapshots[0].ID
			entityName = snapshots[0].Name
		}
		curated = append(curated, curation.CuratedURL{
			RunID:      rec.RunID,
			EntityID:   entityID,
			EntityName: entityName,
			URL:        row.ResultURL,
			Source:     rec.SubmoduleName,
			AddedAt:    now,
		})
	}
	if len(curated) == 0 {
		return 0, nil
	}
	inserted, err := m.store.PromoteURLs(ctx, curated)
	if err != nil {
		return 0, fmt.Errorf("insert curated urls: %w", err)
	}
	return inserted, nil
}

// emit publishes a submodule_approval event; failures are logged and
// swallowed.
func (m *Manager) emit(ctx context.Context, rec curation.SubmoduleRun, decision string) {
	if m.publisher == nil || m.topic == "" {
		return
	}
	event := events.Event{
		Kind:           events.KindSubmoduleApproval,
		SubmoduleRunID: rec.ID,
		RunID:          rec.RunID,
		SubmoduleType:  rec.SubmoduleType,
		SubmoduleName:  rec.SubmoduleName,
		Decision:       decision,
		ResultCount:    rec.ResultCount,
		OccurredAt:     m.clock.Now(),
	}
	if _, err := m.publisher.Publish(ctx, m.topic, event); err != nil {
		m.logger.Warn("approval event publish failed",
			zap.String("submodule_run_id", rec.ID),
			zap.Error(err),
		)
	}
}

func decidable(status curation.RunStatus) bool {
	switch status {
	case curation.RunStatusCompleted, curation.RunStatusPartial:
		return true
	default:
		return false
	}
}
