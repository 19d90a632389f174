package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/entityscope/urlcurator/internal/approval"
	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/orchestrator"
	"github.com/entityscope/urlcurator/internal/store"
	"github.com/entityscope/urlcurator/internal/submodule"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// executeRequest is the POST body of the execute endpoint; the three input
// modes mirror orchestrator.ExecuteRequest.
type executeRequest struct {
	Entities  []curation.Entity       `json:"entities,omitempty"`
	ProjectID string                  `json:"project_id,omitempty"`
	RunID     string                  `json:"run_id,omitempty"`
	EntityIDs []string                `json:"entity_ids,omitempty"`
	URLs      []curation.URLCandidate `json:"urls,omitempty"`
	Config    map[string]any          `json:"config,omitempty"`
}

type decisionRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// listSubmodules handles GET /v1/submodules. It returns registry metadata
// without invoking any submodule logic.
func (s *Server) listSubmodules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"submodules": s.registry.ListAll()})
}

// reloadSubmodules handles POST /v1/submodules/reload.
func (s *Server) reloadSubmodules(w http.ResponseWriter, _ *http.Request) {
	s.registry.Reload()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// executeSubmodule handles POST /v1/submodules/{type}/{name}/execute.
// Input-shape problems and unknown submodules are client errors; a failed
// execution still returns 200 with the failed run record.
func (s *Server) executeSubmodule(w http.ResponseWriter, r *http.Request) {
	submoduleType := chi.URLParam(r, "type")
	submoduleName := chi.URLParam(r, "name")
	if submoduleType != string(submodule.TypeDiscovery) && submoduleType != string(submodule.TypeValidation) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown submodule type %q", submoduleType))
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	resp, err := s.orchestrator.Execute(r.Context(), orchestrator.ExecuteRequest{
		SubmoduleType: submoduleType,
		SubmoduleName: submoduleName,
		Entities:      req.Entities,
		ProjectID:     req.ProjectID,
		RunID:         req.RunID,
		EntityIDs:     req.EntityIDs,
		URLs:          req.URLs,
		Config:        req.Config,
	})
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrUnknownSubmodule):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, orchestrator.ErrAmbiguousInput), errors.Is(err, orchestrator.ErrNoEntities):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("execute failed",
				zap.String("submodule", submoduleType+"/"+submoduleName),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "execution failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// listRuns handles GET /v1/submodule-runs?status=&limit=&offset=.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *curation.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := parseRunStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = &parsed
	}

	runs, err := s.store.ListSubmoduleRuns(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list submodule runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []curation.SubmoduleRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"submodule_runs": runs})
}

// getRun handles GET /v1/submodule-runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetSubmoduleRun(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrRelationMissing) {
			writeError(w, http.StatusNotFound, "submodule run not found")
			return
		}
		s.logger.Error("get submodule run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submodule_run": rec})
}

// listApprovals handles GET /v1/submodule-runs/{run_id}/approvals.
func (s *Server) listApprovals(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	rows, err := s.store.ListApprovals(r.Context(), runID)
	if err != nil {
		s.logger.Error("list approvals failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list approvals")
		return
	}
	if rows == nil {
		rows = []curation.ResultApproval{}
	}
	counts, err := s.store.CountApprovals(r.Context(), runID)
	if err != nil && !errors.Is(err, store.ErrRelationMissing) {
		s.logger.Error("count approvals failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count approvals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": rows, "counts": counts})
}

// approveRun handles POST /v1/submodule-runs/{run_id}/approve.
func (s *Server) approveRun(w http.ResponseWriter, r *http.Request) {
	decision, err := s.approvals.ApproveRun(r.Context(), chi.URLParam(r, "run_id"))
	s.writeDecision(w, decision, err)
}

// rejectRun handles POST /v1/submodule-runs/{run_id}/reject.
func (s *Server) rejectRun(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.Body != nil {
		// The reason body is optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	decision, err := s.approvals.RejectRun(r.Context(), chi.URLParam(r, "run_id"), req.Reason)
	s.writeDecision(w, decision, err)
}

// decideResult handles POST /v1/submodule-runs/{run_id}/results/{index}/decision.
func (s *Server) decideResult(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid result index")
		return
	}
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	decision, err := s.approvals.DecideResult(r.Context(), chi.URLParam(r, "run_id"), index, req.Approve, req.Reason)
	s.writeDecision(w, decision, err)
}

func (s *Server) writeDecision(w http.ResponseWriter, decision approval.Decision, err error) {
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "submodule run not found")
		case errors.Is(err, approval.ErrRunNotDecidable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("approval decision failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "decision failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func parseLimitOffset(r *http.Request, def, max int) (int, int, error) {
	limit := def
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return 0, 0, fmt.Errorf("invalid limit %q", raw)
		}
		if parsed > max {
			parsed = max
		}
		limit = parsed
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", raw)
		}
		offset = parsed
	}
	return limit, offset, nil
}

func parseRunStatus(raw string) (curation.RunStatus, error) {
	switch status := curation.RunStatus(raw); status {
	case curation.RunStatusPending, curation.RunStatusRunning, curation.RunStatusCompleted,
		curation.RunStatusFailed, curation.RunStatusApproved, curation.RunStatusRejected,
		curation.RunStatusPartial:
		return status, nil
	default:
		return "", fmt.Errorf("invalid status %q", raw)
	}
}
