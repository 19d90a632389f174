// Package curation defines the core types shared across the URL discovery
// and validation pipeline: entities, URL candidates, run records, and the
// approval rows attached to them.
package curation

import (
	"net/http"
	"time"
)

// Entity is a named subject (company) with a canonical website and optional
// seed URLs. Entities are immutable snapshots owned by the run that created
// them.
type Entity struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Website  string   `json:"website"`
	SeedURLs []string `json:"seed_urls,omitempty"`
}

// URLCandidate is one URL produced by a discovery submodule. Identity is
// (entity_id, normalized url); there is no surrogate key.
type URLCandidate struct {
	EntityID        string         `json:"entity_id"`
	EntityName      string         `json:"entity_name"`
	URL             string         `json:"url"`
	DiscoveryMethod string         `json:"discovery_method"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// RejectedURL wraps an input candidate a validation submodule refused,
// with the reason and optional supporting detail. KeptURL points at the
// canonical winner for duplicate-style rejections.
type RejectedURL struct {
	Candidate URLCandidate `json:"candidate"`
	Reason    string       `json:"reason"`
	Details   string       `json:"details,omitempty"`
	KeptURL   string       `json:"kept_url,omitempty"`
}

// EntityError records a failure scoped to a single entity during discovery.
// Per-entity errors travel alongside partial results, never instead of them.
type EntityError struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// ValidationStats summarizes a validation partition.
type ValidationStats struct {
	Input   int            `json:"input"`
	Valid   int            `json:"valid"`
	Invalid int            `json:"invalid"`
	Reasons map[string]int `json:"reasons,omitempty"`
}

// DiscoveryResult is the envelope returned by discovery submodules.
type DiscoveryResult struct {
	Candidates []URLCandidate `json:"candidates"`
	Errors     []EntityError  `json:"errors,omitempty"`
}

// ValidationResult is the partition returned by validation submodules.
// |Valid| + |Invalid| always equals the input length.
type ValidationResult struct {
	Valid   []URLCandidate  `json:"valid"`
	Invalid []RejectedURL   `json:"invalid"`
	Stats   ValidationStats `json:"stats"`
}

// RunStatus is the lifecycle state of a SubmoduleRun. The approval-derived
// states (approved, rejected, partial) are computed from approval rows;
// the initial states follow execution.
type RunStatus string

// SubmoduleRun status values.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusApproved  RunStatus = "approved"
	RunStatusRejected  RunStatus = "rejected"
	RunStatusPartial   RunStatus = "partial"
)

// Envelope is the raw result payload persisted with a SubmoduleRun.
// Discovery runs fill Items and Errors; validation runs also fill Invalid
// and Stats.
type Envelope struct {
	Items    []URLCandidate   `json:"items"`
	Invalid  []RejectedURL    `json:"invalid,omitempty"`
	Stats    *ValidationStats `json:"stats,omitempty"`
	Errors   []EntityError    `json:"errors,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// SubmoduleRun is one execution record. After creation only the status
// fields mutate; everything else is append-only history.
type SubmoduleRun struct {
	ID            string         `json:"id"`
	RunID         string         `json:"run_id,omitempty"`
	SubmoduleType string         `json:"submodule_type"`
	SubmoduleName string         `json:"submodule_name"`
	EntityIDs     []string       `json:"entity_ids,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
	Status        RunStatus      `json:"status"`
	ResultCount   int            `json:"result_count"`
	Results       Envelope       `json:"results"`
	Logs          []LogLine      `json:"logs,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ApprovedAt    *time.Time     `json:"approved_at,omitempty"`
	RejectedAt    *time.Time     `json:"rejected_at,omitempty"`
}

// ApprovalStatus is the decision state of a single result approval row.
type ApprovalStatus string

// ResultApproval status values.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ResultApproval is one human decision unit. ResultIndex is the position in
// the flattened results array at creation time and is never reassigned.
type ResultApproval struct {
	SubmoduleRunID  string         `json:"submodule_run_id"`
	ResultIndex     int            `json:"result_index"`
	ResultURL       string         `json:"result_url"`
	ResultEntityID  string         `json:"result_entity_id"`
	Status          ApprovalStatus `json:"status"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
}

// CuratedURL is a row in the durable URL set produced by promotion.
type CuratedURL struct {
	RunID      string    `json:"run_id,omitempty"`
	EntityID   string    `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	URL        string    `json:"url"`
	Source     string    `json:"source"`
	AddedAt    time.Time `json:"added_at"`
}

// Run groups entity snapshots under a project.
type Run struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FetchRequest captures everything needed to resolve one URL to content.
type FetchRequest struct {
	URL          string
	Headers      http.Header
	WaitSelector string
	ForceBrowser bool
}

// FetchResponse is the outcome of a fetch, from either path.
type FetchResponse struct {
	URL         string
	FinalURL    string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
	UsedBrowser bool
}
