// Package events defines the curation lifecycle event contract.
package events

import (
	"context"
	"time"
)

// Event kinds emitted over the run lifecycle.
const (
	KindSubmoduleStart    = "submodule_start"
	KindSubmoduleComplete = "submodule_complete"
	KindSubmoduleApproval = "submodule_approval"
)

// Event is the flat JSON payload published for lifecycle notifications.
type Event struct {
	Kind           string    `json:"kind"`
	SubmoduleRunID string    `json:"submodule_run_id"`
	RunID          string    `json:"run_id,omitempty"`
	SubmoduleType  string    `json:"submodule_type"`
	SubmoduleName  string    `json:"submodule_name"`
	Status         string    `json:"status,omitempty"`
	ResultCount    int       `json:"result_count,omitempty"`
	Decision       string    `json:"decision,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher delivers lifecycle events. Delivery is best effort; callers log
// and swallow publish failures.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
