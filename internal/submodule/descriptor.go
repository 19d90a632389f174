// Package submodule defines the pluggable unit contract: descriptor
// metadata, typed option schemas, and the registry that loads discovery and
// validation modules by (type, name).
package submodule

import (
	"context"

	"github.com/entityscope/urlcurator/internal/curation"
	"github.com/entityscope/urlcurator/internal/store"
)

// Type distinguishes the two submodule families.
type Type string

// Submodule types.
const (
	TypeDiscovery  Type = "discovery"
	TypeValidation Type = "validation"
)

// Cost is the declared execution cost tier shown to operators.
type Cost string

// Cost tiers.
const (
	CostCheap     Cost = "cheap"
	CostMedium    Cost = "medium"
	CostExpensive Cost = "expensive"
)

// Option describes one configurable knob of a submodule: its type, default
// and, where applicable, the allowed values.
type Option struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Info is the static metadata a submodule declares about itself.
type Info struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Type                Type     `json:"type"`
	Category            string   `json:"category"`
	Description         string   `json:"description"`
	Cost                Cost     `json:"cost"`
	RequiresExternalAPI bool     `json:"requires_external_api"`
	Options             []Option `json:"options"`
}

// Context carries the per-execution collaborators handed to a submodule.
type Context struct {
	Logger  *curation.RunLogger
	Store   store.Store
	Fetcher curation.Fetcher
}

// DiscoveryModule produces candidate URLs for a set of entities.
type DiscoveryModule interface {
	Info() Info
	Execute(ctx context.Context, entities []curation.Entity, config map[string]any, mctx Context) (curation.DiscoveryResult, error)
}

// ValidationModule partitions a URL list into valid and invalid.
type ValidationModule interface {
	Info() Info
	Execute(ctx context.Context, urls []curation.URLCandidate, config map[string]any, mctx Context) (curation.ValidationResult, error)
}
