// Package catalog is the compile-time registration table binding every
// shipped submodule into a Registry.
package catalog

import (
	"fmt"

	"github.com/entityscope/urlcurator/internal/submodule"
	"github.com/entityscope/urlcurator/internal/submodule/discovery"
	"github.com/entityscope/urlcurator/internal/submodule/validation"
)

// New builds a Registry populated with all shipped submodules.
func New() (*submodule.Registry, error) {
	registry := submodule.NewRegistry()

	discoveryModules := map[string]func() submodule.DiscoveryModule{
		"sitemap":        func() submodule.DiscoveryModule { return discovery.NewSitemap() },
		"navigation":     func() submodule.DiscoveryModule { return discovery.NewNavigation() },
		"seed_expansion": func() submodule.DiscoveryModule { return discovery.NewSeedExpansion() },
	}
	validationModules := map[string]func() submodule.ValidationModule{
		"url_format":     func() submodule.ValidationModule { return validation.NewURLFormat() },
		"path_filter":    func() submodule.ValidationModule { return validation.NewPathFilter() },
		"dedup":          func() submodule.ValidationModule { return validation.NewDedup() },
		"language_dedup": func() submodule.ValidationModule { return validation.NewLanguageDedup() },
		"content_type":   func() submodule.ValidationModule { return validation.NewContentType() },
	}

	for name, ctor := range discoveryModules {
		if err := registry.RegisterDiscovery(name, ctor); err != nil {
			return nil, fmt.Errorf("register discovery %s: %w", name, err)
		}
	}
	for name, ctor := range validationModules {
		if err := registry.RegisterValidation(name, ctor); err != nil {
			return nil, fmt.Errorf("register validation %s: %w", name, err)
		}
	}
	return registry, nil
}
