// Package access composes the dataset store, the fetch cache and the source
// fetchers into the unified data access layer consumed by UI modules.
package access

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tradepulse/datahub/internal/domain"
)

// Permissions maps a module name to the dataset categories it may read.
// Static configuration: built once at startup, never mutated at runtime.
type Permissions map[string][]domain.Category

// DefaultPermissions returns the built-in module permission table.
func DefaultPermissions() Permissions {
	return Permissions{
		"portfolio": {domain.CategoryPrice, domain.CategoryUploaded},
		"models":    {domain.CategoryPrice, domain.CategoryUploaded, domain.CategoryDerived},
		"ai":        {domain.CategoryPrice, domain.CategoryUploaded, domain.CategoryDerived},
		"charts":    {domain.CategoryPrice, domain.CategoryUploaded, domain.CategoryDerived},
		"alerts":    {domain.CategoryPrice, domain.CategoryUploaded},
		"system":    {domain.CategoryUploaded},
	}
}

var validCategories = map[domain.Category]bool{
	domain.CategoryPrice:    true,
	domain.CategoryUploaded: true,
	domain.CategoryDerived:  true,
}

// LoadPermissions reads a YAML permission table. An empty path returns the
// defaults.
//
// File format:
//
//	portfolio:
//	  - price_data
//	  - uploaded_datasets
func LoadPermissions(path string) (Permissions, error) {
	if path == "" {
		return DefaultPermissions(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permissions file: %w", err)
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse permissions file: %w", err)
	}

	perms := make(Permissions, len(raw))
	for module, categories := range raw {
		for _, c := range categories {
			cat := domain.Category(c)
			if !validCategories[cat] {
				return nil, fmt.Errorf("module %q: unknown category %q", module, c)
			}
			perms[module] = append(perms[module], cat)
		}
	}
	return perms, nil
}

// Allows reports whether a module may read a category. Unknown modules have
// no permissions.
func (p Permissions) Allows(module string, category domain.Category) bool {
	for _, c := range p[module] {
		if c == category {
			return true
		}
	}
	return false
}

// CategoriesFor returns the categories a module may read.
func (p Permissions) CategoriesFor(module string) []domain.Category {
	out := make([]domain.Category, len(p[module]))
	copy(out, p[module])
	return out
}
