// Package category holds the read-only category index a report or import is
// computed against.
package category

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/validate"
)

// Index is an immutable snapshot of one client's chart of accounts, plus one
// synthetic root per ledger group. It is safe for concurrent readers.
type Index struct {
	byPath   map[string]domain.CategoryDefinition
	byID     map[string]string
	warnings []domain.Warning
}

// NewIndex validates defs and builds an index. A cycle, a missing parent or a
// duplicate path yields a *domain.StructuralError.
func NewIndex(defs []domain.CategoryDefinition) (*Index, error) {
	result := validate.ValidateCategoryPlan(defs)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("invalid category plan: %w", err)
	}

	idx := &Index{
		byPath:   make(map[string]domain.CategoryDefinition, len(defs)+len(domain.LedgerGroups())),
		byID:     make(map[string]string, len(defs)),
		warnings: result.DomainWarnings(),
	}
	for _, g := range domain.LedgerGroups() {
		idx.byPath[g.RootPath()] = domain.RootCategory(g)
	}
	for _, def := range defs {
		idx.byPath[def.Path] = def
		// First definition wins when ids repeat across groups.
		if _, ok := idx.byID[def.ID]; !ok {
			idx.byID[def.ID] = def.Path
		}
	}
	return idx, nil
}

// Lookup returns the category at path.
func (idx *Index) Lookup(path string) (domain.CategoryDefinition, bool) {
	def, ok := idx.byPath[path]
	return def, ok
}

// ByID returns the category with the given id.
func (idx *Index) ByID(id string) (domain.CategoryDefinition, bool) {
	path, ok := idx.byID[id]
	if !ok {
		return domain.CategoryDefinition{}, false
	}
	return idx.Lookup(path)
}

// Root returns the synthetic (or plan-overridden) root of a ledger group.
func (idx *Index) Root(g domain.LedgerGroup) domain.CategoryDefinition {
	if def, ok := idx.byPath[g.RootPath()]; ok {
		return def
	}
	return domain.RootCategory(g)
}

// Len returns the number of nodes, roots included.
func (idx *Index) Len() int {
	return len(idx.byPath)
}

// Warnings returns non-blocking plan problems found while building the index.
func (idx *Index) Warnings() []domain.Warning {
	return append([]domain.Warning(nil), idx.warnings...)
}

// Ancestors returns the parent chain of path, nearest first, excluding path
// itself. The walk is bounded by the index size so a malformed chain reports
// a StructuralError instead of looping.
func (idx *Index) Ancestors(path string) ([]string, error) {
	def, ok := idx.byPath[path]
	if !ok {
		return nil, &domain.StructuralError{Path: path, Reason: "category not found in index"}
	}

	var chain []string
	for steps := 0; def.ParentPath != ""; steps++ {
		if steps >= len(idx.byPath) {
			return nil, &domain.StructuralError{Path: path, Reason: "ancestor chain does not terminate"}
		}
		parent, ok := idx.byPath[def.ParentPath]
		if !ok {
			return nil, &domain.StructuralError{Path: def.Path, Reason: fmt.Sprintf("missing parent %s", def.ParentPath)}
		}
		chain = append(chain, parent.Path)
		def = parent
	}
	return chain, nil
}

// Definitions returns every node, roots included, in no particular order.
func (idx *Index) Definitions() []domain.CategoryDefinition {
	out := make([]domain.CategoryDefinition, 0, len(idx.byPath))
	for _, def := range idx.byPath {
		out = append(out, def)
	}
	return out
}
