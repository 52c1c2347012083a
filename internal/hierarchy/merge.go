package hierarchy

import (
	"fmt"
	"sort"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

// MergeTrees consolidates independently built trees as if their transactions
// had been classified together. Nodes are matched by path and their inflows,
// outflows and direct totals summed; net and ordering are then re-derived.
// The result does not depend on the order or grouping of the sources.
//
// Sources must agree on category metadata for every shared path. A
// disagreement (e.g. the plan was edited between two account fetches) returns
// a *domain.StructuralError instead of silently picking one version.
// Nil trees are skipped; the inputs are not modified.
func MergeTrees(trees ...*Tree) (*Tree, error) {
	nodes := make(map[string]*Node)
	var warnings []domain.Warning

	for _, t := range trees {
		if t == nil {
			continue
		}
		warnings = append(warnings, t.Warnings...)
		for path, src := range t.NodesByPath {
			dst, ok := nodes[path]
			if !ok {
				nodes[path] = &Node{
					CategoryDefinition: src.CategoryDefinition,
					Inflows:            src.Inflows,
					Outflows:           src.Outflows,
					DirectInflows:      src.DirectInflows,
					DirectOutflows:     src.DirectOutflows,
				}
				continue
			}
			if dst.CategoryDefinition != src.CategoryDefinition {
				return nil, &domain.StructuralError{
					Path:   path,
					Reason: fmt.Sprintf("sources disagree on category metadata: %+v vs %+v", dst.CategoryDefinition, src.CategoryDefinition),
				}
			}
			dst.Inflows += src.Inflows
			dst.Outflows += src.Outflows
			dst.DirectInflows += src.DirectInflows
			dst.DirectOutflows += src.DirectOutflows
		}
	}

	merged, err := assemble(nodes)
	if err != nil {
		return nil, err
	}
	sortWarnings(warnings)
	merged.Warnings = warnings
	return merged, nil
}

func sortWarnings(ws []domain.Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Code != ws[j].Code {
			return ws[i].Code < ws[j].Code
		}
		if ws[i].ID != ws[j].ID {
			return ws[i].ID < ws[j].ID
		}
		return ws[i].Message < ws[j].Message
	})
}
