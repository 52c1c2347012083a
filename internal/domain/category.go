package domain

import (
	"fmt"
	"strings"
)

// CategoryDefinition is one node of a client's chart of accounts.
// Only nodes that accept postings may receive a transaction's direct total;
// the others only receive totals rolled up from descendants.
type CategoryDefinition struct {
	ID              string      `json:"id" firestore:"id"`
	Label           string      `json:"label" firestore:"label"`
	Path            string      `json:"path" firestore:"path"`
	Level           int         `json:"level" firestore:"level"`
	SortOrder       int         `json:"sortOrder" firestore:"sortOrder"`
	ParentPath      string      `json:"parentPath" firestore:"parentPath"`
	AcceptsPostings bool        `json:"acceptsPostings" firestore:"acceptsPostings"`
	LedgerGroup     LedgerGroup `json:"ledgerGroup" firestore:"ledgerGroup"`
}

// IsRoot reports whether c is the synthetic root of its ledger group.
func (c CategoryDefinition) IsRoot() bool {
	return c.ParentPath == ""
}

// RootCategory returns the synthetic root node of a ledger group.
func RootCategory(g LedgerGroup) CategoryDefinition {
	return CategoryDefinition{
		ID:              string(g),
		Label:           g.Label(),
		Path:            g.RootPath(),
		Level:           0,
		SortOrder:       g.SortOrder(),
		ParentPath:      "",
		AcceptsPostings: true,
		LedgerGroup:     g,
	}
}

// NewCategoryDefinition creates a validated child category under parentPath.
// Path, level and ledger group are derived from the parent path.
func NewCategoryDefinition(id, label, parentPath string, sortOrder int, acceptsPostings bool) (*CategoryDefinition, error) {
	if id == "" {
		return nil, fmt.Errorf("category ID cannot be empty")
	}
	if strings.Contains(id, PathSeparator) {
		return nil, fmt.Errorf("category ID %q cannot contain %q", id, PathSeparator)
	}
	if label == "" {
		return nil, fmt.Errorf("category label cannot be empty")
	}
	if parentPath == "" {
		return nil, fmt.Errorf("parent path cannot be empty for category %s", id)
	}
	group, ok := GroupOfPath(parentPath)
	if !ok {
		return nil, fmt.Errorf("parent path %q does not start with a ledger group", parentPath)
	}

	return &CategoryDefinition{
		ID:              id,
		Label:           label,
		Path:            JoinPath(parentPath, id),
		Level:           strings.Count(parentPath, PathSeparator) + 1,
		SortOrder:       sortOrder,
		ParentPath:      parentPath,
		AcceptsPostings: acceptsPostings,
		LedgerGroup:     group,
	}, nil
}
