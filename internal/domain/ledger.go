package domain

import (
	"fmt"
	"strings"
)

// LedgerGroup is the top-level classification bucket of the chart of accounts.
// Use ValidateLedgerGroup to ensure validity before use.
type LedgerGroup string

const (
	LedgerRevenue           LedgerGroup = "revenue"
	LedgerRevenueDeductions LedgerGroup = "revenue_deductions"
	LedgerAdministrative    LedgerGroup = "administrative_expenses"
	LedgerCommercial        LedgerGroup = "commercial_expenses"
	LedgerFinancial         LedgerGroup = "financial_result"
	LedgerOther             LedgerGroup = "other"
)

// PathSeparator joins category ids into a category path.
const PathSeparator = "."

// ledgerGroups is ordered by report sort order.
var ledgerGroups = []LedgerGroup{
	LedgerRevenue,
	LedgerRevenueDeductions,
	LedgerAdministrative,
	LedgerCommercial,
	LedgerFinancial,
	LedgerOther,
}

var ledgerGroupLabels = map[LedgerGroup]string{
	LedgerRevenue:           "Revenue",
	LedgerRevenueDeductions: "Revenue Deductions",
	LedgerAdministrative:    "General & Administrative Expenses",
	LedgerCommercial:        "Commercial & Marketing Expenses",
	LedgerFinancial:         "Financial Income/Expense",
	LedgerOther:             "Other",
}

// LedgerGroups returns every ledger group in sort order.
func LedgerGroups() []LedgerGroup {
	return append([]LedgerGroup(nil), ledgerGroups...)
}

// ValidateLedgerGroup checks if g is a known ledger group
func ValidateLedgerGroup(g LedgerGroup) bool {
	_, ok := ledgerGroupLabels[g]
	return ok
}

// ParseLedgerGroup validates a raw ledger group string.
func ParseLedgerGroup(s string) (LedgerGroup, error) {
	g := LedgerGroup(strings.TrimSpace(s))
	if !ValidateLedgerGroup(g) {
		return "", fmt.Errorf("invalid ledger group: %q", s)
	}
	return g, nil
}

// SortOrder is the fixed position of g in reports. Unknown groups sort last.
func (g LedgerGroup) SortOrder() int {
	for i, known := range ledgerGroups {
		if known == g {
			return i
		}
	}
	return len(ledgerGroups)
}

// Label is the display name of g.
func (g LedgerGroup) Label() string {
	if label, ok := ledgerGroupLabels[g]; ok {
		return label
	}
	return string(g)
}

// RootPath is the path of the synthetic root category of g.
func (g LedgerGroup) RootPath() string {
	return string(g)
}

// IsExpense reports whether g collects operating expenses.
func (g LedgerGroup) IsExpense() bool {
	return g == LedgerAdministrative || g == LedgerCommercial
}

// GroupOfPath returns the ledger group encoded as the first segment of path.
func GroupOfPath(path string) (LedgerGroup, bool) {
	head, _, _ := strings.Cut(path, PathSeparator)
	g := LedgerGroup(head)
	return g, ValidateLedgerGroup(g)
}

// JoinPath appends a category id to a parent path.
func JoinPath(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + PathSeparator + id
}
