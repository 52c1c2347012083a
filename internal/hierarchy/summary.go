package hierarchy

import (
	"sort"

	"github.com/rumor-ml/commons.systems/pjledger/internal/classify"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

// GroupTotals is one line of a flat summary.
type GroupTotals struct {
	Group    domain.LedgerGroup `json:"ledgerGroup"`
	Label    string             `json:"label"`
	Inflows  domain.Cents       `json:"inflows"`
	Outflows domain.Cents       `json:"outflows"`
	Net      domain.Cents       `json:"net"`
}

// Summary holds per-ledger-group totals without the category breakdown.
type Summary struct {
	Groups []GroupTotals `json:"groups"`
	Totals Totals        `json:"totals"`
}

// BuildSummary classifies txns and totals them per ledger group.
func BuildSummary(txns []domain.Transaction, idx classify.Index) Summary {
	byGroup := make(map[domain.LedgerGroup]*flow)
	for _, txn := range txns {
		c := txn.Cents()
		if c == 0 {
			continue
		}
		g := classify.Classify(txn, idx).Group
		f, ok := byGroup[g]
		if !ok {
			f = &flow{}
			byGroup[g] = f
		}
		f.add(c)
	}
	return newSummary(byGroup)
}

// Summarize flattens a tree into per-group totals.
func Summarize(t *Tree) Summary {
	byGroup := make(map[domain.LedgerGroup]*flow)
	for _, r := range t.Roots {
		f, ok := byGroup[r.LedgerGroup]
		if !ok {
			f = &flow{}
			byGroup[r.LedgerGroup] = f
		}
		f.in += r.Inflows
		f.out += r.Outflows
	}
	return newSummary(byGroup)
}

// MergeSummaries sums summaries group by group. Like MergeTrees it is
// associative and commutative.
func MergeSummaries(sums ...Summary) Summary {
	byGroup := make(map[domain.LedgerGroup]*flow)
	for _, s := range sums {
		for _, g := range s.Groups {
			f, ok := byGroup[g.Group]
			if !ok {
				f = &flow{}
				byGroup[g.Group] = f
			}
			f.in += g.Inflows
			f.out += g.Outflows
		}
	}
	return newSummary(byGroup)
}

func newSummary(byGroup map[domain.LedgerGroup]*flow) Summary {
	s := Summary{Groups: make([]GroupTotals, 0, len(byGroup))}
	for g, f := range byGroup {
		s.Groups = append(s.Groups, GroupTotals{
			Group:    g,
			Label:    g.Label(),
			Inflows:  f.in,
			Outflows: f.out,
			Net:      f.in - f.out,
		})
		s.Totals.Inflows += f.in
		s.Totals.Outflows += f.out
	}
	s.Totals.Net = s.Totals.Inflows - s.Totals.Outflows
	sort.Slice(s.Groups, func(i, j int) bool {
		return s.Groups[i].Group.SortOrder() < s.Groups[j].Group.SortOrder()
	})
	return s
}

// Group returns the totals of g, zero if absent.
func (s Summary) Group(g domain.LedgerGroup) GroupTotals {
	for _, gt := range s.Groups {
		if gt.Group == g {
			return gt
		}
	}
	return GroupTotals{Group: g, Label: g.Label()}
}
