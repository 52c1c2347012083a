package report

import (
	"context"
	"math"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/hierarchy"
)

// CategoryAmount names a category and the amount attributed to it.
type CategoryAmount struct {
	Path   string             `json:"path"`
	Label  string             `json:"label"`
	Group  domain.LedgerGroup `json:"ledgerGroup"`
	Amount domain.Cents       `json:"amount"`
}

// MonthInsight holds the headline numbers of one month.
type MonthInsight struct {
	Month string `json:"month"`
	// Revenue is net of revenue deductions.
	Revenue  domain.Cents `json:"revenue"`
	Expenses domain.Cents `json:"expenses"`
	Net      domain.Cents `json:"net"`
	// MarginPct is Net over Revenue, unset when there is no revenue.
	MarginPct      *float64        `json:"marginPct,omitempty"`
	LargestExpense *CategoryAmount `json:"largestExpense,omitempty"`
	// NetChange is Net minus the previous month's Net.
	NetChange *domain.Cents `json:"netChange,omitempty"`
}

// Insights is the monthly headline report of a client.
type Insights struct {
	ClientID string         `json:"clientId"`
	Months   []MonthInsight `json:"months"`
}

// Insights builds a cost tree per account and month in parallel, merges each
// month across accounts and derives the headline numbers from it.
func (s *Service) Insights(ctx context.Context, req ReportRequest) (*Insights, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	idx, err := s.CategoryIndex(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	ids, err := s.accountIDs(ctx, req)
	if err != nil {
		return nil, err
	}

	perAccount := make([]map[string]*hierarchy.Tree, len(ids))
	if err := s.eachAccount(ctx, req, ids, func(i int, txns []domain.Transaction) error {
		months := make(map[string]*hierarchy.Tree)
		for month, monthTxns := range byMonth(txns) {
			tree, err := hierarchy.BuildCostTree(monthTxns, idx)
			if err != nil {
				return err
			}
			months[month] = tree
		}
		perAccount[i] = months
		return nil
	}); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, months := range perAccount {
		for month := range months {
			seen[month] = true
		}
	}

	out := &Insights{ClientID: req.ClientID, Months: make([]MonthInsight, 0)}
	var prevNet *domain.Cents
	for _, month := range monthRange(seen, req.From, req.To) {
		parts := make([]*hierarchy.Tree, 0, len(perAccount))
		for _, months := range perAccount {
			parts = append(parts, months[month])
		}
		tree, err := hierarchy.MergeTrees(parts...)
		if err != nil {
			return nil, err
		}

		mi := monthInsight(month, tree)
		if prevNet != nil {
			change := mi.Net - *prevNet
			mi.NetChange = &change
		}
		net := mi.Net
		prevNet = &net
		out.Months = append(out.Months, mi)
	}
	return out, nil
}

func monthInsight(month string, tree *hierarchy.Tree) MonthInsight {
	sum := hierarchy.Summarize(tree)
	revenue := sum.Group(domain.LedgerRevenue).Net + sum.Group(domain.LedgerRevenueDeductions).Net
	mi := MonthInsight{
		Month:    month,
		Revenue:  revenue,
		Net:      sum.Totals.Net,
		Expenses: revenue - sum.Totals.Net,
	}
	if revenue > 0 {
		pct := math.Round(float64(mi.Net)/float64(revenue)*10000) / 100
		mi.MarginPct = &pct
	}
	mi.LargestExpense = largestExpense(tree)
	return mi
}

// largestExpense picks the expense category with the most outflow posted to
// it. Leaves count their rolled-up outflows; inner nodes only what was posted
// to them directly.
func largestExpense(tree *hierarchy.Tree) *CategoryAmount {
	var best *CategoryAmount
	tree.Walk(func(n *hierarchy.Node, _ int) {
		if !n.LedgerGroup.IsExpense() {
			return
		}
		amount := n.DirectOutflows
		if len(n.Children) == 0 {
			amount = n.Outflows
		}
		if amount <= 0 {
			return
		}
		if best == nil || amount > best.Amount || (amount == best.Amount && n.Path < best.Path) {
			best = &CategoryAmount{Path: n.Path, Label: n.Label, Group: n.LedgerGroup, Amount: amount}
		}
	})
	return best
}
