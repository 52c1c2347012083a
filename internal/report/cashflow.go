package report

import (
	"context"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/hierarchy"
)

// MonthFlow is the cash flow of one calendar month.
type MonthFlow struct {
	Month  string                  `json:"month"`
	Groups []hierarchy.GroupTotals `json:"groups"`
	Totals hierarchy.Totals        `json:"totals"`
}

// CashFlow is a month-by-month statement of inflows and outflows per ledger group.
type CashFlow struct {
	ClientID string            `json:"clientId"`
	Months   []MonthFlow       `json:"months"`
	Total    hierarchy.Summary `json:"total"`
}

// CashFlow summarizes each account per month in parallel and merges the
// monthly summaries across accounts. Months without activity inside the
// covered range are reported with zero totals.
func (s *Service) CashFlow(ctx context.Context, req ReportRequest) (*CashFlow, error) {
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

	perAccount := make([]map[string]hierarchy.Summary, len(ids))
	if err := s.eachAccount(ctx, req, ids, func(i int, txns []domain.Transaction) error {
		months := make(map[string]hierarchy.Summary)
		for month, monthTxns := range byMonth(txns) {
			months[month] = hierarchy.BuildSummary(monthTxns, idx)
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

	cf := &CashFlow{ClientID: req.ClientID, Months: make([]MonthFlow, 0)}
	var all []hierarchy.Summary
	for _, month := range monthRange(seen, req.From, req.To) {
		parts := make([]hierarchy.Summary, 0, len(perAccount))
		for _, months := range perAccount {
			if sum, ok := months[month]; ok {
				parts = append(parts, sum)
			}
		}
		merged := hierarchy.MergeSummaries(parts...)
		cf.Months = append(cf.Months, MonthFlow{Month: month, Groups: merged.Groups, Totals: merged.Totals})
		all = append(all, merged)
	}
	cf.Total = hierarchy.MergeSummaries(all...)
	return cf, nil
}
