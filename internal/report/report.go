// Package report builds cost trees, cash-flow statements and monthly
// insights over one or more accounts of a client.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/rumor-ml/commons.systems/pjledger/internal/category"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/hierarchy"
	"github.com/rumor-ml/commons.systems/pjledger/internal/logger"
)

const (
	DefaultCacheExpiration = 10 * time.Minute
	monthLayout            = "2006-01"
)

// Store is the read side a report needs.
type Store interface {
	ListAccounts(ctx context.Context, clientID string) ([]domain.Account, error)
	// ListTransactions returns the account's transactions dated within
	// [from, to]. A zero bound is open.
	ListTransactions(ctx context.Context, clientID, accountID string, from, to time.Time) ([]domain.Transaction, error)
	// GetCategoryPlan returns the client's chart of accounts, or
	// domain.ErrNotFound when the client uses the default plan.
	GetCategoryPlan(ctx context.Context, clientID string) ([]domain.CategoryDefinition, error)
}

// ReportRequest selects the transactions a report covers.
type ReportRequest struct {
	ClientID string
	// AccountIDs limits the report; empty means every account of the client.
	AccountIDs []string
	From       time.Time
	To         time.Time
}

func (r ReportRequest) validate() error {
	if r.ClientID == "" {
		return fmt.Errorf("client ID cannot be empty: %w", domain.ErrInvalidInput)
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return fmt.Errorf("invalid range: %s is before %s: %w", r.To.Format(domain.DateLayout), r.From.Format(domain.DateLayout), domain.ErrInvalidInput)
	}
	return nil
}

// Service assembles reports from a Store.
type Service struct {
	store      Store
	categories *cache.Cache
}

// NewService creates a report service. Category indexes are cached per client
// for ttl (DefaultCacheExpiration when ttl <= 0).
func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheExpiration
	}
	return &Service{
		store:      store,
		categories: cache.New(ttl, 2*ttl),
	}
}

// InvalidateCategories drops the cached category index of a client.
func (s *Service) InvalidateCategories(clientID string) {
	s.categories.Delete(clientID)
}

// CategoryIndex returns the client's category index, building it from the
// store (or the default plan) on a cache miss.
func (s *Service) CategoryIndex(ctx context.Context, clientID string) (*category.Index, error) {
	if cached, ok := s.categories.Get(clientID); ok {
		return cached.(*category.Index), nil
	}

	defs, err := s.store.GetCategoryPlan(ctx, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		defs, err = category.LoadDefaultPlan()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load category plan: %w", err)
	}

	idx, err := category.NewIndex(defs)
	if err != nil {
		return nil, err
	}
	s.categories.Set(clientID, idx, cache.DefaultExpiration)
	return idx, nil
}

func (s *Service) accountIDs(ctx context.Context, req ReportRequest) ([]string, error) {
	if len(req.AccountIDs) > 0 {
		ids := append([]string(nil), req.AccountIDs...)
		sort.Strings(ids)
		return ids, nil
	}
	accounts, err := s.store.ListAccounts(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// eachAccount fetches the accounts in ids in parallel and hands each one's
// transactions to fn with the account's position in ids. fn runs on the
// fetching goroutine and must only write to its own slot.
func (s *Service) eachAccount(ctx context.Context, req ReportRequest, ids []string, fn func(i int, txns []domain.Transaction) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, accountID := range ids {
		g.Go(func() error {
			txns, err := s.store.ListTransactions(gctx, req.ClientID, accountID, req.From, req.To)
			if err != nil {
				return fmt.Errorf("failed to list transactions for account %s: %w", accountID, err)
			}
			return fn(i, txns)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("client_id", req.ClientID).
		Int("accounts", len(ids)).
		Msg("accounts fetched")
	return nil
}

// CostTree classifies every account in parallel and merges the per-account
// trees into one.
func (s *Service) CostTree(ctx context.Context, req ReportRequest) (*hierarchy.Tree, error) {
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
	trees := make([]*hierarchy.Tree, len(ids))
	if err := s.eachAccount(ctx, req, ids, func(i int, txns []domain.Transaction) error {
		tree, err := hierarchy.BuildCostTree(txns, idx)
		if err != nil {
			return err
		}
		trees[i] = tree
		return nil
	}); err != nil {
		return nil, err
	}

	merged, err := hierarchy.MergeTrees(trees...)
	if err != nil {
		return nil, err
	}
	merged.Warnings = append(idx.Warnings(), merged.Warnings...)
	return merged, nil
}

func byMonth(txns []domain.Transaction) map[string][]domain.Transaction {
	out := make(map[string][]domain.Transaction)
	for _, txn := range txns {
		key := txn.Date.Format(monthLayout)
		out[key] = append(out[key], txn)
	}
	return out
}

// monthRange lists every month from the earliest to the latest of seen,
// stretched to the request bounds when they are set.
func monthRange(seen map[string]bool, from, to time.Time) []string {
	var first, last time.Time
	widen := func(t time.Time) {
		t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		if first.IsZero() || t.Before(first) {
			first = t
		}
		if last.IsZero() || t.After(last) {
			last = t
		}
	}
	for key := range seen {
		if t, err := time.Parse(monthLayout, key); err == nil {
			widen(t)
		}
	}
	if !from.IsZero() {
		widen(from)
	}
	if !to.IsZero() {
		widen(to)
	}
	if first.IsZero() {
		return nil
	}

	var months []string
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		months = append(months, m.Format(monthLayout))
	}
	return months
}
