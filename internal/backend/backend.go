// Package backend opens the configured store and builds the ledger services on
// top of it. The CLI and the API server share it.
package backend

import (
	"context"
	"fmt"

	"github.com/rumor-ml/commons.systems/pjledger/internal/category"
	"github.com/rumor-ml/commons.systems/pjledger/internal/config"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/firestore"
	"github.com/rumor-ml/commons.systems/pjledger/internal/pipeline"
	"github.com/rumor-ml/commons.systems/pjledger/internal/registry"
	"github.com/rumor-ml/commons.systems/pjledger/internal/report"
	"github.com/rumor-ml/commons.systems/pjledger/internal/rules"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
	"github.com/rumor-ml/commons.systems/pjledger/internal/sqlitestore"
)

// Store is the union of what the services persist through.
type Store interface {
	pipeline.Store
	report.Store
	settlement.Store
	SaveCategoryPlan(ctx context.Context, clientID string, defs []domain.CategoryDefinition) error
	Close() error
}

var (
	_ Store = (*sqlitestore.Store)(nil)
	_ Store = (*firestore.Client)(nil)
)

// Open connects to the store selected by cfg.Store.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store {
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.GCPProjectID, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.StoreSQLite:
		store, err := sqlitestore.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// Services are the ledger operations over one store.
type Services struct {
	Store       Store
	Reports     *report.Service
	Pipeline    *pipeline.Pipeline
	Settlements *settlement.Service
	Rules       *rules.Engine
}

// NewServices wires the report, import and settlement services. An empty
// rulesFile selects the embedded categorization rules.
func NewServices(store Store, cfg *config.Config, rulesFile string, opts ...pipeline.Option) (*Services, error) {
	engine, err := loadRules(rulesFile)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create parser registry: %w", err)
	}

	reports := report.NewService(store, cfg.CategoryCacheTTL)
	return &Services{
		Store:       store,
		Reports:     reports,
		Pipeline:    pipeline.New(store, reg, reports, engine, opts...),
		Settlements: settlement.NewService(store),
		Rules:       engine,
	}, nil
}

func loadRules(path string) (*rules.Engine, error) {
	if path == "" {
		engine, err := rules.LoadEmbedded()
		if err != nil {
			return nil, fmt.Errorf("failed to load embedded rules: %w", err)
		}
		return engine, nil
	}
	engine, err := rules.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules file: %w", err)
	}
	return engine, nil
}

// SaveCategoryPlan validates defs as a chart of accounts, stores it for the
// client and drops the cached index. Validation warnings are returned.
func (s *Services) SaveCategoryPlan(ctx context.Context, clientID string, defs []domain.CategoryDefinition) ([]domain.Warning, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty: %w", domain.ErrInvalidInput)
	}
	idx, err := category.NewIndex(defs)
	if err != nil {
		return nil, err
	}
	if err := s.Store.SaveCategoryPlan(ctx, clientID, defs); err != nil {
		return nil, fmt.Errorf("failed to save category plan: %w", err)
	}
	s.Reports.InvalidateCategories(clientID)
	return idx.Warnings(), nil
}

// Close releases the store.
func (s *Services) Close() error {
	return s.Store.Close()
}
