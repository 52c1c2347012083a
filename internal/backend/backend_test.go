package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/pjledger/internal/config"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/sqlitestore"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:        config.StoreSQLite,
		DatabasePath: filepath.Join(t.TempDir(), "ledger.db"),
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &sqlitestore.Store{}, store)

	_, err = Open(ctx, &config.Config{Store: "postgres"})
	assert.ErrorContains(t, err, "unknown store")
}

func TestNewServices_RulesFile(t *testing.T) {
	cfg := sqliteConfig(t)
	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	svc, err := NewServices(store, cfg, "")
	require.NoError(t, err)
	assert.NotEmpty(t, svc.Rules.GetRules())

	_, err = NewServices(store, cfg, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to load rules file")
}

func TestSaveCategoryPlan(t *testing.T) {
	cfg := sqliteConfig(t)
	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	svc, err := NewServices(store, cfg, "")
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()

	// Warm the cache with the default plan.
	idx, err := svc.Reports.CategoryIndex(ctx, "acme")
	require.NoError(t, err)
	_, ok := idx.Lookup("administrative_expenses.occupancy.rent")
	require.True(t, ok)

	office, err := domain.NewCategoryDefinition("coworking", "Coworking", "administrative_expenses", 1, true)
	require.NoError(t, err)
	_, err = svc.SaveCategoryPlan(ctx, "acme", []domain.CategoryDefinition{*office})
	require.NoError(t, err)

	idx, err = svc.Reports.CategoryIndex(ctx, "acme")
	require.NoError(t, err)
	_, ok = idx.Lookup("administrative_expenses.coworking")
	assert.True(t, ok)
	_, ok = idx.Lookup("administrative_expenses.occupancy.rent")
	assert.False(t, ok)

	orphan, err := domain.NewCategoryDefinition("desk", "Desk", "administrative_expenses.missing", 1, true)
	require.NoError(t, err)
	_, err = svc.SaveCategoryPlan(ctx, "acme", []domain.CategoryDefinition{*orphan})
	var structural *domain.StructuralError
	assert.True(t, errors.As(err, &structural), "got %v", err)

	_, err = svc.SaveCategoryPlan(ctx, "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
