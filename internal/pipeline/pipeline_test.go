package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/pjledger/internal/category"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/registry"
	"github.com/rumor-ml/commons.systems/pjledger/internal/rules"
)

type memStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	imports  []domain.ImportRecord
	txns     map[string]domain.Transaction
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]domain.Account{}, txns: map[string]domain.Transaction{}}
}

func (m *memStore) HasImport(_ context.Context, clientID, accountID, fileHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.imports {
		if rec.ClientID == clientID && rec.AccountID == accountID && rec.FileHash == fileHash {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListTransactions(_ context.Context, clientID, accountID string, _, _ time.Time) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range m.txns {
		if txn.ClientID == clientID && txn.AccountID == accountID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (m *memStore) SaveImport(_ context.Context, account domain.Account, record domain.ImportRecord, txns []domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.accounts[account.ID] = account
	m.imports = append(m.imports, record)
	for _, txn := range txns {
		m.txns[txn.ID] = txn
	}
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, clientID, txID string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[txID]
	if !ok || txn.ClientID != clientID {
		return nil, domain.ErrNotFound
	}
	return &txn, nil
}

func (m *memStore) UpdateClassification(_ context.Context, clientID, txID string, c domain.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.txns[txID]
	if !ok || txn.ClientID != clientID {
		return domain.ErrNotFound
	}
	txn.Classification = c
	m.txns[txID] = txn
	return nil
}

type defaultCategories struct{}

func (defaultCategories) CategoryIndex(context.Context, string) (*category.Index, error) {
	return category.DefaultIndex()
}

func newPipeline(t *testing.T, store Store, opts ...Option) *Pipeline {
	t.Helper()
	engine, err := rules.LoadEmbedded()
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC) }
	return New(store, registry.MustNew(), defaultCategories{}, engine, append([]Option{WithClock(clock)}, opts...)...)
}

const january = "Data;Descrição;Documento;Valor;Saldo\n" +
	"02/01/2025;PIX RECEBIDO ACME;E1;1.500,00;1.500,00\n" +
	"05/01/2025;ALUGUEL SALA 12;;-300,00;1.200,00\n"

const januaryReexport = "Data;Descrição;Documento;Valor;Saldo\n" +
	"02/01/2025;PIX RECEBIDO ACME;E1;1.500,00;1.500,00\n" +
	"05/01/2025;ALUGUEL SALA 12;;-300,00;1.200,00\n" +
	"07/01/2025;TARIFA PACOTE;;-30,00;1.170,00\n"

func TestImportFile(t *testing.T) {
	store := newMemStore()
	p := newPipeline(t, store)

	res, err := p.ImportFile(context.Background(), "acme", "itau", "jan.csv", strings.NewReader(january))
	require.NoError(t, err)

	assert.Equal(t, "csv-extrato", res.Parser)
	assert.Equal(t, "itau", res.AccountID)
	assert.Len(t, res.Accepted, 2)
	assert.Empty(t, res.Duplicates)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, res.Classified)
	assert.NotEmpty(t, res.ImportID)
	assert.False(t, res.Skipped)

	require.Len(t, store.imports, 1)
	rec := store.imports[0]
	assert.Equal(t, res.FileHash, rec.FileHash)
	assert.Equal(t, "stmt-2025-01-itau", rec.StatementID)
	assert.Equal(t, 2, rec.Accepted)
	assert.Len(t, store.txns, 2)

	for _, txn := range store.txns {
		c, ok := txn.Classification.(domain.RuleClassification)
		require.True(t, ok, "transaction %s should be rule classified", txn.Description)
		if txn.Amount < 0 {
			assert.Equal(t, "rent", c.RuleID)
			assert.Equal(t, "administrative_expenses.occupancy.rent", c.CategoryPath)
		}
	}
}

func TestImportFile_SameFileSkipped(t *testing.T) {
	store := newMemStore()
	p := newPipeline(t, store)
	ctx := context.Background()

	_, err := p.ImportFile(ctx, "acme", "itau", "jan.csv", strings.NewReader(january))
	require.NoError(t, err)

	res, err := p.ImportFile(ctx, "acme", "itau", "jan-copy.csv", strings.NewReader(january))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, res.Accepted)
	assert.Len(t, store.imports, 1)
}

func TestImportFile_OverlappingFileDeduplicated(t *testing.T) {
	store := newMemStore()
	p := newPipeline(t, store)
	ctx := context.Background()

	_, err := p.ImportFile(ctx, "acme", "itau", "jan.csv", strings.NewReader(january))
	require.NoError(t, err)

	res, err := p.ImportFile(ctx, "acme", "itau", "jan-full.csv", strings.NewReader(januaryReexport))
	require.NoError(t, err)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "TARIFA PACOTE", res.Accepted[0].Description)
	assert.Len(t, res.Duplicates, 2)
	assert.Len(t, store.txns, 3)
}

func TestImportFile_DryRun(t *testing.T) {
	store := newMemStore()
	p := newPipeline(t, store, WithDryRun())
	ctx := context.Background()

	res, err := p.ImportFile(ctx, "acme", "itau", "jan.csv", strings.NewReader(january))
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Len(t, res.Accepted, 2)
	assert.Empty(t, res.ImportID)
	assert.Empty(t, store.imports)
	assert.Empty(t, store.txns)

	res, err = p.ImportFile(ctx, "acme", "itau", "jan-full.csv", strings.NewReader(januaryReexport))
	require.NoError(t, err)
	assert.Len(t, res.Accepted, 1, "entries accepted earlier in the run are pending duplicates")
	assert.Len(t, res.Duplicates, 2)
}

func TestImportFile_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing client", func(t *testing.T) {
		_, err := newPipeline(t, newMemStore()).ImportFile(ctx, "", "itau", "jan.csv", strings.NewReader(january))
		assert.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := newPipeline(t, newMemStore()).ImportFile(ctx, "acme", "itau", "notes.txt", strings.NewReader("hello"))
		assert.ErrorContains(t, err, "no parser found")
	})

	t.Run("parse error rejects file", func(t *testing.T) {
		store := newMemStore()
		bad := "Data;Descrição;Valor\n02/01/2025;A;1,00\n99/99/2025;B;2,00\n"
		_, err := newPipeline(t, store).ImportFile(ctx, "acme", "itau", "bad.csv", strings.NewReader(bad))

		var pe *domain.ParseError
		assert.True(t, errors.As(err, &pe))
		assert.Empty(t, store.imports)
	})

	t.Run("store failure", func(t *testing.T) {
		store := newMemStore()
		store.saveErr = errors.New("quota exceeded")
		_, err := newPipeline(t, store).ImportFile(ctx, "acme", "itau", "jan.csv", strings.NewReader(january))
		assert.ErrorContains(t, err, "quota exceeded")
	})
}

func TestImportFile_ConcurrentSameAccount(t *testing.T) {
	store := newMemStore()
	p := newPipeline(t, store)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.ImportFile(context.Background(), "acme", "itau", "jan.csv", strings.NewReader(january))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.imports, 1)
	assert.Len(t, store.txns, 2)
	assert.Zero(t, p.locks.size())
}

func TestReclassify(t *testing.T) {
	store := newMemStore()
	p := newPipeline(t, store)
	ctx := context.Background()

	res, err := p.ImportFile(ctx, "acme", "itau", "jan.csv", strings.NewReader(january))
	require.NoError(t, err)
	var rentID string
	for _, txn := range res.Accepted {
		if txn.Amount < 0 {
			rentID = txn.ID
		}
	}
	require.NotEmpty(t, rentID)

	txn, err := p.Reclassify(ctx, "acme", rentID, domain.Target{CategoryPath: "administrative_expenses.occupancy.utilities"})
	require.NoError(t, err)

	manual, ok := txn.Classification.(domain.ManualClassification)
	require.True(t, ok)
	assert.Equal(t, domain.LedgerAdministrative, manual.Group)
	assert.Equal(t, domain.KindManual, store.txns[rentID].Classification.Kind())

	tests := []struct {
		name   string
		txID   string
		target domain.Target
	}{
		{"empty target", rentID, domain.Target{}},
		{"unknown path", rentID, domain.Target{CategoryPath: "administrative_expenses.yachts"}},
		{"invalid group", rentID, domain.Target{Group: "luxury"}},
		{"group mismatch", rentID, domain.Target{Group: domain.LedgerRevenue, CategoryPath: "administrative_expenses.occupancy.rent"}},
		{"unknown transaction", "txn-missing", domain.Target{Group: domain.LedgerOther}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Reclassify(ctx, "acme", tt.txID, tt.target)
			assert.Error(t, err)
		})
	}
}

func TestReimportKeepsManualClassification(t *testing.T) {
	store := newMemStore()
	p := newPipeline(t, store)
	ctx := context.Background()

	res, err := p.ImportFile(ctx, "acme", "itau", "jan.csv", strings.NewReader(january))
	require.NoError(t, err)
	id := res.Accepted[0].ID

	_, err = p.Reclassify(ctx, "acme", id, domain.Target{Group: domain.LedgerOther})
	require.NoError(t, err)

	_, err = p.ImportFile(ctx, "acme", "itau", "jan-full.csv", strings.NewReader(januaryReexport))
	require.NoError(t, err)
	assert.Equal(t, domain.KindManual, store.txns[id].Classification.Kind())
}
