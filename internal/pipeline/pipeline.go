// Package pipeline imports statement files into a client's ledger: detect,
// parse, deduplicate, classify and persist.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/pjledger/internal/category"
	"github.com/rumor-ml/commons.systems/pjledger/internal/classify"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/ingest"
	"github.com/rumor-ml/commons.systems/pjledger/internal/logger"
	"github.com/rumor-ml/commons.systems/pjledger/internal/parser"
	"github.com/rumor-ml/commons.systems/pjledger/internal/registry"
	"github.com/rumor-ml/commons.systems/pjledger/internal/transform"
)

// Store is the persistence the pipeline needs.
type Store interface {
	HasImport(ctx context.Context, clientID, accountID, fileHash string) (bool, error)
	// ListTransactions returns the account's transactions dated within
	// [from, to]. A zero bound is open.
	ListTransactions(ctx context.Context, clientID, accountID string, from, to time.Time) ([]domain.Transaction, error)
	// SaveImport stores the account, the accepted transactions and the
	// import record together.
	SaveImport(ctx context.Context, account domain.Account, record domain.ImportRecord, txns []domain.Transaction) error
	GetTransaction(ctx context.Context, clientID, txID string) (*domain.Transaction, error)
	UpdateClassification(ctx context.Context, clientID, txID string, c domain.Classification) error
}

// Categories resolves a client's category index. *report.Service
// implements it.
type Categories interface {
	CategoryIndex(ctx context.Context, clientID string) (*category.Index, error)
}

// ImportResult summarizes one ImportFile call.
type ImportResult struct {
	ImportID   string               `json:"importId,omitempty"`
	FileName   string               `json:"fileName"`
	FileHash   string               `json:"fileHash"`
	Parser     string               `json:"parser,omitempty"`
	AccountID  string               `json:"accountId"`
	Accepted   []domain.Transaction `json:"accepted"`
	Duplicates []ingest.Duplicate   `json:"duplicates"`
	Warnings   []domain.Warning     `json:"warnings"`
	Classified int                  `json:"classified"`
	// Skipped is set when the file was already imported for the account.
	Skipped bool `json:"skipped"`
	DryRun  bool `json:"dryRun"`
}

// Pipeline orchestrates statement imports
type Pipeline struct {
	store      Store
	registry   *registry.Registry
	categories Categories
	rules      classify.Matcher
	locks      *keyedMutex
	now        func() time.Time

	dryRun    bool
	pendingMu sync.Mutex
	pending   map[string][]domain.Transaction
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDryRun makes ImportFile run every step but persistence. Accepted
// transactions are kept in memory so later files of the same run are
// deduplicated against them.
func WithDryRun() Option {
	return func(p *Pipeline) { p.dryRun = true }
}

// WithClock overrides time.Now for import timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline.
func New(store Store, reg *registry.Registry, categories Categories, rules classify.Matcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		registry:   reg,
		categories: categories,
		rules:      rules,
		locks:      newKeyedMutex(),
		now:        time.Now,
		pending:    make(map[string][]domain.Transaction),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ImportFile imports one statement file. When accountID is empty it is
// derived from the institution and account number in the statement. Imports
// of the same account are serialized, and a file whose hash was already
// imported for the account is skipped.
func (p *Pipeline) ImportFile(ctx context.Context, clientID, accountID, name string, r io.Reader) (*ImportResult, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty: %w", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	prs, err := p.registry.Detect(name, data)
	if err != nil {
		return nil, err
	}

	meta, err := parser.NewMetadata(name, p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata: %w", err)
	}
	meta.SetClient(clientID)
	if accountID != "" {
		meta.SetAccount(accountID)
	}

	raw, err := prs.Parse(ctx, bytes.NewReader(data), meta)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}

	account, err := accountFor(clientID, accountID, raw)
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(clientID + "/" + account.ID)
	defer unlock()

	result := &ImportResult{
		FileName:  filepath.Base(name),
		FileHash:  hash,
		Parser:    prs.Name(),
		AccountID: account.ID,
		DryRun:    p.dryRun,
	}

	log := logger.FromContext(ctx).With().
		Str("client_id", clientID).
		Str("account_id", account.ID).
		Str("file", result.FileName).
		Logger()

	seen, err := p.store.HasImport(ctx, clientID, account.ID, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check import history: %w", err)
	}
	if seen {
		log.Info().Str("file_hash", hash).Msg("file already imported, skipping")
		result.Skipped = true
		result.Accepted = []domain.Transaction{}
		result.Duplicates = []ingest.Duplicate{}
		result.Warnings = []domain.Warning{}
		return result, nil
	}

	existing, err := p.store.ListTransactions(ctx, clientID, account.ID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load existing transactions: %w", err)
	}

	pendingKey := clientID + "/" + account.ID
	batch := ingest.FromStatement(raw, clientID, account.ID, hash)
	ingested, err := ingest.IngestBatch(batch, existing, p.pendingFor(pendingKey))
	if err != nil {
		return nil, err
	}

	idx, err := p.categories.CategoryIndex(ctx, clientID)
	if err != nil {
		return nil, err
	}
	result.Classified = classify.ApplyRules(ingested.Accepted, idx, p.rules)
	result.Accepted = ingested.Accepted
	result.Duplicates = ingested.Duplicates
	result.Warnings = ingested.Warnings

	if p.dryRun {
		p.pendingMu.Lock()
		p.pending[pendingKey] = append(p.pending[pendingKey], ingested.Accepted...)
		p.pendingMu.Unlock()
	} else {
		record := domain.ImportRecord{
			ID:          uuid.New().String(),
			ClientID:    clientID,
			AccountID:   account.ID,
			StatementID: transform.GenerateStatementID(raw.Period.Start(), account.ID),
			FileName:    result.FileName,
			FileHash:    hash,
			Parser:      prs.Name(),
			ImportedAt:  p.now().UTC(),
			Accepted:    len(ingested.Accepted),
			Duplicates:  ingested.DuplicateCount(),
			Warnings:    ingested.Warnings,
		}
		if err := p.store.SaveImport(ctx, *account, record, ingested.Accepted); err != nil {
			return nil, fmt.Errorf("failed to save import: %w", err)
		}
		result.ImportID = record.ID
	}

	log.Info().
		Int("accepted", len(result.Accepted)).
		Int("duplicates", len(result.Duplicates)).
		Int("classified", result.Classified).
		Int("warnings", len(result.Warnings)).
		Bool("dry_run", p.dryRun).
		Msg("statement imported")
	return result, nil
}

func (p *Pipeline) pendingFor(key string) []domain.Transaction {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return append([]domain.Transaction(nil), p.pending[key]...)
}

// accountFor builds the ledger account a statement belongs to.
func accountFor(clientID, accountID string, raw *parser.RawStatement) (*domain.Account, error) {
	institution := raw.Account.BankName()
	if institution == "" {
		institution = raw.Account.BankID()
	}
	if accountID == "" {
		slug, err := transform.SlugifyInstitution(institution)
		if err != nil {
			return nil, fmt.Errorf("failed to derive account ID: %w", err)
		}
		accountID = transform.GenerateAccountID(slug, raw.Account.AccountID())
	}

	account, err := domain.NewAccount(accountID, clientID, institution, raw.Account.AccountID(), "")
	if err != nil {
		return nil, err
	}
	account.Currency = raw.Currency
	return account, nil
}

// Reclassify assigns a manual classification to a transaction. The target
// must resolve in the client's category index; a node that does not accept
// postings is kept as requested and redirected when reports are built.
func (p *Pipeline) Reclassify(ctx context.Context, clientID, txID string, target domain.Target) (*domain.Transaction, error) {
	idx, err := p.categories.CategoryIndex(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := validateTarget(target, idx); err != nil {
		return nil, err
	}

	txn, err := p.store.GetTransaction(ctx, clientID, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txID, err)
	}

	probe := *txn
	probe.Classification = domain.ManualClassification{Target: target}
	if target.Group == "" {
		target.Group = classify.Classify(probe, idx).Group
	}
	txn.Classification = domain.ManualClassification{Target: target}

	if err := p.store.UpdateClassification(ctx, clientID, txID, txn.Classification); err != nil {
		return nil, fmt.Errorf("failed to update classification: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("client_id", clientID).
		Str("transaction_id", txID).
		Str("ledger_group", string(target.Group)).
		Str("category_path", target.CategoryPath).
		Msg("transaction reclassified")
	return txn, nil
}

func validateTarget(t domain.Target, idx *category.Index) error {
	if t.Group == "" && t.CategoryID == "" && t.CategoryPath == "" {
		return fmt.Errorf("classification target cannot be empty: %w", domain.ErrInvalidInput)
	}
	if t.Group != "" && !domain.ValidateLedgerGroup(t.Group) {
		return fmt.Errorf("invalid ledger group %q: %w", t.Group, domain.ErrInvalidInput)
	}
	if t.CategoryPath != "" {
		def, ok := idx.Lookup(t.CategoryPath)
		if !ok {
			return fmt.Errorf("category %s: %w", t.CategoryPath, domain.ErrNotFound)
		}
		if t.Group != "" && def.LedgerGroup != t.Group {
			return fmt.Errorf("category %s belongs to %s, not %s: %w", t.CategoryPath, def.LedgerGroup, t.Group, domain.ErrInvalidInput)
		}
	}
	if t.CategoryID != "" {
		if _, ok := idx.ByID(t.CategoryID); !ok {
			return fmt.Errorf("category id %s: %w", t.CategoryID, domain.ErrNotFound)
		}
	}
	return nil
}
