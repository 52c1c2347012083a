package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
)

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

func (c *Client) collectTransactions(ctx context.Context, q firestore.Query) ([]domain.Transaction, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	txns := make([]domain.Transaction, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions: %w", err)
		}

		var stored Transaction
		if err := doc.DataTo(&stored); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		txn, err := stored.toDomain()
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// ListTransactions returns an account's transactions dated within [from, to]
// ordered by date. An empty accountID covers every account of the client; a
// zero bound is open.
func (c *Client) ListTransactions(ctx context.Context, clientID, accountID string, from, to time.Time) ([]domain.Transaction, error) {
	q := c.Firestore.Collection(transactionsCollection).Where("clientId", "==", clientID)
	if accountID != "" {
		q = q.Where("accountId", "==", accountID)
	}
	if !from.IsZero() {
		q = q.Where("date", ">=", from.Format(domain.DateLayout))
	}
	if !to.IsZero() {
		q = q.Where("date", "<=", to.Format(domain.DateLayout))
	}
	return c.collectTransactions(ctx, q.OrderBy("date", firestore.Asc).OrderBy("id", firestore.Asc))
}

// ListUnreconciledCredits returns positive transactions without a settlement
// reference dated within [from, to].
func (c *Client) ListUnreconciledCredits(ctx context.Context, clientID string, from, to time.Time) ([]domain.Transaction, error) {
	q := c.Firestore.Collection(transactionsCollection).
		Where("clientId", "==", clientID).
		Where("settlementRef", "==", "").
		Where("date", ">=", from.Format(domain.DateLayout)).
		Where("date", "<=", to.Format(domain.DateLayout)).
		OrderBy("date", firestore.Asc)

	txns, err := c.collectTransactions(ctx, q)
	if err != nil {
		return nil, err
	}
	credits := txns[:0]
	for _, txn := range txns {
		if txn.Amount > 0 {
			credits = append(credits, txn)
		}
	}
	return credits, nil
}

// GetTransaction returns one transaction or domain.ErrNotFound.
func (c *Client) GetTransaction(ctx context.Context, clientID, txID string) (*domain.Transaction, error) {
	doc, err := c.Firestore.Collection(transactionsCollection).Doc(docID(clientID, txID)).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	var stored Transaction
	if err := doc.DataTo(&stored); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	txn, err := stored.toDomain()
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// UpdateClassification replaces a transaction's classification.
func (c *Client) UpdateClassification(ctx context.Context, clientID, txID string, cl domain.Classification) error {
	_, err := c.Firestore.Collection(transactionsCollection).Doc(docID(clientID, txID)).Update(ctx, []firestore.Update{
		{Path: "classification", Value: domain.EncodeClassification(cl)},
	})
	if isNotFound(err) {
		return fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}
	return nil
}

// ListAccounts returns a client's accounts ordered by ID.
func (c *Client) ListAccounts(ctx context.Context, clientID string) ([]domain.Account, error) {
	iter := c.Firestore.Collection(accountsCollection).
		Where("clientId", "==", clientID).
		OrderBy("id", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	accounts := make([]domain.Account, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate accounts: %w", err)
		}

		var a Account
		if err := doc.DataTo(&a); err != nil {
			return nil, fmt.Errorf("failed to parse account: %w", err)
		}
		accounts = append(accounts, domain.Account(a))
	}
	return accounts, nil
}

// HasImport reports whether a file with this hash was imported for the account.
func (c *Client) HasImport(ctx context.Context, clientID, accountID, fileHash string) (bool, error) {
	_, err := c.Firestore.Collection(importsCollection).Doc(docID(clientID, accountID, fileHash)).Get(ctx)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get import: %w", err)
	}
	return true, nil
}

// SaveImport upserts the account, writes the transactions that are not
// stored yet and finally creates the import record. The record is keyed by
// file hash, so a concurrent second import of the same file fails with
// domain.ErrAlreadyExists after its transactions were ignored as existing.
func (c *Client) SaveImport(ctx context.Context, account domain.Account, record domain.ImportRecord, txns []domain.Transaction) error {
	importRef := c.Firestore.Collection(importsCollection).Doc(docID(record.ClientID, record.AccountID, record.FileHash))
	if _, err := importRef.Get(ctx); err == nil {
		return fmt.Errorf("import of %s: %w", record.FileName, domain.ErrAlreadyExists)
	} else if !isNotFound(err) {
		return fmt.Errorf("failed to get import: %w", err)
	}

	accountRef := c.Firestore.Collection(accountsCollection).Doc(docID(account.ClientID, account.ID))
	if _, err := accountRef.Set(ctx, accountDoc(account)); err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.ID, err)
	}

	now := time.Now()
	bw := c.Firestore.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(txns))
	for _, txn := range txns {
		doc := transactionDoc(txn, now)
		if err := doc.Validate(); err != nil {
			bw.End()
			return fmt.Errorf("invalid transaction %s: %w", txn.ID, err)
		}
		job, err := bw.Create(c.Firestore.Collection(transactionsCollection).Doc(docID(txn.ClientID, txn.ID)), doc)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue transaction %s: %w", txn.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("failed to write transaction %s: %w", txns[i].ID, err)
		}
	}

	_, err := importRef.Create(ctx, ImportRecord(record))
	if isAlreadyExists(err) {
		return fmt.Errorf("import of %s: %w", record.FileName, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to save import record: %w", err)
	}
	return nil
}

// GetCategoryPlan returns the client's chart of accounts or domain.ErrNotFound.
func (c *Client) GetCategoryPlan(ctx context.Context, clientID string) ([]domain.CategoryDefinition, error) {
	doc, err := c.Firestore.Collection(plansCollection).Doc(clientID).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("category plan of %s: %w", clientID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category plan: %w", err)
	}

	var plan CategoryPlan
	if err := doc.DataTo(&plan); err != nil {
		return nil, fmt.Errorf("failed to parse category plan: %w", err)
	}
	return plan.Categories, nil
}

// SaveCategoryPlan replaces the client's chart of accounts.
func (c *Client) SaveCategoryPlan(ctx context.Context, clientID string, defs []domain.CategoryDefinition) error {
	plan := CategoryPlan{ClientID: clientID, Categories: defs, UpdatedAt: time.Now()}
	if _, err := c.Firestore.Collection(plansCollection).Doc(clientID).Set(ctx, plan); err != nil {
		return fmt.Errorf("failed to save category plan: %w", err)
	}
	return nil
}

// SaveSale stores a new sale. An existing ID returns domain.ErrAlreadyExists.
func (c *Client) SaveSale(ctx context.Context, sale *domain.Sale) error {
	_, err := c.Firestore.Collection(salesCollection).Doc(docID(sale.ClientID, sale.ID)).Create(ctx, saleDoc(sale, time.Now()))
	if isAlreadyExists(err) {
		return fmt.Errorf("sale %s: %w", sale.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to save sale: %w", err)
	}
	return nil
}

func saleFromSnapshot(doc *firestore.DocumentSnapshot) (*domain.Sale, Sale, error) {
	var stored Sale
	if err := doc.DataTo(&stored); err != nil {
		return nil, Sale{}, fmt.Errorf("failed to parse sale: %w", err)
	}
	sale, err := stored.toDomain()
	return sale, stored, err
}

// GetSale returns one sale or domain.ErrNotFound.
func (c *Client) GetSale(ctx context.Context, clientID, saleID string) (*domain.Sale, error) {
	doc, err := c.Firestore.Collection(salesCollection).Doc(docID(clientID, saleID)).Get(ctx)
	if isNotFound(err) {
		return nil, fmt.Errorf("sale %s: %w", saleID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	sale, _, err := saleFromSnapshot(doc)
	return sale, err
}

var errTransactionReconciled = errors.New("missing or already reconciled")

// SaveMatch writes a reconciled leg and its transaction in one Firestore
// transaction. The match is replayed on the stored leg, so the parcel and the
// transaction must both still be unmatched, otherwise a *domain.ConflictError
// is returned and nothing changes.
func (c *Client) SaveMatch(ctx context.Context, clientID, saleID string, leg domain.SaleLeg, txn domain.Transaction) error {
	saleRef := c.Firestore.Collection(salesCollection).Doc(docID(clientID, saleID))
	txnRef := c.Firestore.Collection(transactionsCollection).Doc(docID(clientID, txn.ID))

	err := c.Firestore.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		saleSnap, err := tx.Get(saleRef)
		if isNotFound(err) {
			return fmt.Errorf("sale %s: %w", saleID, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}
		sale, stored, err := saleFromSnapshot(saleSnap)
		if err != nil {
			return err
		}
		current, ok := sale.Leg(leg.ID)
		if !ok {
			return fmt.Errorf("leg %s of sale %s: %w", leg.ID, saleID, domain.ErrNotFound)
		}
		confirmed, err := settlement.ReplayMatch(saleID, *current, leg, txn)
		if err != nil {
			return err
		}
		*current = confirmed

		txnSnap, err := tx.Get(txnRef)
		if isNotFound(err) {
			return errTransactionReconciled
		}
		if err != nil {
			return err
		}
		ref, err := txnSnap.DataAt("settlementRef")
		if err != nil {
			return err
		}
		if s, _ := ref.(string); s != "" {
			return errTransactionReconciled
		}

		if err := tx.Update(txnRef, []firestore.Update{{Path: "settlementRef", Value: txn.SettlementRef}}); err != nil {
			return err
		}
		return tx.Set(saleRef, saleDoc(sale, stored.CreatedAt))
	})
	if errors.Is(err, errTransactionReconciled) {
		return &domain.ConflictError{Entity: "transaction", ID: txn.ID, Reason: errTransactionReconciled.Error()}
	}
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}
	return nil
}
