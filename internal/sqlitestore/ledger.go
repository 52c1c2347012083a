package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

const transactionColumns = `id, client_id, account_id, date, amount, description, external_id, file_hash,
	legacy_category, legacy_label, classification, settlement_ref`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		txn      domain.Transaction
		date     string
		classRaw string
	)
	err := row.Scan(&txn.ID, &txn.ClientID, &txn.AccountID, &date, &txn.Amount, &txn.Description,
		&txn.ExternalID, &txn.FileHash, &txn.LegacyCategory, &txn.LegacyLabel, &classRaw, &txn.SettlementRef)
	if err != nil {
		return domain.Transaction{}, err
	}

	if txn.Date, err = time.Parse(domain.DateLayout, date); err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid date on transaction %s: %w", txn.ID, err)
	}
	var rec domain.ClassificationRecord
	if err := json.Unmarshal([]byte(classRaw), &rec); err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid classification on transaction %s: %w", txn.ID, err)
	}
	if txn.Classification, err = rec.Decode(); err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid classification on transaction %s: %w", txn.ID, err)
	}
	return txn, nil
}

func encodeClassification(c domain.Classification) (string, error) {
	data, err := json.Marshal(domain.EncodeClassification(c))
	if err != nil {
		return "", fmt.Errorf("failed to encode classification: %w", err)
	}
	return string(data), nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// ListTransactions returns an account's transactions dated within [from, to]
// ordered by date. An empty accountID covers every account of the client; a
// zero bound is open.
func (s *Store) ListTransactions(ctx context.Context, clientID, accountID string, from, to time.Time) ([]domain.Transaction, error) {
	var (
		where = []string{"client_id = ?"}
		args  = []any{clientID}
	)
	if accountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, accountID)
	}
	if !from.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, from.Format(domain.DateLayout))
	}
	if !to.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, to.Format(domain.DateLayout))
	}

	query := "SELECT " + transactionColumns + " FROM transactions WHERE " + strings.Join(where, " AND ") + " ORDER BY date, id"
	return s.queryTransactions(ctx, query, args...)
}

// ListUnreconciledCredits returns positive transactions without a settlement
// reference dated within [from, to].
func (s *Store) ListUnreconciledCredits(ctx context.Context, clientID string, from, to time.Time) ([]domain.Transaction, error) {
	query := "SELECT " + transactionColumns + ` FROM transactions
		WHERE client_id = ? AND settlement_ref = '' AND amount > 0 AND date >= ? AND date <= ?
		ORDER BY date, id`
	return s.queryTransactions(ctx, query, clientID, from.Format(domain.DateLayout), to.Format(domain.DateLayout))
}

// GetTransaction returns one transaction or domain.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, clientID, txID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE client_id = ? AND id = ?", clientID, txID)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// UpdateClassification replaces a transaction's classification.
func (s *Store) UpdateClassification(ctx context.Context, clientID, txID string, c domain.Classification) error {
	encoded, err := encodeClassification(c)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE transactions SET classification = ? WHERE client_id = ? AND id = ?", encoded, clientID, txID)
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	return nil
}

// ListAccounts returns a client's accounts ordered by ID.
func (s *Store) ListAccounts(ctx context.Context, clientID string) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, client_id, institution, number, name, currency FROM accounts WHERE client_id = ? ORDER BY id", clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.ClientID, &a.Institution, &a.Number, &a.Name, &a.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// HasImport reports whether a file with this hash was imported for the account.
func (s *Store) HasImport(ctx context.Context, clientID, accountID, fileHash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM imports WHERE client_id = ? AND account_id = ? AND file_hash = ?",
		clientID, accountID, fileHash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query imports: %w", err)
	}
	return n > 0, nil
}

// SaveImport upserts the account and stores the transactions and the import
// record in one transaction. Re-saving a known file hash returns
// domain.ErrAlreadyExists and writes nothing.
func (s *Store) SaveImport(ctx context.Context, account domain.Account, record domain.ImportRecord, txns []domain.Transaction) error {
	warnings, err := json.Marshal(record.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO accounts (client_id, id, institution, number, name, currency)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (client_id, id) DO UPDATE SET institution = excluded.institution, currency = excluded.currency`,
			account.ClientID, account.ID, account.Institution, account.Number, account.Name, account.Currency)
		if err != nil {
			return fmt.Errorf("failed to save account %s: %w", account.ID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, txn := range txns {
			classification, err := encodeClassification(txn.Classification)
			if err != nil {
				return err
			}
			_, err = stmt.ExecContext(ctx, txn.ID, txn.ClientID, txn.AccountID, txn.Date.Format(domain.DateLayout),
				txn.Amount, txn.Description, txn.ExternalID, txn.FileHash, txn.LegacyCategory, txn.LegacyLabel,
				classification, txn.SettlementRef)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO imports
			(id, client_id, account_id, statement_id, file_name, file_hash, parser, imported_at, accepted, duplicates, warnings)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.ClientID, record.AccountID, record.StatementID, record.FileName, record.FileHash,
			record.Parser, record.ImportedAt.UTC().Format(time.RFC3339), record.Accepted, record.Duplicates, string(warnings))
		if isUniqueViolation(err) {
			return fmt.Errorf("import of %s: %w", record.FileName, domain.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("failed to save import record: %w", err)
		}
		return nil
	})
}

// ListImports returns the import history of a client, newest first.
func (s *Store) ListImports(ctx context.Context, clientID string) ([]domain.ImportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, client_id, account_id, statement_id, file_name, file_hash, parser,
		imported_at, accepted, duplicates, warnings FROM imports WHERE client_id = ? ORDER BY imported_at DESC, id`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ImportRecord, 0)
	for rows.Next() {
		var (
			rec        domain.ImportRecord
			importedAt string
			warnings   string
		)
		if err := rows.Scan(&rec.ID, &rec.ClientID, &rec.AccountID, &rec.StatementID, &rec.FileName, &rec.FileHash,
			&rec.Parser, &importedAt, &rec.Accepted, &rec.Duplicates, &warnings); err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		if rec.ImportedAt, err = time.Parse(time.RFC3339, importedAt); err != nil {
			return nil, fmt.Errorf("invalid import time on %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(warnings), &rec.Warnings); err != nil {
			return nil, fmt.Errorf("invalid warnings on import %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
