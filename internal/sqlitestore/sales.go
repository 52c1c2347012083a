package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
)

// GetCategoryPlan returns the client's chart of accounts or domain.ErrNotFound.
func (s *Store) GetCategoryPlan(ctx context.Context, clientID string) ([]domain.CategoryDefinition, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT categories FROM category_plans WHERE client_id = ?", clientID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category plan of %s: %w", clientID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category plan: %w", err)
	}

	var defs []domain.CategoryDefinition
	if err := json.Unmarshal([]byte(raw), &defs); err != nil {
		return nil, fmt.Errorf("invalid category plan of %s: %w", clientID, err)
	}
	return defs, nil
}

// SaveCategoryPlan replaces the client's chart of accounts.
func (s *Store) SaveCategoryPlan(ctx context.Context, clientID string, defs []domain.CategoryDefinition) error {
	data, err := json.Marshal(defs)
	if err != nil {
		return fmt.Errorf("failed to encode category plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO category_plans (client_id, categories, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET categories = excluded.categories, updated_at = excluded.updated_at`,
		clientID, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save category plan: %w", err)
	}
	return nil
}

// SaveSale stores a new sale. An existing ID returns domain.ErrAlreadyExists.
func (s *Store) SaveSale(ctx context.Context, sale *domain.Sale) error {
	legs, err := json.Marshal(sale.Legs)
	if err != nil {
		return fmt.Errorf("failed to encode legs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO sales (client_id, id, date, description, legs) VALUES (?, ?, ?, ?, ?)",
		sale.ClientID, sale.ID, sale.Date.Format(domain.DateLayout), sale.Description, string(legs))
	if isUniqueViolation(err) {
		return fmt.Errorf("sale %s: %w", sale.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to save sale: %w", err)
	}
	return nil
}

func getSale(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, clientID, saleID string) (*domain.Sale, error) {
	var (
		sale = domain.Sale{ID: saleID, ClientID: clientID}
		date string
		legs string
	)
	err := q.QueryRowContext(ctx, "SELECT date, description, legs FROM sales WHERE client_id = ? AND id = ?", clientID, saleID).
		Scan(&date, &sale.Description, &legs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sale %s: %w", saleID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sale: %w", err)
	}
	if sale.Date, err = time.Parse(domain.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date on sale %s: %w", saleID, err)
	}
	if err := json.Unmarshal([]byte(legs), &sale.Legs); err != nil {
		return nil, fmt.Errorf("invalid legs on sale %s: %w", saleID, err)
	}
	return &sale, nil
}

// GetSale returns one sale or domain.ErrNotFound.
func (s *Store) GetSale(ctx context.Context, clientID, saleID string) (*domain.Sale, error) {
	return getSale(ctx, s.db, clientID, saleID)
}

// SaveMatch writes a reconciled leg and its transaction together. The match
// is replayed on the stored leg, so the parcel and the transaction must both
// still be unmatched, otherwise a *domain.ConflictError is returned and
// nothing changes.
func (s *Store) SaveMatch(ctx context.Context, clientID, saleID string, leg domain.SaleLeg, txn domain.Transaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sale, err := getSale(ctx, tx, clientID, saleID)
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

		res, err := tx.ExecContext(ctx,
			"UPDATE transactions SET settlement_ref = ? WHERE client_id = ? AND id = ? AND settlement_ref = ''",
			txn.SettlementRef, clientID, txn.ID)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &domain.ConflictError{Entity: "transaction", ID: txn.ID, Reason: "missing or already reconciled"}
		}

		legs, err := json.Marshal(sale.Legs)
		if err != nil {
			return fmt.Errorf("failed to encode legs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE sales SET legs = ? WHERE client_id = ? AND id = ?", string(legs), clientID, saleID); err != nil {
			return fmt.Errorf("failed to update sale: %w", err)
		}
		return nil
	})
}
