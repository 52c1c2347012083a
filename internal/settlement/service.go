package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/logger"
)

// Store persists sales and the transactions they are reconciled against.
type Store interface {
	SaveSale(ctx context.Context, sale *domain.Sale) error
	GetSale(ctx context.Context, clientID, saleID string) (*domain.Sale, error)
	GetTransaction(ctx context.Context, clientID, txID string) (*domain.Transaction, error)
	// ListUnreconciledCredits returns positive transactions without a
	// SettlementRef dated within [from, to].
	ListUnreconciledCredits(ctx context.Context, clientID string, from, to time.Time) ([]domain.Transaction, error)
	// SaveMatch persists the updated leg and transaction atomically.
	SaveMatch(ctx context.Context, clientID, saleID string, leg domain.SaleLeg, txn domain.Transaction) error
}

// SaleRequest is the input of CreateSale.
type SaleRequest struct {
	ClientID    string
	Date        time.Time
	Description string
	Legs        []LegSpec
}

// Service creates sales and reconciles their parcels against deposits.
type Service struct {
	store Store
}

// NewService creates a settlement service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateSale builds every leg's plan and stores the sale. Legs without an ID
// get a generated one.
func (s *Service) CreateSale(ctx context.Context, req SaleRequest) (*domain.Sale, error) {
	if req.ClientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty: %w", domain.ErrInvalidInput)
	}
	if req.Date.IsZero() {
		return nil, fmt.Errorf("sale date cannot be empty: %w", domain.ErrInvalidInput)
	}
	if len(req.Legs) == 0 {
		return nil, fmt.Errorf("sale must have at least one leg: %w", domain.ErrInvalidInput)
	}

	sale := &domain.Sale{
		ID:          uuid.New().String(),
		ClientID:    req.ClientID,
		Date:        dateOnly(req.Date),
		Description: strings.TrimSpace(req.Description),
		Legs:        make([]domain.SaleLeg, 0, len(req.Legs)),
	}

	seen := make(map[string]bool, len(req.Legs))
	for _, spec := range req.Legs {
		if spec.ID == "" {
			spec.ID = uuid.New().String()
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("duplicate leg ID %s: %w", spec.ID, domain.ErrAlreadyExists)
		}
		seen[spec.ID] = true

		leg, err := BuildLeg(sale.Date, spec)
		if err != nil {
			return nil, err
		}
		sale.Legs = append(sale.Legs, leg)
	}

	if err := s.store.SaveSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("failed to save sale: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("client_id", sale.ClientID).
		Str("sale_id", sale.ID).
		Int("legs", len(sale.Legs)).
		Msg("sale created")
	return sale, nil
}

// Suggest lists candidate deposits for the unmatched parcels of a leg. Only
// credits dated within window days of a due date are fetched; a window below
// MaxDaysApart is widened to it.
func (s *Service) Suggest(ctx context.Context, clientID, saleID, legID string, window int) ([]Suggestion, error) {
	leg, err := s.loadLeg(ctx, clientID, saleID, legID)
	if err != nil {
		return nil, err
	}
	if window < MaxDaysApart {
		window = MaxDaysApart
	}

	var from, to time.Time
	for _, p := range leg.Parcels {
		if p.IsMatched() {
			continue
		}
		if from.IsZero() || p.DueDate.Before(from) {
			from = p.DueDate
		}
		if to.IsZero() || p.DueDate.After(to) {
			to = p.DueDate
		}
	}
	if from.IsZero() {
		return []Suggestion{}, nil
	}

	candidates, err := s.store.ListUnreconciledCredits(ctx, clientID, from.AddDate(0, 0, -window), to.AddDate(0, 0, window))
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate deposits: %w", err)
	}
	return SuggestMatches(leg.Parcels, candidates), nil
}

// Confirm settles parcel n of a leg with a transaction and persists both.
func (s *Service) Confirm(ctx context.Context, clientID, saleID, legID string, n int, txID string) (*domain.SaleLeg, error) {
	leg, err := s.loadLeg(ctx, clientID, saleID, legID)
	if err != nil {
		return nil, err
	}
	txn, err := s.store.GetTransaction(ctx, clientID, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txID, err)
	}

	updatedLeg, updatedTxn, err := ConfirmMatch(saleID, *leg, n, *txn)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveMatch(ctx, clientID, saleID, updatedLeg, updatedTxn); err != nil {
		return nil, fmt.Errorf("failed to save match: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("client_id", clientID).
		Str("settlement_ref", updatedTxn.SettlementRef).
		Str("transaction_id", txID).
		Str("status", string(updatedLeg.Status)).
		Msg("parcel reconciled")
	return &updatedLeg, nil
}

func (s *Service) loadLeg(ctx context.Context, clientID, saleID, legID string) (*domain.SaleLeg, error) {
	sale, err := s.store.GetSale(ctx, clientID, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sale %s: %w", saleID, err)
	}
	leg, ok := sale.Leg(legID)
	if !ok {
		return nil, fmt.Errorf("leg %s of sale %s: %w", legID, saleID, domain.ErrNotFound)
	}
	return leg, nil
}
