package settlement

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

const (
	// MaxDaysApart is the widest date gap between a due date and a deposit.
	MaxDaysApart = 3
	perfectScore = 100
	dayPenalty   = 10
)

// Suggestion pairs an unmatched parcel with a deposit that could settle it.
type Suggestion struct {
	ParcelN       int          `json:"parcel"`
	TransactionID string       `json:"transactionId"`
	DueDate       time.Time    `json:"-"`
	TxDate        time.Time    `json:"-"`
	Amount        domain.Cents `json:"amount"`
	DaysApart     int          `json:"daysApart"`
	Score         int          `json:"score"`
}

// MarshalJSON writes both dates as YYYY-MM-DD.
func (s Suggestion) MarshalJSON() ([]byte, error) {
	type alias Suggestion
	return json.Marshal(struct {
		alias
		DueDate string `json:"dueDate"`
		TxDate  string `json:"txDate"`
	}{
		alias:   alias(s),
		DueDate: s.DueDate.Format(domain.DateLayout),
		TxDate:  s.TxDate.Format(domain.DateLayout),
	})
}

// SuggestMatches scores every (unmatched parcel, candidate) pair with the same
// amount to the cent whose dates are at most MaxDaysApart days apart. Only
// positive, unreconciled candidates are considered. The result is ordered by
// score descending, then parcel number, transaction date and ID. It is never
// nil.
func SuggestMatches(parcels []domain.SettlementParcel, candidates []domain.Transaction) []Suggestion {
	suggestions := make([]Suggestion, 0)

	for _, p := range parcels {
		if p.IsMatched() {
			continue
		}
		due := dateOnly(p.DueDate)
		for _, txn := range candidates {
			amount := txn.Cents()
			if amount <= 0 || txn.IsReconciled() || amount != p.ExpectedAmount {
				continue
			}
			days := daysBetween(due, dateOnly(txn.Date))
			if days > MaxDaysApart {
				continue
			}
			suggestions = append(suggestions, Suggestion{
				ParcelN:       p.N,
				TransactionID: txn.ID,
				DueDate:       due,
				TxDate:        txn.Date,
				Amount:        amount,
				DaysApart:     days,
				Score:         perfectScore - dayPenalty*days,
			})
		}
	}

	sort.Slice(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ParcelN != b.ParcelN {
			return a.ParcelN < b.ParcelN
		}
		if !a.TxDate.Equal(b.TxDate) {
			return a.TxDate.Before(b.TxDate)
		}
		return a.TransactionID < b.TransactionID
	})
	return suggestions
}

func daysBetween(a, b time.Time) int {
	d := int(b.Sub(a).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

// ConfirmMatch settles parcel n of leg with txn and returns updated copies of
// both. Matching a settled parcel, a reconciled transaction, or a transaction
// already used by the leg yields *domain.ConflictError, and a transaction
// that is not a deposit yields domain.ErrInvalidInput. The inputs are never
// modified.
func ConfirmMatch(saleID string, leg domain.SaleLeg, n int, txn domain.Transaction) (domain.SaleLeg, domain.Transaction, error) {
	idx := -1
	for i, p := range leg.Parcels {
		if p.N == n {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.SaleLeg{}, domain.Transaction{}, fmt.Errorf("parcel %d of leg %s: %w", n, leg.ID, domain.ErrNotFound)
	}

	if txn.Cents() <= 0 {
		return domain.SaleLeg{}, domain.Transaction{}, fmt.Errorf("transaction %s is not a deposit: %w", txn.ID, domain.ErrInvalidInput)
	}

	ref := domain.ParcelRef(saleID, leg.ID, n)
	if p := leg.Parcels[idx]; p.IsMatched() {
		return domain.SaleLeg{}, domain.Transaction{}, &domain.ConflictError{
			Entity: "parcel",
			ID:     ref,
			Reason: fmt.Sprintf("already settled by transaction %s", p.ReceivedTxID),
		}
	}
	if txn.IsReconciled() {
		return domain.SaleLeg{}, domain.Transaction{}, &domain.ConflictError{
			Entity: "transaction",
			ID:     txn.ID,
			Reason: fmt.Sprintf("already reconciled with %s", txn.SettlementRef),
		}
	}
	for _, p := range leg.Parcels {
		if p.ReceivedTxID == txn.ID {
			return domain.SaleLeg{}, domain.Transaction{}, &domain.ConflictError{
				Entity: "transaction",
				ID:     txn.ID,
				Reason: fmt.Sprintf("already settles parcel %d of leg %s", p.N, leg.ID),
			}
		}
	}

	updated := leg.Clone()
	updated.Parcels[idx].ReceivedTxID = txn.ID
	updated.Status = LegStatus(updated)

	txn.SettlementRef = ref
	return updated, txn, nil
}

// ReplayMatch re-applies a match confirmed against a possibly stale copy of a
// leg to the stored leg. The parcel is the one updated points at txn; txn's
// own reconciliation state is checked by the caller. Stores call it inside
// their write transaction so a parcel is settled at most once.
func ReplayMatch(saleID string, stored, updated domain.SaleLeg, txn domain.Transaction) (domain.SaleLeg, error) {
	n := 0
	for _, p := range updated.Parcels {
		if p.ReceivedTxID == txn.ID {
			n = p.N
			break
		}
	}
	if n == 0 {
		return domain.SaleLeg{}, fmt.Errorf("leg %s does not reference transaction %s: %w", updated.ID, txn.ID, domain.ErrInvalidInput)
	}
	txn.SettlementRef = ""
	leg, _, err := ConfirmMatch(saleID, stored, n, txn)
	return leg, err
}

// LegStatus derives the reconciliation status from matched and total parcels.
func LegStatus(leg domain.SaleLeg) domain.ReconciliationStatus {
	matched := leg.MatchedCount()
	switch {
	case matched == 0:
		return domain.StatusUnmatched
	case matched == len(leg.Parcels):
		return domain.StatusFullyMatched
	default:
		return domain.StatusPartiallyMatched
	}
}
