package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PaymentMethod is the instrument used for one leg of a sale.
type PaymentMethod string

const (
	MethodPix        PaymentMethod = "pix"
	MethodBoleto     PaymentMethod = "boleto"
	MethodDebitCard  PaymentMethod = "debit_card"
	MethodCreditCard PaymentMethod = "credit_card"
	MethodCash       PaymentMethod = "cash"
	MethodTransfer   PaymentMethod = "transfer"
)

// SettlementRuleKind selects how a leg is paid out.
type SettlementRuleKind string

const (
	RuleDaysAfter           SettlementRuleKind = "days_after"
	RuleMonthlyInstallments SettlementRuleKind = "monthly_installments"
)

// SettlementRule is either "due Days days after the sale" or
// "monthly installments starting one month after the sale".
type SettlementRule struct {
	Kind SettlementRuleKind `json:"kind" firestore:"kind"`
	Days int                `json:"days,omitempty" firestore:"days,omitempty"`
}

func (r SettlementRule) String() string {
	if r.Kind == RuleMonthlyInstallments {
		return "installments"
	}
	return "D+" + strconv.Itoa(r.Days)
}

// ReconciliationStatus summarizes how many parcels of a leg are matched.
type ReconciliationStatus string

const (
	StatusUnmatched        ReconciliationStatus = "unmatched"
	StatusPartiallyMatched ReconciliationStatus = "partially_matched"
	StatusFullyMatched     ReconciliationStatus = "fully_matched"
)

// SettlementParcel is one expected payout of a sale leg.
type SettlementParcel struct {
	N              int       `json:"n"`
	DueDate        time.Time `json:"-"`
	ExpectedAmount Cents     `json:"expectedAmount"`
	ReceivedTxID   string    `json:"receivedTxId,omitempty"`
}

// IsMatched reports whether a bank transaction has been confirmed for p.
func (p SettlementParcel) IsMatched() bool {
	return p.ReceivedTxID != ""
}

// MarshalJSON implements custom JSON marshaling for SettlementParcel
func (p SettlementParcel) MarshalJSON() ([]byte, error) {
	type Alias SettlementParcel
	return json.Marshal(&struct {
		Alias
		DueDate string `json:"dueDate"`
	}{
		Alias:   Alias(p),
		DueDate: p.DueDate.Format(DateLayout),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for SettlementParcel
func (p *SettlementParcel) UnmarshalJSON(data []byte) error {
	type Alias SettlementParcel
	aux := &struct {
		*Alias
		DueDate string `json:"dueDate"`
	}{
		Alias: (*Alias)(p),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	due, err := time.Parse(DateLayout, aux.DueDate)
	if err != nil {
		return fmt.Errorf("invalid due date: %w", err)
	}
	p.DueDate = due
	return nil
}

// SaleLeg is the part of a sale paid with one instrument.
type SaleLeg struct {
	ID           string               `json:"id"`
	Method       PaymentMethod        `json:"method"`
	GrossAmount  Cents                `json:"grossAmount"`
	NetAmount    Cents                `json:"netAmount"`
	Installments int                  `json:"installments"`
	Rule         SettlementRule       `json:"rule"`
	Parcels      []SettlementParcel   `json:"parcels"`
	Status       ReconciliationStatus `json:"status"`
}

// MatchedCount returns the number of parcels with a confirmed transaction.
func (l SaleLeg) MatchedCount() int {
	n := 0
	for _, p := range l.Parcels {
		if p.IsMatched() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of l.
func (l SaleLeg) Clone() SaleLeg {
	l.Parcels = append([]SettlementParcel(nil), l.Parcels...)
	return l
}

// Sale is a sale record with one or more payment legs.
type Sale struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"clientId"`
	Date        time.Time `json:"-"`
	Description string    `json:"description"`
	Legs        []SaleLeg `json:"legs"`
}

// Leg returns a pointer to the leg with the given id.
func (s *Sale) Leg(id string) (*SaleLeg, bool) {
	for i := range s.Legs {
		if s.Legs[i].ID == id {
			return &s.Legs[i], true
		}
	}
	return nil, false
}

// MarshalJSON implements custom JSON marshaling for Sale
func (s Sale) MarshalJSON() ([]byte, error) {
	type Alias Sale
	return json.Marshal(&struct {
		Alias
		Date string `json:"date"`
	}{
		Alias: Alias(s),
		Date:  s.Date.Format(DateLayout),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Sale
func (s *Sale) UnmarshalJSON(data []byte) error {
	type Alias Sale
	aux := &struct {
		*Alias
		Date string `json:"date"`
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	date, err := time.Parse(DateLayout, aux.Date)
	if err != nil {
		return fmt.Errorf("invalid sale date: %w", err)
	}
	s.Date = date
	return nil
}

// ParcelRef identifies a parcel from the transaction side of a match.
func ParcelRef(saleID, legID string, n int) string {
	return fmt.Sprintf("%s/%s/%d", saleID, legID, n)
}
