package parser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

// Parser is the strategy interface for all statement file parsers
type Parser interface {
	// Name returns parser identifier (e.g., "ofx", "csv-extrato")
	Name() string

	// CanParse checks if parser can handle this file
	// Returns true if this parser should be used for the file
	CanParse(path string, header []byte) bool

	// Parse extracts raw data from file
	Parse(ctx context.Context, r io.Reader, meta *Metadata) (*RawStatement, error)
}

// RawStatement represents parsed data before ingestion.
// Balances are nil when the file does not report them.
type RawStatement struct {
	Account        RawAccount
	Period         Period
	Currency       string
	OpeningBalance *float64
	ClosingBalance *float64
	Transactions   []RawTransaction
}

// Net sums every transaction amount in cents.
func (s *RawStatement) Net() domain.Cents {
	var net domain.Cents
	for _, t := range s.Transactions {
		net += domain.FromFloat(t.amount)
	}
	return net
}

// RawAccount represents account information from the file
type RawAccount struct {
	bankID      string // e.g. "0341" (FEBRABAN code) or "ITAU"
	bankName    string // e.g. "Itaú Unibanco"
	accountID   string // From file or directory
	accountType string // "checking", "savings", "credit", "payment"
}

// BankID returns the bank identifier
func (r *RawAccount) BankID() string { return r.bankID }

// BankName returns the bank name
func (r *RawAccount) BankName() string { return r.bankName }

// AccountID returns the account identifier
func (r *RawAccount) AccountID() string { return r.accountID }

// AccountType returns the account type
func (r *RawAccount) AccountType() string { return r.accountType }

// SetBankName updates the bank name (populated from metadata after construction)
func (r *RawAccount) SetBankName(name string) {
	r.bankName = name
}

// NewRawAccount creates a validated raw account
func NewRawAccount(bankID, bankName, accountID, accountType string) (*RawAccount, error) {
	if bankID == "" {
		return nil, fmt.Errorf("bank ID cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}

	return &RawAccount{
		bankID:      bankID,
		bankName:    bankName,
		accountID:   accountID,
		accountType: accountType,
	}, nil
}

// Period represents the statement period. A single-day statement has
// start equal to end.
type Period struct {
	start time.Time
	end   time.Time
}

// Start returns the period start time
func (p *Period) Start() time.Time { return p.start }

// End returns the period end time
func (p *Period) End() time.Time { return p.end }

// Contains returns true if the given time falls within the period (inclusive)
func (p *Period) Contains(t time.Time) bool {
	return !t.Before(p.start) && !t.After(p.end)
}

// NewPeriod creates a validated period
func NewPeriod(start, end time.Time) (*Period, error) {
	if start.IsZero() {
		return nil, fmt.Errorf("start time cannot be zero")
	}
	if end.IsZero() {
		return nil, fmt.Errorf("end time cannot be zero")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("start must not be after end")
	}

	return &Period{
		start: start,
		end:   end,
	}, nil
}

// RawTransaction represents a statement entry before ingestion
type RawTransaction struct {
	id          string // FITID from OFX, empty when the file has none
	date        time.Time
	description string
	amount      float64 // Positive=inflow, Negative=outflow
	txnType     string  // "DEBIT", "CREDIT", etc.
	memo        string
}

// ID returns the external transaction ID, empty if the file has none
func (r *RawTransaction) ID() string { return r.id }

// Date returns the transaction date
func (r *RawTransaction) Date() time.Time { return r.date }

// Description returns the transaction description
func (r *RawTransaction) Description() string { return r.description }

// Amount returns the transaction amount
func (r *RawTransaction) Amount() float64 { return r.amount }

// Type returns the transaction type hint
func (r *RawTransaction) Type() string { return r.txnType }

// Memo returns the transaction memo
func (r *RawTransaction) Memo() string { return r.memo }

// SetType sets the optional transaction type (e.g., "DEBIT", "CREDIT")
func (r *RawTransaction) SetType(txnType string) {
	r.txnType = txnType
}

// SetMemo sets the optional memo field
func (r *RawTransaction) SetMemo(memo string) {
	r.memo = memo
}

// NewRawTransaction creates a validated raw transaction. The id may be
// empty; ingestion then derives one from the entry content.
func NewRawTransaction(id string, date time.Time, description string, amount float64) (*RawTransaction, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("transaction date cannot be zero")
	}
	if description == "" {
		return nil, fmt.Errorf("description cannot be empty")
	}

	return &RawTransaction{
		id:          id,
		date:        date,
		description: description,
		amount:      amount,
	}, nil
}
