package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// Transaction is a bank-sourced ledger entry. Identity fields never change after
// ingestion; only Classification and SettlementRef are mutated.
type Transaction struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"`
	AccountID string    `json:"accountId"`
	Date      time.Time `json:"-"`
	// Sign convention:
	//   Positive = inflow (deposits, receipts)
	//   Negative = outflow (payments, fees, withdrawals)
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	ExternalID  string  `json:"externalId,omitempty"`
	FileHash    string  `json:"fileHash,omitempty"`

	// Free text carried over from older bookkeeping exports.
	LegacyCategory string `json:"legacyCategory,omitempty"`
	LegacyLabel    string `json:"legacyLabel,omitempty"`

	Classification Classification `json:"-"`
	SettlementRef  string         `json:"settlementRef,omitempty"`
}

// NewTransaction creates a validated, unclassified transaction
func NewTransaction(id, clientID, accountID string, date time.Time, amount float64, description string) (*Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("transaction ID cannot be empty")
	}
	if clientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if date.IsZero() {
		return nil, fmt.Errorf("transaction date cannot be empty")
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("description cannot be empty")
	}

	return &Transaction{
		ID:             id,
		ClientID:       clientID,
		AccountID:      accountID,
		Date:           date,
		Amount:         amount,
		Description:    description,
		Classification: Unclassified{},
	}, nil
}

// Cents returns the amount rounded to the cent.
func (t Transaction) Cents() Cents {
	return FromFloat(t.Amount)
}

// ClassificationOrNone never returns nil.
func (t Transaction) ClassificationOrNone() Classification {
	if t.Classification == nil {
		return Unclassified{}
	}
	return t.Classification
}

// IsReconciled reports whether the transaction settles a sale parcel.
func (t Transaction) IsReconciled() bool {
	return t.SettlementRef != ""
}

// MarshalJSON implements custom JSON marshaling for Transaction
func (t Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Alias
		Date           string               `json:"date"`
		Classification ClassificationRecord `json:"classification"`
	}{
		Alias:          Alias(t),
		Date:           t.Date.Format(DateLayout),
		Classification: EncodeClassification(t.Classification),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		*Alias
		Date           string               `json:"date"`
		Classification ClassificationRecord `json:"classification"`
	}{
		Alias: (*Alias)(t),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Date != "" {
		date, err := time.Parse(DateLayout, aux.Date)
		if err != nil {
			return fmt.Errorf("invalid date format: %w", err)
		}
		t.Date = date
	}
	c, err := aux.Classification.Decode()
	if err != nil {
		return err
	}
	t.Classification = c
	return nil
}

// Account is one bank account of a client.
type Account struct {
	ID          string `json:"id"`
	ClientID    string `json:"clientId"`
	Institution string `json:"institution"`
	Number      string `json:"number"`
	Name        string `json:"name"`
	Currency    string `json:"currency,omitempty"`
}

// NewAccount creates a validated account
func NewAccount(id, clientID, institution, number, name string) (*Account, error) {
	if id == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if clientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty")
	}
	if institution == "" {
		return nil, fmt.Errorf("institution cannot be empty")
	}
	if name == "" {
		name = institution + " " + number
	}

	return &Account{
		ID:          id,
		ClientID:    clientID,
		Institution: institution,
		Number:      number,
		Name:        strings.TrimSpace(name),
	}, nil
}

// ImportRecord remembers one imported statement file. FileHash is the
// idempotency key: a file is imported at most once per account.
type ImportRecord struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"clientId"`
	AccountID   string    `json:"accountId"`
	StatementID string    `json:"statementId"`
	FileName    string    `json:"fileName"`
	FileHash    string    `json:"fileHash"`
	Parser      string    `json:"parser"`
	ImportedAt  time.Time `json:"importedAt"`
	Accepted    int       `json:"accepted"`
	Duplicates  int       `json:"duplicates"`
	Warnings    []Warning `json:"warnings,omitempty"`
}
