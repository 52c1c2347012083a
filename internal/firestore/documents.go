package firestore

import (
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
)

// Account is the stored form of domain.Account
type Account struct {
	ID          string `firestore:"id"`
	ClientID    string `firestore:"clientId"`
	Institution string `firestore:"institution"`
	Number      string `firestore:"number"`
	Name        string `firestore:"name"`
	Currency    string `firestore:"currency"`
}

func accountDoc(a domain.Account) Account {
	return Account(a)
}

// Transaction is the stored form of domain.Transaction. Dates are ISO strings
// so range queries compare lexically.
type Transaction struct {
	ID             string                      `firestore:"id"`
	ClientID       string                      `firestore:"clientId"`
	AccountID      string                      `firestore:"accountId"`
	Date           string                      `firestore:"date"`
	Amount         float64                     `firestore:"amount"`
	Description    string                      `firestore:"description"`
	ExternalID     string                      `firestore:"externalId"`
	FileHash       string                      `firestore:"fileHash"`
	LegacyCategory string                      `firestore:"legacyCategory"`
	LegacyLabel    string                      `firestore:"legacyLabel"`
	Classification domain.ClassificationRecord `firestore:"classification"`
	SettlementRef  string                      `firestore:"settlementRef"`
	CreatedAt      time.Time                   `firestore:"createdAt"`
}

// Validate checks if the Transaction has valid data
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if t.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if _, err := time.Parse(domain.DateLayout, t.Date); err != nil {
		return fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	return nil
}

func transactionDoc(txn domain.Transaction, createdAt time.Time) Transaction {
	return Transaction{
		ID:             txn.ID,
		ClientID:       txn.ClientID,
		AccountID:      txn.AccountID,
		Date:           txn.Date.Format(domain.DateLayout),
		Amount:         txn.Amount,
		Description:    txn.Description,
		ExternalID:     txn.ExternalID,
		FileHash:       txn.FileHash,
		LegacyCategory: txn.LegacyCategory,
		LegacyLabel:    txn.LegacyLabel,
		Classification: domain.EncodeClassification(txn.Classification),
		SettlementRef:  txn.SettlementRef,
		CreatedAt:      createdAt,
	}
}

func (t Transaction) toDomain() (domain.Transaction, error) {
	date, err := time.Parse(domain.DateLayout, t.Date)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid date on transaction %s: %w", t.ID, err)
	}
	c, err := t.Classification.Decode()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid classification on transaction %s: %w", t.ID, err)
	}
	return domain.Transaction{
		ID:             t.ID,
		ClientID:       t.ClientID,
		AccountID:      t.AccountID,
		Date:           date,
		Amount:         t.Amount,
		Description:    t.Description,
		ExternalID:     t.ExternalID,
		FileHash:       t.FileHash,
		LegacyCategory: t.LegacyCategory,
		LegacyLabel:    t.LegacyLabel,
		Classification: c,
		SettlementRef:  t.SettlementRef,
	}, nil
}

// ImportRecord is the stored form of domain.ImportRecord
type ImportRecord struct {
	ID          string           `firestore:"id"`
	ClientID    string           `firestore:"clientId"`
	AccountID   string           `firestore:"accountId"`
	StatementID string           `firestore:"statementId"`
	FileName    string           `firestore:"fileName"`
	FileHash    string           `firestore:"fileHash"`
	Parser      string           `firestore:"parser"`
	ImportedAt  time.Time        `firestore:"importedAt"`
	Accepted    int              `firestore:"accepted"`
	Duplicates  int              `firestore:"duplicates"`
	Warnings    []domain.Warning `firestore:"warnings"`
}

// CategoryPlan holds a client's chart of accounts.
type CategoryPlan struct {
	ClientID   string                      `firestore:"clientId"`
	Categories []domain.CategoryDefinition `firestore:"categories"`
	UpdatedAt  time.Time                   `firestore:"updatedAt"`
}

// Parcel is the stored form of domain.SettlementParcel
type Parcel struct {
	N             int    `firestore:"n"`
	DueDate       string `firestore:"dueDate"`
	ExpectedCents int64  `firestore:"expectedCents"`
	ReceivedTxID  string `firestore:"receivedTxId"`
}

// Leg is the stored form of domain.SaleLeg
type Leg struct {
	ID           string                      `firestore:"id"`
	Method       domain.PaymentMethod        `firestore:"method"`
	GrossCents   int64                       `firestore:"grossCents"`
	NetCents     int64                       `firestore:"netCents"`
	Installments int                         `firestore:"installments"`
	Rule         domain.SettlementRule       `firestore:"rule"`
	Parcels      []Parcel                    `firestore:"parcels"`
	Status       domain.ReconciliationStatus `firestore:"status"`
}

// Sale is the stored form of domain.Sale
type Sale struct {
	ID          string    `firestore:"id"`
	ClientID    string    `firestore:"clientId"`
	Date        string    `firestore:"date"`
	Description string    `firestore:"description"`
	Legs        []Leg     `firestore:"legs"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func legDoc(l domain.SaleLeg) Leg {
	parcels := make([]Parcel, len(l.Parcels))
	for i, p := range l.Parcels {
		parcels[i] = Parcel{
			N:             p.N,
			DueDate:       p.DueDate.Format(domain.DateLayout),
			ExpectedCents: int64(p.ExpectedAmount),
			ReceivedTxID:  p.ReceivedTxID,
		}
	}
	return Leg{
		ID:           l.ID,
		Method:       l.Method,
		GrossCents:   int64(l.GrossAmount),
		NetCents:     int64(l.NetAmount),
		Installments: l.Installments,
		Rule:         l.Rule,
		Parcels:      parcels,
		Status:       l.Status,
	}
}

func saleDoc(s *domain.Sale, createdAt time.Time) Sale {
	legs := make([]Leg, len(s.Legs))
	for i, l := range s.Legs {
		legs[i] = legDoc(l)
	}
	return Sale{
		ID:          s.ID,
		ClientID:    s.ClientID,
		Date:        s.Date.Format(domain.DateLayout),
		Description: s.Description,
		Legs:        legs,
		CreatedAt:   createdAt,
	}
}

func (s Sale) toDomain() (*domain.Sale, error) {
	date, err := time.Parse(domain.DateLayout, s.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date on sale %s: %w", s.ID, err)
	}
	sale := &domain.Sale{
		ID:          s.ID,
		ClientID:    s.ClientID,
		Date:        date,
		Description: s.Description,
		Legs:        make([]domain.SaleLeg, len(s.Legs)),
	}
	for i, l := range s.Legs {
		parcels := make([]domain.SettlementParcel, len(l.Parcels))
		for j, p := range l.Parcels {
			due, err := time.Parse(domain.DateLayout, p.DueDate)
			if err != nil {
				return nil, fmt.Errorf("invalid due date on sale %s: %w", s.ID, err)
			}
			parcels[j] = domain.SettlementParcel{
				N:              p.N,
				DueDate:        due,
				ExpectedAmount: domain.Cents(p.ExpectedCents),
				ReceivedTxID:   p.ReceivedTxID,
			}
		}
		sale.Legs[i] = domain.SaleLeg{
			ID:           l.ID,
			Method:       l.Method,
			GrossAmount:  domain.Cents(l.GrossCents),
			NetAmount:    domain.Cents(l.NetCents),
			Installments: l.Installments,
			Rule:         l.Rule,
			Parcels:      parcels,
			Status:       l.Status,
		}
	}
	return sale, nil
}
