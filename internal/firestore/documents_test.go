package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/pipeline"
	"github.com/rumor-ml/commons.systems/pjledger/internal/report"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
)

var (
	_ report.Store     = (*Client)(nil)
	_ pipeline.Store   = (*Client)(nil)
	_ settlement.Store = (*Client)(nil)
)

func TestDocID(t *testing.T) {
	assert.Equal(t, "acme", docID("acme"))
	assert.Equal(t, "acme_tx-1", docID("acme", "tx-1"))
	assert.Equal(t, "acme_acc-itau-1234_abc", docID("acme", "acc-itau-1234", "abc"))
}

func TestTransactionDocRoundTrip(t *testing.T) {
	txn := domain.Transaction{
		ID:          "tx-1",
		ClientID:    "acme",
		AccountID:   "acc-itau-1234",
		Date:        time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		Amount:      -300,
		Description: "ALUGUEL SALA 12",
		FileHash:    "abc",
		Classification: domain.RuleClassification{
			RuleID: "rent",
			Target: domain.Target{
				Group:        domain.LedgerAdministrative,
				CategoryPath: "administrative_expenses.occupancy.rent",
			},
		},
	}

	doc := transactionDoc(txn, time.Now())
	require.NoError(t, doc.Validate())
	assert.Equal(t, "2025-01-05", doc.Date)
	assert.Equal(t, domain.KindRule, doc.Classification.Kind)

	got, err := doc.toDomain()
	require.NoError(t, err)
	assert.Equal(t, txn, got)
}

func TestTransactionValidate(t *testing.T) {
	doc := Transaction{ID: "tx-1", ClientID: "acme", Date: "05/01/2025"}
	assert.Error(t, doc.Validate())

	doc = Transaction{ClientID: "acme", Date: "2025-01-05"}
	assert.Error(t, doc.Validate())
}

func TestSaleDocRoundTrip(t *testing.T) {
	sale := &domain.Sale{
		ID:          "sale-1",
		ClientID:    "acme",
		Date:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Description: "Pedido 42",
		Legs: []domain.SaleLeg{{
			ID:           "card",
			Method:       domain.MethodCreditCard,
			GrossAmount:  10000,
			NetAmount:    9700,
			Installments: 2,
			Rule:         domain.SettlementRule{Kind: domain.RuleMonthlyInstallments},
			Parcels: []domain.SettlementParcel{
				{N: 1, DueDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), ExpectedAmount: 4850, ReceivedTxID: "tx-9"},
				{N: 2, DueDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), ExpectedAmount: 4850},
			},
			Status: domain.StatusPartiallyMatched,
		}},
	}

	doc := saleDoc(sale, time.Now())
	assert.Equal(t, "2025-02-10", doc.Legs[0].Parcels[0].DueDate)
	assert.Equal(t, int64(4850), doc.Legs[0].Parcels[1].ExpectedCents)

	got, err := doc.toDomain()
	require.NoError(t, err)
	assert.Equal(t, sale, got)
}
