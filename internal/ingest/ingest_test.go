package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/dedup"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 { return &v }

func batchOf(entries ...RawEntry) Batch {
	return Batch{
		ClientID:               "acme",
		AccountID:              "acc-itau-1234",
		FileHash:               "abc123",
		Currency:               "BRL",
		OpeningBalance:         float(0),
		ReportedClosingBalance: nil,
		Entries:                entries,
	}
}

func codes(ws []domain.Warning) []domain.WarningCode {
	out := make([]domain.WarningCode, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func TestIngestBatch_AcceptsNewEntries(t *testing.T) {
	b := batchOf(
		RawEntry{Date: "2025-01-02", Amount: "1.500,50", Description: "PIX  RECEBIDO ACME", ExternalID: "X1"},
		RawEntry{Date: "03/01/2025", Amount: "-45.90", Description: "TARIFA"},
	)
	b.ReportedClosingBalance = float(1454.60)

	res, err := IngestBatch(b, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Accepted, 2)
	assert.Empty(t, res.Duplicates)
	assert.Empty(t, res.Warnings)

	pix := res.Accepted[0]
	assert.Equal(t, "acme", pix.ClientID)
	assert.Equal(t, "acc-itau-1234", pix.AccountID)
	assert.Equal(t, "X1", pix.ExternalID)
	assert.Equal(t, "abc123", pix.FileHash)
	assert.Equal(t, "PIX RECEBIDO ACME", pix.Description)
	assert.Equal(t, domain.Cents(150050), pix.Cents())
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), pix.Date)
	assert.Equal(t, domain.Unclassified{}, pix.Classification)
	assert.True(t, strings.HasPrefix(pix.ID, "txn-acc-itau-1234-"))

	assert.Equal(t, domain.Cents(-4590), res.Accepted[1].Cents())
	assert.NotEqual(t, pix.ID, res.Accepted[1].ID)
}

func TestIngestBatch_SameExternalIDDifferentDescription(t *testing.T) {
	first, err := IngestBatch(batchOf(
		RawEntry{Date: "2025-01-10", Amount: "100.00", Description: "PIX RECEBIDO ACME", ExternalID: "X1"},
	), nil, nil)
	require.NoError(t, err)
	require.Len(t, first.Accepted, 1)

	second, err := IngestBatch(batchOf(
		RawEntry{Date: "2025-01-10", Amount: "100.00", Description: "TRANSF RECEBIDA", ExternalID: "X1"},
	), first.Accepted, nil)
	require.NoError(t, err)

	assert.Empty(t, second.Accepted)
	require.Len(t, second.Duplicates, 1)
	assert.Equal(t, Duplicate{Entry: 0, ExistingID: first.Accepted[0].ID, Reason: dedup.ReasonExternalID}, second.Duplicates[0])
	assert.Equal(t, 1, second.DuplicateCount())
}

func TestIngestBatch_Idempotent(t *testing.T) {
	b := batchOf(
		RawEntry{Date: "2025-01-02", Amount: "10", Description: "A"},
		RawEntry{Date: "2025-01-02", Amount: "10", Description: "B"},
		RawEntry{Date: "2025-01-05", Amount: "-3,50", Description: "TARIFA", ExternalID: "F9"},
	)

	first, err := IngestBatch(b, nil, nil)
	require.NoError(t, err)
	require.Len(t, first.Accepted, 3)

	again, err := IngestBatch(b, first.Accepted, nil)
	require.NoError(t, err)
	assert.Empty(t, again.Accepted)
	assert.Len(t, again.Duplicates, 3)

	// Same content again yields the same IDs.
	replay, err := IngestBatch(b, nil, nil)
	require.NoError(t, err)
	for i := range first.Accepted {
		assert.Equal(t, first.Accepted[i].ID, replay.Accepted[i].ID)
	}
}

func TestIngestBatch_DuplicatesAgainstPendingAndInBatch(t *testing.T) {
	pending := []domain.Transaction{
		{ID: "p1", Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Amount: -99.9, Description: "PAG BOLETO ENERGIA"},
	}
	b := batchOf(
		RawEntry{Date: "2025-01-02", Amount: "-99,90", Description: "PAG BOLETO ENERGIA CEMIG"},
		RawEntry{Date: "2025-01-03", Amount: "20", Description: "DEPOSITO"},
		RawEntry{Date: "2025-01-03", Amount: "20.00", Description: "deposito"},
	)

	res, err := IngestBatch(b, nil, pending)
	require.NoError(t, err)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "DEPOSITO", res.Accepted[0].Description)

	require.Len(t, res.Duplicates, 2)
	assert.Equal(t, "p1", res.Duplicates[0].ExistingID)
	assert.Equal(t, res.Accepted[0].ID, res.Duplicates[1].ExistingID)
	assert.Equal(t, 2, res.Duplicates[1].Entry)
}

func TestIngestBatch_ParseErrorRejectsBatch(t *testing.T) {
	tests := []struct {
		name      string
		entry     RawEntry
		wantField string
	}{
		{"bad date", RawEntry{Date: "2025-02-30", Amount: "1", Description: "x"}, "date"},
		{"bad amount", RawEntry{Date: "2025-01-02", Amount: "dez", Description: "x"}, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := batchOf(RawEntry{Date: "2025-01-01", Amount: "5", Description: "ok"}, tt.entry)

			res, err := IngestBatch(b, nil, nil)
			assert.Nil(t, res)

			var pe *domain.ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, 1, pe.Entry)
			assert.Equal(t, tt.wantField, pe.Field)
			assert.Equal(t, "file abc123", pe.Source)
		})
	}
}

func TestIngestBatch_BlankDescription(t *testing.T) {
	b := batchOf(
		RawEntry{Date: "2025-01-02", Amount: "-12.00", Description: "   ", TypeHint: "fee"},
		RawEntry{Date: "2025-01-03", Amount: "40.00", Description: ""},
	)

	res, err := IngestBatch(b, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Accepted, 2)
	assert.Equal(t, "FEE", res.Accepted[0].Description)
	assert.Equal(t, parser.BlankDescription, res.Accepted[1].Description)
}

func TestIngestBatch_SignCoercion(t *testing.T) {
	b := batchOf(
		RawEntry{Date: "2025-01-02", Amount: "250.00", Description: "PAGAMENTO FORNECEDOR", TypeHint: "D"},
		RawEntry{Date: "2025-01-02", Amount: "-80.00", Description: "ESTORNO", TypeHint: "credit"},
		RawEntry{Date: "2025-01-02", Amount: "-10.00", Description: "TARIFA", TypeHint: "FEE"},
		RawEntry{Date: "2025-01-02", Amount: "15.00", Description: "RENDIMENTO", TypeHint: "INTEREST"},
	)

	res, err := IngestBatch(b, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Accepted, 4)

	assert.Equal(t, domain.Cents(-25000), res.Accepted[0].Cents())
	assert.Equal(t, domain.Cents(8000), res.Accepted[1].Cents())
	assert.Equal(t, domain.Cents(-1000), res.Accepted[2].Cents())
	assert.Equal(t, domain.Cents(1500), res.Accepted[3].Cents())

	coerced := 0
	for _, w := range res.Warnings {
		if w.Code == domain.WarnSignCoerced {
			coerced++
		}
	}
	assert.Equal(t, 2, coerced)
}

func TestIngestBatch_BalanceWarnings(t *testing.T) {
	entries := []RawEntry{
		{Date: "2025-01-02", Amount: "100", Description: "A"},
		{Date: "2025-01-03", Amount: "-30", Description: "B"},
	}

	tests := []struct {
		name    string
		opening *float64
		closing *float64
		want    []domain.WarningCode
	}{
		{"matches", float(50), float(120), []domain.WarningCode{}},
		{"within a cent", float(50), float(120.01), []domain.WarningCode{}},
		{"diverges", float(50), float(120.02), []domain.WarningCode{domain.WarnBalanceDivergence}},
		{"missing closing", float(50), nil, []domain.WarningCode{domain.WarnMissingClosingBalance}},
		{"unknown opening", nil, float(999), []domain.WarningCode{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := batchOf(entries...)
			b.OpeningBalance = tt.opening
			b.ReportedClosingBalance = tt.closing

			res, err := IngestBatch(b, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(res.Warnings))
		})
	}
}

func TestIngestBatch_BalanceCountsDuplicates(t *testing.T) {
	first, err := IngestBatch(batchOf(RawEntry{Date: "2025-01-02", Amount: "100", Description: "A"}), nil, nil)
	require.NoError(t, err)

	b := batchOf(RawEntry{Date: "2025-01-02", Amount: "100", Description: "A"})
	b.OpeningBalance = float(0)
	b.ReportedClosingBalance = float(100)

	res, err := IngestBatch(b, first.Accepted, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Accepted)
	assert.Empty(t, res.Warnings)
}

func TestIngestBatch_EmptyAccount(t *testing.T) {
	b := batchOf()
	b.ReportedClosingBalance = float(0)

	res, err := IngestBatch(b, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Accepted)
	assert.Equal(t, []domain.WarningCode{domain.WarnEmptyAccount}, codes(res.Warnings))
}

func TestIngestBatch_RequiresClientAndAccount(t *testing.T) {
	b := batchOf()
	b.ClientID = ""
	_, err := IngestBatch(b, nil, nil)
	assert.Error(t, err)

	b = batchOf()
	b.AccountID = ""
	_, err = IngestBatch(b, nil, nil)
	assert.Error(t, err)
}

func TestFromStatement(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	period, err := parser.NewPeriod(start, end)
	require.NoError(t, err)

	pix, err := parser.NewRawTransaction("X1", time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC), "PIX RECEBIDO ACME", 1000)
	require.NoError(t, err)
	pix.SetType("CREDIT")
	pix.SetMemo("PEDIDO 42")

	rent, err := parser.NewRawTransaction("", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), "ALUGUEL", -300.1)
	require.NoError(t, err)
	rent.SetMemo("aluguel")

	raw := &parser.RawStatement{
		Period:         *period,
		Currency:       "BRL",
		ClosingBalance: float(700),
		Transactions:   []parser.RawTransaction{*pix, *rent},
	}

	b := FromStatement(raw, "acme", "acc-itau-1234", "hash1")
	assert.Equal(t, "acme", b.ClientID)
	assert.Equal(t, "BRL", b.Currency)
	assert.Equal(t, start, b.StartDate)
	assert.Equal(t, end, b.EndDate)
	assert.Nil(t, b.OpeningBalance)
	assert.Equal(t, 700.0, *b.ReportedClosingBalance)

	require.Len(t, b.Entries, 2)
	assert.Equal(t, RawEntry{Date: "2025-01-10", Amount: "1000.00", Description: "PIX RECEBIDO ACME PEDIDO 42", ExternalID: "X1", TypeHint: "CREDIT"}, b.Entries[0])
	assert.Equal(t, RawEntry{Date: "2025-01-05", Amount: "-300.10", Description: "ALUGUEL"}, b.Entries[1])

	res, err := IngestBatch(b, nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Accepted, 2)
}
