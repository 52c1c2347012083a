// Package ingest turns parsed statement entries into domain transactions,
// skipping entries that are already known.
package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/dedup"
	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/parser"
	"github.com/rumor-ml/commons.systems/pjledger/internal/transform"
)

// RawEntry is one statement line as text. TypeHint is the statement's own
// credit/debit marker, if any.
type RawEntry struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	ExternalID  string `json:"externalId,omitempty"`
	TypeHint    string `json:"type,omitempty"`
}

// Batch is the content of one statement section for one client account.
type Batch struct {
	ClientID               string     `json:"clientId"`
	AccountID              string     `json:"accountId"`
	FileHash               string     `json:"fileHash,omitempty"`
	Currency               string     `json:"currency,omitempty"`
	StartDate              time.Time  `json:"-"`
	EndDate                time.Time  `json:"-"`
	OpeningBalance         *float64   `json:"openingBalance,omitempty"`
	ReportedClosingBalance *float64   `json:"closingBalance,omitempty"`
	Entries                []RawEntry `json:"entries"`
}

// Duplicate records a skipped entry and the transaction it repeats.
type Duplicate struct {
	Entry      int          `json:"entry"`
	ExistingID string       `json:"existingId"`
	Reason     dedup.Reason `json:"reason"`
}

// Result is the outcome of a successful ingestion.
type Result struct {
	Accepted   []domain.Transaction `json:"accepted"`
	Duplicates []Duplicate          `json:"duplicates"`
	Warnings   []domain.Warning     `json:"warnings"`
}

// DuplicateCount returns how many entries were skipped.
func (r *Result) DuplicateCount() int {
	return len(r.Duplicates)
}

type parsedEntry struct {
	date        time.Time
	amount      domain.Cents
	description string
	externalID  string
}

// IngestBatch parses every entry, then accepts those that are neither in
// existing, nor in pending, nor repeated earlier in the batch. Any unparsable
// entry rejects the whole batch with a *domain.ParseError. Accepted
// transactions are unclassified.
func IngestBatch(batch Batch, existing, pending []domain.Transaction) (*Result, error) {
	if batch.ClientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty")
	}
	if batch.AccountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}

	result := &Result{
		Accepted:   make([]domain.Transaction, 0, len(batch.Entries)),
		Duplicates: make([]Duplicate, 0),
		Warnings:   make([]domain.Warning, 0),
	}

	entries := make([]parsedEntry, 0, len(batch.Entries))
	for i, raw := range batch.Entries {
		entry, warn, err := parseEntry(batch, i, raw)
		if err != nil {
			return nil, err
		}
		if warn != nil {
			result.Warnings = append(result.Warnings, *warn)
		}
		entries = append(entries, entry)
	}

	idx := dedup.NewIndex(existing, pending)
	for i, e := range entries {
		match, dup := idx.FindDuplicate(dedup.Candidate{
			Date:        e.date,
			Amount:      e.amount,
			Description: e.description,
			ExternalID:  e.externalID,
		})
		if dup {
			result.Duplicates = append(result.Duplicates, Duplicate{Entry: i, ExistingID: match.TransactionID, Reason: match.Reason})
			continue
		}

		txn, err := domain.NewTransaction(transactionID(batch.AccountID, e), batch.ClientID, batch.AccountID, e.date, e.amount.Float64(), e.description)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		txn.ExternalID = e.externalID
		txn.FileHash = batch.FileHash

		idx.Add(*txn)
		result.Accepted = append(result.Accepted, *txn)
	}

	result.Warnings = append(result.Warnings, checkBalances(batch, entries)...)
	return result, nil
}

func parseEntry(batch Batch, i int, raw RawEntry) (parsedEntry, *domain.Warning, error) {
	source := batchSource(batch)

	date, err := parser.ParseDate(raw.Date)
	if err != nil {
		return parsedEntry{}, nil, &domain.ParseError{Source: source, Entry: i, Field: "date", Value: raw.Date, Err: err}
	}

	amount, err := parser.ParseAmount(raw.Amount)
	if err != nil {
		return parsedEntry{}, nil, &domain.ParseError{Source: source, Entry: i, Field: "amount", Value: raw.Amount, Err: err}
	}

	description := parser.Description(raw.Description, raw.TypeHint)

	cents := domain.FromFloat(amount)
	var warn *domain.Warning
	if want, ok := hintSign(raw.TypeHint); ok && cents != 0 && (cents > 0) != (want > 0) {
		coerced := cents.Abs() * domain.Cents(want)
		warn = &domain.Warning{
			Code:    domain.WarnSignCoerced,
			Entity:  "entry",
			ID:      strconv.Itoa(i),
			Message: fmt.Sprintf("amount %s coerced to %s to match type %q", cents, coerced, raw.TypeHint),
		}
		cents = coerced
	}

	return parsedEntry{
		date:        date,
		amount:      cents,
		description: description,
		externalID:  strings.TrimSpace(raw.ExternalID),
	}, warn, nil
}

// hintSign maps a statement type marker to +1 or -1.
func hintSign(hint string) (int, bool) {
	switch transform.NormalizeText(hint) {
	case "credit", "c", "credito", "cr", "dep", "deposit":
		return 1, true
	case "debit", "d", "debito", "db", "payment", "fee":
		return -1, true
	}
	return 0, false
}

// checkBalances cross-checks the reported closing balance against the
// opening balance plus every entry of the statement, duplicates included.
func checkBalances(batch Batch, entries []parsedEntry) []domain.Warning {
	var warnings []domain.Warning
	entity := "account"

	if len(entries) == 0 {
		warnings = append(warnings, domain.Warning{
			Code:    domain.WarnEmptyAccount,
			Entity:  entity,
			ID:      batch.AccountID,
			Message: "statement has no entries",
		})
	}

	if batch.ReportedClosingBalance == nil {
		return append(warnings, domain.Warning{
			Code:    domain.WarnMissingClosingBalance,
			Entity:  entity,
			ID:      batch.AccountID,
			Message: "statement does not report a closing balance",
		})
	}
	if batch.OpeningBalance == nil {
		return warnings
	}

	expected := domain.FromFloat(*batch.OpeningBalance)
	for _, e := range entries {
		expected += e.amount
	}
	reported := domain.FromFloat(*batch.ReportedClosingBalance)
	if diff := (reported - expected).Abs(); diff > 1 {
		warnings = append(warnings, domain.Warning{
			Code:    domain.WarnBalanceDivergence,
			Entity:  entity,
			ID:      batch.AccountID,
			Message: fmt.Sprintf("reported closing balance %s differs from computed %s by %s", reported, expected, diff),
		})
	}
	return warnings
}

// transactionID derives a stable ID so that re-imports map to the same
// transaction.
func transactionID(accountID string, e parsedEntry) string {
	key := "ext:" + e.externalID
	if e.externalID == "" {
		key = "fp:" + dedup.GenerateFingerprint(e.date, e.amount, e.description)
	}
	return transform.GenerateTransactionID(accountID, key)
}

func batchSource(batch Batch) string {
	if batch.FileHash != "" {
		return "file " + batch.FileHash
	}
	return "batch for account " + batch.AccountID
}

// FromStatement adapts parser output to a Batch.
func FromStatement(raw *parser.RawStatement, clientID, accountID, fileHash string) Batch {
	b := Batch{
		ClientID:               clientID,
		AccountID:              accountID,
		FileHash:               fileHash,
		Currency:               raw.Currency,
		StartDate:              raw.Period.Start(),
		EndDate:                raw.Period.End(),
		OpeningBalance:         raw.OpeningBalance,
		ReportedClosingBalance: raw.ClosingBalance,
		Entries:                make([]RawEntry, 0, len(raw.Transactions)),
	}
	for _, t := range raw.Transactions {
		description := t.Description()
		if memo := t.Memo(); memo != "" && !dedup.DescriptionsCompatible(description, memo) {
			description += " " + memo
		}
		b.Entries = append(b.Entries, RawEntry{
			Date:        t.Date().Format(domain.DateLayout),
			Amount:      domain.FromFloat(t.Amount()).String(),
			Description: description,
			ExternalID:  t.ID(),
			TypeHint:    t.Type(),
		})
	}
	return b
}
