// Package csv parses the CSV statement exports ("extratos") offered by
// Brazilian banks and payment processors.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/parser"
	"github.com/rumor-ml/commons.systems/pjledger/internal/transform"
)

// Parser reads header-driven CSV extratos. Columns are located by name, so
// the same parser serves the layouts of most banks:
//
//	Data;Descrição;Valor;Saldo
//	date,description,amount,type,id
//
// It holds no state and is safe for concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared CSV parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "csv-extrato"
}

type column int

const (
	colDate column = iota
	colDescription
	colAmount
	colBalance
	colID
	colType
)

var headerAliases = map[string]column{
	"data":            colDate,
	"date":            colDate,
	"data lancamento": colDate,
	"descricao":       colDescription,
	"description":     colDescription,
	"historico":       colDescription,
	"lancamento":      colDescription,
	"valor":           colAmount,
	"amount":          colAmount,
	"valor (r$)":      colAmount,
	"saldo":           colBalance,
	"balance":         colBalance,
	"saldo (r$)":      colBalance,
	"documento":       colID,
	"id":              colID,
	"fitid":           colID,
	"identificador":   colID,
	"tipo":            colType,
	"type":            colType,
	"d/c":             colType,
}

// balanceRows are informational lines some banks interleave with entries.
var balanceRows = []string{"saldo anterior", "saldo do dia", "saldo final", "saldo total"}

// CanParse accepts .csv files whose header names at least a date, a
// description and an amount column.
func (p *Parser) CanParse(path string, header []byte) bool {
	if strings.ToLower(filepath.Ext(path)) != ".csv" {
		return false
	}

	firstLine, _, _ := strings.Cut(strings.TrimPrefix(string(header), "\ufeff"), "\n")
	_, err := mapHeader(readRecord(firstLine))
	return err == nil
}

// Parse extracts raw data from a CSV extrato
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.RawStatement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content from %s: %w", parser.SourceName(meta), err)
	}
	text := strings.TrimPrefix(string(content), "\ufeff")

	firstLine, _, _ := strings.Cut(text, "\n")
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter(firstLine)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content from %s: %w", parser.SourceName(meta), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty: %s", parser.SourceName(meta))
	}

	cols, err := mapHeader(records[0])
	if err != nil {
		return nil, fmt.Errorf("invalid CSV header in %s: %w", parser.SourceName(meta), err)
	}

	stmt := &parser.RawStatement{Currency: "BRL"}
	var first, last time.Time
	var lastBalance *float64

	for i, record := range records[1:] {
		entry := i + 1
		if isBlank(record) {
			continue
		}

		description := field(record, cols, colDescription)
		if isBalanceRow(description) {
			if strings.Contains(transform.NormalizeText(description), "anterior") {
				if v, ok := balanceValue(record, cols); ok {
					stmt.OpeningBalance = &v
				}
			}
			continue
		}

		txn, balance, err := parseRow(record, cols, entry, meta)
		if err != nil {
			return nil, err
		}
		if balance != nil {
			lastBalance = balance
			// Unsigned amounts with a D/C column cannot be subtracted yet
			if _, signed := cols[colType]; !signed && stmt.OpeningBalance == nil && len(stmt.Transactions) == 0 {
				opening := (domain.FromFloat(*balance) - domain.FromFloat(txn.Amount())).Float64()
				stmt.OpeningBalance = &opening
			}
		}
		if first.IsZero() || txn.Date().Before(first) {
			first = txn.Date()
		}
		if txn.Date().After(last) {
			last = txn.Date()
		}
		stmt.Transactions = append(stmt.Transactions, *txn)
	}
	stmt.ClosingBalance = lastBalance

	if len(stmt.Transactions) > 0 {
		period, err := parser.NewPeriod(first, last)
		if err != nil {
			return nil, fmt.Errorf("failed to create period: %w", err)
		}
		stmt.Period = *period
	}

	accountID, bankID := "unknown", "csv"
	if meta != nil {
		if meta.Account() != "" {
			accountID = meta.Account()
		}
		if slug, err := transform.SlugifyInstitution(meta.BankName()); err == nil {
			bankID = slug
		}
	}
	account, err := parser.NewRawAccount(bankID, "", accountID, "checking")
	if err != nil {
		return nil, fmt.Errorf("failed to create raw account: %w", err)
	}
	if meta != nil {
		account.SetBankName(meta.BankName())
	}
	stmt.Account = *account

	return stmt, nil
}

// parseRow converts one entry row. Failures are reported as
// *domain.ParseError so the whole file is rejected with the offending entry.
func parseRow(record []string, cols map[column]int, entry int, meta *parser.Metadata) (*parser.RawTransaction, *float64, error) {
	source := parser.SourceName(meta)

	dateStr := field(record, cols, colDate)
	date, err := parser.ParseDate(dateStr)
	if err != nil {
		return nil, nil, &domain.ParseError{Source: source, Entry: entry, Field: "date", Value: dateStr, Err: err}
	}

	amountStr := field(record, cols, colAmount)
	amount, err := parser.ParseAmount(amountStr)
	if err != nil {
		return nil, nil, &domain.ParseError{Source: source, Entry: entry, Field: "amount", Value: amountStr, Err: err}
	}

	hint := field(record, cols, colType)
	description := parser.Description(field(record, cols, colDescription), hint)

	txn, err := parser.NewRawTransaction(field(record, cols, colID), date, description, amount)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transaction at entry %d: %w", entry, err)
	}
	if hint != "" {
		txn.SetType(strings.ToUpper(hint))
	}

	var balance *float64
	if balStr := field(record, cols, colBalance); balStr != "" {
		v, err := parser.ParseAmount(balStr)
		if err != nil {
			return nil, nil, &domain.ParseError{Source: source, Entry: entry, Field: "balance", Value: balStr, Err: err}
		}
		balance = &v
	}

	return txn, balance, nil
}

// mapHeader locates the known columns of a header record.
func mapHeader(record []string) (map[column]int, error) {
	cols := make(map[column]int)
	for i, name := range record {
		key := transform.NormalizeText(name)
		if c, ok := headerAliases[key]; ok {
			if _, dup := cols[c]; !dup {
				cols[c] = i
			}
		}
	}
	for _, required := range []column{colDate, colDescription, colAmount} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %s column", required)
		}
	}
	return cols, nil
}

func (c column) String() string {
	switch c {
	case colDate:
		return "date"
	case colDescription:
		return "description"
	case colAmount:
		return "amount"
	case colBalance:
		return "balance"
	case colID:
		return "id"
	case colType:
		return "type"
	default:
		return "unknown"
	}
}

// delimiter picks ';' for the usual Brazilian exports and ',' otherwise.
func delimiter(headerLine string) rune {
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	return ','
}

func readRecord(line string) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delimiter(line)
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return nil
	}
	return record
}

func field(record []string, cols map[column]int, c column) string {
	i, ok := cols[c]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// balanceValue reads a balance row, whose figure sits in the balance column
// or, for banks without one, in the amount column.
func balanceValue(record []string, cols map[column]int) (float64, bool) {
	for _, c := range []column{colBalance, colAmount} {
		if v, err := parser.ParseAmount(field(record, cols, c)); err == nil {
			return v, true
		}
	}
	return 0, false
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func isBalanceRow(description string) bool {
	d := transform.NormalizeText(description)
	for _, prefix := range balanceRows {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
