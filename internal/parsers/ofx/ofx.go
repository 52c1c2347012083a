// Package ofx provides OFX statement parsing for bank and card exports
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/rumor-ml/commons.systems/pjledger/internal/logger"
	"github.com/rumor-ml/commons.systems/pjledger/internal/parser"
)

// Parser implements OFX/QFX parsing. It holds no state and is safe for
// concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared OFX parser instance.
func NewParser() *Parser {
	return parserInstance
}

// getFileInfo returns a formatted file path string for error messages
func getFileInfo(meta *parser.Metadata) string {
	if meta != nil && meta.FilePath() != "" {
		return fmt.Sprintf(" from %s", meta.FilePath())
	}
	return ""
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "ofx"
}

// CanParse checks if this parser can handle the file based on extension and header
func (p *Parser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	// Both v1 SGML and v2 XML headers
	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts raw data from an OFX/QFX file
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.RawStatement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content%s: %w", getFileInfo(meta), err)
	}

	// ofxgo.ParseResponse does not take a context
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file%s (%d bytes): %w", getFileInfo(meta), len(content), err)
	}

	if len(response.CreditCard) > 0 {
		return p.parseCreditCard(ctx, response, meta)
	}
	if len(response.Bank) > 0 {
		return p.parseBank(ctx, response, meta)
	}
	if len(response.InvStmt) > 0 {
		return p.parseInvestment(ctx, response, meta)
	}

	return nil, fmt.Errorf("no supported statement type found in OFX file%s (creditcard: %d, bank: %d, investment: %d)",
		getFileInfo(meta), len(response.CreditCard), len(response.Bank), len(response.InvStmt))
}

// parseCreditCard parses a card statement. Card statements carry purchases
// as negative amounts and payments as positive ones.
func (p *Parser) parseCreditCard(ctx context.Context, resp *ofxgo.Response, meta *parser.Metadata) (*parser.RawStatement, error) {
	ccStmt, ok := resp.CreditCard[0].(*ofxgo.CCStatementResponse)
	if !ok {
		return nil, fmt.Errorf("failed to type assert credit card statement: expected *ofxgo.CCStatementResponse, got %T", resp.CreditCard[0])
	}

	bankID, err := extractBankID(resp)
	if err != nil {
		return nil, err
	}

	accountID := ccStmt.CCAcctFrom.AcctID.String()
	if accountID == "" {
		return nil, fmt.Errorf("missing account ID in credit card statement")
	}

	account, err := parser.NewRawAccount(bankID, "", accountID, "credit")
	if err != nil {
		return nil, fmt.Errorf("failed to create raw account: %w", err)
	}
	setBankNameFromMeta(account, meta)

	if ccStmt.BankTranList == nil {
		return nil, fmt.Errorf("missing transaction list in credit card statement")
	}

	period, err := parser.NewPeriod(ccStmt.BankTranList.DtStart.Time, ccStmt.BankTranList.DtEnd.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to create period: %w", err)
	}

	transactions, err := p.parseTransactions(ctx, ccStmt.BankTranList)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transactions: %w", err)
	}

	return &parser.RawStatement{
		Account:        *account,
		Period:         *period,
		Currency:       currencyCode(ccStmt.CurDef),
		ClosingBalance: ledgerBalance(ctx, ccStmt.BalAmt, ccStmt.DtAsOf),
		Transactions:   transactions,
	}, nil
}

// parseBank parses a checking or savings statement
func (p *Parser) parseBank(ctx context.Context, resp *ofxgo.Response, meta *parser.Metadata) (*parser.RawStatement, error) {
	bankStmt, ok := resp.Bank[0].(*ofxgo.StatementResponse)
	if !ok {
		return nil, fmt.Errorf("failed to type assert bank statement: expected *ofxgo.StatementResponse, got %T", resp.Bank[0])
	}

	// Brazilian banks fill BANKID with the FEBRABAN code and often leave ORG generic
	bankID := bankStmt.BankAcctFrom.BankID.String()
	if bankID == "" {
		var err error
		if bankID, err = extractBankID(resp); err != nil {
			return nil, err
		}
	}

	accountID := bankStmt.BankAcctFrom.AcctID.String()
	if accountID == "" {
		return nil, fmt.Errorf("missing account ID in bank statement")
	}

	account, err := parser.NewRawAccount(bankID, "", accountID, mapBankAccountType(bankStmt.BankAcctFrom))
	if err != nil {
		return nil, fmt.Errorf("failed to create raw account: %w", err)
	}
	setBankNameFromMeta(account, meta)

	if bankStmt.BankTranList == nil {
		return nil, fmt.Errorf("missing transaction list in bank statement")
	}

	period, err := parser.NewPeriod(bankStmt.BankTranList.DtStart.Time, bankStmt.BankTranList.DtEnd.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to create period: %w", err)
	}

	transactions, err := p.parseTransactions(ctx, bankStmt.BankTranList)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transactions: %w", err)
	}

	return &parser.RawStatement{
		Account:        *account,
		Period:         *period,
		Currency:       currencyCode(bankStmt.CurDef),
		ClosingBalance: ledgerBalance(ctx, bankStmt.BalAmt, bankStmt.DtAsOf),
		Transactions:   transactions,
	}, nil
}

// parseInvestment keeps the cash movements of an investment account
// (yields, redemptions, fees). Security trades are rejected.
func (p *Parser) parseInvestment(ctx context.Context, resp *ofxgo.Response, meta *parser.Metadata) (*parser.RawStatement, error) {
	invStmt, ok := resp.InvStmt[0].(*ofxgo.InvStatementResponse)
	if !ok {
		return nil, fmt.Errorf("failed to type assert investment statement: expected *ofxgo.InvStatementResponse, got %T", resp.InvStmt[0])
	}

	bankID, err := extractBankID(resp)
	if err != nil {
		return nil, err
	}

	accountID := invStmt.InvAcctFrom.AcctID.String()
	if accountID == "" {
		return nil, fmt.Errorf("missing account ID in investment statement")
	}

	account, err := parser.NewRawAccount(bankID, "", accountID, "investment")
	if err != nil {
		return nil, fmt.Errorf("failed to create raw account: %w", err)
	}
	setBankNameFromMeta(account, meta)

	if invStmt.InvTranList == nil {
		return nil, fmt.Errorf("missing transaction list in investment statement")
	}

	period, err := parser.NewPeriod(invStmt.InvTranList.DtStart.Time, invStmt.InvTranList.DtEnd.Time)
	if err != nil {
		return nil, fmt.Errorf("failed to create period: %w", err)
	}

	if n := len(invStmt.InvTranList.InvTransactions); n > 0 {
		return nil, fmt.Errorf("investment statement contains %d security transactions; only cash movements are supported", n)
	}

	transactions := make([]parser.RawTransaction, 0)
	for _, invBankTxn := range invStmt.InvTranList.BankTransactions {
		for i, txn := range invBankTxn.Transactions {
			rawTxn, err := extractTransaction(ctx, txn)
			if err != nil {
				return nil, fmt.Errorf("failed to parse investment transaction at index %d: %w", i, err)
			}
			transactions = append(transactions, *rawTxn)
		}
	}

	return &parser.RawStatement{
		Account:      *account,
		Period:       *period,
		Currency:     currencyCode(invStmt.CurDef),
		Transactions: transactions,
	}, nil
}

// parseTransactions converts OFX transactions to RawTransactions
func (p *Parser) parseTransactions(ctx context.Context, tranList *ofxgo.TransactionList) ([]parser.RawTransaction, error) {
	transactions := make([]parser.RawTransaction, 0, len(tranList.Transactions))

	for i, txn := range tranList.Transactions {
		rawTxn, err := extractTransaction(ctx, txn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transaction at index %d: %w", i, err)
		}
		transactions = append(transactions, *rawTxn)
	}

	return transactions, nil
}

// mapBankAccountType maps OFX account types; unknown types are kept as
// checking since only cash movements matter downstream.
func mapBankAccountType(ofxAcct ofxgo.BankAcct) string {
	switch ofxAcct.AcctType {
	case ofxgo.AcctTypeSavings:
		return "savings"
	case ofxgo.AcctTypeCreditLine:
		return "credit"
	default:
		return "checking"
	}
}

// mapOFXTransactionType maps OFX transaction type to the sign hints
// understood by ingestion
func mapOFXTransactionType(ctx context.Context, txn ofxgo.Transaction) string {
	switch txn.TrnType {
	case ofxgo.TrnTypeCredit:
		return "CREDIT"
	case ofxgo.TrnTypeDebit:
		return "DEBIT"
	case ofxgo.TrnTypeDep:
		return "DEP"
	case ofxgo.TrnTypeFee, ofxgo.TrnTypeSrvChg:
		return "FEE"
	case ofxgo.TrnTypePayment:
		return "PAYMENT"
	case ofxgo.TrnTypeInt, ofxgo.TrnTypeDiv:
		return "INTEREST"
	case ofxgo.TrnTypeXfer:
		return "TRANSFER"
	case ofxgo.TrnTypeATM:
		return "ATM"
	case ofxgo.TrnTypePOS:
		return "POS"
	case ofxgo.TrnTypeCheck:
		return "CHECK"
	case ofxgo.TrnTypeOther:
		return ""
	default:
		log := logger.FromContext(ctx)
		log.Warn().
			Str("fitid", txn.FiTID.String()).
			Str("trntype", txn.TrnType.String()).
			Msg("unknown OFX transaction type")
		return ""
	}
}

// extractBankID extracts and validates the ORG from the signon response
func extractBankID(resp *ofxgo.Response) (string, error) {
	bankID := resp.Signon.Org.String()
	if bankID == "" {
		return "", fmt.Errorf("missing institution ID in OFX response")
	}
	return bankID, nil
}

func setBankNameFromMeta(account *parser.RawAccount, meta *parser.Metadata) {
	if meta != nil && meta.BankName() != "" {
		account.SetBankName(meta.BankName())
	}
}

func currencyCode(sym ofxgo.CurrSymbol) string {
	code := sym.String()
	if code == "" || code == "XXX" {
		return ""
	}
	return code
}

// ledgerBalance returns the LEDGERBAL amount, or nil when the file has no
// balance date (the aggregate is mandatory in OFX, so a zero DTASOF marks
// it as absent).
func ledgerBalance(ctx context.Context, amt ofxgo.Amount, asOf ofxgo.Date) *float64 {
	if asOf.IsZero() {
		return nil
	}
	v, exact := amt.Float64()
	if !exact {
		log := logger.FromContext(ctx)
		log.Debug().Str("amount", amt.FloatString(2)).Msg("balance not exactly representable")
	}
	return &v
}

// extractTransaction extracts common transaction fields from OFX transaction
func extractTransaction(ctx context.Context, txn ofxgo.Transaction) (*parser.RawTransaction, error) {
	id := strings.TrimSpace(txn.FiTID.String())

	// Posted date, falling back to user date
	date := txn.DtPosted.Time
	if date.IsZero() {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		return nil, fmt.Errorf("transaction %s missing both posted date and user date", id)
	}

	// Name, falling back to Memo; many Brazilian banks only fill MEMO
	description := strings.TrimSpace(txn.Name.String())
	if description == "" {
		description = strings.TrimSpace(txn.Memo.String())
	}
	if description == "" {
		return nil, fmt.Errorf("transaction %s missing both name and memo fields", id)
	}

	amount, exact := txn.TrnAmt.Float64()
	if !exact {
		log := logger.FromContext(ctx)
		log.Debug().Str("fitid", id).Str("amount", txn.TrnAmt.FloatString(2)).Msg("amount not exactly representable")
	}

	rawTxn, err := parser.NewRawTransaction(id, date, description, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction %s: %w", id, err)
	}

	rawTxn.SetType(mapOFXTransactionType(ctx, txn))

	memo := strings.TrimSpace(txn.Memo.String())
	if memo != "" && memo != description {
		rawTxn.SetMemo(memo)
	}

	return rawTxn, nil
}
