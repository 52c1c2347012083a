package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// foldAccents strips combining marks: "Crédito Não" → "Credito Nao".
func foldAccents(s string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	return out, err
}

// NormalizeText folds accents and case and collapses runs of whitespace.
// It is the canonical form for keyword and description comparisons.
// Examples: "  Tarifa  Bancária " → "tarifa bancaria"
func NormalizeText(s string) string {
	folded, err := foldAccents(s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// SlugifyInstitution converts institution name to a URL-safe slug.
// Examples: "Banco do Brasil" → "banco-do-brasil", "Itaú Unibanco" → "itau-unibanco"
func SlugifyInstitution(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("institution name cannot be empty")
	}

	normalized, err := foldAccents(name)
	if err != nil {
		return "", fmt.Errorf("failed to normalize institution name %q: %w", name, err)
	}
	if normalized == "" {
		return "", fmt.Errorf("institution name %q contains only non-displayable unicode characters", name)
	}

	slug := nonAlphanumeric.ReplaceAllString(strings.ToLower(normalized), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "", fmt.Errorf("institution name %q contains no alphanumeric characters", name)
	}

	return slug, nil
}

// ExtractLast4 returns the last 4 characters of the account number.
// If the account number has fewer than 4 characters, returns the full number.
func ExtractLast4(accountNumber string) string {
	if len(accountNumber) <= 4 {
		return accountNumber
	}
	return accountNumber[len(accountNumber)-4:]
}

// GenerateAccountID creates a deterministic account ID.
// Format: "acc-{institutionSlug}-{last4}"
// Common institution slugs are abbreviated, see abbreviateSlug.
//
//	GenerateAccountID("banco-do-brasil", "12345-6") → "acc-bb-45-6"
//	GenerateAccountID("nubank", "9012") → "acc-nubank-9012"
func GenerateAccountID(institutionSlug, accountNumber string) string {
	return fmt.Sprintf("acc-%s-%s", abbreviateSlug(institutionSlug), ExtractLast4(accountNumber))
}

func abbreviateSlug(slug string) string {
	abbreviations := map[string]string{
		"banco-do-brasil":         "bb",
		"caixa-economica-federal": "cef",
		"itau-unibanco":           "itau",
		"banco-santander":         "santander",
	}

	if abbrev, ok := abbreviations[slug]; ok {
		return abbrev
	}

	return slug
}

// GenerateTransactionID creates a deterministic transaction ID from the
// account and the entry's stable key (its external id, or its fingerprint
// when the statement carries none).
// Format: "txn-{accountID}-{first 16 hex of sha256(key)}"
func GenerateTransactionID(accountID, key string) string {
	sum := sha256.Sum256([]byte(accountID + "|" + key))
	return fmt.Sprintf("txn-%s-%s", accountID, hex.EncodeToString(sum[:8]))
}

// GenerateStatementID creates a deterministic statement ID.
// Format: "stmt-YYYY-MM-{accountID}"
func GenerateStatementID(periodStart time.Time, accountID string) string {
	return fmt.Sprintf("stmt-%04d-%02d-%s", periodStart.Year(), periodStart.Month(), accountID)
}
