package transform

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Tarifa  Bancária ", "tarifa bancaria"},
		{"DEDUÇÃO\tde receita", "deducao de receita"},
		{"PIX RECEBIDO", "pix recebido"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeText(tt.input); got != tt.expected {
				t.Errorf("NormalizeText(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSlugifyInstitution(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{name: "simple name with spaces", input: "Banco do Brasil", expected: "banco-do-brasil"},
		{name: "accented", input: "Itaú Unibanco", expected: "itau-unibanco"},
		{name: "special characters", input: "Caixa Econômica Federal S.A.", expected: "caixa-economica-federal-s-a"},
		{name: "single word", input: "Nubank", expected: "nubank"},
		{name: "numbers in name", input: "Banco 336", expected: "banco-336"},
		{name: "empty string", input: "", expectError: true},
		{name: "only special characters", input: "!@#$%^&*()", expectError: true},
		{name: "only hyphens", input: "---", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SlugifyInstitution(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("SlugifyInstitution(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("SlugifyInstitution(%q) returned unexpected error: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("SlugifyInstitution(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestExtractLast4(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"12345", "2345"},
		{"1234", "1234"},
		{"123", "123"},
		{"", ""},
		{"0001-9", "01-9"},
	}

	for _, tt := range tests {
		if got := ExtractLast4(tt.input); got != tt.expected {
			t.Errorf("ExtractLast4(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestGenerateAccountID(t *testing.T) {
	tests := []struct {
		name            string
		institutionSlug string
		accountNumber   string
		expected        string
	}{
		{"banco do brasil abbreviated", "banco-do-brasil", "5678", "acc-bb-5678"},
		{"caixa abbreviated", "caixa-economica-federal", "99001", "acc-cef-9001"},
		{"unknown institution", "nubank", "3456", "acc-nubank-3456"},
		{"short number", "inter", "12", "acc-inter-12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateAccountID(tt.institutionSlug, tt.accountNumber)
			if result != tt.expected {
				t.Errorf("GenerateAccountID(%q, %q) = %q, expected %q",
					tt.institutionSlug, tt.accountNumber, result, tt.expected)
			}
		})
	}
}

func TestGenerateTransactionID(t *testing.T) {
	a := GenerateTransactionID("acc-bb-5678", "FIT123")
	b := GenerateTransactionID("acc-bb-5678", "FIT123")
	c := GenerateTransactionID("acc-bb-9999", "FIT123")

	if a != b {
		t.Errorf("GenerateTransactionID not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("GenerateTransactionID should differ across accounts, got %q", a)
	}
	if !strings.HasPrefix(a, "txn-acc-bb-5678-") || len(a) != len("txn-acc-bb-5678-")+16 {
		t.Errorf("GenerateTransactionID format unexpected: %q", a)
	}
}

func TestGenerateStatementID(t *testing.T) {
	got := GenerateStatementID(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), "acc-bb-5678")
	if got != "stmt-2025-01-acc-bb-5678" {
		t.Errorf("GenerateStatementID() = %q", got)
	}
}
