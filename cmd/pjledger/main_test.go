package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/output"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
	"github.com/rumor-ml/commons.systems/pjledger/internal/ui"
)

const january = "Data;Descrição;Documento;Valor;Saldo\n" +
	"02/01/2025;PIX RECEBIDO ACME;E1;1.500,00;1.500,00\n" +
	"05/01/2025;ALUGUEL SALA 12;;-300,00;1.200,00\n"

// setupEnv points the CLI at a fresh SQLite database and captures ui output.
func setupEnv(t *testing.T) *bytes.Buffer {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PJLEDGER_STORE", "sqlite")
	t.Setenv("PJLEDGER_DB_PATH", filepath.Join(dir, "ledger.db"))
	t.Setenv("LOG_LEVEL", "error")

	noColor := color.NoColor
	color.NoColor = true
	var buf bytes.Buffer
	prev := ui.SetOutput(&buf)
	t.Cleanup(func() {
		ui.SetOutput(prev)
		color.NoColor = noColor
	})
	return &buf
}

func writeStatement(t *testing.T, root, client, account, name, content string) {
	t.Helper()
	dir := filepath.Join(root, client, account)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRun_Usage(t *testing.T) {
	ctx := context.Background()

	var stdout bytes.Buffer
	require.NoError(t, run(ctx, []string{"-version"}, &stdout))
	assert.Equal(t, "pjledger version "+version+"\n", stdout.String())

	stdout.Reset()
	require.NoError(t, run(ctx, []string{"help"}, &stdout))
	assert.Contains(t, stdout.String(), "Usage:")
	assert.Contains(t, stdout.String(), "reconcile")

	assert.ErrorIs(t, run(ctx, nil, &stdout), errUsage)
	assert.ErrorIs(t, run(ctx, []string{"bogus"}, &stdout), errUsage)
}

func TestRun_RequiredFlags(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args []string
	}{
		{"import without input", []string{"import", "-client", "acme"}},
		{"import without client", []string{"import", "-input", "."}},
		{"report without client", []string{"report"}},
		{"sale without date", []string{"sale", "-client", "acme"}},
		{"reconcile without leg", []string{"reconcile", "-client", "acme", "-sale", "s1"}},
		{"plan without file", []string{"plan", "-client", "acme"}},
		{"unknown flag", []string{"report", "-client", "acme", "-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, run(ctx, tt.args, &bytes.Buffer{}), errUsage)
		})
	}
}

func TestParseLeg(t *testing.T) {
	tests := []struct {
		input   string
		want    settlement.LegSpec
		wantErr bool
	}{
		{
			input: "pix:PIX:100,00:100,00",
			want:  settlement.LegSpec{ID: "pix", Method: domain.MethodPix, Gross: 10000, Net: 10000},
		},
		{
			input: "card:credit_card:1.000,00:950,50:3",
			want:  settlement.LegSpec{ID: "card", Method: domain.MethodCreditCard, Gross: 100000, Net: 95050, Installments: 3},
		},
		{
			input: "boleto:boleto:200:198::D+2",
			want:  settlement.LegSpec{ID: "boleto", Method: domain.MethodBoleto, Gross: 20000, Net: 19800, Rule: "D+2"},
		},
		{input: "pix:pix:100", wantErr: true},
		{input: "pix:pix:cem:100", wantErr: true},
		{input: "card:credit_card:10:9:tres", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLeg(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConfirm(t *testing.T) {
	n, txID, err := parseConfirm("2:txn-itau-abc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "txn-itau-abc", txID)

	for _, bad := range []string{"2", "x:txn", "0:txn", "2:", ""} {
		_, _, err := parseConfirm(bad)
		assert.Error(t, err, bad)
	}
}

func TestReportRequest(t *testing.T) {
	req, err := reportRequest("acme", " itau, ,nubank", "2025-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, "acme", req.ClientID)
	assert.Equal(t, []string{"itau", "nubank"}, req.AccountIDs)
	assert.Equal(t, 2025, req.From.Year())
	assert.True(t, req.To.IsZero())

	_, err = reportRequest("acme", "", "01/01/2025", "")
	assert.Error(t, err)
}

func TestImportAndReport(t *testing.T) {
	out := setupEnv(t)
	ctx := context.Background()

	root := t.TempDir()
	writeStatement(t, root, "acme", "itau", "jan.csv", january)
	writeStatement(t, root, "other", "bb", "jan.csv", january)

	require.NoError(t, run(ctx, []string{"import", "-client", "acme", "-input", root}, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "Found 1 statement files")
	assert.Contains(t, out.String(), "jan.csv → itau: 2 accepted, 0 duplicates")

	out.Reset()
	require.NoError(t, run(ctx, []string{"import", "-client", "acme", "-input", root}, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "already imported for itau")

	reportFile := filepath.Join(t.TempDir(), "cash.json")
	require.NoError(t, run(ctx, []string{"report", "-client", "acme", "-kind", "cash-flow", "-output", reportFile}, &bytes.Buffer{}))

	var flow struct {
		Months []struct {
			Month string `json:"month"`
		} `json:"months"`
	}
	rep, err := output.LoadReport(reportFile, &flow)
	require.NoError(t, err)
	assert.Equal(t, "cash-flow", rep.Kind)
	assert.Equal(t, "acme", rep.ClientID)
	require.Len(t, flow.Months, 1)
	assert.Equal(t, "2025-01", flow.Months[0].Month)

	err = run(ctx, []string{"report", "-client", "acme", "-kind", "cash-flow", "-output", reportFile}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "already exists")

	err = run(ctx, []string{"report", "-client", "acme", "-kind", "balance"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown report kind")
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	out := setupEnv(t)
	ctx := context.Background()

	root := t.TempDir()
	writeStatement(t, root, "acme", "itau", "jan.csv", january)

	require.NoError(t, run(ctx, []string{"import", "-client", "acme", "-input", root, "-dry-run"}, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "Dry run: nothing was written")

	out.Reset()
	require.NoError(t, run(ctx, []string{"import", "-client", "acme", "-input", root}, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "2 accepted")
}

func TestImport_NoFiles(t *testing.T) {
	setupEnv(t)
	err := run(context.Background(), []string{"import", "-client", "acme", "-input", t.TempDir()}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "no statement files found")
}

func TestSaleAndReconcile(t *testing.T) {
	out := setupEnv(t)
	ctx := context.Background()

	root := t.TempDir()
	writeStatement(t, root, "acme", "itau", "jan.csv", january)
	require.NoError(t, run(ctx, []string{"import", "-client", "acme", "-input", root}, &bytes.Buffer{}))

	out.Reset()
	require.NoError(t, run(ctx, []string{
		"sale", "-client", "acme", "-date", "2025-01-01", "-description", "Pedido 42",
		"-leg", "pix:pix:1.500,00:1.500,00:1:D+1",
	}, &bytes.Buffer{}))
	m := regexp.MustCompile(`Sale (\S+) on 2025-01-01`).FindStringSubmatch(out.String())
	require.Len(t, m, 2, out.String())
	saleID := m[1]

	out.Reset()
	require.NoError(t, run(ctx, []string{"reconcile", "-client", "acme", "-sale", saleID, "-leg", "pix"}, &bytes.Buffer{}))
	s := regexp.MustCompile(`Parcel 1 due 2025-01-02 ← (\S+) on 2025-01-02`).FindStringSubmatch(out.String())
	require.Len(t, s, 2, out.String())

	out.Reset()
	require.NoError(t, run(ctx, []string{"reconcile", "-client", "acme", "-sale", saleID, "-leg", "pix", "-confirm", "1:" + s[1]}, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "Leg status: fully_matched (1/1 parcels matched)")

	err := run(ctx, []string{"reconcile", "-client", "acme", "-sale", saleID, "-leg", "pix", "-confirm", "1:" + s[1]}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	out := setupEnv(t)

	planFile := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planFile, []byte(`categories:
  - id: rent
    label: Aluguel
    parent: administrative_expenses
    accepts_postings: true
`), 0o644))

	require.NoError(t, run(context.Background(), []string{"plan", "-client", "acme", "-file", planFile}, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "Saved 1 categories for acme")
	assert.Contains(t, out.String(), "Aluguel (administrative_expenses.rent)")

	err := run(context.Background(), []string{"plan", "-client", "acme", "-file", filepath.Join(t.TempDir(), "missing.yaml")}, &bytes.Buffer{})
	assert.Error(t, err)
}
