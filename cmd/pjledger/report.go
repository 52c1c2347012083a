package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/output"
	"github.com/rumor-ml/commons.systems/pjledger/internal/report"
	"github.com/rumor-ml/commons.systems/pjledger/internal/ui"
)

// Report kinds
const (
	kindCostTree = "cost-tree"
	kindCashFlow = "cash-flow"
	kindInsights = "insights"
)

func runReport(ctx context.Context, args []string) error {
	fs := newFlagSet("report", "-client ID [-kind cost-tree|cash-flow|insights] [flags]")
	clientID := fs.String("client", "", "Client ID (required)")
	kind := fs.String("kind", kindCostTree, "Report kind: cost-tree, cash-flow or insights")
	accounts := fs.String("accounts", "", "Comma-separated account IDs (default: all accounts)")
	from := fs.String("from", "", "First day covered, YYYY-MM-DD")
	to := fs.String("to", "", "Last day covered, YYYY-MM-DD")
	outputFile := fs.String("output", "", "Output JSON file (default: stdout)")
	overwrite := fs.Bool("overwrite", false, "Replace an existing output file")
	verbose := fs.Bool("verbose", false, "Show detailed logs")

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if err := required(fs, map[string]string{"client": *clientID}); err != nil {
		return err
	}

	switch *kind {
	case kindCostTree, kindCashFlow, kindInsights:
	default:
		return fmt.Errorf("unknown report kind %q (expected %s, %s or %s)", *kind, kindCostTree, kindCashFlow, kindInsights)
	}

	req, err := reportRequest(*clientID, *accounts, *from, *to)
	if err != nil {
		return err
	}

	ctx, svc, err := openServices(ctx, *verbose, "")
	if err != nil {
		return err
	}
	defer svc.Close()

	data, err := buildReport(ctx, svc.Reports, *kind, req)
	if err != nil {
		return err
	}

	rep := &output.Report{
		Kind:        *kind,
		ClientID:    req.ClientID,
		GeneratedAt: time.Now().UTC(),
		From:        *from,
		To:          *to,
		Data:        data,
	}
	if err := output.WriteReportToFile(rep, output.WriteOptions{FilePath: *outputFile, Overwrite: *overwrite}); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	// Progress lines would corrupt JSON written to stdout.
	if *outputFile != "" {
		ui.Success(fmt.Sprintf("Wrote %s report to %s", *kind, *outputFile))
	}
	return nil
}

func buildReport(ctx context.Context, svc *report.Service, kind string, req report.ReportRequest) (any, error) {
	switch kind {
	case kindCostTree:
		return svc.CostTree(ctx, req)
	case kindCashFlow:
		return svc.CashFlow(ctx, req)
	case kindInsights:
		return svc.Insights(ctx, req)
	default:
		return nil, fmt.Errorf("unknown report kind %q", kind)
	}
}

func reportRequest(clientID, accounts, from, to string) (report.ReportRequest, error) {
	req := report.ReportRequest{ClientID: clientID}
	for _, id := range strings.Split(accounts, ",") {
		if id = strings.TrimSpace(id); id != "" {
			req.AccountIDs = append(req.AccountIDs, id)
		}
	}

	var err error
	if req.From, err = parseDate("from", from); err != nil {
		return req, err
	}
	if req.To, err = parseDate("to", to); err != nil {
		return req, err
	}
	return req, nil
}

func parseDate(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -%s date %q (expected YYYY-MM-DD)", name, value)
	}
	return t, nil
}
