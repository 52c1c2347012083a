package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/parser"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
	"github.com/rumor-ml/commons.systems/pjledger/internal/ui"
)

// legFlags collects repeated -leg values of the form
// ID:METHOD:GROSS:NET[:INSTALLMENTS[:RULE]].
type legFlags []settlement.LegSpec

func (l *legFlags) String() string {
	ids := make([]string, 0, len(*l))
	for _, spec := range *l {
		ids = append(ids, spec.ID)
	}
	return strings.Join(ids, ",")
}

func (l *legFlags) Set(value string) error {
	spec, err := parseLeg(value)
	if err != nil {
		return err
	}
	*l = append(*l, spec)
	return nil
}

func parseLeg(value string) (settlement.LegSpec, error) {
	parts := strings.Split(value, ":")
	if len(parts) < 4 || len(parts) > 6 {
		return settlement.LegSpec{}, fmt.Errorf("leg %q: expected ID:METHOD:GROSS:NET[:INSTALLMENTS[:RULE]]", value)
	}

	gross, err := parser.ParseAmount(parts[2])
	if err != nil {
		return settlement.LegSpec{}, fmt.Errorf("leg %q: gross: %w", value, err)
	}
	net, err := parser.ParseAmount(parts[3])
	if err != nil {
		return settlement.LegSpec{}, fmt.Errorf("leg %q: net: %w", value, err)
	}

	spec := settlement.LegSpec{
		ID:     strings.TrimSpace(parts[0]),
		Method: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(parts[1]))),
		Gross:  domain.FromFloat(gross),
		Net:    domain.FromFloat(net),
	}
	if len(parts) >= 5 && parts[4] != "" {
		n, err := strconv.Atoi(parts[4])
		if err != nil {
			return settlement.LegSpec{}, fmt.Errorf("leg %q: installments: %w", value, err)
		}
		spec.Installments = n
	}
	if len(parts) == 6 {
		spec.Rule = parts[5]
	}
	return spec, nil
}

func runSale(ctx context.Context, args []string) error {
	fs := newFlagSet("sale", "-client ID -date YYYY-MM-DD -leg ID:METHOD:GROSS:NET[:INSTALLMENTS[:RULE]] [-leg ...]")
	clientID := fs.String("client", "", "Client ID (required)")
	date := fs.String("date", "", "Sale date, YYYY-MM-DD (required)")
	description := fs.String("description", "", "Sale description")
	verbose := fs.Bool("verbose", false, "Show detailed logs")
	var legs legFlags
	fs.Var(&legs, "leg", "Payment leg, repeatable (e.g. card:credit_card:1000,00:950,00:3)")

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if err := required(fs, map[string]string{"client": *clientID, "date": *date}); err != nil {
		return err
	}
	saleDate, err := parseDate("date", *date)
	if err != nil {
		return err
	}

	ctx, svc, err := openServices(ctx, *verbose, "")
	if err != nil {
		return err
	}
	defer svc.Close()

	sale, err := svc.Settlements.CreateSale(ctx, settlement.SaleRequest{
		ClientID:    *clientID,
		Date:        saleDate,
		Description: *description,
		Legs:        legs,
	})
	if err != nil {
		return err
	}

	ui.Header("Sale Registered")
	ui.Info(fmt.Sprintf("Sale %s on %s", sale.ID, sale.Date.Format(domain.DateLayout)))
	for _, leg := range sale.Legs {
		ui.BlueText(fmt.Sprintf("Leg %s (%s)", leg.ID, leg.Method))
		ui.Amount("Gross", leg.GrossAmount)
		ui.Amount("Net", leg.NetAmount)
		for _, p := range leg.Parcels {
			ui.Info(fmt.Sprintf("Parcel %d due %s: %s", p.N, p.DueDate.Format(domain.DateLayout), p.ExpectedAmount))
		}
	}
	return nil
}
