package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
	"github.com/rumor-ml/commons.systems/pjledger/internal/ui"
)

func runReconcile(ctx context.Context, args []string) error {
	fs := newFlagSet("reconcile", "-client ID -sale ID -leg ID [-confirm N:TRANSACTION_ID]")
	clientID := fs.String("client", "", "Client ID (required)")
	saleID := fs.String("sale", "", "Sale ID (required)")
	legID := fs.String("leg", "", "Leg ID (required)")
	confirm := fs.String("confirm", "", "Settle parcel N with a transaction, as N:TRANSACTION_ID")
	window := fs.Int("window", settlement.MaxDaysApart, "Days around each due date to search for deposits")
	verbose := fs.Bool("verbose", false, "Show detailed logs")

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if err := required(fs, map[string]string{"client": *clientID, "sale": *saleID, "leg": *legID}); err != nil {
		return err
	}

	var (
		parcel int
		txID   string
	)
	if *confirm != "" {
		var err error
		if parcel, txID, err = parseConfirm(*confirm); err != nil {
			return err
		}
	}

	ctx, svc, err := openServices(ctx, *verbose, "")
	if err != nil {
		return err
	}
	defer svc.Close()

	if *confirm != "" {
		leg, err := svc.Settlements.Confirm(ctx, *clientID, *saleID, *legID, parcel, txID)
		if err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Parcel %d of leg %s settled by %s", parcel, leg.ID, txID))
		ui.Info(fmt.Sprintf("Leg status: %s (%d/%d parcels matched)", leg.Status, leg.MatchedCount(), len(leg.Parcels)))
		return nil
	}

	suggestions, err := svc.Settlements.Suggest(ctx, *clientID, *saleID, *legID, *window)
	if err != nil {
		return err
	}

	ui.Header("Settlement Suggestions")
	if len(suggestions) == 0 {
		ui.Warning("No deposits match the open parcels of this leg")
		return nil
	}
	for _, s := range suggestions {
		ui.Info(fmt.Sprintf("Parcel %d due %s ← %s on %s, %s (score %d, %d days apart)",
			s.ParcelN, s.DueDate.Format(domain.DateLayout), s.TransactionID,
			s.TxDate.Format(domain.DateLayout), s.Amount, s.Score, s.DaysApart))
	}
	ui.Info(fmt.Sprintf("Confirm one with: pjledger reconcile -client %s -sale %s -leg %s -confirm N:TRANSACTION_ID", *clientID, *saleID, *legID))
	return nil
}

func parseConfirm(value string) (int, string, error) {
	n, txID, ok := strings.Cut(value, ":")
	if !ok || strings.TrimSpace(txID) == "" {
		return 0, "", fmt.Errorf("invalid -confirm %q (expected N:TRANSACTION_ID)", value)
	}
	parcel, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || parcel < 1 {
		return 0, "", fmt.Errorf("invalid parcel number in -confirm %q", value)
	}
	return parcel, strings.TrimSpace(txID), nil
}
