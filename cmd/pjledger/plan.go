package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rumor-ml/commons.systems/pjledger/internal/category"
	"github.com/rumor-ml/commons.systems/pjledger/internal/ui"
)

func runPlan(ctx context.Context, args []string) error {
	fs := newFlagSet("plan", "-client ID -file PLAN.yaml")
	clientID := fs.String("client", "", "Client ID (required)")
	file := fs.String("file", "", "Chart of accounts YAML file (required)")
	verbose := fs.Bool("verbose", false, "Show detailed logs")

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if err := required(fs, map[string]string{"client": *clientID, "file": *file}); err != nil {
		return err
	}

	defs, err := category.LoadPlanFromFile(*file)
	if err != nil {
		return err
	}

	ctx, svc, err := openServices(ctx, *verbose, "")
	if err != nil {
		return err
	}
	defer svc.Close()

	warnings, err := svc.SaveCategoryPlan(ctx, *clientID, defs)
	if err != nil {
		return err
	}
	ui.Warnings(warnings)

	idx, err := category.NewIndex(defs)
	if err != nil {
		return err
	}
	if err := printPlan(idx); err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Saved %d categories for %s", len(defs), *clientID))
	return nil
}

// printPlan writes the chart as an indented tree. Parents sort before their
// children because paths extend the parent path.
func printPlan(idx *category.Index) error {
	defs := idx.Definitions()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })

	for _, def := range defs {
		ancestors, err := idx.Ancestors(def.Path)
		if err != nil {
			return err
		}
		if len(ancestors) == 0 {
			ui.BlueText(def.Label)
			continue
		}
		line := strings.Repeat("  ", len(ancestors)-1) + fmt.Sprintf("%s (%s)", def.Label, def.Path)
		if !def.AcceptsPostings {
			line += " [group]"
		}
		ui.Info(line)
	}
	return nil
}
