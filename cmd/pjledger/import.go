package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/commons.systems/pjledger/internal/gcs"
	"github.com/rumor-ml/commons.systems/pjledger/internal/pipeline"
	"github.com/rumor-ml/commons.systems/pjledger/internal/scanner"
	"github.com/rumor-ml/commons.systems/pjledger/internal/ui"
)

const coverageTarget = 80.0

// source is one statement file to import, local or in a bucket.
type source struct {
	name    string
	account string
	open    func(ctx context.Context) (io.ReadCloser, error)
}

func runImport(ctx context.Context, args []string) error {
	fs := newFlagSet("import", "-client ID -input DIR|FILE|gs://BUCKET/OBJECT [flags]")
	clientID := fs.String("client", "", "Client ID (required)")
	input := fs.String("input", "", "Statements directory, file or gs:// object or prefix (required)")
	accountID := fs.String("account", "", "Account ID (default: account directory or derived from the statement)")
	dryRun := fs.Bool("dry-run", false, "Parse, deduplicate and classify without writing")
	rulesFile := fs.String("rules", "", "Category rules file (default: embedded rules)")
	verbose := fs.Bool("verbose", false, "Show detailed import logs")

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if err := required(fs, map[string]string{"client": *clientID, "input": *input}); err != nil {
		return err
	}

	var opts []pipeline.Option
	if *dryRun {
		opts = append(opts, pipeline.WithDryRun())
	}
	ctx, svc, err := openServices(ctx, *verbose, *rulesFile, opts...)
	if err != nil {
		return err
	}
	defer svc.Close()

	ui.Header("Importing Statements")
	ui.Step(1, 3, "Resolving input")

	sources, cleanup, err := resolveSources(ctx, *input, *clientID)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(sources) == 0 {
		return fmt.Errorf("no statement files found in %s\n\nPlease check:\n  - The path is correct\n  - Files have supported extensions (.qfx, .ofx, .csv)", *input)
	}
	ui.Success(fmt.Sprintf("Found %d statement files", len(sources)))

	ui.Step(2, 3, "Importing statements")
	var (
		accepted, duplicates, classified, skipped int
		failed                                    []string
	)
	for i, src := range sources {
		account := *accountID
		if account == "" {
			account = src.account
		}

		res, err := importSource(ctx, svc.Pipeline, *clientID, account, src)
		if err != nil {
			ui.Error(fmt.Sprintf("[%d/%d] %s: %v", i+1, len(sources), src.name, err))
			failed = append(failed, src.name)
			continue
		}
		if res.Skipped {
			ui.Warning(fmt.Sprintf("[%d/%d] %s already imported for %s", i+1, len(sources), res.FileName, res.AccountID))
			skipped++
			continue
		}

		ui.Info(fmt.Sprintf("[%d/%d] %s → %s: %d accepted, %d duplicates",
			i+1, len(sources), res.FileName, res.AccountID, len(res.Accepted), len(res.Duplicates)))
		ui.Warnings(res.Warnings)

		accepted += len(res.Accepted)
		duplicates += len(res.Duplicates)
		classified += res.Classified
	}

	ui.Step(3, 3, "Summary")
	ui.Info(fmt.Sprintf("Accepted %d transactions, skipped %d duplicates", accepted, duplicates))
	if skipped > 0 {
		ui.Info(fmt.Sprintf("%d files were already imported", skipped))
	}
	if accepted > 0 {
		coverage := float64(classified) / float64(accepted) * 100
		if coverage < coverageTarget {
			ui.Warning(fmt.Sprintf("Rule coverage %.1f%% below %.0f%% target (%d unclassified)", coverage, coverageTarget, accepted-classified))
		} else {
			ui.Info(fmt.Sprintf("Rule coverage: %.1f%% (%d/%d classified)", coverage, classified, accepted))
		}
	}
	if *dryRun {
		ui.Info("Dry run: nothing was written")
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d files failed to import", len(failed), len(sources))
	}
	ui.Success("Import complete")
	return nil
}

func importSource(ctx context.Context, p *pipeline.Pipeline, clientID, accountID string, src source) (*pipeline.ImportResult, error) {
	rc, err := src.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return p.ImportFile(ctx, clientID, accountID, src.name, rc)
}

// resolveSources lists the statement files behind input. A gs:// URI ending
// in "/" lists every object under the prefix.
func resolveSources(ctx context.Context, input, clientID string) ([]source, func(), error) {
	if !gcs.IsURI(input) {
		sources, err := localSources(input, clientID)
		return sources, func() {}, err
	}

	loc, err := gcs.ParseURI(input)
	if err != nil {
		return nil, nil, err
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { client.Close() }

	locs := []gcs.Location{loc}
	if loc.IsPrefix() {
		locs, err = client.List(ctx, loc)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	sources := make([]source, 0, len(locs))
	for _, l := range locs {
		sources = append(sources, source{
			name: l.String(),
			open: func(ctx context.Context) (io.ReadCloser, error) { return client.Open(ctx, l) },
		})
	}
	return sources, cleanup, nil
}

// localSources scans a {root}/{client}/{account}/ tree. Files laid out under
// another client's directory are left out.
func localSources(input, clientID string) ([]source, error) {
	files, err := scanner.New(input).Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", input, err)
	}

	sources := make([]source, 0, len(files))
	for _, f := range files {
		if c := f.Metadata.Client(); c != "" && c != clientID {
			continue
		}
		sources = append(sources, source{
			name:    f.Path,
			account: f.Metadata.Account(),
			open: func(context.Context) (io.ReadCloser, error) {
				file, err := os.Open(f.Path)
				if err != nil {
					return nil, fmt.Errorf("failed to open %s: %w", f.Path, err)
				}
				return file, nil
			},
		})
	}
	return sources, nil
}
