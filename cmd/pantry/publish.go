package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"foodpantry/internal/blob"
	"foodpantry/internal/infra/persistence/memory"
	"foodpantry/internal/ledger"
	"foodpantry/internal/log"
	"foodpantry/internal/metrics"
	"foodpantry/internal/publish"
	"foodpantry/internal/storage"
)

func newPublishCommand(before func(), stdout io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("pantry publish", flag.ContinueOnError)
	state := fs.String("state", "", "state code for records that carry none")
	dryRun := fs.Bool("dry-run", false, "dedupe and report without writing to the blob store or ledger")
	concurrency := fs.Int("concurrency", 4, "input files read at once")

	return &ffcli.Command{
		Name:       "publish",
		ShortUsage: "pantry publish [flags] <scraper-output.json>...",
		ShortHelp:  "publish versioned per-state datasets from scraper output",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec: func(ctx context.Context, args []string) error {
			before()
			if len(args) == 0 {
				return errors.New("publish: at least one input file is required")
			}
			var (
				store blob.Store
				pubs  ledger.Store
				err   error
			)
			if *dryRun {
				store, pubs = blob.NewMemory(), memory.NewStore()
			} else {
				if store, err = blob.Open(ctx); err != nil {
					return fmt.Errorf("open blob store: %w", err)
				}
				if pubs, err = storage.OpenLedger(ctx); err != nil {
					return fmt.Errorf("open ledger: %w", err)
				}
			}
			defer func() { _ = pubs.Close() }()

			recorder := metrics.New()
			p := publish.New(store, pubs,
				publish.WithDefaultState(*state),
				publish.WithConcurrency(*concurrency),
				publish.WithRecorder(recorder),
			)
			res, err := p.PublishFS(ctx, osFS{}, args)
			logMetrics(log.Info(ctx), recorder)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"dry_run":      *dryRun,
				"rejected":     res.Rejected,
				"publications": res.Publications,
			})
		},
	}
}

// osFS opens paths as given, relative or absolute.
type osFS struct{}

func (osFS) Open(name string) (fs.File, error) { return os.Open(name) }
