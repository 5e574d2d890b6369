// Command pantry serves, publishes and browses per-state food-pantry datasets.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/rs/zerolog"

	"foodpantry/internal/log"
	"foodpantry/internal/metrics"
)

// envPrefix maps every flag to a PANTRY_* environment variable.
const envPrefix = "PANTRY"

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		log.Error().Err(err).Msg("pantry failed")
		exitFunc(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	root := newRootCommand(stdout)
	return root.ParseAndRun(ctx, args)
}

func newRootCommand(stdout io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("pantry", flag.ContinueOnError)
	logLevel := fs.String("log-level", "info", "minimum log level (debug, info, warn, error)")

	before := func() { log.SetLevel(log.ParseLevel(*logLevel)) }
	return &ffcli.Command{
		Name:       "pantry",
		ShortUsage: "pantry [--log-level=info] <subcommand> [flags]",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Subcommands: []*ffcli.Command{
			newServeCommand(before),
			newPublishCommand(before, stdout),
			newBrowseCommand(before, stdout),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}

// logMetrics reports what a short-lived command recorded, since nothing
// scrapes its registry.
func logMetrics(e *zerolog.Event, rec *metrics.Recorder) {
	snap, err := rec.Snapshot()
	if err != nil {
		e.Discard()
		log.Error().Err(err).Msg("pantry: gather metrics")
		return
	}
	e.Interface("operations", snap.Operations).
		Interface("publications", snap.Publications).
		Msg("pantry: metrics")
}
