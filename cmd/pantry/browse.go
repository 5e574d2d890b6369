package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"foodpantry/internal/config"
	"foodpantry/internal/dataset"
	"foodpantry/internal/log"
	"foodpantry/internal/metrics"
	"foodpantry/internal/render"
	"foodpantry/internal/widget"
)

type browseConfig struct {
	source   string
	global   string
	state    string
	search   string
	selectID string
	timeout  time.Duration
	utc      bool
}

func newBrowseCommand(before func(), stdout io.Writer) *ffcli.Command {
	var cfg browseConfig
	fs := flag.NewFlagSet("pantry browse", flag.ContinueOnError)
	fs.StringVar(&cfg.source, "config", "http://localhost:8080/api/v1/config", "widget configuration: URL, .json file or .js file")
	fs.StringVar(&cfg.global, "config-global", config.DefaultGlobal, "global assigned by a .js configuration")
	fs.StringVar(&cfg.search, "search", "", "filter term applied after loading")
	fs.StringVar(&cfg.selectID, "select", "", "record id to open in the detail view")
	fs.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "dataset load timeout")
	fs.BoolVar(&cfg.utc, "utc", false, "render timestamps in UTC instead of local time")

	return &ffcli.Command{
		Name:       "browse",
		ShortUsage: "pantry browse [flags] <state>",
		ShortHelp:  "run the widget headless and print the markup it renders",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec: func(ctx context.Context, args []string) error {
			before()
			if len(args) != 1 {
				return errors.New("browse: exactly one state code is required")
			}
			cfg.state = args[0]
			wcfg, err := readConfig(ctx, cfg.source, cfg.global)
			if err != nil {
				return err
			}
			return browse(ctx, wcfg, cfg, stdout)
		},
	}
}

func readConfig(ctx context.Context, source, global string) (config.Config, error) {
	var (
		raw []byte
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		raw, err = fetch(ctx, source)
	} else {
		raw, err = os.ReadFile(source)
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("read config %s: %w", source, err)
	}
	if strings.HasSuffix(source, ".js") {
		return config.ReadScript(string(raw), global)
	}
	return config.Read(raw)
}

func fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// browse drives the controller through select, search and detail on its
// event loop and prints the results container after each step.
func browse(ctx context.Context, wcfg config.Config, cfg browseConfig, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loc := time.Local
	if cfg.utc {
		loc = time.UTC
	}
	recorder := metrics.New()
	defer logMetrics(log.Debug(ctx), recorder)

	doc := widget.NewHeadlessDocument()
	loop := widget.NewLoop(0)
	loaded := make(chan error, 1)
	loader := dataset.NewLoader(wcfg, dataset.WithRecorder(recorder))
	ctrl, err := widget.New(wcfg, doc, loader, loop,
		widget.WithRenderer(render.New(loc)),
		widget.WithBaseContext(ctx),
		widget.WithLoadTimeout(cfg.timeout),
		widget.WithLoadObserver(func(_ string, err error) { loaded <- err }),
	)
	if err != nil {
		return err
	}
	go func() { _ = loop.Run(ctx) }()

	loop.Post(func() {
		ctrl.Init()
		ctrl.StateChanged(cfg.state)
	})
	var loadErr error
	select {
	case loadErr = <-loaded:
	case <-ctx.Done():
		return ctx.Err()
	}

	out := make(chan string, 1)
	loop.Post(func() {
		var b strings.Builder
		fmt.Fprintf(&b, "<!-- %s -->\n%s\n", doc.Get(widget.StatusID).Text(), results(doc))
		if loadErr == nil && cfg.search != "" {
			ctrl.SearchChanged(cfg.search)
			fmt.Fprintf(&b, "%s\n", results(doc))
		}
		if loadErr == nil && cfg.selectID != "" {
			ctrl.SelectRecord(cfg.selectID)
			if ctrl.View() == widget.ViewDetail {
				fmt.Fprintf(&b, "%s\n", results(doc))
			}
		}
		out <- b.String()
	})
	select {
	case s := <-out:
		if _, err := io.WriteString(stdout, s); err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	if loadErr != nil {
		return fmt.Errorf("browse %s: %w", strings.ToUpper(cfg.state), loadErr)
	}
	return nil
}

func results(doc *widget.HeadlessDocument) string {
	el := doc.Get(widget.ResultsID)
	if html := el.HTML(); html != "" {
		return html
	}
	return el.Text()
}
