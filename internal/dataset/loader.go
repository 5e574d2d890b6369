package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"foodpantry/internal/config"
)

// maxErrorBody caps how much of a failed response is shown to the visitor.
const maxErrorBody = 512

// Dataset is a successfully loaded dataset.
type Dataset struct {
	Records   []Record
	SourceURL string
}

// Recorder observes load outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// HTTPDoer is the subset of *http.Client used by the loader.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Loader resolves state codes to dataset URLs and fetches them.
type Loader struct {
	cfg      config.Config
	client   HTTPDoer
	recorder Recorder
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the client used for fetches.
func WithHTTPClient(c HTTPDoer) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithRecorder attaches a load outcome recorder.
func WithRecorder(r Recorder) LoaderOption {
	return func(l *Loader) { l.recorder = r }
}

// NewLoader constructs a loader for the given configuration.
func NewLoader(cfg config.Config, opts ...LoaderOption) *Loader {
	l := &Loader{cfg: cfg, client: http.DefaultClient}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ResolveURL returns the URL a load for stateCode would fetch.
func (l *Loader) ResolveURL(stateCode string) (string, error) {
	code := strings.TrimSpace(stateCode)
	if code == "" {
		return "", &LoadError{Kind: KindConfiguration, Message: "No state selected.", Err: ErrConfiguration}
	}
	base := strings.TrimRight(l.cfg.DatasetsBaseURL, "/")
	if base == "" {
		return "", &LoadError{Kind: KindConfiguration, Message: "Dataset location is not configured.", Err: ErrConfiguration}
	}
	file, ok := l.cfg.Filename(code)
	if !ok {
		file = Filename(code, l.cfg.DatasetVersion)
	}
	target := base + "/" + url.PathEscape(file)
	if l.cfg.CacheBuster != "" {
		target += "?ver=" + url.QueryEscape(l.cfg.CacheBuster)
	}
	return target, nil
}

// Load fetches and parses the dataset for stateCode. Failures are *LoadError.
func (l *Loader) Load(ctx context.Context, stateCode string) (ds Dataset, err error) {
	start := time.Now()
	defer func() {
		if l.recorder != nil {
			l.recorder.Observe(ctx, "dataset_load", err == nil, time.Since(start))
		}
	}()

	target, err := l.ResolveURL(stateCode)
	if err != nil {
		return Dataset{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Dataset{}, &LoadError{Kind: KindTransport, Message: err.Error(), SourceURL: target, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := l.client.Do(req)
	if err != nil {
		return Dataset{}, &LoadError{Kind: KindTransport, Message: err.Error(), SourceURL: target, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Dataset{}, &LoadError{
			Kind:      KindTransport,
			Message:   failureMessage(resp),
			SourceURL: target,
			Err:       fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Dataset{}, &LoadError{Kind: KindTransport, Message: err.Error(), SourceURL: target, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}
	records, err := ParseRecords(body)
	if err != nil {
		return Dataset{}, &LoadError{Kind: KindFormat, Message: formatMessage(err), SourceURL: target, Err: err}
	}
	return Dataset{Records: records, SourceURL: target}, nil
}

func failureMessage(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if msg := strings.TrimSpace(string(b)); msg != "" {
		return msg
	}
	return fmt.Sprintf("Dataset failed to load (HTTP %d).", resp.StatusCode)
}

func formatMessage(err error) string {
	msg := err.Error()
	if errors.Is(err, ErrFormat) {
		msg = strings.TrimPrefix(msg, ErrFormat.Error()+": ")
	}
	return msg
}
