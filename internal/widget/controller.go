// Package widget implements the pantry browser's interaction controller: it
// owns the session state and drives a Document in response to user events.
package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"foodpantry/internal/config"
	"foodpantry/internal/dataset"
	"foodpantry/internal/log"
	"foodpantry/internal/render"
)

// Phase is the controller's loading phase.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
)

// View identifies what the results container shows.
type View string

const (
	ViewMessage View = "message"
	ViewList    View = "list"
	ViewDetail  View = "detail"
)

// DatasetLoader is implemented by *dataset.Loader.
type DatasetLoader interface {
	ResolveURL(stateCode string) (string, error)
	Load(ctx context.Context, stateCode string) (dataset.Dataset, error)
}

// Session is the transient view of the loaded dataset. CurrentStateCode is
// empty when no dataset is loaded.
type Session struct {
	RawDataset       []dataset.Record
	CurrentDataset   []dataset.Record
	CurrentStateCode string
	Term             string
}

// Option customizes a Controller.
type Option func(*Controller)

// WithRenderer replaces the default renderer.
func WithRenderer(r *render.Renderer) Option {
	return func(c *Controller) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithBaseContext sets the context loads derive from.
func WithBaseContext(ctx context.Context) Option {
	return func(c *Controller) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithLoadTimeout bounds each dataset load. Zero disables the bound.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Controller) { c.loadTimeout = d }
}

// WithLoadObserver registers fn to run on the loop after each load that was
// not superseded, once the results container has been updated.
func WithLoadObserver(fn func(stateCode string, err error)) Option {
	return func(c *Controller) { c.onLoad = fn }
}

// Controller wires document events to the loader and renderers. All exported
// methods must be called from the Scheduler's loop.
type Controller struct {
	cfg      config.Config
	loader   DatasetLoader
	sched    Scheduler
	renderer *render.Renderer

	ctx         context.Context
	loadTimeout time.Duration
	onLoad      func(string, error)

	stateSelect Element
	search      Element
	results     Element
	status      Element

	session Session
	phase   Phase
	view    View
	seq     uint64
	pending string
}

// ErrMissingElement is returned by New when a required element is absent.
var ErrMissingElement = errors.New("widget: required element missing")

// New binds a controller to doc. The state selector, search input and results
// container are required; the status element is optional.
func New(cfg config.Config, doc Document, loader DatasetLoader, sched Scheduler, opts ...Option) (*Controller, error) {
	if doc == nil || loader == nil || sched == nil {
		return nil, errors.New("widget: document, loader and scheduler are required")
	}
	c := &Controller{
		cfg:      cfg,
		loader:   loader,
		sched:    sched,
		renderer: render.New(nil),
		ctx:      context.Background(),
		phase:    PhaseIdle,
		view:     ViewMessage,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, req := range []struct {
		id  string
		dst *Element
	}{
		{StateSelectID, &c.stateSelect},
		{SearchInputID, &c.search},
		{ResultsID, &c.results},
	} {
		el, ok := doc.Element(req.id)
		if !ok || el == nil {
			return nil, fmt.Errorf("%w: #%s", ErrMissingElement, req.id)
		}
		*req.dst = el
	}
	if el, ok := doc.Element(StatusID); ok {
		c.status = el
	}
	if el, ok := doc.LabelFor(StateSelectID); ok && el != nil {
		el.SetText(cfg.Label(config.LabelState))
	}
	if el, ok := doc.LabelFor(SearchInputID); ok && el != nil {
		el.SetText(cfg.Label(config.LabelSearch))
	}
	return c, nil
}

// Init populates the state selector and shows the idle prompt.
func (c *Controller) Init() {
	options, err := c.renderer.StateOptions(c.cfg)
	if err != nil {
		log.Error().Err(err).Msg("widget: render state options")
	} else {
		c.stateSelect.SetHTML(options)
	}
	c.stateSelect.SetDisabled(!c.cfg.HasStates())
	c.stateSelect.SetValue("")
	c.reset()
}

// Phase reports the current loading phase.
func (c *Controller) Phase() Phase { return c.phase }

// View reports what the results container shows.
func (c *Controller) View() View { return c.view }

// Session returns a copy of the session state.
func (c *Controller) Session() Session {
	s := c.session
	s.RawDataset = append([]dataset.Record(nil), c.session.RawDataset...)
	s.CurrentDataset = append([]dataset.Record(nil), c.session.CurrentDataset...)
	return s
}

// StateChanged handles a change of the state selector.
func (c *Controller) StateChanged(value string) {
	code := strings.ToUpper(strings.TrimSpace(value))
	c.seq++
	if code == "" {
		c.pending = ""
		c.reset()
		return
	}

	tag := c.seq
	c.pending = code
	c.phase = PhaseLoading
	c.session = Session{}
	c.search.SetValue("")
	c.search.SetDisabled(true)
	markup, err := c.renderer.Loading(code)
	c.show(ViewMessage, markup, err)
	if target, err := c.loader.ResolveURL(code); err == nil {
		c.setStatus(target)
	} else {
		c.setStatus("Loading…")
	}

	ctx := log.WithContext(c.ctx, func(zc zerolog.Context) zerolog.Context {
		return zc.Str("state", code).Uint64("request", tag)
	})
	timeout := c.loadTimeout
	go func() {
		loadCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			loadCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		ds, err := c.loader.Load(loadCtx, code)
		cancel()
		c.sched.Post(func() { c.finishLoad(ctx, tag, code, ds, err) })
	}()
}

func (c *Controller) finishLoad(ctx context.Context, tag uint64, code string, ds dataset.Dataset, err error) {
	if tag != c.seq || code != c.pending {
		log.Debug(ctx).Str("current", c.pending).Msg("widget: discarding superseded dataset load")
		return
	}
	c.phase = PhaseLoaded
	if c.onLoad != nil {
		defer c.onLoad(code, err)
	}
	if err != nil {
		var lerr *dataset.LoadError
		message, source := err.Error(), ""
		if errors.As(err, &lerr) {
			message, source = lerr.Message, lerr.SourceURL
		}
		log.Warn(ctx).Err(err).Str("url", source).Msg("widget: dataset load failed")
		c.session = Session{}
		c.search.SetDisabled(true)
		markup, rerr := c.renderer.Error(message)
		c.show(ViewMessage, markup, rerr)
		if source == "" {
			source = message
		}
		c.setStatus(source)
		return
	}

	records := ds.Records
	if records == nil {
		records = []dataset.Record{}
	}
	c.session = Session{
		RawDataset:       records,
		CurrentDataset:   dataset.Filter(records, ""),
		CurrentStateCode: code,
	}
	log.Debug(ctx).Int("records", len(records)).Str("url", ds.SourceURL).Msg("widget: dataset loaded")
	c.search.SetValue("")
	c.search.SetDisabled(len(records) == 0)
	c.setStatus(ds.SourceURL)
	c.renderList()
}

// SearchChanged re-filters the loaded dataset.
func (c *Controller) SearchChanged(term string) {
	if c.phase != PhaseLoaded || len(c.session.RawDataset) == 0 {
		return
	}
	c.applyFilter(term)
}

// SelectRecord opens the detail view for id. Unknown ids are ignored.
func (c *Controller) SelectRecord(id string) {
	if c.phase != PhaseLoaded || c.view != ViewList {
		return
	}
	rec, ok := dataset.Find(c.session.CurrentDataset, id)
	if !ok {
		log.Debug(c.ctx).Str("id", id).Msg("widget: selected record not in current list")
		return
	}
	markup, err := c.renderer.Detail(rec)
	c.show(ViewDetail, markup, err)
}

// Back returns from the detail view to the list, reapplying the search box text.
func (c *Controller) Back() {
	if c.view != ViewDetail {
		return
	}
	c.applyFilter(c.search.Value())
}

func (c *Controller) applyFilter(term string) {
	c.session.Term = term
	c.session.CurrentDataset = dataset.Filter(c.session.RawDataset, term)
	c.renderList()
}

func (c *Controller) renderList() {
	markup, err := c.renderer.List(render.ListView{
		Records:   c.session.CurrentDataset,
		StateCode: c.session.CurrentStateCode,
		Term:      c.session.Term,
		Total:     len(c.session.RawDataset),
	})
	c.show(ViewList, markup, err)
}

func (c *Controller) reset() {
	c.phase = PhaseIdle
	c.session = Session{}
	c.search.SetValue("")
	c.search.SetDisabled(true)
	c.setStatus("")
	markup, err := c.renderer.Prompt()
	c.show(ViewMessage, markup, err)
}

func (c *Controller) show(view View, markup string, err error) {
	c.view = view
	if err != nil {
		log.Error().Err(err).Str("view", string(view)).Msg("widget: render failed")
		c.results.SetText("Unable to display pantry data.")
		return
	}
	c.results.SetHTML(markup)
}

func (c *Controller) setStatus(text string) {
	if c.status != nil {
		c.status.SetText(text)
	}
}
