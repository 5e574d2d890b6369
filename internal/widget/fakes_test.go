package widget

import (
	"context"
	"strings"
	"sync"

	"foodpantry/internal/dataset"
)

type fakeElement struct {
	html     string
	text     string
	value    string
	disabled bool
}

func (e *fakeElement) SetHTML(markup string)     { e.html, e.text = markup, "" }
func (e *fakeElement) SetText(text string)       { e.text, e.html = text, "" }
func (e *fakeElement) SetDisabled(disabled bool) { e.disabled = disabled }
func (e *fakeElement) Value() string             { return e.value }
func (e *fakeElement) SetValue(value string)     { e.value = value }

type fakeDocument struct {
	elements map[string]*fakeElement
	labels   map[string]*fakeElement
}

func newFakeDocument() *fakeDocument {
	return &fakeDocument{
		elements: map[string]*fakeElement{
			StateSelectID: {},
			SearchInputID: {},
			ResultsID:     {},
			StatusID:      {},
		},
		labels: map[string]*fakeElement{
			StateSelectID: {},
			SearchInputID: {},
		},
	}
}

func (d *fakeDocument) Element(id string) (Element, bool) {
	el, ok := d.elements[id]
	if !ok {
		return nil, false
	}
	return el, true
}

func (d *fakeDocument) LabelFor(id string) (Element, bool) {
	el, ok := d.labels[id]
	if !ok {
		return nil, false
	}
	return el, true
}

func (d *fakeDocument) el(id string) *fakeElement { return d.elements[id] }

// manualScheduler queues posted functions until Flush.
type manualScheduler struct {
	mu    sync.Mutex
	queue []func()
	ready chan struct{}
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{ready: make(chan struct{}, 64)}
}

func (s *manualScheduler) Post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	s.ready <- struct{}{}
}

// Await blocks until n functions have been posted, then runs everything queued.
func (s *manualScheduler) Await(n int) {
	for i := 0; i < n; i++ {
		<-s.ready
	}
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, fn := range queue {
		fn()
	}
}

type loadResult struct {
	ds  dataset.Dataset
	err error
}

// gatedLoader blocks each Load until the test releases a result for that state.
type gatedLoader struct {
	mu    sync.Mutex
	gates map[string]chan loadResult
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{gates: map[string]chan loadResult{}}
}

func (l *gatedLoader) gate(code string) chan loadResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	code = strings.ToUpper(code)
	if _, ok := l.gates[code]; !ok {
		l.gates[code] = make(chan loadResult, 1)
	}
	return l.gates[code]
}

func (l *gatedLoader) release(code string, ds dataset.Dataset, err error) {
	l.gate(code) <- loadResult{ds, err}
}

func (l *gatedLoader) ResolveURL(code string) (string, error) {
	return "https://example.org/" + strings.ToLower(code) + "_food_pantries.json", nil
}

func (l *gatedLoader) Load(ctx context.Context, code string) (dataset.Dataset, error) {
	select {
	case res := <-l.gate(code):
		return res.ds, res.err
	case <-ctx.Done():
		return dataset.Dataset{}, ctx.Err()
	}
}
