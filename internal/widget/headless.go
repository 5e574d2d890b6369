package widget

import "sync"

// HeadlessElement is an in-memory Element. It keeps whatever was last
// written, markup or text.
type HeadlessElement struct {
	mu       sync.Mutex
	html     string
	text     string
	value    string
	disabled bool
}

func (e *HeadlessElement) SetHTML(markup string) {
	e.mu.Lock()
	e.html, e.text = markup, ""
	e.mu.Unlock()
}

func (e *HeadlessElement) SetText(text string) {
	e.mu.Lock()
	e.text, e.html = text, ""
	e.mu.Unlock()
}

func (e *HeadlessElement) SetDisabled(disabled bool) {
	e.mu.Lock()
	e.disabled = disabled
	e.mu.Unlock()
}

func (e *HeadlessElement) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *HeadlessElement) SetValue(value string) {
	e.mu.Lock()
	e.value = value
	e.mu.Unlock()
}

// HTML returns the last markup written, or "" if text was written since.
func (e *HeadlessElement) HTML() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.html
}

// Text returns the last text written.
func (e *HeadlessElement) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// Disabled reports the disabled flag.
func (e *HeadlessElement) Disabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabled
}

// HeadlessDocument holds every element the widget binds to, plus labels for
// the selector and search box. It backs the command-line browser.
type HeadlessDocument struct {
	elements map[string]*HeadlessElement
	labels   map[string]*HeadlessElement
}

// NewHeadlessDocument returns a document with all widget elements present.
func NewHeadlessDocument() *HeadlessDocument {
	d := &HeadlessDocument{
		elements: make(map[string]*HeadlessElement),
		labels:   make(map[string]*HeadlessElement),
	}
	for _, id := range []string{StateSelectID, SearchInputID, ResultsID, StatusID} {
		d.elements[id] = &HeadlessElement{}
	}
	d.labels[StateSelectID] = &HeadlessElement{}
	d.labels[SearchInputID] = &HeadlessElement{}
	return d
}

func (d *HeadlessDocument) Element(id string) (Element, bool) {
	el, ok := d.elements[id]
	if !ok {
		return nil, false
	}
	return el, true
}

func (d *HeadlessDocument) LabelFor(id string) (Element, bool) {
	el, ok := d.labels[id]
	if !ok {
		return nil, false
	}
	return el, true
}

// Get returns the element with id, or nil.
func (d *HeadlessDocument) Get(id string) *HeadlessElement { return d.elements[id] }

// Label returns the label for id, or nil.
func (d *HeadlessDocument) Label(id string) *HeadlessElement { return d.labels[id] }
