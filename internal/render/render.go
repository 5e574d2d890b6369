// Package render produces the widget's HTML fragments. All record text is
// escaped by html/template; only formatter output built from escaped parts is
// inserted verbatim.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"foodpantry/internal/config"
	"foodpantry/internal/dataset"
	"foodpantry/internal/format"
)

// Renderer renders widget fragments.
type Renderer struct {
	tmpl *template.Template
	loc  *time.Location
}

// New parses the fragment templates. loc controls how scrape timestamps are
// displayed; nil means the local zone.
func New(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	t := template.New("render")
	for _, src := range []string{tmplStateOptions, tmplMessage, tmplError, tmplList, tmplDetail} {
		t = template.Must(t.Parse(src))
	}
	return &Renderer{tmpl: t, loc: loc}
}

// ListView is the input for List.
type ListView struct {
	Records   []dataset.Record
	StateCode string
	Term      string
	Total     int
}

type listItem struct {
	ID       string
	Name     string
	Location string
}

type detailRow struct {
	Key   string
	Label string
	Value template.HTML
}

type detailSection struct {
	Key   string
	Title string
	Rows  []detailRow
}

// StateOptions renders the <option> list for the state selector.
func (r *Renderer) StateOptions(cfg config.Config) (string, error) {
	return r.execute("state-options", map[string]any{
		"States":      cfg.States,
		"Placeholder": cfg.Label(config.LabelChooseState),
		"Empty":       cfg.Label(config.LabelNoDatasets),
	})
}

// Prompt renders the idle message shown before a state is chosen.
func (r *Renderer) Prompt() (string, error) {
	return r.message("prompt", "", "Select a state to view food pantries.")
}

// Loading renders the loading indicator.
func (r *Renderer) Loading(stateCode string) (string, error) {
	return r.message("loading", "status", fmt.Sprintf("Loading food pantries for %s…", strings.ToUpper(stateCode)))
}

// Error renders a load failure panel.
func (r *Renderer) Error(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		message = "Dataset failed to load."
	}
	return r.execute("error", message)
}

// List renders the filtered record list or the matching empty state.
func (r *Renderer) List(v ListView) (string, error) {
	state := strings.ToUpper(v.StateCode)
	if v.Total == 0 {
		return r.message("empty", "status", fmt.Sprintf("No food pantry records are available for %s.", state))
	}
	if len(v.Records) == 0 {
		return r.message("no-matches", "status", fmt.Sprintf("No food pantries in %s match %q.", state, strings.TrimSpace(v.Term)))
	}
	items := make([]listItem, 0, len(v.Records))
	for _, rec := range v.Records {
		items = append(items, listItem{ID: rec.ID, Name: format.Name(rec), Location: format.Location(rec)})
	}
	return r.execute("list", map[string]any{
		"StateCode": state,
		"Shown":     len(v.Records),
		"Total":     v.Total,
		"Items":     items,
	})
}

// Detail renders one record. Rows without a value are omitted, as are
// sections left with no rows.
func (r *Renderer) Detail(rec dataset.Record) (string, error) {
	location := detailSection{Key: "location", Title: "Location"}
	location.add("address", "Address", text(rec.Address))
	if present(rec.City, rec.State, rec.Zip) {
		location.add("city-state-zip", "City/State/ZIP", template.HTML(template.HTMLEscapeString(format.CityStateZip(rec))))
	}
	location.add("geocoded-address", "Geocoded Address", text(rec.GeocodedAddress))
	if present(rec.Latitude, rec.Longitude) {
		location.add("coordinates", "Coordinates", template.HTML(format.Coordinates(rec.Latitude, rec.Longitude)))
	}
	location.add("note", "Note", text(rec.Note))

	operation := detailSection{Key: "operation", Title: "Operation"}
	operation.add("hours", "Hours", format.MultiLine(rec.Hours))
	operation.add("description", "Description", format.MultiLine(rec.Description))
	requirements := format.MultiLine(rec.Requirements)
	if requirements == "" {
		requirements = format.NoneListed
	}
	operation.add("requirements", "Requirements", requirements)

	contact := detailSection{Key: "contact", Title: "Contact"}
	if present(rec.Phone) {
		contact.add("phone", "Phone", format.PhoneLink(rec.Phone))
	}
	if present(rec.Fax) {
		contact.add("fax", "Fax", text(rec.Fax))
	}
	if present(rec.Email) {
		contact.add("email", "Email", format.EmailLink(rec.Email))
	}
	if present(rec.Website) {
		contact.add("website", "Website", format.WebsiteLink(rec.Website))
	}
	if present(rec.SourceURL) {
		contact.add("source", "Listing", format.WebsiteLink(rec.SourceURL))
	}

	var sections []detailSection
	for _, s := range []detailSection{location, operation, contact} {
		if len(s.Rows) > 0 {
			sections = append(sections, s)
		}
	}
	return r.execute("detail", map[string]any{
		"ID":        rec.ID,
		"Title":     format.Name(rec),
		"Sections":  sections,
		"ScrapedAt": format.ScrapedAt(rec.ScrapedAt, r.loc),
	})
}

func (s *detailSection) add(key, label string, value template.HTML) {
	if strings.TrimSpace(string(value)) == "" {
		return
	}
	s.Rows = append(s.Rows, detailRow{Key: key, Label: label, Value: value})
}

func (r *Renderer) message(kind, role, text string) (string, error) {
	return r.execute("message", map[string]string{"Kind": kind, "Role": role, "Text": text})
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func text(s string) template.HTML {
	return template.HTML(template.HTMLEscapeString(strings.TrimSpace(s)))
}

func present(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
