// Package config reads the configuration payload injected by the page host.
//
// The payload is untrusted: every field is optional and a wrong-typed field is
// ignored rather than rejected, so a partially broken payload still yields a
// usable widget.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultGlobal is the variable name the page host assigns the payload to.
const DefaultGlobal = "foodPantryConfig"

// Label keys understood by the widget.
const (
	LabelChooseState = "chooseState"
	LabelState       = "stateLabel"
	LabelSearch      = "searchLabel"
	LabelNoDatasets  = "noDatasets"
)

var defaultLabels = map[string]string{
	LabelChooseState: "Choose a state",
	LabelState:       "State",
	LabelSearch:      "Search by name or city",
	LabelNoDatasets:  "No datasets available",
}

// ErrInvalidPayload is returned when the payload is not a JSON object.
var ErrInvalidPayload = errors.New("config: payload is not a JSON object")

// Config is the normalized widget configuration. Construct it with Read,
// ReadScript or Normalize; the zero value is valid and disables loading.
type Config struct {
	DatasetsBaseURL string            `json:"datasetsBaseUrl"`
	States          []string          `json:"states"`
	Datasets        map[string]string `json:"datasets,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
	CacheBuster     string            `json:"cacheBuster,omitempty"`
	DatasetVersion  string            `json:"datasetVersion,omitempty"`
}

// Read parses a JSON payload. Only a payload that is not a JSON object is an
// error; the returned Config is normalized either way.
func Read(raw []byte) (Config, error) {
	if !gjson.ValidBytes(raw) {
		return Normalize(Config{}), ErrInvalidPayload
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Normalize(Config{}), ErrInvalidPayload
	}
	cfg := Config{
		DatasetsBaseURL: str(root.Get("datasetsBaseUrl")),
		CacheBuster:     str(root.Get("cacheBuster")),
		DatasetVersion:  str(root.Get("datasetVersion")),
	}
	if states := root.Get("states"); states.IsArray() {
		for _, s := range states.Array() {
			if v := str(s); v != "" {
				cfg.States = append(cfg.States, v)
			}
		}
	}
	if datasets := root.Get("datasets"); datasets.IsObject() {
		cfg.Datasets = make(map[string]string)
		datasets.ForEach(func(key, value gjson.Result) bool {
			if v := str(value); v != "" {
				cfg.Datasets[key.String()] = v
			}
			return true
		})
	}
	if labels := root.Get("labels"); labels.IsObject() {
		cfg.Labels = make(map[string]string)
		labels.ForEach(func(key, value gjson.Result) bool {
			if v := str(value); v != "" {
				cfg.Labels[key.String()] = v
			}
			return true
		})
	}
	return Normalize(cfg), nil
}

// Normalize returns a copy of cfg with trimmed values, upper-cased and sorted
// state codes, and defaults filled in for missing labels.
func Normalize(cfg Config) Config {
	out := Config{
		DatasetsBaseURL: strings.TrimSpace(cfg.DatasetsBaseURL),
		CacheBuster:     strings.TrimSpace(cfg.CacheBuster),
		DatasetVersion:  strings.TrimSpace(cfg.DatasetVersion),
		Datasets:        make(map[string]string, len(cfg.Datasets)),
		Labels:          make(map[string]string, len(defaultLabels)),
	}
	seen := make(map[string]struct{}, len(cfg.States))
	for _, s := range cfg.States {
		code, ok := NormalizeStateCode(s)
		if !ok {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out.States = append(out.States, code)
	}
	sort.Strings(out.States)
	for state, file := range cfg.Datasets {
		code, ok := NormalizeStateCode(state)
		file = strings.TrimSpace(file)
		if !ok || file == "" {
			continue
		}
		out.Datasets[code] = file
	}
	for k, v := range defaultLabels {
		out.Labels[k] = v
	}
	for k, v := range cfg.Labels {
		if v = strings.TrimSpace(v); v != "" {
			out.Labels[k] = v
		}
	}
	return out
}

// Label returns the text for key, or the key itself when unknown.
func (c Config) Label(key string) string {
	if v, ok := c.Labels[key]; ok && v != "" {
		return v
	}
	if v, ok := defaultLabels[key]; ok {
		return v
	}
	return key
}

// HasStates reports whether any dataset state is configured.
func (c Config) HasStates() bool { return len(c.States) > 0 }

// Filename returns the explicit dataset filename configured for state.
func (c Config) Filename(state string) (string, bool) {
	code, ok := NormalizeStateCode(state)
	if !ok {
		return "", false
	}
	f, ok := c.Datasets[code]
	return f, ok
}

// MarshalScript renders cfg as a script assigning it to window.<global>.
func (c Config) MarshalScript(global string) ([]byte, error) {
	if global == "" {
		global = DefaultGlobal
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return []byte("window." + global + " = " + string(payload) + ";\n"), nil
}

// NormalizeStateCode upper-cases a two-letter state code.
func NormalizeStateCode(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 2 {
		return "", false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", false
		}
	}
	return s, true
}

func str(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}
