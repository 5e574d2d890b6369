// Package format turns raw record fields into display strings. Every function
// tolerates missing or malformed input and falls back to placeholder text.
package format

import (
	"html"
	"html/template"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"foodpantry/internal/dataset"
)

// Placeholder texts.
const (
	LocationUnavailable = "Location unavailable"
	NotAvailable        = "Not available"
	NA                  = "N/A"
	UnnamedPantry       = "Unnamed Pantry"
	NoneListed          = "None listed"
	ScrapedAtPrefix     = "Scraped At: "
)

// scrapedAtLayout mirrors an en-US locale date-time rendering.
const scrapedAtLayout = "1/2/2006, 3:04:05 PM"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Name returns the record name or the unnamed fallback.
func Name(rec dataset.Record) string {
	if n := strings.TrimSpace(rec.Name); n != "" {
		return n
	}
	return UnnamedPantry
}

// Location renders "City, ST", whichever part is present, or a placeholder.
func Location(rec dataset.Record) string {
	city, state := strings.TrimSpace(rec.City), strings.TrimSpace(rec.State)
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	case state != "":
		return state
	}
	return LocationUnavailable
}

// CityStateZip renders "City, ST 12345" from the present components.
func CityStateZip(rec dataset.Record) string {
	var parts []string
	for _, p := range []string{rec.City, rec.State} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	line := strings.Join(parts, ", ")
	if zip := strings.TrimSpace(rec.Zip); zip != "" {
		if line != "" {
			line += " "
		}
		line += zip
	}
	if line == "" {
		return NotAvailable
	}
	return line
}

// Coordinates renders "<lat>, <lon>" when both values are numeric.
func Coordinates(lat, lon string) string {
	la, ok1 := parseNumber(lat)
	lo, ok2 := parseNumber(lon)
	if !ok1 || !ok2 {
		return NA
	}
	return strconv.FormatFloat(la, 'f', -1, 64) + ", " + strconv.FormatFloat(lo, 'f', -1, 64)
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	// Decimal notation only; ParseFloat also takes hex floats.
	if s == "" || strings.ContainsAny(s, "xX") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseTimestamp parses the ISO-like timestamps written by the scraper.
// Values without a zone are interpreted in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ScrapedAt renders the scrape timestamp in loc.
func ScrapedAt(value string, loc *time.Location) string {
	t, ok := ParseTimestamp(value, loc)
	if !ok {
		return ScrapedAtPrefix + NotAvailable
	}
	if loc == nil {
		loc = time.Local
	}
	return ScrapedAtPrefix + t.In(loc).Format(scrapedAtLayout)
}

// PhoneLink renders a tel: link whose target keeps only the digits.
func PhoneLink(phone string) template.HTML {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return NA
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return template.HTML(`<a href="tel:` + digits + `">` + html.EscapeString(phone) + `</a>`)
}

// EmailLink renders a mailto: link.
func EmailLink(email string) template.HTML {
	email = strings.TrimSpace(email)
	if email == "" {
		return NA
	}
	return template.HTML(`<a href="mailto:` + html.EscapeString(email) + `">` + html.EscapeString(email) + `</a>`)
}

// WebsiteLink renders an external link opening in a new tab. Scheme-less
// hosts are linked over https; any other scheme is shown as plain text.
func WebsiteLink(website string) template.HTML {
	website = strings.TrimSpace(website)
	if website == "" {
		return NA
	}
	href, ok := externalURL(website)
	if !ok {
		return template.HTML(html.EscapeString(website))
	}
	return template.HTML(`<a href="` + html.EscapeString(href) + `" target="_blank" rel="noopener noreferrer">` +
		html.EscapeString(website) + `</a>`)
}

func externalURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), u.Host != ""
	case "":
		if strings.ContainsAny(raw, " <>\"'") {
			return "", false
		}
		u, err = url.Parse("https://" + strings.TrimPrefix(raw, "//"))
		if err != nil || u.Host == "" {
			return "", false
		}
		return u.String(), true
	}
	return "", false
}

// MultiLine escapes text and preserves its line breaks.
func MultiLine(text string) template.HTML {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}
	return template.HTML(strings.Join(lines, "<br>"))
}
