package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Record is one food-pantry listing. Every value is kept as display text;
// numeric JSON values keep their textual form so that an id of 7 reads "7".
type Record struct {
	ID              string
	Name            string
	Address         string
	City            string
	State           string
	Zip             string
	GeocodedAddress string
	Latitude        string
	Longitude       string
	Hours           string
	Description     string
	Requirements    string
	Phone           string
	Fax             string
	Email           string
	Website         string
	SourceURL       string
	Note            string
	ScrapedAt       string
}

// ParseRecords decodes a dataset body. A body that is not valid JSON is an
// ErrFormat; valid JSON that is not an array yields no records. Array entries
// that are not objects or carry no id are skipped.
func ParseRecords(body []byte) ([]Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrFormat)
	}
	root := gjson.ParseBytes(body)
	records := []Record{}
	if !root.IsArray() {
		return records, nil
	}
	root.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		if rec := DecodeRecord(item); strings.TrimSpace(rec.ID) != "" {
			records = append(records, rec)
		}
		return true
	})
	return records, nil
}

// DecodeRecord reads one record object leniently. Unlike ParseRecords it does
// not require an id. Scraper output names the source page "source_url".
func DecodeRecord(item gjson.Result) Record {
	return Record{
		ID:              text(item.Get("id")),
		Name:            text(item.Get("name")),
		Address:         text(item.Get("address")),
		City:            text(item.Get("city")),
		State:           text(item.Get("state")),
		Zip:             text(item.Get("zip")),
		GeocodedAddress: text(item.Get("geocoded_address")),
		Latitude:        text(item.Get("latitude")),
		Longitude:       text(item.Get("longitude")),
		Hours:           text(item.Get("hours")),
		Description:     text(item.Get("description")),
		Requirements:    text(item.Get("requirements")),
		Phone:           text(item.Get("phone")),
		Fax:             text(item.Get("fax")),
		Email:           text(item.Get("email")),
		Website:         text(item.Get("website")),
		SourceURL:       firstText(item, "url", "source_url"),
		Note:            text(item.Get("note")),
		ScrapedAt:       text(item.Get("scraped_at")),
	}
}

func firstText(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := text(item.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func text(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number, gjson.True, gjson.False:
		return r.Raw
	default:
		return ""
	}
}

// MarshalJSON writes the record in dataset form. Numeric ids and coordinates
// are written as JSON numbers and empty fields are omitted.
func (r Record) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID              any    `json:"id"`
		Name            string `json:"name,omitempty"`
		Address         string `json:"address,omitempty"`
		City            string `json:"city,omitempty"`
		State           string `json:"state,omitempty"`
		Zip             string `json:"zip,omitempty"`
		GeocodedAddress string `json:"geocoded_address,omitempty"`
		Latitude        any    `json:"latitude,omitempty"`
		Longitude       any    `json:"longitude,omitempty"`
		Hours           string `json:"hours,omitempty"`
		Description     string `json:"description,omitempty"`
		Requirements    string `json:"requirements,omitempty"`
		Phone           string `json:"phone,omitempty"`
		Fax             string `json:"fax,omitempty"`
		Email           string `json:"email,omitempty"`
		Website         string `json:"website,omitempty"`
		SourceURL       string `json:"url,omitempty"`
		Note            string `json:"note,omitempty"`
		ScrapedAt       string `json:"scraped_at,omitempty"`
	}
	return json.Marshal(wire{
		ID:              numberOrString(r.ID),
		Name:            r.Name,
		Address:         r.Address,
		City:            r.City,
		State:           r.State,
		Zip:             r.Zip,
		GeocodedAddress: r.GeocodedAddress,
		Latitude:        numberOrNil(r.Latitude),
		Longitude:       numberOrNil(r.Longitude),
		Hours:           r.Hours,
		Description:     r.Description,
		Requirements:    r.Requirements,
		Phone:           r.Phone,
		Fax:             r.Fax,
		Email:           r.Email,
		Website:         r.Website,
		SourceURL:       r.SourceURL,
		Note:            r.Note,
		ScrapedAt:       r.ScrapedAt,
	})
}

// UnmarshalJSON reads a single record with the same leniency as ParseRecords.
func (r *Record) UnmarshalJSON(b []byte) error {
	if !gjson.ValidBytes(b) {
		return fmt.Errorf("%w: record is not valid JSON", ErrFormat)
	}
	item := gjson.ParseBytes(b)
	if !item.IsObject() {
		return fmt.Errorf("%w: record is not an object", ErrFormat)
	}
	*r = DecodeRecord(item)
	return nil
}

func numberOrString(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return n
	}
	return s
}

func numberOrNil(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return s
}
