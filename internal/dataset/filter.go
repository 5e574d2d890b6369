package dataset

import "strings"

// NormalizeTerm lower-cases and trims a search term.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Matches reports whether rec's name or city contains term. term must already
// be normalized; an empty term matches everything.
func Matches(rec Record, term string) bool {
	if term == "" {
		return true
	}
	if rec.Name != "" && strings.Contains(strings.ToLower(rec.Name), term) {
		return true
	}
	return rec.City != "" && strings.Contains(strings.ToLower(rec.City), term)
}

// Filter returns the records matching term, preserving order. The result never
// aliases records.
func Filter(records []Record, term string) []Record {
	term = NormalizeTerm(term)
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if Matches(rec, term) {
			out = append(out, rec)
		}
	}
	return out
}

// Find returns the first record with the given id.
func Find(records []Record, id string) (Record, bool) {
	for _, rec := range records {
		if rec.ID == id {
			return rec, true
		}
	}
	return Record{}, false
}
