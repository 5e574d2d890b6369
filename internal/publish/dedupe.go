package publish

import (
	"strings"
	"unicode"

	"foodpantry/internal/dataset"
	"foodpantry/internal/ledger"
)

// Fingerprint identifies listings that describe the same pantry: normalized
// name, address, phone digits and zip.
func Fingerprint(r dataset.Record) string {
	phone := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, r.Phone)
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(r.Name)),
		strings.ToLower(strings.TrimSpace(r.Address)),
		phone,
		strings.TrimSpace(r.Zip),
	}, "|")
}

// Merge combines two listings of the same pantry. For every field the longer
// non-empty value wins; a tie keeps a's value. The id is never merged from b
// when a already has one.
func Merge(a, b dataset.Record) dataset.Record {
	out := a
	af, bf := fields(&out), fields(&b)
	for i := range af {
		av, bv := strings.TrimSpace(*af[i]), strings.TrimSpace(*bf[i])
		switch {
		case av == "":
			*af[i] = *bf[i]
		case bv != "" && len(bv) > len(av) && af[i] != &out.ID:
			*af[i] = *bf[i]
		}
	}
	return out
}

func fields(r *dataset.Record) []*string {
	return []*string{
		&r.ID, &r.Name, &r.Address, &r.City, &r.State, &r.Zip, &r.GeocodedAddress,
		&r.Latitude, &r.Longitude, &r.Hours, &r.Description, &r.Requirements,
		&r.Phone, &r.Fax, &r.Email, &r.Website, &r.SourceURL, &r.Note, &r.ScrapedAt,
	}
}

// Dedupe merges records sharing a fingerprint, keeping first-seen order. It
// reports how many input records were folded into an earlier one.
func Dedupe(records []dataset.Record) ([]dataset.Record, int) {
	index := make(map[string]int, len(records))
	out := make([]dataset.Record, 0, len(records))
	merged := 0
	for _, rec := range records {
		fp := Fingerprint(rec)
		if i, ok := index[fp]; ok {
			out[i] = Merge(out[i], rec)
			merged++
			continue
		}
		index[fp] = len(out)
		out = append(out, rec)
	}
	return out, merged
}

// ComputeStats counts contact coverage.
func ComputeStats(records []dataset.Record) ledger.Stats {
	st := ledger.Stats{Total: len(records)}
	for _, r := range records {
		if present(r.Website) {
			st.WithWebsite++
		}
		if present(r.Phone) {
			st.WithPhone++
		}
		if present(r.Email) {
			st.WithEmail++
		}
		if present(r.Hours) {
			st.WithHours++
		}
	}
	return st
}

func present(s string) bool { return strings.TrimSpace(s) != "" }
