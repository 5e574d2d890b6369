package dataset

import (
	"regexp"
	"strconv"
	"strings"
)

// FileStem is the fixed part of a derived dataset filename:
//
//	<state>_food_pantries[_<version>].json
const FileStem = "_food_pantries"

var filenamePattern = regexp.MustCompile(`^([a-z]{2})_food_pantries(?:_([0-9A-Za-z][0-9A-Za-z._-]*))?\.json$`)

// Filename derives the conventional dataset filename for a state code.
func Filename(stateCode, version string) string {
	name := strings.ToLower(strings.TrimSpace(stateCode)) + FileStem
	if v := strings.TrimSpace(version); v != "" {
		name += "_" + v
	}
	return name + ".json"
}

// ParseFilename splits a conventional dataset filename into its upper-cased
// state code and version. Names that do not follow the convention report false.
func ParseFilename(name string) (state, version string, ok bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return strings.ToUpper(m[1]), m[2], true
}

// CompareVersions orders dataset versions: numeric segments (split on '.',
// '_' and '-') compare numerically, a numeric segment sorts above a
// non-numeric one, and remaining ties fall back to a lexical comparison. An
// empty version sorts below every other version.
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	as, bs := splitVersion(a), splitVersion(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return strings.Compare(a, b)
}

func splitVersion(v string) []string {
	return strings.FieldsFunc(strings.TrimPrefix(strings.ToLower(v), "v"), func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
}

func compareSegment(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aerr == nil:
		return 1
	case berr == nil:
		return -1
	}
	return strings.Compare(a, b)
}
