package naming

import (
	"strings"

	"github.com/signalsfoundry/scenario-resimulator/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TimeLabel is the canonical, client-facing name of the time column.
const TimeLabel = "TIME"

// Canonicalize converts an engine-native variable or column name into its
// client-facing form: quote characters are stripped and spaces become
// underscores. Any spelling of "time" maps to TimeLabel.
func Canonicalize(raw string) string {
	if fold(raw) == "time" {
		return TimeLabel
	}
	s := strings.NewReplacer(`"`, "", `'`, "").Replace(raw)
	return strings.ReplaceAll(s, " ", "_")
}

// lookupKey is the form both directions of the mapping agree on. The same
// function must be used when building and when querying.
func lookupKey(canonical string) string {
	// Casers keep internal state; one per call keeps this safe for
	// concurrent requests.
	return cases.Lower(language.Und).String(canonical)
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// IdentifierMap associates lowercase canonical names with the engine-native
// names they came from.
//
// When two native names share a lowercase canonical form the one added last
// wins; the losers are reported by Collisions. Models should avoid such
// names, the map does not try to disambiguate them.
type IdentifierMap struct {
	byKey      map[string]string
	collisions map[string][]string
}

// NewIdentifierMap builds a map over the given native names.
func NewIdentifierMap(natives []string) *IdentifierMap {
	m := &IdentifierMap{byKey: make(map[string]string, len(natives))}
	for _, n := range natives {
		m.add(n)
	}
	return m
}

func (m *IdentifierMap) add(native string) {
	key := lookupKey(Canonicalize(native))
	if prev, ok := m.byKey[key]; ok && prev != native {
		if m.collisions == nil {
			m.collisions = make(map[string][]string)
		}
		if len(m.collisions[key]) == 0 {
			m.collisions[key] = append(m.collisions[key], prev)
		}
		m.collisions[key] = append(m.collisions[key], native)
	}
	m.byKey[key] = native
}

// Lookup returns the native name whose canonical form matches canonical,
// ignoring case. The query is canonicalized first, so a display spelling
// such as "Stock Level" finds Stock_Level. ok is false when nothing
// matches; partial matches are never returned.
func (m *IdentifierMap) Lookup(canonical string) (native string, ok bool) {
	if m == nil {
		return "", false
	}
	native, ok = m.byKey[lookupKey(Canonicalize(canonical))]
	return native, ok
}

// Collisions lists, per lowercase canonical key, the native names that
// mapped onto it in insertion order. It is empty for well-formed models.
func (m *IdentifierMap) Collisions() map[string][]string {
	if m == nil || len(m.collisions) == 0 {
		return nil
	}
	out := make(map[string][]string, len(m.collisions))
	for k, v := range m.collisions {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Resolve finds the candidate whose canonical form equals canonical,
// case-insensitively. It is shorthand for NewIdentifierMap(candidates).Lookup.
func Resolve(canonical string, candidates []string) (string, bool) {
	return NewIdentifierMap(candidates).Lookup(canonical)
}

// NormalizeTable returns a copy of t with the time column relabelled to
// TimeLabel and every other column passed through Canonicalize.
func NormalizeTable(t *model.ResultTable) *model.ResultTable {
	if t == nil {
		return nil
	}
	return t.RenameColumns(TimeLabel, Canonicalize)
}
