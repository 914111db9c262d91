package importer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bartek5186/barsync/internal/backend"
)

// Existing - rekord backendu zrzutowany na pola potrzebne do uzgadniania.
type Existing struct {
	ID         string
	Name       string
	Identifier *string
	Price      *float64
	Unit       string
	Data       map[string]any
}

// Project rzutuje rekordy backendu wg schematu (kolejność zachowana).
func Project(recs []backend.Record, s Schema) []Existing {
	out := make([]Existing, 0, len(recs))
	for _, r := range recs {
		e := Existing{ID: r.ID, Data: r.Data}
		e.Name, _ = asString(r.Data[NameField])
		if id, ok := asString(r.Data[s.IDField]); ok {
			e.Identifier = &id
		}
		if s.PriceField != "" {
			e.Price = asFloat(r.Data[s.PriceField])
		}
		if s.UnitField != "" {
			e.Unit, _ = asString(r.Data[s.UnitField])
		}
		out = append(out, e)
	}
	return out
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

func asFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	case string:
		return ParseNumber(t)
	}
	return nil
}

func idKey(s string) string { return strings.TrimSpace(s) }

func nameUnitKey(name, unit string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(unit))
}

// Match - referencyjne dopasowanie liniowe: najpierw identyfikator
// (dokładny po przycięciu), potem nazwa+jednostka bez względu na wielkość
// liter; pierwszy trafiony rekord wygrywa.
func Match(c Candidate, existing []Existing) *Existing {
	if c.Identifier != nil {
		if id := idKey(*c.Identifier); id != "" {
			for i := range existing {
				e := &existing[i]
				if e.Identifier != nil && idKey(*e.Identifier) == id {
					return e
				}
			}
		}
	}
	key := nameUnitKey(c.Name, c.Unit)
	for i := range existing {
		if nameUnitKey(existing[i].Name, existing[i].Unit) == key {
			return &existing[i]
		}
	}
	return nil
}

// Matcher - to samo co Match, ale z indeksami budowanymi raz na import.
type Matcher struct {
	existing   []Existing
	byID       map[string]int
	byNameUnit map[string]int
}

func NewMatcher(existing []Existing) *Matcher {
	m := &Matcher{
		existing:   existing,
		byID:       make(map[string]int, len(existing)),
		byNameUnit: make(map[string]int, len(existing)),
	}
	for i, e := range existing {
		if e.Identifier != nil {
			if id := idKey(*e.Identifier); id != "" {
				if _, dup := m.byID[id]; !dup {
					m.byID[id] = i
				}
			}
		}
		k := nameUnitKey(e.Name, e.Unit)
		if _, dup := m.byNameUnit[k]; !dup {
			m.byNameUnit[k] = i
		}
	}
	return m
}

func (m *Matcher) Match(c Candidate) *Existing {
	if c.Identifier != nil {
		if i, ok := m.byID[idKey(*c.Identifier)]; ok {
			return &m.existing[i]
		}
	}
	if i, ok := m.byNameUnit[nameUnitKey(c.Name, c.Unit)]; ok {
		return &m.existing[i]
	}
	return nil
}
