package importer

import "strings"

// ChangeSet - pola do zmiany w istniejącym rekordzie
type ChangeSet map[string]any

// Diff liczy zmiany dla dopasowanego rekordu. Rozważane są tylko dwa pola:
// cena (dodatnia i różna od obecnej; brak obecnej ceny = różna) oraz
// uzupełnienie pustego identyfikatora. Nazwa i pola opisowe nie są nadpisywane.
func Diff(c Candidate, e *Existing, s Schema) ChangeSet {
	cs := ChangeSet{}
	if e == nil {
		return cs
	}

	if s.PriceField != "" && c.Price != nil && *c.Price > 0 {
		if e.Price == nil || *e.Price != *c.Price {
			cs[s.PriceField] = *c.Price
		}
	}

	if c.Identifier != nil {
		if id := strings.TrimSpace(*c.Identifier); id != "" {
			if e.Identifier == nil || strings.TrimSpace(*e.Identifier) == "" {
				cs[s.IDField] = id
			}
		}
	}
	return cs
}

// NewRecord buduje pełny rekord do utworzenia: każde pole schematu ma
// wartość, brakujące dostają zero typu (0, "", false).
func NewRecord(c Candidate, s Schema) map[string]any {
	rec := make(map[string]any, len(s.Columns))
	for _, col := range s.Columns {
		switch col.Type {
		case NumberField:
			rec[col.Key] = 0.0
		case BoolField:
			rec[col.Key] = false
		default:
			rec[col.Key] = ""
		}
	}
	for k, v := range c.Fields {
		rec[k] = v
	}

	rec[NameField] = c.Name
	if c.Identifier != nil {
		rec[s.IDField] = strings.TrimSpace(*c.Identifier)
	}
	if s.PriceField != "" && c.Price != nil {
		rec[s.PriceField] = *c.Price
	}
	if s.UnitField != "" {
		rec[s.UnitField] = c.Unit
	}
	return rec
}
