package importer

import (
	"strings"
	"time"
)

type Status string

const (
	StatusNew       Status = "new"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
)

// RowResult - wynik uzgodnienia jednego kandydata
type RowResult struct {
	Candidate Candidate `json:"candidate"`
	Match     *Existing `json:"match,omitempty"`
	Changes   ChangeSet `json:"changes,omitempty"`
	Status    Status    `json:"status"`
}

// Reconcile dopasowuje i porównuje każdego kandydata niezależnie.
func Reconcile(cands []Candidate, existing []Existing, s Schema) []RowResult {
	m := NewMatcher(existing)
	out := make([]RowResult, 0, len(cands))
	for _, c := range cands {
		r := RowResult{Candidate: c, Match: m.Match(c)}
		switch {
		case r.Match == nil:
			r.Status = StatusNew
		default:
			r.Changes = Diff(c, r.Match, s)
			if len(r.Changes) > 0 {
				r.Status = StatusUpdated
			} else {
				r.Status = StatusUnchanged
			}
		}
		out = append(out, r)
	}
	return out
}

type PriceChange struct {
	Row      int      `json:"row"`
	RecordID string   `json:"record_id"`
	Name     string   `json:"name"`
	Old      *float64 `json:"old"`
	New      float64  `json:"new"`
}

type DuplicateID struct {
	Identifier string   `json:"identifier"`
	Names      []string `json:"names"`
}

type Summary struct {
	Total                int           `json:"total"`
	New                  int           `json:"new"`
	Updated              int           `json:"updated"`
	Unchanged            int           `json:"unchanged"`
	PriceChanges         []PriceChange `json:"price_changes"`
	DuplicateIDs         []DuplicateID `json:"duplicate_ids"`
	ExistingDuplicateIDs []DuplicateID `json:"existing_duplicate_ids"`
	Recased              int           `json:"recased"`
	AmbiguousCase        []string      `json:"ambiguous_case,omitempty"`
	PreviouslyImportedAt *time.Time    `json:"previously_imported_at,omitempty"`
}

// DisplayLimit - ile zmian cen pokazujemy w podglądzie; pełna lista zostaje w Summary.
const DisplayLimit = 50

// Summarize liczy podsumowanie audytowe dla podglądu.
func Summarize(results []RowResult, existing []Existing, s Schema) Summary {
	sum := Summary{
		Total:                len(results),
		PriceChanges:         []PriceChange{},
		DuplicateIDs:         []DuplicateID{},
		ExistingDuplicateIDs: []DuplicateID{},
	}

	imported := newDupIndex()
	for _, r := range results {
		switch r.Status {
		case StatusNew:
			sum.New++
		case StatusUpdated:
			sum.Updated++
		case StatusUnchanged:
			sum.Unchanged++
		}

		if s.PriceField != "" && r.Match != nil {
			if v, ok := r.Changes[s.PriceField]; ok {
				sum.PriceChanges = append(sum.PriceChanges, PriceChange{
					Row:      r.Candidate.Row,
					RecordID: r.Match.ID,
					Name:     r.Candidate.Name,
					Old:      r.Match.Price,
					New:      v.(float64),
				})
			}
		}

		switch r.Candidate.Case {
		case CaseUpper, CaseLower:
			sum.Recased++
		case CaseMixed:
			sum.AmbiguousCase = append(sum.AmbiguousCase, r.Candidate.Name)
		}

		if r.Candidate.Identifier != nil {
			imported.add(*r.Candidate.Identifier, r.Candidate.Name)
		}
	}
	sum.DuplicateIDs = imported.duplicates()

	current := newDupIndex()
	for _, e := range existing {
		if e.Identifier != nil {
			current.add(*e.Identifier, e.Name)
		}
	}
	sum.ExistingDuplicateIDs = current.duplicates()
	return sum
}

// TopPriceChanges - początek listy zmian cen do wyświetlenia
func (s Summary) TopPriceChanges(limit int) []PriceChange {
	if limit <= 0 || limit >= len(s.PriceChanges) {
		return s.PriceChanges
	}
	return s.PriceChanges[:limit]
}

// dupIndex grupuje nazwy po przyciętym identyfikatorze z zachowaniem kolejności.
type dupIndex struct {
	order []string
	names map[string][]string
}

func newDupIndex() *dupIndex {
	return &dupIndex{names: map[string][]string{}}
}

func (d *dupIndex) add(id, name string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if _, ok := d.names[id]; !ok {
		d.order = append(d.order, id)
	}
	d.names[id] = append(d.names[id], name)
}

func (d *dupIndex) duplicates() []DuplicateID {
	out := []DuplicateID{}
	for _, id := range d.order {
		if n := d.names[id]; len(n) > 1 {
			out = append(out, DuplicateID{Identifier: id, Names: n})
		}
	}
	return out
}
