package importer

// PlannedUpdate - aktualizacja po potwierdzeniu: tylko pola z ChangeSet
type PlannedUpdate struct {
	Row     int       `json:"row"`
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Changes ChangeSet `json:"changes"`
}

// Plan - ostateczna lista operacji zapisu
type Plan struct {
	Entity  string           `json:"entity"`
	Creates []map[string]any `json:"creates"`
	Updates []PlannedUpdate  `json:"updates"`
	Skipped []int            `json:"skipped,omitempty"`
}

func (p Plan) Empty() bool { return len(p.Creates) == 0 && len(p.Updates) == 0 }

// BuildPlan zamienia wyniki uzgodnienia na operacje; wiersze z skip są pomijane.
// Rekordy bez zmian nie trafiają do planu.
func BuildPlan(results []RowResult, s Schema, skip []int) Plan {
	skipped := make(map[int]bool, len(skip))
	for _, r := range skip {
		skipped[r] = true
	}

	p := Plan{Entity: s.Entity, Creates: []map[string]any{}, Updates: []PlannedUpdate{}}
	for _, r := range results {
		if skipped[r.Candidate.Row] {
			p.Skipped = append(p.Skipped, r.Candidate.Row)
			continue
		}
		switch r.Status {
		case StatusNew:
			p.Creates = append(p.Creates, NewRecord(r.Candidate, s))
		case StatusUpdated:
			p.Updates = append(p.Updates, PlannedUpdate{
				Row:     r.Candidate.Row,
				ID:      r.Match.ID,
				Name:    r.Candidate.Name,
				Changes: r.Changes,
			})
		}
	}
	return p
}
