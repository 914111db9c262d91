package costing

import (
	"strings"

	"github.com/bartek5186/barsync/internal/importer"
)

// Ingredient - baza kosztu: cost_per_unit za jedną jednostkę unit
type Ingredient struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	SKU         string   `json:"sku_number,omitempty"`
	CostPerUnit *float64 `json:"cost_per_unit"`
	Unit        string   `json:"unit"`
}

// FromExisting zamienia rekordy składników z backendu na bazę kosztów.
func FromExisting(existing []importer.Existing) []Ingredient {
	out := make([]Ingredient, 0, len(existing))
	for _, e := range existing {
		ing := Ingredient{ID: e.ID, Name: e.Name, CostPerUnit: e.Price, Unit: e.Unit}
		if e.Identifier != nil {
			ing.SKU = *e.Identifier
		}
		out = append(out, ing)
	}
	return out
}

// Book - indeks składników po id, SKU i nazwie (bez wielkości liter)
type Book struct {
	byRef map[string]*Ingredient
}

func NewBook(ings []Ingredient) *Book {
	b := &Book{byRef: make(map[string]*Ingredient, len(ings)*3)}
	for i := range ings {
		ing := &ings[i]
		for _, ref := range []string{"id:" + ing.ID, ing.SKU, ing.Name} {
			k := refKey(ref)
			if k == "" || k == "id:" {
				continue
			}
			if _, dup := b.byRef[k]; !dup {
				b.byRef[k] = ing
			}
		}
	}
	return b
}

func refKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Find: najpierw id, potem SKU, potem nazwa
func (b *Book) Find(ref string) (*Ingredient, bool) {
	if ing, ok := b.byRef[refKey("id:"+ref)]; ok {
		return ing, true
	}
	ing, ok := b.byRef[refKey(ref)]
	return ing, ok
}

type Line struct {
	Ingredient string  `json:"ingredient"` // id, SKU albo nazwa
	Amount     float64 `json:"amount"`
	Unit       string  `json:"unit"`
}

type Recipe struct {
	Name      string  `json:"name"`
	MenuPrice float64 `json:"menu_price,omitempty"`
	Lines     []Line  `json:"lines"`
}

type LineCost struct {
	Ingredient string  `json:"ingredient"`
	ID         string  `json:"id"`
	Amount     float64 `json:"amount"`
	Unit       string  `json:"unit"`
	Cost       float64 `json:"cost"`
}

// Issue - linia pominięta w wyliczeniu
type Issue struct {
	Line       int    `json:"line"`
	Ingredient string `json:"ingredient"`
	Reason     string `json:"reason"`
}

type RecipeCost struct {
	Name        string     `json:"name"`
	Total       float64    `json:"total"`
	MenuPrice   float64    `json:"menu_price,omitempty"`
	PourCostPct *float64   `json:"pour_cost_pct,omitempty"`
	Lines       []LineCost `json:"lines"`
	Issues      []Issue    `json:"issues,omitempty"`
}

// CostRecipe sumuje koszt linii; linie bez składnika, ceny albo z
// nieprzeliczalną jednostką trafiają do Issues i nie wchodzą do sumy.
func CostRecipe(r Recipe, b *Book) RecipeCost {
	rc := RecipeCost{Name: r.Name, MenuPrice: r.MenuPrice, Lines: []LineCost{}}
	for i, l := range r.Lines {
		issue := func(reason string) {
			rc.Issues = append(rc.Issues, Issue{Line: i + 1, Ingredient: l.Ingredient, Reason: reason})
		}
		ing, ok := b.Find(l.Ingredient)
		if !ok {
			issue("unknown ingredient")
			continue
		}
		if ing.CostPerUnit == nil {
			issue("ingredient has no cost_per_unit")
			continue
		}
		qty, err := Convert(l.Amount, l.Unit, ing.Unit)
		if err != nil {
			issue(err.Error())
			continue
		}
		cost := qty * *ing.CostPerUnit
		rc.Total += cost
		rc.Lines = append(rc.Lines, LineCost{Ingredient: ing.Name, ID: ing.ID, Amount: l.Amount, Unit: l.Unit, Cost: cost})
	}
	if r.MenuPrice > 0 {
		pct := rc.Total / r.MenuPrice * 100
		rc.PourCostPct = &pct
	}
	return rc
}

type MenuCost struct {
	Recipes        []RecipeCost `json:"recipes"`
	Total          float64      `json:"total"`
	AvgPourCostPct *float64     `json:"avg_pour_cost_pct,omitempty"`
}

// CostMenu - średni pour cost tylko z receptur z ceną w menu
func CostMenu(recipes []Recipe, b *Book) MenuCost {
	m := MenuCost{Recipes: make([]RecipeCost, 0, len(recipes))}
	var pctSum float64
	var priced int
	for _, r := range recipes {
		rc := CostRecipe(r, b)
		m.Recipes = append(m.Recipes, rc)
		m.Total += rc.Total
		if rc.PourCostPct != nil {
			pctSum += *rc.PourCostPct
			priced++
		}
	}
	if priced > 0 {
		avg := pctSum / float64(priced)
		m.AvgPourCostPct = &avg
	}
	return m
}
