package importer

import (
	"strconv"
	"strings"
	"unicode"
)

// Candidate - znormalizowany wiersz źródła, jeszcze nie dopasowany.
type Candidate struct {
	Row        int            `json:"row"`
	Name       string         `json:"name"`
	RawName    string         `json:"raw_name"`
	Case       CaseStyle      `json:"case"`
	Identifier *string        `json:"identifier,omitempty"`
	Price      *float64       `json:"price,omitempty"`
	Unit       string         `json:"unit,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"` // pola opisowe obecne w źródle: string | float64 | bool
}

// headerKey: małe litery, bez spacji, "_" i "-"
func headerKey(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r == ' ' || r == '_' || r == '-' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HeaderMap - klucz pola logicznego -> indeks kolumny
type HeaderMap map[string]int

// MapHeaders dopasowuje nagłówki do pól schematu; dla każdego pola wygrywa
// pierwszy synonim obecny w nagłówkach.
func MapHeaders(headers []string, s Schema) HeaderMap {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		k := headerKey(h)
		if k == "" {
			continue
		}
		if _, seen := idx[k]; !seen {
			idx[k] = i
		}
	}

	hm := HeaderMap{}
	for _, col := range s.Columns {
		for _, syn := range col.Synonyms {
			if i, ok := idx[headerKey(syn)]; ok {
				hm[col.Key] = i
				break
			}
		}
	}
	return hm
}

// Unmapped zwraca nagłówki, których nie przypisano do żadnego pola.
func (hm HeaderMap) Unmapped(headers []string) []string {
	used := make(map[int]bool, len(hm))
	for _, i := range hm {
		used[i] = true
	}
	var out []string
	for i, h := range headers {
		if !used[i] && strings.TrimSpace(h) != "" {
			out = append(out, h)
		}
	}
	return out
}

type CaseStyle int

const (
	CaseNone CaseStyle = iota // brak liter
	CaseUpper
	CaseLower
	CaseTitle
	CaseMixed
)

func (c CaseStyle) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c CaseStyle) String() string {
	switch c {
	case CaseUpper:
		return "upper"
	case CaseLower:
		return "lower"
	case CaseTitle:
		return "title"
	case CaseMixed:
		return "mixed"
	default:
		return "none"
	}
}

// ClassifyCase: upper/lower gdy wszystkie litery w jednej wielkości, title gdy
// udział tokenów wyglądających na Title Case >= threshold, inaczej mixed.
func ClassifyCase(name string, threshold float64) CaseStyle {
	hasUpper, hasLower := false, false
	for _, r := range name {
		if unicode.IsUpper(r) {
			hasUpper = true
		} else if unicode.IsLower(r) {
			hasLower = true
		}
	}
	switch {
	case !hasUpper && !hasLower:
		return CaseNone
	case hasUpper && !hasLower:
		return CaseUpper
	case hasLower && !hasUpper:
		return CaseLower
	}

	tokens, titled := 0, 0
	for _, tok := range strings.FieldsFunc(name, tokenSep) {
		letters := []rune{}
		for _, r := range tok {
			if unicode.IsLetter(r) {
				letters = append(letters, r)
			}
		}
		if len(letters) == 0 {
			continue
		}
		tokens++
		if isTitleToken(letters) {
			titled++
		}
	}
	if tokens > 0 && float64(titled)/float64(tokens) >= threshold {
		return CaseTitle
	}
	return CaseMixed
}

// tokeny rozdzielane białymi znakami i "-", tak samo jak w TitleCase
func tokenSep(r rune) bool { return unicode.IsSpace(r) || r == '-' }

func isTitleToken(letters []rune) bool {
	if !unicode.IsUpper(letters[0]) {
		return false
	}
	for _, r := range letters[1:] {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// TitleCase: pierwsza litera każdego tokenu (rozdzielanego spacją lub "-") wielka, reszta mała.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := true
	for _, r := range s {
		switch {
		case tokenSep(r):
			start = true
			b.WriteRune(r)
		case start && unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
			start = false
		case start:
			b.WriteRune(r)
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// NormalizeName zwija białe znaki i poprawia wielkość liter tylko dla nazw
// w całości wielkimi albo w całości małymi literami.
func NormalizeName(name string, threshold float64) (string, CaseStyle) {
	name = strings.Join(strings.Fields(name), " ")
	style := ClassifyCase(name, threshold)
	if style == CaseUpper || style == CaseLower {
		return TitleCase(name), style
	}
	return name, style
}

// ParseNumber zostawia tylko cyfry, "." i "-"; błąd parsowania = brak wartości (nil), nigdy 0.
func ParseNumber(s string) *float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return nil
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil
	}
	return &v
}

// amount: cena i pola liczbowe wiersza; wartość ujemna = brak wartości
func amount(s string) *float64 {
	f := ParseNumber(s)
	if f == nil || *f < 0 {
		return nil
	}
	return f
}

func ParseBool(s string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "x", "t":
		v = true
	case "false", "no", "n", "0", "f":
		v = false
	default:
		return nil
	}
	return &v
}

// Normalizer zamienia surowe wiersze na kandydatów wg schematu.
type Normalizer struct {
	Schema             Schema
	TitleCaseThreshold float64
}

// Row normalizuje wiersz tabelaryczny. ok=false gdy wiersz nie ma nazwy.
func (n Normalizer) Row(rowNum int, cells []string, hm HeaderMap) (Candidate, bool) {
	raw := make(map[string]string, len(hm))
	for key, i := range hm {
		if i < len(cells) {
			raw[key] = cells[i]
		}
	}
	return n.build(rowNum, func(key string) (string, bool) {
		v, ok := raw[key]
		return v, ok && strings.TrimSpace(v) != ""
	})
}

// Values normalizuje obiekt z ekstrakcji (wartości JSON: string, liczba, bool).
func (n Normalizer) Values(rowNum int, values map[string]any) (Candidate, bool) {
	return n.build(rowNum, func(key string) (string, bool) {
		v, ok := values[key]
		if !ok || v == nil {
			return "", false
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			return "", false
		}
		return s, strings.TrimSpace(s) != ""
	})
}

func (n Normalizer) build(rowNum int, get func(key string) (string, bool)) (Candidate, bool) {
	s := n.Schema
	rawName, ok := get(NameField)
	if !ok {
		return Candidate{}, false
	}
	name, style := NormalizeName(rawName, n.threshold())
	if name == "" {
		return Candidate{}, false
	}

	c := Candidate{
		Row:     rowNum,
		Name:    name,
		RawName: rawName,
		Case:    style,
		Unit:    s.DefaultUnit,
		Fields:  map[string]any{},
	}
	if v, ok := get(s.IDField); ok {
		id := strings.TrimSpace(v)
		c.Identifier = &id
	}
	if s.PriceField != "" {
		if v, ok := get(s.PriceField); ok {
			c.Price = amount(v)
		}
	}
	if s.UnitField != "" {
		if v, ok := get(s.UnitField); ok {
			c.Unit = strings.TrimSpace(v)
		}
	}

	for _, col := range s.Columns {
		if s.core(col.Key) {
			continue
		}
		v, ok := get(col.Key)
		if !ok {
			continue
		}
		switch col.Type {
		case NumberField:
			if f := amount(v); f != nil {
				c.Fields[col.Key] = *f
			}
		case BoolField:
			if b := ParseBool(v); b != nil {
				c.Fields[col.Key] = *b
			}
		default:
			c.Fields[col.Key] = strings.TrimSpace(v)
		}
	}
	return c, true
}

func (n Normalizer) threshold() float64 {
	if n.TitleCaseThreshold <= 0 || n.TitleCaseThreshold > 1 {
		return 0.5
	}
	return n.TitleCaseThreshold
}
