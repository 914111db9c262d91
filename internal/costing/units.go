package costing

import (
	"fmt"
	"strconv"
	"strings"
)

type Dimension int

const (
	Volume Dimension = iota + 1
	Count
)

// Unit - jednostka sprowadzona do bazowej (ml albo sztuki)
type Unit struct {
	Dim    Dimension
	Factor float64 // ile jednostek bazowych
}

var baseUnits = map[string]Unit{
	"ml":       {Volume, 1},
	"cl":       {Volume, 10},
	"l":        {Volume, 1000},
	"oz":       {Volume, 29.5735},
	"dash":     {Volume, 0.92},
	"barspoon": {Volume, 5},
	"tsp":      {Volume, 4.92892},
	"tbsp":     {Volume, 14.7868},
	"each":     {Count, 1},
}

var aliases = map[string]string{
	"milliliter": "ml", "millilitre": "ml", "mls": "ml",
	"centiliter": "cl", "centilitre": "cl",
	"liter": "l", "litre": "l", "ltr": "l",
	"ounce": "oz", "floz": "oz", "fl.oz": "oz", "fl oz": "oz",
	"dashes": "dash",
	"bsp": "barspoon", "barspoons": "barspoon", "bar spoon": "barspoon",
	"teaspoon": "tsp", "tablespoon": "tbsp",
	"ea": "each", "pc": "each", "pcs": "each", "unit": "each", "bottle": "each", "can": "each",
}

// ParseUnit rozumie też rozmiary z liczbą, np. "750ml" albo "1.75 L".
func ParseUnit(s string) (Unit, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return Unit{}, fmt.Errorf("empty unit")
	}

	i := 0
	for i < len(key) && (key[i] >= '0' && key[i] <= '9' || key[i] == '.') {
		i++
	}
	qty := 1.0
	if i > 0 {
		q, err := strconv.ParseFloat(key[:i], 64)
		if err != nil || q <= 0 {
			return Unit{}, fmt.Errorf("bad unit size %q", s)
		}
		qty = q
		key = strings.TrimSpace(key[i:])
	}

	u, ok := lookup(key)
	if !ok {
		return Unit{}, fmt.Errorf("unknown unit %q", s)
	}
	u.Factor *= qty
	return u, nil
}

func lookup(key string) (Unit, bool) {
	if u, ok := baseUnits[key]; ok {
		return u, true
	}
	if a, ok := aliases[key]; ok {
		return baseUnits[a], true
	}
	// liczba mnoga: "ounces", "liters"
	if k := strings.TrimSuffix(key, "s"); k != key {
		return lookup(k)
	}
	return Unit{}, false
}

// Convert przelicza ilość między jednostkami tego samego wymiaru.
func Convert(amount float64, from, to string) (float64, error) {
	f, err := ParseUnit(from)
	if err != nil {
		return 0, err
	}
	t, err := ParseUnit(to)
	if err != nil {
		return 0, err
	}
	if f.Dim != t.Dim {
		return 0, fmt.Errorf("cannot convert %s to %s", from, to)
	}
	return amount * f.Factor / t.Factor, nil
}
