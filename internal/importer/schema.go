package importer

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindIngredient Kind = "ingredient"
	KindAccount    Kind = "account"
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ingredient", "ingredients":
		return KindIngredient, nil
	case "account", "accounts":
		return KindAccount, nil
	}
	return "", fmt.Errorf("unknown import kind %q (ingredient | account)", s)
}

type FieldType int

const (
	TextField FieldType = iota
	NumberField
	BoolField
)

func (t FieldType) String() string {
	switch t {
	case NumberField:
		return "number"
	case BoolField:
		return "boolean"
	default:
		return "string"
	}
}

// Column - pole logiczne i jego synonimy nagłówków (kolejność = priorytet)
type Column struct {
	Key      string
	Type     FieldType
	Synonyms []string
}

// Schema opisuje jeden importowalny rodzaj encji.
type Schema struct {
	Kind        Kind
	Entity      string
	IDField     string
	PriceField  string // puste = encja bez ceny
	UnitField   string // puste = encja bez jednostki
	DefaultUnit string
	ExtractKey  string
	Columns     []Column

	TemplateHeader []string
	TemplateRows   [][]string
}

const NameField = "name"

var ingredientSchema = Schema{
	Kind:        KindIngredient,
	Entity:      "Ingredient",
	IDField:     "sku_number",
	PriceField:  "cost_per_unit",
	UnitField:   "unit",
	DefaultUnit: "oz",
	ExtractKey:  "ingredients",
	Columns: []Column{
		{Key: NameField, Type: TextField, Synonyms: []string{"name", "ingredient", "ingredient name", "product", "product name", "item", "item name", "description"}},
		{Key: "sku_number", Type: TextField, Synonyms: []string{"sku_number", "sku", "sku #", "item number", "item #", "product code", "code", "upc"}},
		{Key: "cost_per_unit", Type: NumberField, Synonyms: []string{"cost_per_unit", "cost per unit", "unit cost", "cost", "price", "unit price", "wholesale"}},
		{Key: "unit", Type: TextField, Synonyms: []string{"unit", "uom", "unit of measure", "size"}},
		{Key: "category", Type: TextField, Synonyms: []string{"category", "class"}},
		{Key: "spirit_type", Type: TextField, Synonyms: []string{"spirit_type", "spirit type", "type", "spirit"}},
		{Key: "style", Type: TextField, Synonyms: []string{"style", "sub type", "subtype"}},
		{Key: "region", Type: TextField, Synonyms: []string{"region", "origin", "country"}},
		{Key: "supplier", Type: TextField, Synonyms: []string{"supplier", "distributor", "vendor"}},
		{Key: "abv", Type: NumberField, Synonyms: []string{"abv", "abv %", "alcohol"}},
		{Key: "notes", Type: TextField, Synonyms: []string{"notes", "note", "comments", "tasting notes"}},
		{Key: "exclusive", Type: BoolField, Synonyms: []string{"exclusive", "is exclusive", "allocated"}},
	},
	TemplateHeader: []string{"name", "sku_number", "cost_per_unit", "unit"},
	TemplateRows: [][]string{
		{"Campari", "CMP-750", "1.25", "oz"},
		{"Fever-Tree Tonic", "FT-200", "0.90", "each"},
	},
}

var accountSchema = Schema{
	Kind:        KindAccount,
	Entity:      "Account",
	IDField:     "account_number",
	DefaultUnit: "",
	ExtractKey:  "accounts",
	Columns: []Column{
		{Key: NameField, Type: TextField, Synonyms: []string{"name", "account name", "account", "business", "business name", "venue", "company"}},
		{Key: "account_number", Type: TextField, Synonyms: []string{"account_number", "account number", "account #", "account no", "acct", "customer number", "customer #"}},
		{Key: "account_type", Type: TextField, Synonyms: []string{"account_type", "account type", "type", "channel"}},
		{Key: "contact_name", Type: TextField, Synonyms: []string{"contact_name", "contact", "contact name", "buyer"}},
		{Key: "email", Type: TextField, Synonyms: []string{"email", "e-mail", "email address"}},
		{Key: "phone", Type: TextField, Synonyms: []string{"phone", "phone number", "telephone"}},
		{Key: "address", Type: TextField, Synonyms: []string{"address", "street", "street address"}},
		{Key: "city", Type: TextField, Synonyms: []string{"city", "town"}},
		{Key: "state", Type: TextField, Synonyms: []string{"state", "province", "region"}},
		{Key: "notes", Type: TextField, Synonyms: []string{"notes", "note", "comments"}},
	},
	TemplateHeader: []string{"name", "account_number", "account_type", "city", "state"},
	TemplateRows: [][]string{
		{"The Rusty Nail", "ACC-1001", "on-premise", "Austin", "TX"},
		{"Corner Liquor", "ACC-1002", "off-premise", "Dallas", "TX"},
	},
}

// SchemaFor zwraca kopię schematu danego rodzaju.
func SchemaFor(kind Kind) (Schema, error) {
	switch kind {
	case KindIngredient:
		return ingredientSchema, nil
	case KindAccount:
		return accountSchema, nil
	}
	return Schema{}, fmt.Errorf("unknown import kind %q", kind)
}

// WithDefaultUnit nadpisuje domyślną jednostkę (tylko encje z jednostką).
func (s Schema) WithDefaultUnit(unit string) Schema {
	if s.UnitField != "" && strings.TrimSpace(unit) != "" {
		s.DefaultUnit = strings.TrimSpace(unit)
	}
	return s
}

// core - pola obsługiwane osobno (nazwa, identyfikator, cena, jednostka)
func (s Schema) core(key string) bool {
	return key == NameField || key == s.IDField || (s.PriceField != "" && key == s.PriceField) || (s.UnitField != "" && key == s.UnitField)
}
