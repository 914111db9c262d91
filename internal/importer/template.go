package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// TemplateFormat - format pobieranego szablonu
type TemplateFormat string

const (
	FormatCSV  TemplateFormat = "csv"
	FormatXLSX TemplateFormat = "xlsx"
)

// TemplateCSV - stały nagłówek + przykładowe wiersze
func TemplateCSV(s Schema) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(s.TemplateHeader); err != nil {
		return nil, err
	}
	if err := w.WriteAll(s.TemplateRows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TemplateXLSX - ten sam szablon jako arkusz z wyróżnionym nagłówkiem
func TemplateXLSX(s Schema) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := s.Entity
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	header := make([]any, len(s.TemplateHeader))
	for i, h := range s.TemplateHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return nil, err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	_ = f.SetColWidth(sheet, "A", lastCol, 20)

	for i, row := range s.TemplateRows {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx template: %w", err)
	}
	return buf.Bytes(), nil
}

// Template zwraca treść, typ MIME i nazwę pliku szablonu.
func Template(s Schema, format TemplateFormat) ([]byte, string, string, error) {
	switch format {
	case "", FormatCSV:
		b, err := TemplateCSV(s)
		return b, "text/csv", string(s.Kind) + "_template.csv", err
	case FormatXLSX:
		b, err := TemplateXLSX(s)
		return b, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", string(s.Kind) + "_template.xlsx", err
	}
	return nil, "", "", fmt.Errorf("unknown template format %q (csv | xlsx)", format)
}
