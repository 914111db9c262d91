package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html/charset"
)

// ParseReport - statystyki parsowania źródła tabelarycznego
type ParseReport struct {
	Rows     int      `json:"rows"`
	Skipped  int      `json:"skipped"`
	Headers  []string `json:"headers,omitempty"`
	Unmapped []string `json:"unmapped,omitempty"`
}

// ParseDelimited czyta CSV/TSV (pierwszy wiersz = nagłówek). charsetLabel
// może być pusty (UTF-8) albo np. "windows-1250".
func ParseDelimited(r io.Reader, charsetLabel string, n Normalizer) ([]Candidate, ParseReport, error) {
	var rep ParseReport

	if cs := normalizeCharset(charsetLabel); cs != "" && cs != "utf-8" {
		dec, err := charset.NewReaderLabel(cs, r)
		if err != nil {
			return nil, rep, fmt.Errorf("charset %q: %w", charsetLabel, err)
		}
		r = dec
	}

	br := bufio.NewReader(r)
	// BOM UTF-8
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	data, err := io.ReadAll(br)
	if err != nil {
		return nil, rep, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, rep, ErrEmptyInput
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, rep, fmt.Errorf("csv: %w", err)
	}
	return fromTable(records, n)
}

// ParseXLSX czyta pierwszy arkusz skoroszytu.
func ParseXLSX(r io.Reader, n Normalizer) ([]Candidate, ParseReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, ParseReport{}, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ParseReport{}, ErrEmptyInput
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, ParseReport{}, fmt.Errorf("xlsx sheet %q: %w", sheets[0], err)
	}
	return fromTable(rows, n)
}

func fromTable(records [][]string, n Normalizer) ([]Candidate, ParseReport, error) {
	var rep ParseReport

	// pierwszy niepusty wiersz to nagłówek
	start := 0
	for start < len(records) && blankRow(records[start]) {
		start++
	}
	if start >= len(records) {
		return nil, rep, ErrEmptyInput
	}
	headers := records[start]
	hm := MapHeaders(headers, n.Schema)
	rep.Headers = headers
	rep.Unmapped = hm.Unmapped(headers)
	if _, ok := hm[NameField]; !ok {
		return nil, rep, ErrNoHeader
	}

	var out []Candidate
	for i := start + 1; i < len(records); i++ {
		row := records[i]
		if blankRow(row) {
			continue
		}
		rep.Rows++
		// numer wiersza jak w arkuszu (od 1, nagłówek wliczony)
		c, ok := n.Row(i+1, row, hm)
		if !ok {
			rep.Skipped++
			continue
		}
		out = append(out, c)
	}
	// sam nagłówek albo same wiersze bez nazwy
	if len(out) == 0 {
		return nil, rep, ErrEmptyInput
	}
	return out, rep, nil
}

// LooksTabular - czy tekst ma nagłówek rozpoznawalny dla schematu.
func LooksTabular(text string, s Schema) bool {
	line := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		line = text[:i]
	}
	if strings.TrimSpace(line) == "" {
		return false
	}
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = sniffDelimiter([]byte(line))
	cr.LazyQuotes = true
	headers, err := cr.Read()
	if err != nil {
		return false
	}
	_, ok := MapHeaders(headers, s)[NameField]
	return ok
}

// ParseExtraction dekoduje wynik ekstrakcji: {"<extract_key>": [ {...}, ... ]}.
func ParseExtraction(raw json.RawMessage, n Normalizer) ([]Candidate, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode extraction output: %w", err)
	}
	items, ok := envelope[n.Schema.ExtractKey]
	if !ok {
		return nil, fmt.Errorf("extraction output has no %q list", n.Schema.ExtractKey)
	}
	var objs []map[string]any
	if err := json.Unmarshal(items, &objs); err != nil {
		return nil, fmt.Errorf("decode %q: %w", n.Schema.ExtractKey, err)
	}

	out := make([]Candidate, 0, len(objs))
	for i, o := range objs {
		if c, ok := n.Values(i+1, o); ok {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("extraction returned no usable items")
	}
	return out, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		line = data[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// normalizeCharset mapuje nietypowe etykiety na nazwy rozpoznawane przez charset.NewReaderLabel
func normalizeCharset(cs string) string {
	c := strings.TrimSpace(strings.ToLower(cs))
	switch c {
	case "":
		return ""
	case "utf8", "utf-8":
		return "utf-8"
	case "latin ii", "latin-2", "latin2", "iso8859-2", "iso_8859-2":
		return "iso-8859-2"
	case "latin1", "latin-1", "iso8859-1", "iso_8859-1":
		return "iso-8859-1"
	case "cp1250", "windows1250", "win-1250":
		return "windows-1250"
	case "cp1252", "windows1252", "win-1252":
		return "windows-1252"
	default:
		return c
	}
}
