package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/bartek5186/barsync/internal/importer"
)

// confirmPrompt - prosta pętla poleceń przed zapisem. Zwraca wiersze do
// pominięcia i czy użytkownik potwierdził.
func confirmPrompt(in io.Reader, out io.Writer, v importer.View, skip []int) ([]int, bool) {
	skipped := map[int]bool{}
	for _, r := range skip {
		skipped[r] = true
	}
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Komendy: yes | no | skip <rows> | unskip <rows> | rows | changes")
	for {
		fmt.Fprintf(out, "Write %s? [yes/no] > ", planLine(v, skipped))
		line, err := reader.ReadString('\n')
		fields := strings.Fields(strings.ToLower(line))
		if len(fields) == 0 {
			if err != nil {
				// EOF bez odpowiedzi = odmowa
				fmt.Fprintln(out)
				return nil, false
			}
			continue
		}

		switch fields[0] {
		case "y", "yes":
			return sortedRows(skipped), true
		case "n", "no", "quit", "exit":
			return nil, false
		case "skip", "unskip":
			rows, perr := parseRows(strings.Join(fields[1:], ","))
			if perr != nil {
				fmt.Fprintln(out, "Błąd:", perr)
				continue
			}
			for _, r := range rows {
				if fields[0] == "skip" {
					skipped[r] = true
				} else {
					delete(skipped, r)
				}
			}
		case "rows":
			printRows(out, v.Rows, skipped)
		case "changes":
			printPriceChanges(out, v.Summary, 0)
		default:
			fmt.Fprintln(out, "Nieznana komenda. Użyj: yes | no | skip <rows> | unskip <rows> | rows | changes")
		}
		if err != nil {
			return nil, false
		}
	}
}

// planLine - "2 creates, 3 updates" po odjęciu pominiętych wierszy
func planLine(v importer.View, skipped map[int]bool) string {
	var creates, updates int
	for _, r := range v.Rows {
		if skipped[r.Candidate.Row] {
			continue
		}
		switch r.Status {
		case importer.StatusNew:
			creates++
		case importer.StatusUpdated:
			updates++
		}
	}
	return fmt.Sprintf("%d creates, %d updates (%d rows skipped)", creates, updates, len(skipped))
}

// parseRows: "3,5 7-9" -> [3 5 7 8 9]
func parseRows(s string) ([]int, error) {
	var out []int
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(lo)
		if err != nil || a < 1 {
			return nil, fmt.Errorf("invalid row %q", part)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(hi); err != nil || b < a {
				return nil, fmt.Errorf("invalid row range %q", part)
			}
		}
		for r := a; r <= b; r++ {
			out = append(out, r)
		}
	}
	return out, nil
}

func sortedRows(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}
