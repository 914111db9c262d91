package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bartek5186/barsync/internal/costing"
	"github.com/bartek5186/barsync/internal/db"
	"github.com/bartek5186/barsync/internal/importer"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func money(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func str(p *string) string {
	if p == nil || *p == "" {
		return "-"
	}
	return *p
}

func printPreview(out io.Writer, v importer.View) {
	fmt.Fprintf(out, "Session %s (%s) from %s\n", v.ID, v.Kind, v.Source)
	fmt.Fprintf(out, "Parsed %d rows, %d skipped", v.Report.Rows, v.Report.Skipped)
	if len(v.Report.Unmapped) > 0 {
		fmt.Fprintf(out, ", ignored columns: %s", strings.Join(v.Report.Unmapped, ", "))
	}
	fmt.Fprintln(out)

	s := v.Summary
	if s == nil {
		return
	}
	fmt.Fprintf(out, "Total %d: %d new, %d updated, %d unchanged\n", s.Total, s.New, s.Updated, s.Unchanged)
	if s.PreviouslyImportedAt != nil {
		fmt.Fprintf(out, "WARNING: this exact file was already imported on %s\n", s.PreviouslyImportedAt.Local().Format(time.DateTime))
	}
	if s.Recased > 0 {
		fmt.Fprintf(out, "Names recased to Title Case: %d\n", s.Recased)
	}
	if len(s.AmbiguousCase) > 0 {
		fmt.Fprintf(out, "Mixed-case names kept as-is: %s\n", strings.Join(s.AmbiguousCase, ", "))
	}
	for _, d := range s.DuplicateIDs {
		fmt.Fprintf(out, "Duplicate identifier in file %q: %s\n", d.Identifier, strings.Join(d.Names, ", "))
	}
	for _, d := range s.ExistingDuplicateIDs {
		fmt.Fprintf(out, "Duplicate identifier in existing data %q: %s\n", d.Identifier, strings.Join(d.Names, ", "))
	}
	printPriceChanges(out, s, importer.DisplayLimit)
}

func printPriceChanges(out io.Writer, s *importer.Summary, limit int) {
	if s == nil || len(s.PriceChanges) == 0 {
		return
	}
	shown := s.TopPriceChanges(limit)
	tw := newTable(out)
	fmt.Fprintln(tw, "ROW\tNAME\tOLD\tNEW")
	for _, pc := range shown {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\n", pc.Row, pc.Name, money(pc.Old), pc.New)
	}
	_ = tw.Flush()
	if rest := len(s.PriceChanges) - len(shown); rest > 0 {
		fmt.Fprintf(out, "... and %d more price changes\n", rest)
	}
}

func printRows(out io.Writer, rows []importer.RowResult, skipped map[int]bool) {
	tw := newTable(out)
	fmt.Fprintln(tw, "ROW\tSTATUS\tNAME\tID\tPRICE\tUNIT")
	for _, r := range rows {
		status := string(r.Status)
		if skipped[r.Candidate.Row] {
			status += " (skip)"
		}
		c := r.Candidate
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", c.Row, status, c.Name, str(c.Identifier), money(c.Price), c.Unit)
	}
	_ = tw.Flush()
}

func printResult(out io.Writer, state importer.State, res *importer.WriteResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(out, "%s: %d created, %d updated, %d failed\n", state, res.Created, res.Updated, res.Failed)
	if len(res.Failures) == 0 {
		return
	}
	tw := newTable(out)
	fmt.Fprintln(tw, "ROW\tID\tNAME\tERROR")
	for _, f := range res.Failures {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.Row, f.ID, f.Name, f.Error)
	}
	_ = tw.Flush()
}

func printHistory(out io.Writer, sessions []db.ImportSession) {
	tw := newTable(out)
	fmt.Fprintln(tw, "STARTED\tID\tKIND\tSOURCE\tOPERATOR\tSTATE\tCREATED\tUPDATED\tFAILED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			s.StartedAt.Local().Format(time.DateTime), s.ID, s.Kind, s.Source, s.Operator, s.State, s.Created, s.Updated, s.Failed)
	}
	_ = tw.Flush()
}

func printMenuCost(out io.Writer, m costing.MenuCost) {
	tw := newTable(out)
	fmt.Fprintln(tw, "RECIPE\tCOST\tMENU PRICE\tPOUR COST")
	for _, r := range m.Recipes {
		pct := "-"
		if r.PourCostPct != nil {
			pct = fmt.Sprintf("%.1f%%", *r.PourCostPct)
		}
		price := "-"
		if r.MenuPrice > 0 {
			price = fmt.Sprintf("%.2f", r.MenuPrice)
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\n", r.Name, r.Total, price, pct)
	}
	_ = tw.Flush()
	for _, r := range m.Recipes {
		for _, is := range r.Issues {
			fmt.Fprintf(out, "%s line %d (%s): %s\n", r.Name, is.Line, is.Ingredient, is.Reason)
		}
	}
	if m.AvgPourCostPct != nil {
		fmt.Fprintf(out, "Average pour cost: %.1f%%\n", *m.AvgPourCostPct)
	}
}
