// Package report renders flip catalogs and statistics in human-readable
// form for standard output, the only state a run persists.
package report

import (
	"fmt"
	"io"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"ramble/internal/dram"
)

// printer is a package-level English-locale message printer; flip catalogs
// are diagnostic output for an operator, not internationalized UI, so one
// fixed locale is enough.
var printer = message.NewPrinter(language.English)

// WriteFlips renders one line per flip, ordered by (row, col, byte, bit)
// for a stable, readable catalog, with group-separated thousands in the
// row/col numbers via golang.org/x/text/number so a long catalog of large
// row indices stays scannable.
func WriteFlips(w io.Writer, flips []dram.Flip) error {
	sorted := append([]dram.Flip(nil), flips...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Pos, sorted[j].Pos
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		if a.Byte != b.Byte {
			return a.Byte < b.Byte
		}
		return a.Bit < b.Bit
	})

	for _, f := range sorted {
		_, err := printer.Fprintf(w, "chan=%d dimm=%d rank=%d bank=%d row=%v col=%v byte=%d bit=%d dir=%s\n",
			f.Pos.Chan, f.Pos.Dimm, f.Pos.Rank, f.Pos.Bank,
			number.Decimal(f.Pos.Row), number.Decimal(f.Pos.Col),
			f.Pos.Byte, f.Pos.Bit, f.Dir)
		if err != nil {
			return fmt.Errorf("report: write flip: %w", err)
		}
		if f.Stats != nil {
			if _, err := printer.Fprintf(w, "  below_complement=%s striped_complement=%s uniform=%s above_complement=%s\n",
				number.Percent(f.Stats.BelowComplement), number.Percent(f.Stats.StripedComplement),
				number.Percent(f.Stats.Uniform), number.Percent(f.Stats.AboveComplement)); err != nil {
				return fmt.Errorf("report: write flip stats: %w", err)
			}
		}
	}
	return nil
}

// WriteSummary renders a one-line catalog-size summary.
func WriteSummary(w io.Writer, flips []dram.Flip) error {
	_, err := printer.Fprintf(w, "found %s flip(s)\n", number.Decimal(len(flips)))
	return err
}
