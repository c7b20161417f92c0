package diag

import (
	"fmt"
	"io"
	"time"

	"github.com/google/pprof/profile"
)

// SummarizeCPUProfile parses a pprof CPU profile (as produced by
// runtime/pprof.StartCPUProfile around a calibration run) and renders a
// one-line summary: profile duration, total sample count (the first value
// of each sample, samples/count in a runtime/pprof CPU profile), and the
// number of locations and functions recorded. It gives no per-function
// breakdown; that still needs a profile viewer.
func SummarizeCPUProfile(r io.Reader) (string, error) {
	p, err := profile.Parse(r)
	if err != nil {
		return "", fmt.Errorf("diag: parse cpu profile: %w", err)
	}

	var totalSamples int64
	for _, s := range p.Sample {
		if len(s.Value) > 0 {
			totalSamples += s.Value[0]
		}
	}

	return fmt.Sprintf("cpu profile: duration=%s samples=%d locations=%d functions=%d",
		time.Duration(p.DurationNanos), totalSamples, len(p.Location), len(p.Function)), nil
}
