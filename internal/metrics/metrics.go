// Package metrics collects run-wide atomic counters for a templating or
// calibration pass and renders them for the reporting layer. Collection is
// gated by Enabled so a plain run pays no atomic-increment cost.
package metrics

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
)

// Enabled turns counter increments on; off by default so Inc/Add are no-ops
// until a caller (cmd/ramble, via internal/config) opts in.
var Enabled = false

// Counter is a statistical counter updated with atomic operations, so it is
// safe to increment from more than one goroutine.
type Counter int64

// Inc increments the counter by one.
func (c *Counter) Inc() {
	if Enabled {
		atomic.AddInt64((*int64)(c), 1)
	}
}

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) {
	if Enabled {
		atomic.AddInt64((*int64)(c), delta)
	}
}

// Load returns the counter's current value regardless of Enabled, so a
// caller can still read whatever did accumulate.
func (c *Counter) Load() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Run holds the counters populated over the course of one templating run.
type Run struct {
	RangesScanned Counter
	BytesHammered Counter
	FlipsFound    Counter
	RowsSkipped   Counter
}

// Default accumulates counters for the current process; internal/template
// and internal/hammer increment it directly rather than threading a Run
// through every call, the same way process-wide interrupt and statistics
// counters are kept as package globals rather than passed explicitly.
var Default Run

// Summary renders every Counter field of st as a name:value line, in the
// same reflect-driven style regardless of which struct of counters is
// passed, so a new counter field needs no matching printer code.
func Summary(st interface{}) string {
	v := reflect.ValueOf(st)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	var b strings.Builder
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !strings.HasSuffix(f.Type().String(), "Counter") {
			continue
		}
		c := f.Addr().Interface().(*Counter)
		b.WriteString(v.Type().Field(i).Name)
		b.WriteString("=")
		b.WriteString(strconv.FormatInt(c.Load(), 10))
		b.WriteString(" ")
	}
	return strings.TrimRight(b.String(), " ")
}
