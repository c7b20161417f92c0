package metrics

import (
	"strings"
	"testing"
)

func TestCounterNoopWhenDisabled(t *testing.T) {
	Enabled = false
	var c Counter
	c.Inc()
	c.Add(5)
	if got := c.Load(); got != 0 {
		t.Errorf("Load() = %d, want 0 (Enabled=false)", got)
	}
}

func TestCounterAccumulatesWhenEnabled(t *testing.T) {
	Enabled = true
	defer func() { Enabled = false }()

	var c Counter
	c.Inc()
	c.Add(5)
	if got := c.Load(); got != 6 {
		t.Errorf("Load() = %d, want 6", got)
	}
}

func TestSummaryListsOnlyCounterFields(t *testing.T) {
	Enabled = true
	defer func() { Enabled = false }()

	var r Run
	r.FlipsFound.Add(3)
	r.RowsSkipped.Inc()

	s := Summary(&r)
	if !strings.Contains(s, "FlipsFound=3") {
		t.Errorf("Summary() = %q, want FlipsFound=3", s)
	}
	if !strings.Contains(s, "RowsSkipped=1") {
		t.Errorf("Summary() = %q, want RowsSkipped=1", s)
	}
}
