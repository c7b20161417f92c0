package align

import "testing"

func TestDown(t *testing.T) {
	cases := []struct{ v, b, want int }{
		{4096, 4096, 4096},
		{4097, 4096, 4096},
		{8191, 4096, 4096},
		{0, 4096, 0},
	}
	for _, c := range cases {
		if got := Down(c.v, c.b); got != c.want {
			t.Errorf("Down(%d, %d) = %d, want %d", c.v, c.b, got, c.want)
		}
	}
}

func TestUp(t *testing.T) {
	cases := []struct{ v, b, want int }{
		{4096, 4096, 4096},
		{4097, 4096, 8192},
		{1, 4096, 4096},
		{0, 4096, 0},
	}
	for _, c := range cases {
		if got := Up(c.v, c.b); got != c.want {
			t.Errorf("Up(%d, %d) = %d, want %d", c.v, c.b, got, c.want)
		}
	}
}

func TestMin(t *testing.T) {
	if got := Min(3, 5); got != 3 {
		t.Errorf("Min(3, 5) = %d, want 3", got)
	}
	if got := Min(uint64(9), uint64(2)); got != 2 {
		t.Errorf("Min(9, 2) = %d, want 2", got)
	}
}
