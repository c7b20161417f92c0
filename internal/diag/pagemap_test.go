package diag

import (
	"errors"
	"testing"

	"ramble/internal/dram"
)

func TestDecodePagemapEntry(t *testing.T) {
	const pageSize = 4096

	tests := []struct {
		name    string
		bits    uint64
		wantErr bool
		want    dram.PhysAddr
	}{
		{
			name:    "not present",
			bits:    0,
			wantErr: true,
		},
		{
			name: "present, pfn 1",
			bits: uint64(1)<<63 | 1,
			want: dram.PhysAddr(1*pageSize + 100),
		},
		{
			name: "present, pfn with high bits masked off",
			bits: uint64(1)<<63 | uint64(1)<<60 | 2,
			want: dram.PhysAddr(2*pageSize + 100),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePagemapEntry(tt.bits, pageSize, 100, 0)
			if tt.wantErr {
				var de *dram.Error
				if !errors.As(err, &de) || de.Kind != dram.EnvUnavailable {
					t.Fatalf("decodePagemapEntry() error = %v, want EnvUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodePagemapEntry() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("decodePagemapEntry() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestCheckContiguityEmptyBuffer(t *testing.T) {
	if err := CheckContiguity(nil); err != nil {
		t.Errorf("CheckContiguity(nil) error = %v, want nil", err)
	}
}
