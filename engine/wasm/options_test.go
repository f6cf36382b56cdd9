package wasm

import (
	"testing"
)

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "16mb", want: MemoryLimit16MB},
		{in: "64MB", want: MemoryLimit64MB},
		{in: " 256mb ", want: MemoryLimit256MB},
		{in: "1gb", want: MemoryLimit1GB},
		{in: "4gb", want: 65536},
		{in: "128kb", want: 2},
		{in: "131072", want: 2},
		{in: "5gb", wantErr: true},
		{in: "1kb", wantErr: true},
		{in: "lots", wantErr: true},
		{in: "-1mb", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMemoryLimit(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseMemoryLimit(%q) = %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMemoryLimit(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseMemoryLimit(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDefaultCacheDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	if got := defaultCacheDir(); got != "/tmp/xdg/goviz" {
		t.Errorf("defaultCacheDir() = %q, want /tmp/xdg/goviz", got)
	}
}
