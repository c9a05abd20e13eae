package hostinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	info := Detect()

	assert.NotEmpty(t, info.Brand)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Positive(t, info.GOMAXPROCS)
	assert.Contains(t, info.String(), info.Brand)
}

func TestInfo_String(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "full",
			info: Info{Brand: "Test CPU", Arch: "amd64", PhysicalCores: 4, LogicalCores: 8, GOMAXPROCS: 8, Features: []string{"avx", "avx2"}},
			want: "Test CPU (amd64, 4 cores / 8 threads, gomaxprocs=8, avx avx2)",
		},
		{
			name: "no topology",
			info: Info{Brand: "unknown", Arch: "arm64", GOMAXPROCS: 2},
			want: "unknown (arm64, gomaxprocs=2)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}
