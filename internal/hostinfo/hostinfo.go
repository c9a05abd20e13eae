// Package hostinfo describes the CPU the tutorial trains on.
package hostinfo

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Info is a snapshot of the host CPU.
type Info struct {
	Brand         string
	Vendor        string
	PhysicalCores int
	LogicalCores  int
	GOMAXPROCS    int
	Arch          string
	L2CacheBytes  int
	Features      []string // SIMD extensions relevant to the CPU kernels
}

// simdFeatures are reported in the order listed when present.
var simdFeatures = []struct {
	id   cpuid.FeatureID
	name string
}{
	{cpuid.SSE4, "sse4.1"},
	{cpuid.AVX, "avx"},
	{cpuid.AVX2, "avx2"},
	{cpuid.FMA3, "fma"},
	{cpuid.AVX512F, "avx512f"},
	{cpuid.ASIMD, "asimd"},
}

// Detect reads the host CPU description.
func Detect() Info {
	info := Info{
		Brand:         strings.TrimSpace(cpuid.CPU.BrandName),
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		Arch:          runtime.GOARCH,
		L2CacheBytes:  cpuid.CPU.Cache.L2,
	}
	if info.Brand == "" {
		info.Brand = "unknown"
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f.id) {
			info.Features = append(info.Features, f.name)
		}
	}
	return info
}

// String renders a single line such as
// "Intel(R) Xeon(R) CPU (amd64, 4 cores / 8 threads, gomaxprocs=8, avx avx2 fma)".
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s", i.Brand, i.Arch)
	if i.PhysicalCores > 0 {
		fmt.Fprintf(&b, ", %d cores / %d threads", i.PhysicalCores, i.LogicalCores)
	}
	fmt.Fprintf(&b, ", gomaxprocs=%d", i.GOMAXPROCS)
	if len(i.Features) > 0 {
		fmt.Fprintf(&b, ", %s", strings.Join(i.Features, " "))
	}
	b.WriteString(")")
	return b.String()
}
