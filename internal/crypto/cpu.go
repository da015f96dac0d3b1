package crypto

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// DetectTargetCPU returns a compiler-style CPU target name for the host, or
// an empty string when the architecture is not x86-64.
func DetectTargetCPU() string {
	if runtime.GOARCH != "amd64" {
		return ""
	}
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return "znver4"
	case cpuid.CPU.Supports(cpuid.AVX2):
		return "znver2"
	}
	return "x86-64"
}

// HasVectorSupport reports whether the host has SIMD units wide enough for
// the batched oracle path.
func HasVectorSupport() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpuid.CPU.Supports(cpuid.AVX2)
	case "arm64":
		return cpuid.CPU.Supports(cpuid.ASIMD)
	}
	return false
}

// CPUBrand returns the processor brand string, if known.
func CPUBrand() string {
	return cpuid.CPU.BrandName
}
