// Package hostprofile detects host hardware capabilities once at startup
// and recommends a performance tier and optimization flags. The engine
// factory does not read the result: engines are chosen by config, and the
// server only logs the detected profile.
package hostprofile

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Tier is the coarse performance bucket a host falls into.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Info summarizes the host's hardware for the rest of the system.
type Info struct {
	Platform       string
	Architecture   string
	TotalMemoryMB  int
	CPUCount       int
	HasGPU         bool
	IsSingleBoard  bool // Raspberry Pi or similar ARM SBC
	Tier           Tier
	RecommendedLLM string // "tiny" | "small" | "medium"
	MaxContextLen  int
}

// OptimizationFlags are hints for engines that load local models.
type OptimizationFlags struct {
	Threads  int
	UseMlock bool
	LowVRAM  bool
}

// Detect inspects the running host once. It never fails hard: any
// individual probe that errors (cpu.Counts, mem.VirtualMemory, ...) falls
// back to a conservative value rather than aborting detection, since a
// missing GPU vendor tool is expected on most hosts, not exceptional.
func Detect(ctx context.Context) Info {
	info := Info{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCount:     runtime.NumCPU(),
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemoryMB = int(vm.Total / (1024 * 1024))
	} else {
		info.TotalMemoryMB = 4096
	}

	if counts, err := cpu.CountsWithContext(ctx, true); err == nil && counts > 0 {
		info.CPUCount = counts
	}

	info.HasGPU = detectGPU()
	info.IsSingleBoard = detectSingleBoard(ctx)

	assessTier(&info)
	return info
}

func detectGPU() bool {
	// No CUDA/ROCm/Metal SDK is linked into this binary; a present vendor
	// CLI tool is treated as a reasonable proxy for "a GPU exists", the
	// same heuristic the original detector fell back to without a torch
	// import available.
	for _, tool := range []string{"nvidia-smi", "rocm-smi"} {
		if _, err := exec.LookPath(tool); err == nil {
			return true
		}
	}
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" // Apple Silicon: Metal always available
}

func detectSingleBoard(ctx context.Context) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return strings.HasPrefix(runtime.GOARCH, "arm")
	}
	lower := strings.ToLower(string(data))
	if strings.Contains(lower, "raspberry pi") || strings.Contains(lower, "bcm") {
		return true
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		return strings.Contains(strings.ToLower(info.Platform), "raspbian")
	}
	return false
}

func assessTier(info *Info) {
	memGB := float64(info.TotalMemoryMB) / 1024

	switch {
	case info.IsSingleBoard:
		if memGB >= 8 {
			info.Tier, info.RecommendedLLM, info.MaxContextLen = TierMedium, "small", 4096
		} else {
			info.Tier, info.RecommendedLLM, info.MaxContextLen = TierLow, "tiny", 2048
		}
	case memGB >= 16 && info.HasGPU:
		info.Tier, info.RecommendedLLM, info.MaxContextLen = TierHigh, "medium", 8192
	case memGB >= 8:
		info.Tier, info.RecommendedLLM, info.MaxContextLen = TierMedium, "small", 4096
	default:
		info.Tier, info.RecommendedLLM, info.MaxContextLen = TierLow, "tiny", 2048
	}
}

// OptimizationFlagsFor derives model-loading hints from info.
func OptimizationFlagsFor(info Info) OptimizationFlags {
	threads := info.CPUCount
	if threads > 8 {
		threads = 8
	}
	if threads < 1 {
		threads = 1
	}

	memGB := float64(info.TotalMemoryMB) / 1024
	return OptimizationFlags{
		Threads:  threads,
		UseMlock: memGB >= 8,
		LowVRAM:  memGB < 8,
	}
}
