package hostprofile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssessTierRaspberryPiLowMemory(t *testing.T) {
	info := Info{IsSingleBoard: true, TotalMemoryMB: 2048}
	assessTier(&info)
	require.Equal(t, TierLow, info.Tier)
	require.Equal(t, "tiny", info.RecommendedLLM)
}

func TestAssessTierRaspberryPiHighMemory(t *testing.T) {
	info := Info{IsSingleBoard: true, TotalMemoryMB: 8192}
	assessTier(&info)
	require.Equal(t, TierMedium, info.Tier)
}

func TestAssessTierDesktopWithGPU(t *testing.T) {
	info := Info{TotalMemoryMB: 32768, HasGPU: true}
	assessTier(&info)
	require.Equal(t, TierHigh, info.Tier)
	require.Equal(t, 8192, info.MaxContextLen)
}

func TestAssessTierDesktopNoGPULowMemory(t *testing.T) {
	info := Info{TotalMemoryMB: 4096}
	assessTier(&info)
	require.Equal(t, TierLow, info.Tier)
}

func TestOptimizationFlagsCapThreadsAndDetectLowVRAM(t *testing.T) {
	flags := OptimizationFlagsFor(Info{CPUCount: 32, TotalMemoryMB: 4096})
	require.Equal(t, 8, flags.Threads)
	require.True(t, flags.LowVRAM)
	require.False(t, flags.UseMlock)

	flags = OptimizationFlagsFor(Info{CPUCount: 4, TotalMemoryMB: 16384})
	require.Equal(t, 4, flags.Threads)
	require.False(t, flags.LowVRAM)
	require.True(t, flags.UseMlock)
}
