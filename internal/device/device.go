package device

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Host describes the machine inference runs on.
type Host struct {
	OS                string  `json:"os"`
	Arch              string  `json:"arch"`
	LogicalCPUs       int     `json:"logical_cpus"`
	MemoryTotalBytes  uint64  `json:"memory_total_bytes,omitempty"`
	MemoryUsedPercent float64 `json:"memory_used_percent,omitempty"`
}

// Describe collects host facts. Fields gopsutil cannot read are left zero.
func Describe(ctx context.Context) Host {
	h := Host{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		LogicalCPUs: runtime.NumCPU(),
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		h.LogicalCPUs = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemoryTotalBytes = vm.Total
		h.MemoryUsedPercent = vm.UsedPercent
	}
	return h
}
