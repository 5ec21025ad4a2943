package sysstat

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Host samples the local machine through gopsutil.
//
// CPU is measured since the previous call, so the first sample covers the
// time since the process started.
type Host struct {
	diskPath string

	cpuPercent  func(ctx context.Context) (float64, error)
	memPercent  func(ctx context.Context) (float64, error)
	diskPercent func(ctx context.Context, path string) (float64, error)
}

// NewHost returns a sampler reporting disk usage for the filesystem holding
// diskPath ("/" when empty).
func NewHost(diskPath string) *Host {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Host{
		diskPath:    diskPath,
		cpuPercent:  hostCPU,
		memPercent:  hostMemory,
		diskPercent: hostDisk,
	}
}

func (h *Host) Sample(ctx context.Context) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	c, err := h.cpuPercent(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("cpu: %w", err)
	}
	m, err := h.memPercent(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("memory: %w", err)
	}
	d, err := h.diskPercent(ctx, h.diskPath)
	if err != nil {
		return Usage{}, fmt.Errorf("disk %s: %w", h.diskPath, err)
	}
	return Usage{CPU: clamp(c), Memory: clamp(m), Disk: clamp(d)}, nil
}

func hostCPU(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, nil
	}
	return pcts[0], nil
}

func hostMemory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func hostDisk(ctx context.Context, path string) (float64, error) {
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return du.UsedPercent, nil
}
