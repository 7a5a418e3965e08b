// Package system reads host state for the alert snapshot and drives the
// certificate client.
package system

import (
	"context"
	"fmt"
	"time"

	"github.com/hostpanel/backend/internal/domain"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostMetrics samples utilisation of the panel host.
type HostMetrics struct {
	diskPath       string
	sampleInterval time.Duration
}

func NewHostMetrics(diskPath string, sampleInterval time.Duration) *HostMetrics {
	if diskPath == "" {
		diskPath = "/"
	}
	if sampleInterval <= 0 {
		sampleInterval = 500 * time.Millisecond
	}
	return &HostMetrics{diskPath: diskPath, sampleInterval: sampleInterval}
}

func (h *HostMetrics) Usage(ctx context.Context) (*domain.ResourceUsage, error) {
	usage := &domain.ResourceUsage{DiskPath: h.diskPath}

	cpuPercent, err := cpu.PercentWithContext(ctx, h.sampleInterval, false)
	if err != nil {
		return nil, fmt.Errorf("cpu: %w", err)
	}
	if len(cpuPercent) > 0 {
		usage.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	usage.MemoryPercent = memInfo.UsedPercent

	diskInfo, err := disk.UsageWithContext(ctx, h.diskPath)
	if err != nil {
		return nil, fmt.Errorf("disk %s: %w", h.diskPath, err)
	}
	usage.DiskPercent = diskInfo.UsedPercent

	return usage, nil
}
