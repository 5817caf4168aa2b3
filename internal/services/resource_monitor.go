package services

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

const (
	defaultCPUThreshold    = 80.0
	defaultMemoryThreshold = 85.0
	snapshotMaxAge         = 10 * time.Second
)

// HostSnapshot captures system load at a point in time
type HostSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUCores      int       `json:"cpu_cores"`
	CPUUsage      float64   `json:"cpu_usage"`
	MemoryTotalGB float64   `json:"memory_total_gb"`
	MemoryUsage   float64   `json:"memory_usage"`
	Goroutines    int       `json:"goroutines"`
}

// ResourceMonitor samples host load for the health endpoint and shrinks the
// per-run batch size while the host is saturated.
type ResourceMonitor struct {
	mu              sync.Mutex
	last            HostSnapshot
	cpuThreshold    float64
	memoryThreshold float64
	logger          *logrus.Logger

	readCPU    func(ctx context.Context) (float64, error)
	readMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	now        func() time.Time
}

// NewResourceMonitor creates a monitor backed by gopsutil.
func NewResourceMonitor(logger *logrus.Logger) *ResourceMonitor {
	return &ResourceMonitor{
		cpuThreshold:    defaultCPUThreshold,
		memoryThreshold: defaultMemoryThreshold,
		logger:          logger,
		readCPU: func(ctx context.Context) (float64, error) {
			percents, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil || len(percents) == 0 {
				return 0, err
			}
			return percents[0], nil
		},
		readMemory: mem.VirtualMemoryWithContext,
		now:        time.Now,
	}
}

// Snapshot returns current host load. Samples younger than ten seconds are reused.
func (rm *ResourceMonitor) Snapshot(ctx context.Context) HostSnapshot {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := rm.now()
	if !rm.last.Timestamp.IsZero() && now.Sub(rm.last.Timestamp) < snapshotMaxAge {
		return rm.last
	}

	snapshot := HostSnapshot{
		Timestamp:  now,
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	if usage, err := rm.readCPU(ctx); err == nil {
		snapshot.CPUUsage = usage
	} else {
		rm.logger.WithError(err).Debug("Could not read CPU usage")
	}

	if vm, err := rm.readMemory(ctx); err == nil && vm != nil {
		snapshot.MemoryTotalGB = float64(vm.Total) / (1024 * 1024 * 1024)
		snapshot.MemoryUsage = vm.UsedPercent
	} else if err != nil {
		rm.logger.WithError(err).Debug("Could not read memory usage")
	}

	rm.last = snapshot
	return snapshot
}

// Saturated reports whether CPU or memory is above its threshold.
func (rm *ResourceMonitor) Saturated(s HostSnapshot) bool {
	return s.CPUUsage >= rm.cpuThreshold || s.MemoryUsage >= rm.memoryThreshold
}

// BatchSize halves the configured batch size while the host is saturated.
func (rm *ResourceMonitor) BatchSize(ctx context.Context, configured int) int {
	snapshot := rm.Snapshot(ctx)
	if !rm.Saturated(snapshot) || configured <= 1 {
		return configured
	}

	reduced := configured / 2
	rm.logger.WithFields(logrus.Fields{
		"cpu_usage":    snapshot.CPUUsage,
		"memory_usage": snapshot.MemoryUsage,
		"batch_size":   reduced,
	}).Warn("Host saturated, reducing batch size")
	return reduced
}
