package metrics

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// PressureThreshold is the usage percentage at which a host resource counts as exhausted
const PressureThreshold = 90.0

// cpuSampleWindow keeps health probes fast
const cpuSampleWindow = 200 * time.Millisecond

var hostUsage = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "neuronquery_host_usage_percent",
		Help: "Host resource usage observed by the last health check",
	},
	[]string{"resource"},
)

// SystemMetrics is the host snapshot attached to the system health check
type SystemMetrics struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUPercent        float64   `json:"cpu_percent"`
	CPUCount          int       `json:"cpu_count"`
	MemoryUsedPercent float64   `json:"memory_used_percent"`
	MemoryAvailable   uint64    `json:"memory_available"`
	DiskPath          string    `json:"disk_path"`
	DiskUsedPercent   float64   `json:"disk_used_percent"`
	DiskFree          uint64    `json:"disk_free"`
	Goroutines        int       `json:"goroutines"`
	HeapInuse         uint64    `json:"heap_inuse"`
}

// Pressure names every resource at or above limit percent, e.g. "memory 95%"
func (s *SystemMetrics) Pressure(limit float64) []string {
	var out []string
	for _, r := range []struct {
		name  string
		value float64
	}{
		{"cpu", s.CPUPercent},
		{"memory", s.MemoryUsedPercent},
		{"disk", s.DiskUsedPercent},
	} {
		if r.value >= limit {
			out = append(out, fmt.Sprintf("%s %.0f%%", r.name, r.value))
		}
	}
	return out
}

// CollectSystem samples the host the server runs on and publishes the usage
// gauges. A failed probe leaves its fields zeroed; the error reports the first failure.
func CollectSystem(ctx context.Context) (*SystemMetrics, error) {
	snap := &SystemMetrics{
		Timestamp:  time.Now().UTC(),
		DiskPath:   "/",
		CPUCount:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}
	var firstErr error
	keep := func(err error) bool {
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return err == nil
	}

	if pct, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false); keep(err) && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); keep(err) {
		snap.MemoryUsedPercent = vm.UsedPercent
		snap.MemoryAvailable = vm.Available
	}
	if du, err := disk.UsageWithContext(ctx, snap.DiskPath); keep(err) {
		snap.DiskUsedPercent = du.UsedPercent
		snap.DiskFree = du.Free
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.HeapInuse = ms.HeapInuse

	hostUsage.WithLabelValues("cpu").Set(snap.CPUPercent)
	hostUsage.WithLabelValues("memory").Set(snap.MemoryUsedPercent)
	hostUsage.WithLabelValues("disk").Set(snap.DiskUsedPercent)

	return snap, firstErr
}
