// Package status reports daemon vitals for the health endpoint and the
// status command.
package status

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/openvectors/vecimport/internal/jobstore"
)

// DaemonStatus is the vitals snapshot exposed on /healthz and by the
// status command.
type DaemonStatus struct {
	Version       string    `json:"version"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
	Goroutines    int       `json:"goroutines"`
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryUsedGB  float64   `json:"memoryUsedGb"`
	MemoryTotalGB float64   `json:"memoryTotalGb"`
	MemoryPercent float64   `json:"memoryPercent"`
	StoreOK       bool      `json:"storeOk"`
	StoreError    string    `json:"storeError,omitempty"`
	ActiveJobs    []string  `json:"activeJobs,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Healthy reports whether the daemon can do useful work. The job store is
// the only hard dependency.
func (s *DaemonStatus) Healthy() bool {
	return s.StoreOK
}

// Collector gathers daemon vitals. System metrics degrade gracefully:
// whatever cannot be read is left zero rather than failing the collection.
type Collector struct {
	version    string
	startTime  time.Time
	store      jobstore.Store
	activeJobs func() []string
}

// NewCollector builds a collector. activeJobs may be nil.
func NewCollector(version string, store jobstore.Store, activeJobs func() []string) *Collector {
	return &Collector{
		version:    version,
		startTime:  time.Now(),
		store:      store,
		activeJobs: activeJobs,
	}
}

// Collect gathers a vitals snapshot.
func (c *Collector) Collect(ctx context.Context) *DaemonStatus {
	s := &DaemonStatus{
		Version:       c.version,
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Timestamp:     time.Now().UTC(),
	}

	if v, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsedGB = float64(v.Used) / (1024 * 1024 * 1024)
		s.MemoryTotalGB = float64(v.Total) / (1024 * 1024 * 1024)
		s.MemoryPercent = v.UsedPercent
	}
	if percentages, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percentages) > 0 {
		s.CPUPercent = percentages[0]
	}

	if c.store != nil {
		if err := c.store.Ping(ctx); err != nil {
			s.StoreError = err.Error()
		} else {
			s.StoreOK = true
		}
	}
	if c.activeJobs != nil {
		s.ActiveJobs = c.activeJobs()
	}

	return s
}
