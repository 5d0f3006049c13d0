package pidfile

import (
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/teranos/avscheduler/errors"
)

// ProcessStats is what `avsched status` shows about the daemon
type ProcessStats struct {
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	RSSMB         float64   `json:"rss_mb"`
	CPUPercent    float64   `json:"cpu_percent"`
	NumChildren   int       `json:"children"` // job subprocesses currently running
	MemoryTotalGB float64   `json:"memory_total_gb"`
	MemoryPercent float64   `json:"memory_percent"` // host memory in use
}

// Stats collects resource usage for pid. Fields that cannot be read on this
// platform are left zero.
func Stats(pid int) (ProcessStats, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcessStats{}, errors.Wrapf(err, "failed to inspect process %d", pid)
	}

	stats := ProcessStats{PID: pid}

	if ms, err := proc.CreateTime(); err == nil {
		stats.StartedAt = time.UnixMilli(ms)
		stats.Uptime = time.Since(stats.StartedAt).Round(time.Second).String()
	}
	if info, err := proc.MemoryInfo(); err == nil {
		stats.RSSMB = float64(info.RSS) / 1024 / 1024
	}
	if pct, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = pct
	}
	if children, err := proc.Children(); err == nil {
		stats.NumChildren = len(children)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryTotalGB = float64(vm.Total) / 1024 / 1024 / 1024
		stats.MemoryPercent = vm.UsedPercent
	}

	return stats, nil
}
