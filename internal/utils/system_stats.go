package utils

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"face-attendance-go/internal/util/timezone"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

var (
	lastCPUTime        time.Time
	lastCPUUsage       float64
	cpuUsageMutex      sync.Mutex
	cpuUsageSampleRate = 500 * time.Millisecond
)

// PoolStats is implemented by the recognition worker pool.
type PoolStats interface {
	GetWorkerCount() int
	ActiveJobCount() int
	QueuedJobCount() int
	GetQueueCapacity() int
}

// SystemStats holds process and host statistics for the status endpoint.
type SystemStats struct {
	NumCPU        int     `json:"num_cpu"`
	GoRoutines    int     `json:"go_routines"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsed    float64 `json:"memory_used_percent"`
	MemoryAlloc   uint64  `json:"memory_alloc"`
	MemorySys     uint64  `json:"memory_sys"`
	MemoryAllocHR string  `json:"memory_alloc_human"`

	WorkerCount   int `json:"worker_count"`
	ActiveJobs    int `json:"active_jobs"`
	QueuedJobs    int `json:"queued_jobs"`
	QueueCapacity int `json:"queue_capacity"`

	Timestamp time.Time `json:"timestamp"`
}

// FormatBytes renders a byte count as KB, MB or GB.
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}

// GetCPUUsage returns the overall CPU usage, cached for cpuUsageSampleRate.
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	if time.Since(lastCPUTime) < cpuUsageSampleRate && lastCPUTime.Unix() > 0 {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		log.Warnf("CPU usage sampling failed: %v", err)
		return 0.0
	}

	var usage float64
	if len(percentages) > 0 {
		usage = percentages[0]
	}

	lastCPUTime = time.Now()
	lastCPUUsage = usage
	return usage
}

// GetSystemStats collects the current statistics. pool may be nil.
func GetSystemStats(pool PoolStats) *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		NumCPU:        runtime.NumCPU(),
		GoRoutines:    runtime.NumGoroutine(),
		CPUUsage:      GetCPUUsage(),
		MemoryAlloc:   memStats.Alloc,
		MemorySys:     memStats.Sys,
		MemoryAllocHR: FormatBytes(memStats.Alloc),
		Timestamp:     timezone.Now(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsed = vm.UsedPercent
	} else {
		log.Debugf("Virtual memory stats unavailable: %v", err)
	}

	if pool != nil {
		stats.WorkerCount = pool.GetWorkerCount()
		stats.ActiveJobs = pool.ActiveJobCount()
		stats.QueuedJobs = pool.QueuedJobCount()
		stats.QueueCapacity = pool.GetQueueCapacity()
	}
	return stats
}
