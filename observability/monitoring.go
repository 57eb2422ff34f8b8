// Package observability aggregates runtime counters for the stats endpoint.
package observability

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats is the JSON shape served on /debug/stats.
type Stats struct {
	MessagesSent        uint64  `json:"messages_sent"`
	PushesDelivered     uint64  `json:"pushes_delivered"`
	PushesDropped       uint64  `json:"pushes_dropped"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
	AllocMemMb          uint64  `json:"alloc_mem_mb"`
	ProcessCPUPercent   float64 `json:"process_cpu_percent"`
	NumGC               uint32  `json:"num_gc"`
	UptimeSeconds       int64   `json:"uptime_seconds"`
}

// Metrics carries the hot-path counters. All increments are atomic; the
// snapshot is read-only and safe to call from the HTTP layer at any time.
type Metrics struct {
	messagesSent    uint64
	pushesDelivered uint64
	pushesDropped   uint64
	startedAt       time.Time
	proc            *process.Process
}

func NewMetrics() *Metrics {
	// Process handle lookup can fail in exotic environments; CPU percent is
	// simply omitted then.
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Metrics{startedAt: time.Now(), proc: proc}
}

func (m *Metrics) IncrMessagesSent()    { atomic.AddUint64(&m.messagesSent, 1) }
func (m *Metrics) IncrPushesDelivered() { atomic.AddUint64(&m.pushesDelivered, 1) }
func (m *Metrics) IncrPushesDropped()   { atomic.AddUint64(&m.pushesDropped, 1) }

// Snapshot assembles the current counter values together with process-level
// figures from the runtime and gopsutil.
func (m *Metrics) Snapshot(activeSubscriptions int) Stats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var cpuPercent float64
	if m.proc != nil {
		if percent, err := m.proc.CPUPercent(); err == nil {
			cpuPercent = percent
		}
	}

	return Stats{
		MessagesSent:        atomic.LoadUint64(&m.messagesSent),
		PushesDelivered:     atomic.LoadUint64(&m.pushesDelivered),
		PushesDropped:       atomic.LoadUint64(&m.pushesDropped),
		ActiveSubscriptions: activeSubscriptions,
		AllocMemMb:          memStats.Alloc / 1024 / 1024,
		ProcessCPUPercent:   cpuPercent,
		NumGC:               memStats.NumGC,
		UptimeSeconds:       int64(time.Since(m.startedAt).Seconds()),
	}
}
