// Package observability reports the health of the running server.
package observability

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

type Stats struct {
	Status        string  `json:"status"`
	PID           int32   `json:"pid"`
	ProcessStatus string  `json:"process_status"`
	CPUPercent    float64 `json:"cpu_percent"`
	RSSBytes      uint64  `json:"rss_bytes"`
	Goroutines    int     `json:"goroutines"`
	Online        int     `json:"online"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// Health samples the current process. online reports the live connections.
type Health struct {
	process *process.Process
	started time.Time
	online  func() int
}

func NewHealth(online func() int) (*Health, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("inspect process: %w", err)
	}
	return &Health{process: p, started: time.Now(), online: online}, nil
}

func (h *Health) Snapshot() (Stats, error) {
	memInfo, err := h.process.MemoryInfo()
	if err != nil {
		return Stats{}, err
	}
	cpuPercent, err := h.process.CPUPercent()
	if err != nil {
		return Stats{}, err
	}
	// Not every platform reports a status
	status, _ := h.process.Status()

	return Stats{
		Status:        "ok",
		PID:           h.process.Pid,
		ProcessStatus: status,
		CPUPercent:    cpuPercent,
		RSSBytes:      memInfo.RSS,
		Goroutines:    runtime.NumGoroutine(),
		Online:        h.online(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}, nil
}
