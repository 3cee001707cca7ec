package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleSystemStatus reports process and host health for the system panel.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPercent := s.systemStats()

	status := map[string]any{
		"status":          "ok",
		"go_version":      runtime.Version(),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuAvg,
		"ram_percent":     ramPercent,
		"datasets":        s.container.Store.Stats(),
		"event_listeners": s.container.Bus.SubscriberCount(),
		"background_jobs": s.container.Scheduler.Jobs(),
	}

	if usage, err := disk.Usage(s.container.Config.DataDir); err == nil {
		status["disk_used_percent"] = usage.UsedPercent
		status["disk_free_gb"] = float64(usage.Free) / 1024 / 1024 / 1024
	} else {
		s.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	if stats, err := s.container.Manager.CacheStats(); err == nil {
		status["cache"] = stats
	}

	s.writeJSON(w, http.StatusOK, status)
}

// systemStats calculates CPU and RAM usage percentages. Uses a 100ms CPU
// sampling interval so the status endpoint stays responsive to pollers.
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
