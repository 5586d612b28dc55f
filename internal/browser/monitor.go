package browser

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Clean1ines/iXe/internal/utils"
)

// MonitorConfig bounds the resources a respawned browser tab may claim.
type MonitorConfig struct {
	SafetyReserveMemory int64 // bytes kept free for the rest of the system
	SafetyThreshold     int64 // minimum free bytes to allow a spawn
	CPULoadThreshold    int   // percent; >=200 disables the CPU check
	TabMemoryUsage      int64 // estimated bytes per tab
}

// DefaultMonitorConfig mirrors the limits the scraper ships with.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SafetyReserveMemory: 1 << 30,  // 1GB
		SafetyThreshold:     500 << 20, // 500MB
		CPULoadThreshold:    80,
		TabMemoryUsage:      100 << 20, // 100MB
	}
}

// Monitor samples system memory and CPU in the background so the pool
// can decide whether respawning a crashed tab is safe.
type Monitor struct {
	config      MonitorConfig
	totalMemory uint64

	mu           sync.RWMutex
	lastMemStats runtime.MemStats
	lastCPUUsage float64

	cancel  context.CancelFunc
	running bool
}

// NewMonitor creates a monitor. Total system memory is read once via
// gopsutil; a read failure falls back to a 4GB assumption.
func NewMonitor(config MonitorConfig) *Monitor {
	if config.TabMemoryUsage == 0 {
		config.TabMemoryUsage = 100 << 20
	}

	var totalMem uint64
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		utils.Warnf("reading system memory failed, assuming 4GB: %v", err)
		totalMem = 4 << 30
	} else {
		totalMem = vmStat.Total
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &Monitor{
		config:       config,
		totalMemory:  totalMem,
		lastMemStats: memStats,
	}
}

// Start launches the background sampling loop. Idempotent.
func (m *Monitor) Start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	go m.loop(ctx, interval)
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			usage := m.sampleCPU()

			m.mu.Lock()
			m.lastMemStats = memStats
			m.lastCPUUsage = usage
			m.mu.Unlock()
		}
	}
}

// sampleCPU reads system-wide CPU usage over a short window.
func (m *Monitor) sampleCPU() float64 {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		return 0.0
	}
	return percentages[0]
}

// Stop terminates the sampling loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running && m.cancel != nil {
		m.cancel()
		m.running = false
		m.cancel = nil
	}
}

// CanSpawn reports whether current memory and CPU headroom allow
// launching another browser tab.
func (m *Monitor) CanSpawn() (bool, string) {
	m.mu.RLock()
	memStats := m.lastMemStats
	cpuUsage := m.lastCPUUsage
	m.mu.RUnlock()

	available := int64(m.totalMemory) - int64(memStats.Alloc) - m.config.SafetyReserveMemory
	if available < m.config.SafetyThreshold {
		return false, fmt.Sprintf("low memory (%dMB available)", available/(1<<20))
	}

	if m.config.CPULoadThreshold < 200 && cpuUsage > float64(m.config.CPULoadThreshold) {
		return false, fmt.Sprintf("high CPU load (%.1f%%)", cpuUsage)
	}

	return true, ""
}
