// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package diagnostics periodically logs memory and goroutine counts for the
// long-lived hub process, which accumulates one goroutine pair per
// connection and one timer per in-flight RPC call — exactly the kind of
// process a goroutine leak is easy to miss in without a periodic check.
package diagnostics

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls Monitor's reporting cadence and thresholds.
type Config struct {
	Interval          time.Duration
	WarningThreshold  uint64 // heap bytes
	CriticalThreshold uint64 // heap bytes
}

// DefaultConfig mirrors the thresholds appropriate for a small, mostly-idle
// network service: a few hundred connections, no heavy allocation.
func DefaultConfig() Config {
	return Config{
		Interval:          30 * time.Second,
		WarningThreshold:  512 * 1024 * 1024,
		CriticalThreshold: 1536 * 1024 * 1024,
	}
}

// Monitor periodically logs heap and goroutine stats.
type Monitor struct {
	cfg Config
	log *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	prevNumGC uint32
	prevAlloc uint64
}

// NewMonitor builds a Monitor that has not yet started logging.
func NewMonitor(cfg Config, log *zap.Logger) *Monitor {
	if cfg.Interval == 0 {
		cfg = DefaultConfig()
	}
	return &Monitor{cfg: cfg, log: log, stopCh: make(chan struct{})}
}

// Start begins periodic logging in a background goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop halts the monitor and waits for its goroutine to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	m.report("startup")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			m.report("shutdown")
			return
		case <-ticker.C:
			m.report("periodic")
		}
	}
}

func (m *Monitor) report(reason string) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	gcRuns := ms.NumGC - m.prevNumGC
	allocDelta := ms.TotalAlloc - m.prevAlloc
	m.prevNumGC = ms.NumGC
	m.prevAlloc = ms.TotalAlloc

	fields := []zap.Field{
		zap.String("reason", reason),
		zap.Float64("heapMB", float64(ms.HeapAlloc)/(1024*1024)),
		zap.Float64("sysMB", float64(ms.Sys)/(1024*1024)),
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.Uint32("gcRuns", gcRuns),
		zap.Float64("allocDeltaMB", float64(allocDelta)/(1024*1024)),
	}

	switch {
	case ms.HeapAlloc >= m.cfg.CriticalThreshold:
		m.log.Error("memory diagnostics", fields...)
	case ms.HeapAlloc >= m.cfg.WarningThreshold:
		m.log.Warn("memory diagnostics", fields...)
	default:
		m.log.Debug("memory diagnostics", fields...)
	}
}
