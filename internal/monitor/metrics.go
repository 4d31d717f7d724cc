// Package monitor tracks operational counters for the options core.
package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall system performance.
type SystemMetrics struct {
	// Latency histograms
	APILatency        *LatencyHistogram
	SettlementLatency *LatencyHistogram

	// Counters
	apiRequests      uint64
	apiErrors        uint64
	tradesSettled    uint64
	sweepPasses      uint64
	approvalsHandled uint64

	lastUpdate time.Time
}

// LatencyHistogram tracks latency samples with a sliding window and lazily
// computed stats.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		APILatency:        NewLatencyHistogram(1000),
		SettlementLatency: NewLatencyHistogram(1000),
		lastUpdate:        time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99, recomputing only when samples
// have changed.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementAPI increments the API request counter.
func (m *SystemMetrics) IncrementAPI() {
	atomic.AddUint64(&m.apiRequests, 1)
}

// IncrementAPIErrors increments the API error counter.
func (m *SystemMetrics) IncrementAPIErrors() {
	atomic.AddUint64(&m.apiErrors, 1)
}

// IncrementSettled increments the settled trade counter.
func (m *SystemMetrics) IncrementSettled() {
	atomic.AddUint64(&m.tradesSettled, 1)
}

// IncrementSweeps increments the sweep pass counter.
func (m *SystemMetrics) IncrementSweeps() {
	atomic.AddUint64(&m.sweepPasses, 1)
}

// IncrementApprovals increments the handled approval counter.
func (m *SystemMetrics) IncrementApprovals() {
	atomic.AddUint64(&m.approvalsHandled, 1)
}

// MetricsSnapshot is a point-in-time view for the admin metrics endpoint.
type MetricsSnapshot struct {
	APILatency        LatencyStats `json:"api_latency"`
	SettlementLatency LatencyStats `json:"settlement_latency"`
	APIRequests       uint64       `json:"api_requests"`
	APIErrors         uint64       `json:"api_errors"`
	TradesSettled     uint64       `json:"trades_settled"`
	SweepPasses       uint64       `json:"sweep_passes"`
	ApprovalsHandled  uint64       `json:"approvals_handled"`
	GoroutineCount    int          `json:"goroutine_count"`
	HeapAlloc         uint64       `json:"heap_alloc_bytes"`
	Timestamp         time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		APILatency:        m.APILatency.Stats(),
		SettlementLatency: m.SettlementLatency.Stats(),
		APIRequests:       atomic.LoadUint64(&m.apiRequests),
		APIErrors:         atomic.LoadUint64(&m.apiErrors),
		TradesSettled:     atomic.LoadUint64(&m.tradesSettled),
		SweepPasses:       atomic.LoadUint64(&m.sweepPasses),
		ApprovalsHandled:  atomic.LoadUint64(&m.approvalsHandled),
		GoroutineCount:    runtime.NumGoroutine(),
		HeapAlloc:         memStats.HeapAlloc,
		Timestamp:         time.Now(),
	}
}
