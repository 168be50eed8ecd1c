// metrics.go - Metrics collection for the nullifier daemon
package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MetricsCollector gathers counters, gauges, and latency histograms for the
// daemon. Exposed as JSON on /metrics.
type MetricsCollector struct {
	mu         sync.RWMutex
	startTime  time.Time
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:  time.Now(),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter adds one to a named counter.
func (mc *MetricsCollector) IncrementCounter(name string) {
	mc.mu.Lock()
	mc.counters[name]++
	mc.mu.Unlock()
}

// SetGauge records the latest value of a gauge.
func (mc *MetricsCollector) SetGauge(name string, value float64) {
	mc.mu.Lock()
	mc.gauges[name] = value
	mc.mu.Unlock()
}

// RecordHistogram appends a sample, keeping the last 1000 per series.
func (mc *MetricsCollector) RecordHistogram(name string, value float64) {
	mc.mu.Lock()
	samples := append(mc.histograms[name], value)
	if len(samples) > 1000 {
		samples = samples[len(samples)-1000:]
	}
	mc.histograms[name] = samples
	mc.mu.Unlock()
}

// Summary renders every metric, with min/max/avg for histograms.
func (mc *MetricsCollector) Summary() map[string]any {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	counters := make(map[string]int64, len(mc.counters))
	for name, v := range mc.counters {
		counters[name] = v
	}
	gauges := make(map[string]float64, len(mc.gauges))
	for name, v := range mc.gauges {
		gauges[name] = v
	}
	histograms := make(map[string]map[string]float64, len(mc.histograms))
	for name, samples := range mc.histograms {
		if len(samples) == 0 {
			continue
		}
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)
		sum := 0.0
		for _, v := range sorted {
			sum += v
		}
		histograms[name] = map[string]float64{
			"count": float64(len(sorted)),
			"min":   sorted[0],
			"max":   sorted[len(sorted)-1],
			"avg":   sum / float64(len(sorted)),
			"p50":   sorted[len(sorted)/2],
		}
	}

	return map[string]any{
		"uptime_seconds": time.Since(mc.startTime).Seconds(),
		"counters":       counters,
		"gauges":         gauges,
		"histograms":     histograms,
	}
}

// Handler serves the metrics summary as JSON.
func (mc *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mc.Summary())
	}
}

// Middleware counts requests per status class and records latencies.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		mc.IncrementCounter(MetricRequestCount)
		mc.IncrementCounter("request_status_" + strconv.Itoa(rec.status/100) + "xx")
		mc.RecordHistogram(MetricRequestLatency, time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Predefined metric names
const (
	MetricRequestCount       = "request_count"
	MetricRequestLatency     = "request_latency_seconds"
	MetricRateLimitedCount   = "rate_limited_count"
	MetricEpochRotations     = "epoch_rotations"
	MetricEpochKeysEvicted   = "epoch_keys_evicted"
	MetricMembershipSize     = "membership_size"
	MetricFilterHealthy      = "filter_healthy"
	MetricCircuitCompileTime = "circuit_compile_seconds"
)
