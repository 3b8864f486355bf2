package reservebase

import "time"

// Metrics provides observability for storage operations
type Metrics interface {
	// Increment increases a counter by 1
	Increment(name string, tags ...string)

	// Gauge sets an absolute value
	Gauge(name string, value float64, tags ...string)

	// Histogram records a value distribution (latency, result counts)
	Histogram(name string, value float64, tags ...string)

	// Timing records a duration
	Timing(name string, duration time.Duration, tags ...string)
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func (m *NoOpMetrics) Increment(name string, tags ...string)                      {}
func (m *NoOpMetrics) Gauge(name string, value float64, tags ...string)           {}
func (m *NoOpMetrics) Histogram(name string, value float64, tags ...string)       {}
func (m *NoOpMetrics) Timing(name string, duration time.Duration, tags ...string) {}

// InMemoryMetrics stores metrics in memory for testing
type InMemoryMetrics struct {
	Counters   map[string]int
	Gauges     map[string]float64
	Histograms map[string][]float64
	Timings    map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		Counters:   make(map[string]int),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string][]float64),
		Timings:    make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Increment(name string, tags ...string) {
	m.Counters[name]++
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...string) {
	m.Gauges[name] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...string) {
	m.Histograms[name] = append(m.Histograms[name], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...string) {
	m.Timings[name] = append(m.Timings[name], duration)
}

// Common metric names
const (
	MetricGetSuccess    = "reservebase.get.success"
	MetricGetError      = "reservebase.get.error"
	MetricGetDuration   = "reservebase.get.duration"
	MetricPutSuccess    = "reservebase.put.success"
	MetricPutError      = "reservebase.put.error"
	MetricPutDuration   = "reservebase.put.duration"
	MetricDeleteSuccess = "reservebase.delete.success"
	MetricDeleteError   = "reservebase.delete.error"

	MetricQueryNative     = "reservebase.query.native"
	MetricQueryFallback   = "reservebase.query.fallback"
	MetricQueryDuration   = "reservebase.query.duration"
	MetricQueryResults    = "reservebase.query.results"
	MetricQueryBothFailed = "reservebase.query.both_failed"

	MetricIndexAdd        = "reservebase.index.add"
	MetricIndexErrors     = "reservebase.index.errors"
	MetricIndexStaleSkips = "reservebase.index.stale_skips"
	MetricIndexRebuilds   = "reservebase.index.rebuilds"

	MetricAdvisoryErrors = "reservebase.advisory.errors"

	MetricIntegrityFailures = "reservebase.integrity.failures"
)
