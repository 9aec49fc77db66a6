// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for the runtime. It renders the text exposition format without
// requiring the prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	counters   sync.Map // name{labels} -> *Counter
	gauges     sync.Map
	histograms sync.Map
	startTime  time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// --- Registration helpers ---

// Counter returns or creates a counter with the given name and label set.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	actual, _ := c.counters.LoadOrStore(key, &Counter{name: name, help: help, labels: labels})
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name and label set.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	actual, _ := c.gauges.LoadOrStore(key, &Gauge{name: name, help: help, labels: labels})
	return actual.(*Gauge)
}

// Histogram returns or creates a histogram with the given name and label set.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := name + "{" + labels + "}"
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	hb := make([]histBucket, len(sorted))
	for i, b := range sorted {
		hb[i] = histBucket{le: b}
	}
	actual, _ := c.histograms.LoadOrStore(key, &Histogram{name: name, help: help, labels: labels, buckets: hb})
	return actual.(*Histogram)
}

// --- Prometheus text rendering ---

// WriteText renders every metric in Prometheus text format, sorted by key so
// the output is stable.
func (c *MetricsCollector) WriteText(w io.Writer) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP ltl_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE ltl_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "ltl_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	helpWritten := make(map[string]bool)
	for _, ctr := range sortedValues[*Counter](&c.counters) {
		writeHeader(&sb, helpWritten, ctr.name, ctr.help, "counter")
		writeSample(&sb, ctr.name, ctr.labels, fmt.Sprintf("%d", ctr.Value()))
	}

	for _, g := range sortedValues[*Gauge](&c.gauges) {
		writeHeader(&sb, helpWritten, g.name, g.help, "gauge")
		writeSample(&sb, g.name, g.labels, fmt.Sprintf("%d", g.Value()))
	}

	for _, h := range sortedValues[*Histogram](&c.histograms) {
		h.mu.Lock()
		writeHeader(&sb, helpWritten, h.name, h.help, "histogram")
		prefix := h.name + "_bucket{"
		if h.labels != "" {
			prefix += h.labels + ","
		}
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(&sb, "%sle=\"%s\"} %d\n", prefix, le, b.count)
		}
		writeSample(&sb, h.name+"_count", h.labels, fmt.Sprintf("%d", h.count))
		writeSample(&sb, h.name+"_sum", h.labels, fmt.Sprintf("%f", h.sum))
		h.mu.Unlock()
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeHeader(sb *strings.Builder, written map[string]bool, name, help, kind string) {
	if written[name] {
		return
	}
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, kind)
	written[name] = true
}

func writeSample(sb *strings.Builder, name, labels, value string) {
	if labels != "" {
		fmt.Fprintf(sb, "%s{%s} %s\n", name, labels, value)
		return
	}
	fmt.Fprintf(sb, "%s %s\n", name, value)
}

func sortedValues[T any](m *sync.Map) []T {
	var keys []string
	values := make(map[string]T)
	m.Range(func(k, v any) bool {
		keys = append(keys, k.(string))
		values[k.(string)] = v.(T)
		return true
	})
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, values[k])
	}
	return out
}

// --- Pre-defined metrics used across the runtime ---

var (
	TurnsTotal       = Collector.Counter("ltl_turns_total", "Total turns handled", "")
	TurnsDegraded    = Collector.Counter("ltl_turns_degraded_total", "Turns answered with a degraded response", "")
	BackendRequests  = Collector.Counter("ltl_backend_requests_total", "Total backend generation requests", "")
	RetryAttempts    = Collector.Counter("ltl_retry_attempts_total", "Retries performed after a transient failure", "")
	ToolExecutions   = Collector.Counter("ltl_tool_executions_total", "Total tool executions", "")
	ToolFailures     = Collector.Counter("ltl_tool_failures_total", "Tool executions that returned a failure", "")
	CommandsBlocked  = Collector.Counter("ltl_commands_blocked_total", "Shell commands rejected by the deny list", "")
	ResourceLoads    = Collector.Counter("ltl_resource_loads_total", "Model loads into the accelerator slot", "")
	ResourceSwaps    = Collector.Counter("ltl_resource_swaps_total", "Slot swaps between model classes", "")
	ResourceFailures = Collector.Counter("ltl_resource_load_failures_total", "Failed model loads", "")
	ResidentClass    = Collector.Gauge("ltl_resource_resident_class", "Resident class: 0 none, 1 text, 2 vision", "")

	BackendLatency = Collector.Histogram("ltl_backend_latency_seconds", "Backend request latency in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
	ToolLatency = Collector.Histogram("ltl_tool_latency_seconds", "Tool execution latency in seconds", "",
		[]float64{0.1, 0.5, 1, 5, 10, 30})
)
