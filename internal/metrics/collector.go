// Package metrics exposes chatmark counters, gauges and histograms in the
// Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewCollector()

// Registry aggregates metrics keyed by name and label set.
type Registry struct {
	counters   sync.Map // name{labels} -> *Counter
	gauges     sync.Map // name{labels} -> *Gauge
	histograms sync.Map // name{labels} -> *Histogram
	startTime  time.Time
}

func NewCollector() *Registry {
	return &Registry{startTime: time.Now()}
}

func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

type series struct {
	name   string
	help   string
	labels string
}

// Counter only goes up.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge goes up and down.
type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks cumulative bucket counts.
type Histogram struct {
	series
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

func key(name, labels string) string { return name + "{" + labels + "}" }

// Counter returns the counter for name and labels, creating it on first use.
func (r *Registry) Counter(name, help, labels string) *Counter {
	k := key(name, labels)
	if v, ok := r.counters.Load(k); ok {
		return v.(*Counter)
	}
	actual, _ := r.counters.LoadOrStore(k, &Counter{series: series{name, help, labels}})
	return actual.(*Counter)
}

func (r *Registry) Gauge(name, help, labels string) *Gauge {
	k := key(name, labels)
	if v, ok := r.gauges.Load(k); ok {
		return v.(*Gauge)
	}
	actual, _ := r.gauges.LoadOrStore(k, &Gauge{series: series{name, help, labels}})
	return actual.(*Gauge)
}

func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	k := key(name, labels)
	if v, ok := r.histograms.Load(k); ok {
		return v.(*Histogram)
	}
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	h := &Histogram{series: series{name, help, labels}, bounds: b, buckets: make([]int64, len(b))}
	actual, _ := r.histograms.LoadOrStore(k, h)
	return actual.(*Histogram)
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteTo(w)
	}
}

// WriteTo renders every series, grouped by name in sorted order.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	sb.WriteString("# HELP chatmark_uptime_seconds Time since start in seconds\n")
	sb.WriteString("# TYPE chatmark_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "chatmark_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	writeScalars(&sb, "counter", collect[*Counter](&r.counters), func(c *Counter) int64 { return c.Value() })
	writeScalars(&sb, "gauge", collect[*Gauge](&r.gauges), func(g *Gauge) int64 { return g.Value() })

	hists := collect[*Histogram](&r.histograms)
	written := map[string]bool{}
	for _, h := range hists {
		if !written[h.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
			written[h.name] = true
		}
		h.mu.Lock()
		for i, le := range h.bounds {
			bound := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				bound = "+Inf"
			}
			fmt.Fprintf(&sb, "%s_bucket{%sle=%q} %d\n", h.name, labelPrefix(h.labels), bound, h.buckets[i])
		}
		fmt.Fprintf(&sb, "%s_count%s %d\n", h.name, braces(h.labels), h.count)
		fmt.Fprintf(&sb, "%s_sum%s %f\n", h.name, braces(h.labels), h.sum)
		h.mu.Unlock()
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

type named interface{ seriesKey() string }

func (s series) seriesKey() string { return key(s.name, s.labels) }

func collect[T named](m *sync.Map) []T {
	var out []T
	m.Range(func(_, v any) bool {
		out = append(out, v.(T))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].seriesKey() < out[j].seriesKey() })
	return out
}

func writeScalars[T interface {
	named
	meta() series
}](sb *strings.Builder, kind string, items []T, value func(T) int64) {
	written := map[string]bool{}
	for _, it := range items {
		s := it.meta()
		if !written[s.name] {
			fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", s.name, s.help, s.name, kind)
			written[s.name] = true
		}
		fmt.Fprintf(sb, "%s%s %d\n", s.name, braces(s.labels), value(it))
	}
}

func (s series) meta() series { return s }

func braces(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

func labelPrefix(labels string) string {
	if labels == "" {
		return ""
	}
	return labels + ","
}
