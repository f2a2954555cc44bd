// Package metrics exposes kanaime counters, gauges and histograms in the
// Prometheus text format, with a JSON snapshot for humans.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType is the exposition TYPE of a series.
type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
)

// Labels are constant label pairs attached to a series.
type Labels map[string]string

// String renders l as {k="v",...} with keys sorted, or "" when empty.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, l[k])
	}
	b.WriteByte('}')
	return b.String()
}

// with returns the label string with one extra pair appended, for bucket
// lines.
func (l Labels) with(key, value string) string {
	base := l.String()
	pair := fmt.Sprintf("%s=%q}", key, value)
	if base == "" {
		return "{" + pair
	}
	return base[:len(base)-1] + "," + pair
}

// desc identifies a series.
type desc struct {
	name   string
	help   string
	labels Labels
}

func (d desc) id() string { return d.name + d.labels.String() }

// series is anything the registry can expose.
type series interface {
	describe() desc
	kind() MetricType
	expose(w io.Writer)
	snapshot(into map[string]any)
}

// Counter only goes up.
type Counter struct {
	desc
	n atomic.Uint64
}

func (c *Counter) Inc()          { c.n.Add(1) }
func (c *Counter) Add(v uint64)  { c.n.Add(v) }
func (c *Counter) Value() uint64 { return c.n.Load() }

func (c *Counter) describe() desc   { return c.desc }
func (c *Counter) kind() MetricType { return TypeCounter }
func (c *Counter) expose(w io.Writer) {
	fmt.Fprintf(w, "%s %d\n", c.id(), c.Value())
}
func (c *Counter) snapshot(into map[string]any) { into[c.id()] = c.Value() }

// Gauge moves both ways.
type Gauge struct {
	desc
	n atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.n.Store(v) }
func (g *Gauge) Inc()         { g.n.Add(1) }
func (g *Gauge) Dec()         { g.n.Add(-1) }
func (g *Gauge) Value() int64 { return g.n.Load() }

func (g *Gauge) describe() desc   { return g.desc }
func (g *Gauge) kind() MetricType { return TypeGauge }
func (g *Gauge) expose(w io.Writer) {
	fmt.Fprintf(w, "%s %d\n", g.id(), g.Value())
}
func (g *Gauge) snapshot(into map[string]any) { into[g.id()] = g.Value() }

// DurationBuckets are upper bounds in seconds for per-key timings, which sit
// well under a millisecond.
var DurationBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
}

// Histogram counts observations into fixed buckets. Bounds are inclusive.
type Histogram struct {
	desc
	bounds []float64

	mu    sync.Mutex
	hits  []uint64 // one per bound, then +Inf
	sum   float64
	total uint64
}

func newHistogram(d desc, bounds []float64) *Histogram {
	if bounds == nil {
		bounds = DurationBuckets
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	return &Histogram{desc: d, bounds: sorted, hits: make([]uint64, len(sorted)+1)}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.hits[sort.SearchFloat64s(h.bounds, v)]++
	h.sum += v
	h.total++
	h.mu.Unlock()
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Count is the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Sum is the total of observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// cumulative turns per-bucket hits into running totals. Callers hold mu.
func (h *Histogram) cumulative() []uint64 {
	out := make([]uint64, len(h.hits))
	var running uint64
	for i, n := range h.hits {
		running += n
		out[i] = running
	}
	return out
}

func (h *Histogram) describe() desc   { return h.desc }
func (h *Histogram) kind() MetricType { return TypeHistogram }

func (h *Histogram) expose(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cum := h.cumulative()
	for i, bound := range h.bounds {
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.with("le", fmt.Sprintf("%g", bound)), cum[i])
	}
	fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.with("le", "+Inf"), cum[len(h.bounds)])
	fmt.Fprintf(w, "%s_sum%s %g\n", h.name, h.labels.String(), h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, h.labels.String(), h.total)
}

func (h *Histogram) snapshot(into map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	into[h.name+"_sum"+h.labels.String()] = h.sum
	into[h.name+"_count"+h.labels.String()] = h.total
}

// Registry owns every series of one process.
type Registry struct {
	namespace string

	mu     sync.RWMutex
	series map[string]series
}

// NewRegistry returns an empty registry. Names get a namespace_ prefix
// unless namespace is empty.
func NewRegistry(namespace string) *Registry {
	return &Registry{namespace: namespace, series: make(map[string]series)}
}

func (r *Registry) desc(name, help string, labels Labels) desc {
	if r.namespace != "" {
		name = r.namespace + "_" + name
	}
	return desc{name: name, help: help, labels: labels}
}

// lookup returns the series registered under d, creating it with mk if
// there is none.
func lookup[T series](r *Registry, d desc, mk func(desc) T) T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.series[d.id()].(T); ok {
		return s
	}
	s := mk(d)
	r.series[d.id()] = s
	return s
}

// Counter returns the counter for name and labels, registering it first if
// needed.
func (r *Registry) Counter(name, help string, labels Labels) *Counter {
	return lookup(r, r.desc(name, help, labels), func(d desc) *Counter { return &Counter{desc: d} })
}

// Gauge returns the gauge for name and labels.
func (r *Registry) Gauge(name, help string, labels Labels) *Gauge {
	return lookup(r, r.desc(name, help, labels), func(d desc) *Gauge { return &Gauge{desc: d} })
}

// Histogram returns the histogram for name and labels. Buckets only apply
// on first registration; nil means DurationBuckets.
func (r *Registry) Histogram(name, help string, labels Labels, buckets []float64) *Histogram {
	return lookup(r, r.desc(name, help, labels), func(d desc) *Histogram { return newHistogram(d, buckets) })
}

// sorted returns the series ordered by name, then labels.
func (r *Registry) sorted() []series {
	out := make([]series, 0, len(r.series))
	for _, s := range r.series {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].describe(), out[j].describe()
		if a.name != b.name {
			return a.name < b.name
		}
		return a.labels.String() < b.labels.String()
	})
	return out
}

// WritePrometheus writes the text exposition format. HELP and TYPE appear
// once per metric name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	last := ""
	for _, s := range r.sorted() {
		d := s.describe()
		if d.name != last {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", d.name, d.help, d.name, s.kind())
			last = d.name
		}
		s.expose(w)
	}
	return nil
}

// Snapshot returns current values keyed by series. Histograms contribute
// their _sum and _count.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]any, len(r.series))
	for _, s := range r.series {
		s.snapshot(snap)
	}
	return snap
}

// HTTPHandler serves the text format, or the JSON snapshot to clients that
// accept application/json.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			_ = enc.Encode(r.Snapshot())
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = r.WritePrometheus(w)
	})
}
