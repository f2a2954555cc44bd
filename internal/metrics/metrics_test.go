package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanaime/internal/ime"
)

func TestLabelsString(t *testing.T) {
	assert.Equal(t, "", Labels(nil).String())
	assert.Equal(t, `{a="1",b="2"}`, Labels{"b": "2", "a": "1"}.String())
}

func TestRegistryReturnsExisting(t *testing.T) {
	r := NewRegistry("test")

	c1 := r.Counter("hits_total", "Hits", nil)
	c2 := r.Counter("hits_total", "Hits", nil)
	assert.Same(t, c1, c2)

	other := r.Counter("hits_total", "Hits", Labels{"kind": "x"})
	assert.NotSame(t, c1, other)

	assert.Same(t, r.Gauge("open", "Open", nil), r.Gauge("open", "Open", nil))
	assert.Same(t, r.Histogram("d", "D", nil, nil), r.Histogram("d", "D", nil, nil))
}

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("")
	c := r.Counter("c", "", nil)
	c.Inc()
	c.Add(4)
	assert.Equal(t, uint64(5), c.Value())

	g := r.Gauge("g", "", nil)
	g.Inc()
	g.Inc()
	g.Dec()
	assert.Equal(t, int64(1), g.Value())
	g.Set(-3)
	assert.Equal(t, int64(-3), g.Value())
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("h", "", nil, []float64{1, 5, 2})

	for _, v := range []float64{0.5, 1, 3, 10} {
		h.Observe(v)
	}
	assert.Equal(t, uint64(4), h.Count())
	assert.InDelta(t, 14.5, h.Sum(), 1e-9)
	assert.Equal(t, []uint64{2, 2, 3, 4}, h.cumulative())
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("kanaime")
	r.Counter("commits_total", "Commits", Labels{"kind": "literal"}).Add(2)
	r.Counter("commits_total", "Commits", Labels{"kind": "converted"}).Add(7)
	r.Gauge("open_sessions", "Open", nil).Set(3)
	r.Histogram("key_duration_seconds", "Key time", nil, []float64{0.1}).Observe(0.05)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Equal(t, 1, strings.Count(out, "# TYPE kanaime_commits_total counter"))
	converted := strings.Index(out, `kanaime_commits_total{kind="converted"} 7`)
	literal := strings.Index(out, `kanaime_commits_total{kind="literal"} 2`)
	require.NotEqual(t, -1, converted)
	require.NotEqual(t, -1, literal)
	assert.Less(t, converted, literal, "series are sorted")

	assert.Contains(t, out, "kanaime_open_sessions 3")
	assert.Contains(t, out, `kanaime_key_duration_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `kanaime_key_duration_seconds_bucket{le="+Inf"} 1`)
	assert.Contains(t, out, "kanaime_key_duration_seconds_count 1")
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("kanaime")
	r.Counter("sessions_total", "Sessions", nil).Inc()
	handler := r.HTTPHandler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "kanaime_sessions_total 1")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, float64(1), snap["kanaime_sessions_total"])
}

func TestMetricsObserve(t *testing.T) {
	m := New(nil)
	m.Observe([]ime.Command{
		{Text: "か", Kind: ime.CommitConverted},
		{Text: "ky", Kind: ime.CommitVerbatim},
		{Text: "ǃ", Kind: ime.CommitSubstituted},
		{Text: "か", Kind: ime.CommitConverted},
	})

	assert.Equal(t, uint64(2), m.Commits(ime.CommitConverted))
	assert.Equal(t, uint64(1), m.Commits(ime.CommitVerbatim))
	assert.Equal(t, uint64(0), m.Commits(ime.CommitLiteral))
	assert.Equal(t, uint64(1), m.Commits(ime.CommitSubstituted))
	assert.Equal(t, uint64(0), m.Commits(ime.CommitKind(99)))
}

func TestMetricsSessions(t *testing.T) {
	m := New(nil)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.Equal(t, uint64(2), m.SessionsTotal.Value())
	assert.Equal(t, int64(1), m.OpenSessions.Value())

	m.TimeKey(time.Now())
	assert.Equal(t, uint64(1), m.KeyDuration.Count())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "kanaime_uptime_seconds")
	assert.Contains(t, rec.Body.String(), "kanaime_sessions_total 2")
}
