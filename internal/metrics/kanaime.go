package metrics

import (
	"net/http"
	"time"

	"kanaime/internal/ime"
)

// Metrics holds the kanaime metrics shared by all hosts.
type Metrics struct {
	registry *Registry

	commits map[ime.CommitKind]*Counter

	SessionsTotal *Counter
	MessagesTotal *Counter
	ErrorsTotal   *Counter

	OpenSessions  *Gauge
	Connections   *Gauge
	UptimeSeconds *Gauge

	KeyDuration *Histogram

	start time.Time
}

// New registers the kanaime metrics on registry. A nil registry gets a fresh
// one in the "kanaime" namespace.
func New(registry *Registry) *Metrics {
	if registry == nil {
		registry = NewRegistry("kanaime")
	}

	m := &Metrics{
		registry: registry,
		commits:  make(map[ime.CommitKind]*Counter),

		SessionsTotal: registry.Counter(
			"sessions_total",
			"Total number of sessions opened",
			nil,
		),
		MessagesTotal: registry.Counter(
			"messages_total",
			"Total number of websocket messages handled",
			nil,
		),
		ErrorsTotal: registry.Counter(
			"errors_total",
			"Total number of rejected messages and symbols",
			nil,
		),

		OpenSessions: registry.Gauge(
			"open_sessions",
			"Number of currently open sessions",
			nil,
		),
		Connections: registry.Gauge(
			"connections",
			"Number of open websocket connections",
			nil,
		),
		UptimeSeconds: registry.Gauge(
			"uptime_seconds",
			"Number of seconds the host has been running",
			nil,
		),

		KeyDuration: registry.Histogram(
			"key_duration_seconds",
			"Time spent handling one key",
			nil,
			DurationBuckets,
		),

		start: time.Now(),
	}

	for _, kind := range []ime.CommitKind{
		ime.CommitConverted,
		ime.CommitVerbatim,
		ime.CommitLiteral,
		ime.CommitSubstituted,
	} {
		m.commits[kind] = registry.Counter(
			"commits_total",
			"Total number of committed commands by kind",
			Labels{"kind": kind.String()},
		)
	}
	return m
}

var _ ime.CommitObserver = (*Metrics)(nil)

// Observe counts committed commands by kind.
func (m *Metrics) Observe(cmds []ime.Command) {
	for _, cmd := range cmds {
		if c, ok := m.commits[cmd.Kind]; ok {
			c.Inc()
		}
	}
}

// Commits returns the number of commands committed with kind.
func (m *Metrics) Commits(kind ime.CommitKind) uint64 {
	if c, ok := m.commits[kind]; ok {
		return c.Value()
	}
	return 0
}

// SessionOpened records a new session.
func (m *Metrics) SessionOpened() {
	m.SessionsTotal.Inc()
	m.OpenSessions.Inc()
}

// SessionClosed records a closed session.
func (m *Metrics) SessionClosed() {
	m.OpenSessions.Dec()
}

// TimeKey records how long one key took since start.
func (m *Metrics) TimeKey(start time.Time) {
	m.KeyDuration.ObserveDuration(time.Since(start))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *Registry {
	return m.registry
}

// Handler serves the registry, refreshing the uptime gauge on each scrape.
func (m *Metrics) Handler() http.Handler {
	inner := m.registry.HTTPHandler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.UptimeSeconds.Set(int64(time.Since(m.start).Seconds()))
		inner.ServeHTTP(w, r)
	})
}
