package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanaime/internal/ime"
	"kanaime/internal/romaji"
)

func healthy(ctx context.Context) CheckResult   { return CheckResult{Status: StatusHealthy} }
func unhealthy(ctx context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} }

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(c *Checker)
		before Status
		after  Status
	}{
		{
			name:   "empty",
			setup:  func(c *Checker) {},
			before: StatusHealthy,
			after:  StatusHealthy,
		},
		{
			name: "critical healthy",
			setup: func(c *Checker) {
				c.RegisterFunc("a", true, healthy)
			},
			before: StatusUnknown,
			after:  StatusHealthy,
		},
		{
			name: "critical failure",
			setup: func(c *Checker) {
				c.RegisterFunc("a", true, unhealthy)
				c.RegisterFunc("b", false, healthy)
			},
			before: StatusUnknown,
			after:  StatusUnhealthy,
		},
		{
			name: "non-critical failure",
			setup: func(c *Checker) {
				c.RegisterFunc("a", true, healthy)
				c.RegisterFunc("b", false, unhealthy)
			},
			before: StatusUnknown,
			after:  StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			tt.setup(c)
			assert.Equal(t, tt.before, c.OverallStatus())
			c.Check(context.Background())
			assert.Equal(t, tt.after, c.OverallStatus())
		})
	}
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			time.Sleep(time.Second)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("panics", false, func(ctx context.Context) CheckResult {
		panic("boom")
	})

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, StatusUnhealthy, results["panics"].Status)
	assert.Equal(t, "boom", results["panics"].Error)
	assert.False(t, results["slow"].LastChecked.IsZero())
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck("store", func(ctx context.Context) error { return nil })(context.Background())
	assert.Equal(t, StatusHealthy, ok.Status)
	assert.Equal(t, "store ok", ok.Message)

	bad := PingCheck("store", func(ctx context.Context) error { return errors.New("locked") })(context.Background())
	assert.Equal(t, StatusUnhealthy, bad.Status)
	assert.Equal(t, "locked", bad.Error)
}

func TestCustomCheck(t *testing.T) {
	assert.Equal(t, StatusHealthy, CustomCheck(func() error { return nil })(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, CustomCheck(func() error { return errors.New("x") })(context.Background()).Status)
}

func TestSessionsCheck(t *testing.T) {
	sessions := ime.NewSessionManager(ime.NewFactory(ime.FactoryOptions{}))
	sessions.Open(ime.SessionOptions{})

	res := SessionsCheck(sessions)(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, 1, res.Details["open_sessions"])
	assert.Equal(t, romaji.Default().Len(), res.Details["dictionary_keys"])

	empty, err := romaji.New(nil)
	require.NoError(t, err)
	sessions.SetFactory(ime.NewFactory(ime.FactoryOptions{Dictionary: empty}))
	res = SessionsCheck(sessions)(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("a", true, healthy)

	rec := httptest.NewRecorder()
	c.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var brief Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &brief))
	assert.Equal(t, StatusHealthy, brief.Status)
	assert.True(t, brief.Ready)
	assert.Empty(t, brief.Components)

	rec = httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz?full=true", nil))
	var full Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.Contains(t, full.Components, "a")

	c.RegisterFunc("b", true, unhealthy)
	assert.Equal(t, []string{"a", "b"}, c.Names())
	rec = httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
