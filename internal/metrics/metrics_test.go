package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SignalsTotal.WithLabelValues("BTC-USDT", "BUY").Inc()
	m.SetEnabled("BTC-USDT", true)
	m.SetEnabled("ETH-USDT", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignalsTotal.WithLabelValues("BTC-USDT", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetectorEnabled.WithLabelValues("BTC-USDT")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DetectorEnabled.WithLabelValues("ETH-USDT")))

	// A second set on a fresh registry must not panic.
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
	// Registering twice on the same registry must.
	assert.Panics(t, func() { NewMetrics(reg) })
}

func healthBody(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth_Status(t *testing.T) {
	h := NewHealthStatus()
	code, body := healthBody(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])

	h.SetRedisConnected(true)
	h.SetConsumerOK(true)
	code, body = healthBody(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])

	h.SetSQLiteOK(true)
	h.SetPairs([]string{"BTC-USDT"})
	h.SetLastTickTime(time.Now())
	code, body = healthBody(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, []any{"BTC-USDT"}, body["pairs"])
	assert.NotEmpty(t, body["tick_age"])
}

func TestHealth_CheckSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	h := NewHealthStatus()
	h.CheckSQLite(context.Background(), db)
	assert.True(t, h.SQLiteOK)

	db.Close()
	h.CheckSQLite(context.Background(), db)
	assert.False(t, h.SQLiteOK)
}

func TestServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.TicksTotal.WithLabelValues("BTC-USDT").Add(3)

	srv := httptest.NewServer(NewServer(":0", reg, NewHealthStatus()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), `sigengine_ticks_total{pair="BTC-USDT"} 3`))

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
