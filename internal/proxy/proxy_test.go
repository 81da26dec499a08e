package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Death-Raider/dynamic-load-balancer/internal/fleet"
	"github.com/Death-Raider/dynamic-load-balancer/internal/latency"
	"github.com/Death-Raider/dynamic-load-balancer/internal/logging"
)

func portAndBase(t *testing.T, rawURL string) (uint16, string) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	p, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return uint16(p), u.Scheme + "://" + u.Hostname()
}

func TestColdStartEmptyFleetReturns501(t *testing.T) {
	f := fleet.New()
	w := latency.New(10)
	h := New(f, w, "http://localhost", time.Second, logging.Component("test"))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "No services available", body["error"])
}

func TestHappyPathMergesReservedFields(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"x": 42})
	}))
	defer worker.Close()

	port, base := portAndBase(t, worker.URL)

	f := fleet.New()
	f.Add(port)
	win := latency.New(10)
	h := New(f, win, base, time.Second, logging.Component("test"))

	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 42, body["x"])
	assert.EqualValues(t, port, body["service_port"])
	assert.Contains(t, body, "timeline")
	assert.Contains(t, body, "lb_handle_time")

	assert.Equal(t, 1, win.Len())
	wk, ok := f.Worker(port)
	require.True(t, ok)
	assert.EqualValues(t, 1, wk.RequestCount())
}

func TestNonJSONBodyPassesThroughVerbatim(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("not json"))
	}))
	defer worker.Close()

	port, base := portAndBase(t, worker.URL)
	f := fleet.New()
	f.Add(port)
	win := latency.New(10)
	h := New(f, win, base, time.Second, logging.Component("test"))

	req := httptest.NewRequest(http.MethodGet, "/raw", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "not json", rec.Body.String())
}

func TestTransportFailureReturns502AndDropsSample(t *testing.T) {
	f := fleet.New()
	f.Add(9) // nothing listens on a bare low port number like this in test env
	win := latency.New(10)
	h := New(f, win, "http://127.0.0.1", 200*time.Millisecond, logging.Component("test"))

	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 9, body["service"])
	assert.Equal(t, 0, win.Len(), "failed request must not record a latency sample")
}
