// Package proxy implements the per-request dispatch path (spec.md §4.E):
// pick a worker, forward the request, record latency, merge or pass
// through the worker's response.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Death-Raider/dynamic-load-balancer/internal/fleet"
	"github.com/Death-Raider/dynamic-load-balancer/internal/latency"
	"github.com/Death-Raider/dynamic-load-balancer/internal/metrics"
)

// noWorkersMessage is the literal wire text for the cold-start error body
// (spec.md §8 seed scenario 1), kept distinct from ErrNoWorkers.Error()'s
// lowercase Go-idiomatic form.
const noWorkersMessage = "No services available"

// ErrNoWorkers names the NoWorkers condition (spec.md §7): the fleet has
// no live members at dispatch time. ServeHTTP does not return it; it
// answers that case directly with a 501 and noWorkersMessage.
var ErrNoWorkers = errors.New("no services available")

// DefaultTimeout is the bounded per-request forward timeout (spec.md §4.E).
const DefaultTimeout = 30 * time.Second

// Handler forwards inbound requests to the fleet and records latency.
// It must never hold the fleet or window locks across the outbound call;
// fleet.PickNext is lock-free and Fleet.Worker and Window.Append lock only
// internally, so the handler itself never acquires a mutex directly.
type Handler struct {
	Fleet   *fleet.Fleet
	Window  *latency.Window
	URLBase string
	Timeout time.Duration
	Client  *http.Client
	Log     zerolog.Logger
}

// New builds a Handler with a dedicated http.Client honoring Timeout and
// following redirects (the http.Client default), matching spec.md §6.
func New(f *fleet.Fleet, w *latency.Window, urlBase string, timeout time.Duration, log zerolog.Logger) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{
		Fleet:   f,
		Window:  w,
		URLBase: urlBase,
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
		Log:     log,
	}
}

// ServeHTTP implements spec.md §4.E step by step.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tReceived := time.Now()

	port, ok := h.Fleet.PickNext()
	if !ok {
		writeJSONError(w, http.StatusNotImplemented, noWorkersMessage)
		return
	}
	if worker, ok := h.Fleet.Worker(port); ok {
		worker.Incr()
	}

	suffix := strings.TrimPrefix(r.URL.Path, "/")
	target := fmt.Sprintf("%s:%d/%s", h.URLBase, port, suffix)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	outReq, err := http.NewRequestWithContext(ctx, r.Method, target, bytes.NewReader(body))
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	outReq.Header = r.Header.Clone()

	resp, err := h.Client.Do(outReq)
	if err != nil {
		h.Log.Warn().Err(err).Uint16("port", port).Msg("transport failure forwarding to worker")
		metrics.TransportFailureTotal.Inc()
		writeJSONTransportError(w, err, port)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TransportFailureTotal.Inc()
		writeJSONTransportError(w, err, port)
		return
	}

	tReturn := time.Now()
	lbHandleTime := tReturn.Sub(tReceived).Seconds()

	// Record the sample only after a complete round trip — a failed request
	// above never reaches here, so the latency sample for a failed request
	// is never recorded (spec.md §7). The per-worker counter was already
	// bumped at pick time, so it counts every dispatch to the worker.
	h.Window.Append(lbHandleTime)
	metrics.HandleTime.Observe(lbHandleTime)
	metrics.DispatchTotal.WithLabelValues(strconv.Itoa(int(port))).Inc()

	timeline := map[string]float64{
		"ts_lb_received": float64(tReceived.UnixNano()) / 1e9,
		"ts_lb_returned": float64(tReturn.UnixNano()) / 1e9,
	}

	var asJSON map[string]interface{}
	if err := json.Unmarshal(respBody, &asJSON); err == nil {
		asJSON["service_port"] = port
		asJSON["timeline"] = timeline
		asJSON["lb_handle_time"] = lbHandleTime

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_ = json.NewEncoder(w).Encode(asJSON)
		return
	}

	// Not JSON: pass through status, headers, and body verbatim.
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSONTransportError(w http.ResponseWriter, err error, port uint16) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   err.Error(),
		"service": port,
	})
}
