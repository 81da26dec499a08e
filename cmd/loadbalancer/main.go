// Command loadbalancer is the lifecycle driver for the autoscaling worker
// load balancer (spec.md §4.H): it spawns the initial fleet, launches the
// autoscaler and stats aggregator, serves the proxy/dashboard/stats HTTP
// surface, and tears the fleet down on shutdown.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Death-Raider/dynamic-load-balancer/internal/autoscaler"
	"github.com/Death-Raider/dynamic-load-balancer/internal/config"
	"github.com/Death-Raider/dynamic-load-balancer/internal/fleet"
	"github.com/Death-Raider/dynamic-load-balancer/internal/latency"
	"github.com/Death-Raider/dynamic-load-balancer/internal/logging"
	"github.com/Death-Raider/dynamic-load-balancer/internal/metrics"
	"github.com/Death-Raider/dynamic-load-balancer/internal/proxy"
	"github.com/Death-Raider/dynamic-load-balancer/internal/resourceprobe"
	"github.com/Death-Raider/dynamic-load-balancer/internal/stats"
	"github.com/Death-Raider/dynamic-load-balancer/internal/supervisor"
)

//go:embed dashboard.html
var dashboardHTML []byte

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		logging.Logger.Fatal().Err(err).Msg("invalid configuration")
		return 2
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	log := logging.Component("lifecycle")

	log.Info().
		Str("hostname", config.Hostname()).
		Int("n", cfg.N).
		Str("application", cfg.Application).
		Str("url_base", cfg.URLBase).
		Msg("starting load balancer")

	if cfg.PrometheusListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.PrometheusListen, mux); err != nil {
				log.Warn().Err(err).Msg("prometheus listener stopped")
			}
		}()
	}

	f := fleet.New()
	window := latency.New(latency.DefaultCapacity)
	sup := supervisor.New(f, cfg.Application, cfg.MinServices, uint16(cfg.ServicePortStart), logging.Component("supervisor"))

	for i := 0; i < cfg.N; i++ {
		port := uint16(cfg.ServicePortStart + i)
		if err := sup.Spawn(port); err != nil {
			log.Fatal().Err(err).Uint16("port", port).Msg("failed to start initial fleet")
			return 1
		}
	}
	metrics.FleetSize.Set(float64(f.Len()))

	history := autoscaler.NewHistory(1000)
	ascCfg := autoscaler.Config{
		SampleTime:  cfg.SampleTime,
		MinSamples:  cfg.MinSamples,
		Cooldown:    cfg.Cooldown,
		MinServices: cfg.MinServices,
		MaxServices: cfg.MaxServices,
	}
	asc := autoscaler.New(ascCfg, f, window, sup, history, logging.Component("autoscaler"))

	probe := resourceprobe.NewGopsutilProbe(200 * time.Millisecond)
	agg := stats.New(cfg.StatsInterval, f, window, history, probe, sup.PID, logging.Component("stats"))

	ctx, cancel := context.WithCancel(context.Background())
	go asc.Run(ctx)
	go agg.Run(ctx)

	handler := proxy.New(f, window, cfg.URLBase, cfg.ForwardTimeout, logging.Component("proxy"))

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			handler.ServeHTTP(w, r)
			return
		}
		withCORS(w)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(dashboardHTML)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		withCORS(w)
		writeJSON(w, agg.Latest())
	})
	mux.HandleFunc("/plot/", func(w http.ResponseWriter, r *http.Request) {
		// Plot rendering is an external collaborator (spec.md §1); the
		// core only exposes the /stats snapshot it is rendered from.
		http.NotFound(w, r)
	})

	server := &http.Server{Addr: cfg.Listen, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("listener failed")
			cancel()
			sup.Cleanup()
			return 1
		}
	case <-sigCh:
		log.Info().Msg("shutdown signal received")
	}

	cancel()
	_ = server.Close() // immediate; does not wait for in-flight requests to drain (spec.md §9(c))
	sup.Cleanup()
	log.Info().Msg("clean shutdown")
	return 0
}

func withCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
