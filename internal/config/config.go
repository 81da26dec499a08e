// Package config parses the CLI surface described in spec.md §6: the
// legacy positional worker-launch arguments plus named flags for every
// constant spec.md §3/§4 otherwise hard-codes.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Config is the fully resolved set of tunables for one process lifetime.
type Config struct {
	N           int    // initial worker count
	Application string // worker executable path
	URLBase     string // scheme+host prefix for worker URLs
	Endpoint    string // legacy suffix default, unused by path-forwarding proxy

	Listen           string
	PrometheusListen string

	MinServices      int
	MaxServices      int
	ServicePortStart int
	Cooldown         time.Duration
	SampleTime       time.Duration
	MinSamples       int
	ForwardTimeout   time.Duration
	StatsInterval    time.Duration

	LogLevel string
	LogJSON  bool
}

// Parse builds a Config from args (pass os.Args[1:] in production; tests
// pass a synthetic slice). Positional arguments follow the teacher's
// flag.Arg(N) convention: N, application, URL_BASE, ENDPOINT, all optional.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("loadbalancer", flag.ContinueOnError)

	listen := fs.String("listen", "0.0.0.0:5000", "HTTP address to listen on")
	prometheusListen := fs.String("prometheus", ":6060", "address to publish Prometheus metrics on, empty to disable")
	minServices := fs.Int("min-services", 1, "minimum fleet size")
	maxServices := fs.Int("max-services", 4, "maximum fleet size")
	portStart := fs.Int("service-port-start", 8000, "first port allocated to a worker")
	cooldown := fs.Duration("cooldown", 6*time.Second, "minimum interval between scaling decisions")
	sampleTime := fs.Duration("sample-time", 2*time.Second, "autoscaler evaluation interval")
	minSamples := fs.Int("min-samples", 5, "minimum latency samples required before an autoscaler evaluation acts")
	forwardTimeout := fs.Duration("forward-timeout", 30*time.Second, "per-request forward timeout to a worker")
	statsInterval := fs.Duration("stats-interval", time.Second, "stats aggregator publish interval")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	logJSON := fs.Bool("log-json", false, "emit logs as JSON instead of console text")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		N:                1,
		Application:      "app.py",
		URLBase:          "http://localhost",
		Endpoint:         "/process",
		Listen:           *listen,
		PrometheusListen: *prometheusListen,
		MinServices:      *minServices,
		MaxServices:      *maxServices,
		ServicePortStart: *portStart,
		Cooldown:         *cooldown,
		SampleTime:       *sampleTime,
		MinSamples:       *minSamples,
		ForwardTimeout:   *forwardTimeout,
		StatsInterval:    *statsInterval,
		LogLevel:         *logLevel,
		LogJSON:          *logJSON,
	}

	rest := fs.Args()
	if len(rest) > 0 {
		var n int
		if _, err := fmt.Sscanf(rest[0], "%d", &n); err != nil {
			return Config{}, fmt.Errorf("parse N: %w", err)
		}
		cfg.N = n
	}
	if len(rest) > 1 {
		cfg.Application = rest[1]
	}
	if len(rest) > 2 {
		cfg.URLBase = rest[2]
	}
	if len(rest) > 3 {
		cfg.Endpoint = rest[3]
	}

	if cfg.MinServices > cfg.MaxServices {
		return Config{}, fmt.Errorf("min-services (%d) exceeds max-services (%d)", cfg.MinServices, cfg.MaxServices)
	}
	if cfg.N < cfg.MinServices || cfg.N > cfg.MaxServices {
		return Config{}, fmt.Errorf("initial worker count N=%d outside [min-services=%d, max-services=%d]", cfg.N, cfg.MinServices, cfg.MaxServices)
	}

	return cfg, nil
}
