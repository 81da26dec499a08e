package config

import "os"

var envHostname = os.Getenv("HOSTNAME")

// Hostname derives the host identity the lifecycle driver logs at startup.
// It is not part of the stats snapshot. If the HOSTNAME env var is set it
// wins, else it falls back to os.Hostname().
func Hostname() string {
	if envHostname != "" {
		return envHostname
	}
	h, _ := os.Hostname()
	return h
}
