package config

import "time"

// TestConfig returns a config suitable for testing: in-memory history, no
// backoff, permissive hosts so httptest servers are reachable.
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Search.TTL = time.Minute
	cfg.Search.BackoffStep = time.Millisecond
	cfg.Search.WarmupOnThrottle = false
	cfg.Search.ConnectTimeout = time.Second
	cfg.Search.ReadTimeout = time.Second
	cfg.Search.RequestsPerSecond = 0
	cfg.Search.AllowPrivateHosts = true
	cfg.Fetch.ConnectTimeout = time.Second
	cfg.Fetch.ReadTimeout = time.Second
	cfg.Fetch.CancelGrace = 50 * time.Millisecond
	cfg.Errors.ReportInterval = 50 * time.Millisecond
	cfg.Database.Path = ":memory:"
	cfg.Log.Level = "off"
	cfg.Log.File = ""
	return cfg
}
