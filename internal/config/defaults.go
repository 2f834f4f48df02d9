package config

import (
	"strconv"
	"time"

	"github.com/wesleyorama2/paybench/internal/workload"
)

const (
	DefaultBaseURL             = "http://localhost:9999"
	DefaultTimeout             = 30 * time.Second
	DefaultGracefulStop        = 30 * time.Second
	DefaultTickInterval        = 100 * time.Millisecond
	DefaultMaxIdleConnsPerHost = 100
	DefaultAmountMin           = 10.0
	DefaultAmountMax           = 1010.0

	p98MillisPerSecond = 80
	p99MillisPerSecond = 100
)

// DefaultWindows are the summary lookback windows queried when none are configured.
var DefaultWindows = []string{"5s", "10s", "15s", "20s"}

// Default returns the built-in test: a 30s population ramp to 100 VUs
// followed by 60s of summary reads from 2 VUs, with latency limits that
// grow with the lookback window.
func Default() *TestConfig {
	cfg := &TestConfig{
		Name: "payments-summary",
		Settings: Settings{
			BaseURL: DefaultBaseURL,
		},
		Stages: []StageConfig{
			{Duration: "30s", Target: 100, Kind: "populate", Name: "populate"},
			{Duration: "60s", Target: 2, Kind: "measure", Name: "measure"},
		},
		Measure: MeasureConfig{
			Windows: append([]string(nil), DefaultWindows...),
		},
	}
	cfg.ApplyDefaults()
	cfg.Thresholds = WindowThresholds(cfg.WindowDurations())
	return cfg
}

// WindowThresholds returns the built-in latency limits for the given summary
// windows: p(98) under 80ms and p(99) under 100ms per second of lookback,
// so a 5s window gets p(98)<400 and p(99)<500.
func WindowThresholds(windows []time.Duration) map[string][]string {
	out := make(map[string][]string, len(windows))
	for _, w := range windows {
		secs := w.Seconds()
		out[workload.WindowBucket(w)] = []string{
			"p(98)<" + strconv.FormatFloat(secs*p98MillisPerSecond, 'f', -1, 64),
			"p(99)<" + strconv.FormatFloat(secs*p99MillisPerSecond, 'f', -1, 64),
		}
	}
	return out
}

// ApplyDefaults fills unset fields with their default values.
func (c *TestConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "paybench"
	}
	if c.Settings.BaseURL == "" {
		c.Settings.BaseURL = DefaultBaseURL
	}
	if c.Settings.Timeout == 0 {
		c.Settings.Timeout = Duration(DefaultTimeout)
	}
	if c.Settings.GracefulStop == 0 {
		c.Settings.GracefulStop = Duration(DefaultGracefulStop)
	}
	if c.Settings.TickInterval == 0 {
		c.Settings.TickInterval = Duration(DefaultTickInterval)
	}
	if c.Settings.MaxIdleConnsPerHost == 0 {
		c.Settings.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if c.Populate.AmountMin == 0 && c.Populate.AmountMax == 0 {
		c.Populate.AmountMin = DefaultAmountMin
		c.Populate.AmountMax = DefaultAmountMax
	}
	if len(c.Measure.Windows) == 0 {
		c.Measure.Windows = append([]string(nil), DefaultWindows...)
	}
	for i := range c.Stages {
		if c.Stages[i].Kind == "" {
			if i == 0 {
				c.Stages[i].Kind = "populate"
			} else {
				c.Stages[i].Kind = "measure"
			}
		}
	}
}
