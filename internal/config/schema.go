// Package config defines the paybench test configuration file format.
//
// A test file describes the target, the stage plan, the two workloads and the
// thresholds evaluated at the end of the run:
//
//	name: rinha-payments
//	settings:
//	  baseUrl: http://localhost:9999
//	  timeout: 30s
//	stages:
//	  - duration: 30s
//	    target: 100
//	    kind: populate
//	  - duration: 60s
//	    target: 2
//	    kind: measure
//	measure:
//	  windows: [5s, 10s, 15s, 20s]
//	thresholds:
//	  summary_5s_duration: ["p(98)<400", "p(99)<500"]
//
// Files are YAML or JSON, chosen by extension.
package config

import (
	"time"
)

// TestConfig is the root configuration structure.
type TestConfig struct {
	// Name of the test
	Name string `json:"name" yaml:"name"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings apply to the whole run
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Stages are executed back to back
	Stages []StageConfig `json:"stages" yaml:"stages"`

	// Populate configures the write workload
	Populate PopulateConfig `json:"populate,omitempty" yaml:"populate,omitempty"`

	// Measure configures the summary read workload
	Measure MeasureConfig `json:"measure,omitempty" yaml:"measure,omitempty"`

	// Metrics declares extra buckets beyond the ones the workloads derive
	Metrics []string `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Thresholds maps a bucket to its pass/fail expressions
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Hooks toggles the setup and teardown calls
	Hooks HooksConfig `json:"hooks,omitempty" yaml:"hooks,omitempty"`
}

// Settings contains run-wide settings.
type Settings struct {
	// BaseURL of the payments API
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout per HTTP request (default: 30s)
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// GracefulStop bounds how long in-flight iterations may finish (default: 30s)
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// TickInterval is how often the pool reconciles its size (default: 100ms)
	TickInterval Duration `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`

	// MaxRate caps iterations per second across all VUs; 0 is unlimited
	MaxRate float64 `json:"maxRate,omitempty" yaml:"maxRate,omitempty"`

	// Pacing between iterations of the same VU
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	// MaxConnectionsPerHost limits connections per host (0 = unlimited)
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host (default: 100)
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify disables TLS verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// StageConfig defines one stage of the plan.
type StageConfig struct {
	// Duration of the stage (e.g., "30s")
	Duration string `json:"duration" yaml:"duration"`

	// Target number of VUs
	Target int `json:"target" yaml:"target"`

	// Kind of workload: populate or measure
	Kind string `json:"kind" yaml:"kind"`

	// Name of the stage (optional)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PopulateConfig configures the write workload.
type PopulateConfig struct {
	// Bucket receives write latencies; empty discards them
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	// AmountMin is the lower bound of generated amounts (default: 10)
	AmountMin float64 `json:"amountMin,omitempty" yaml:"amountMin,omitempty"`

	// AmountMax is the upper bound of generated amounts (default: 1010)
	AmountMax float64 `json:"amountMax,omitempty" yaml:"amountMax,omitempty"`
}

// MeasureConfig configures the summary read workload.
type MeasureConfig struct {
	// Windows are the lookback intervals (default: 5s, 10s, 15s, 20s)
	Windows []string `json:"windows,omitempty" yaml:"windows,omitempty"`
}

// PacingConfig defines pacing between iterations.
type PacingConfig struct {
	// Type: "none", "constant", "random"
	Type string `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min for random pacing
	Min string `json:"min,omitempty" yaml:"min,omitempty"`

	// Max for random pacing
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// HooksConfig controls the calls made before and after the load.
type HooksConfig struct {
	// SkipPurge disables POST /purge-payments before the run
	SkipPurge bool `json:"skipPurge,omitempty" yaml:"skipPurge,omitempty"`

	// SkipSummary disables the final GET /payments-summary
	SkipSummary bool `json:"skipSummary,omitempty" yaml:"skipSummary,omitempty"`

	// WaitReady polls GET /check-status for up to this long before setup
	WaitReady Duration `json:"waitReady,omitempty" yaml:"waitReady,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
