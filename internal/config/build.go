package config

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/paybench/internal/stage"
	"github.com/wesleyorama2/paybench/internal/threshold"
	"github.com/wesleyorama2/paybench/internal/workload"
)

// Plan builds the stage plan.
func (c *TestConfig) Plan() (*stage.Plan, error) {
	stages := make([]stage.Stage, 0, len(c.Stages))
	for i, sc := range c.Stages {
		d, err := ParseDurationString(sc.Duration)
		if err != nil {
			return nil, fmt.Errorf("stages[%d]: %w", i, err)
		}
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("stage-%d", i)
		}
		stages = append(stages, stage.Stage{
			Duration: d,
			Target:   sc.Target,
			Kind:     stage.Kind(sc.Kind),
			Name:     name,
		})
	}
	return stage.NewPlan(stages)
}

// WindowDurations parses the measure windows. Invalid entries are skipped;
// Validate reports them.
func (c *TestConfig) WindowDurations() []time.Duration {
	out := make([]time.Duration, 0, len(c.Measure.Windows))
	for _, w := range c.Measure.Windows {
		if d, err := ParseDurationString(w); err == nil && d > 0 {
			out = append(out, d)
		}
	}
	return out
}

// Buckets returns every declared bucket: one per measure window plus the
// extra metrics, deduplicated and in declaration order.
func (c *TestConfig) Buckets() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(b string) {
		if b != "" && !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}

	for _, w := range c.WindowDurations() {
		add(workload.WindowBucket(w))
	}
	for _, m := range c.Metrics {
		add(m)
	}
	return out
}

// ParsedThresholds parses every threshold expression, ordered by bucket.
func (c *TestConfig) ParsedThresholds() ([]threshold.Threshold, error) {
	return threshold.ParseAll(c.Thresholds)
}
