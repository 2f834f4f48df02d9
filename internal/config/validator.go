package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/wesleyorama2/paybench/internal/errdefs"
	"github.com/wesleyorama2/paybench/internal/stage"
	"github.com/wesleyorama2/paybench/internal/threshold"
)

// Validate validates the entire test configuration.
//
// Returns nil if valid, or an errdefs.ConfigErrors containing every problem.
func (c *TestConfig) Validate() error {
	errs := &errdefs.ConfigErrors{}

	validateSettings(&c.Settings, errs)

	if len(c.Stages) == 0 {
		errs.Add("stages", "at least one stage is required")
	}
	for i, st := range c.Stages {
		validateStage(fmt.Sprintf("stages[%d]", i), &st, errs)
	}

	if c.Populate.AmountMax <= c.Populate.AmountMin {
		errs.Add("populate.amountMax", fmt.Sprintf("must be greater than amountMin (%.2f)", c.Populate.AmountMin))
	}
	if c.Populate.AmountMin < 0 {
		errs.Add("populate.amountMin", "must not be negative")
	}

	if len(c.Measure.Windows) == 0 {
		errs.Add("measure.windows", "at least one window is required")
	}
	seenWindows := make(map[time.Duration]int)
	for i, w := range c.Measure.Windows {
		field := fmt.Sprintf("measure.windows[%d]", i)
		d, err := ParseDurationString(w)
		switch {
		case err != nil:
			errs.Add(field, err.Error())
		case d <= 0:
			errs.Add(field, "window must be positive")
		default:
			if first, dup := seenWindows[d]; dup {
				errs.Add(field, fmt.Sprintf("duplicate window %s (same as measure.windows[%d])", d, first))
				continue
			}
			seenWindows[d] = i
		}
	}

	declared := make(map[string]bool)
	for _, b := range c.Buckets() {
		declared[b] = true
	}
	if c.Populate.Bucket != "" && !declared[c.Populate.Bucket] {
		errs.Add("populate.bucket", "bucket is not declared")
	}
	for bucket, exprs := range c.Thresholds {
		if !declared[bucket] {
			errs.Add("thresholds."+bucket, "threshold on undeclared bucket")
		}
		for i, expr := range exprs {
			if _, err := threshold.Parse(bucket, expr); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", bucket, i), err.(*errdefs.ConfigError).Message)
			}
		}
	}

	if c.Settings.Pacing != nil {
		validatePacing("settings.pacing", c.Settings.Pacing, errs)
	}

	return errs.ErrOrNil()
}

func validateSettings(s *Settings, errs *errdefs.ConfigErrors) {
	if s.BaseURL == "" {
		errs.Add("settings.baseUrl", "baseUrl is required")
	} else if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %s", s.BaseURL))
	}
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "timeout must not be negative")
	}
	if s.GracefulStop < 0 {
		errs.Add("settings.gracefulStop", "gracefulStop must not be negative")
	}
	if s.TickInterval < 0 {
		errs.Add("settings.tickInterval", "tickInterval must not be negative")
	}
	if s.MaxRate < 0 {
		errs.Add("settings.maxRate", "maxRate must not be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "must not be negative")
	}
}

func validateStage(prefix string, st *StageConfig, errs *errdefs.ConfigErrors) {
	if st.Duration == "" {
		errs.Add(prefix+".duration", "duration is required")
	} else if d, err := ParseDurationString(st.Duration); err != nil {
		errs.Add(prefix+".duration", err.Error())
	} else if d < 0 {
		errs.Add(prefix+".duration", "duration must not be negative")
	}

	if st.Target < 0 {
		errs.Add(prefix+".target", "target must not be negative")
	}

	switch stage.Kind(st.Kind) {
	case stage.KindPopulate, stage.KindMeasure:
	case "":
		errs.Add(prefix+".kind", "kind is required")
	default:
		errs.Add(prefix+".kind", fmt.Sprintf("unknown kind: %s (expected populate or measure)", st.Kind))
	}
}

func validatePacing(prefix string, p *PacingConfig, errs *errdefs.ConfigErrors) {
	switch p.Type {
	case "", "none":
	case "constant":
		if p.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		} else if _, err := ParseDurationString(p.Duration); err != nil {
			errs.Add(prefix+".duration", err.Error())
		}
	case "random":
		minD, errMin := ParseDurationString(p.Min)
		maxD, errMax := ParseDurationString(p.Max)
		if p.Min == "" || errMin != nil {
			errs.Add(prefix+".min", "valid min is required for random pacing")
		}
		if p.Max == "" || errMax != nil {
			errs.Add(prefix+".max", "valid max is required for random pacing")
		}
		if errMin == nil && errMax == nil && maxD < minD {
			errs.Add(prefix+".max", "max must be greater than or equal to min")
		}
	default:
		errs.Add(prefix+".type", fmt.Sprintf("unknown pacing type: %s", p.Type))
	}
}
