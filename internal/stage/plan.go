// Package stage describes the staged concurrency plan of a run.
package stage

import (
	"fmt"
	"strings"
	"time"

	"github.com/wesleyorama2/paybench/internal/errdefs"
)

// Kind identifies the workload routed while a stage is active.
type Kind string

const (
	// KindPopulate issues write requests to fill the system under test.
	KindPopulate Kind = "populate"

	// KindMeasure issues time-windowed summary reads and records latencies.
	KindMeasure Kind = "measure"
)

// Stage is a time-bounded concurrency target.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target is the number of concurrent virtual users while the stage is active
	Target int `json:"target" yaml:"target"`

	// Kind of workload dispatched during this stage
	Kind Kind `json:"kind" yaml:"kind"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Resolution is the result of resolving the plan at an elapsed time.
type Resolution struct {
	Index    int
	Kind     Kind
	Target   int
	Finished bool
}

// Plan is an ordered, immutable sequence of stages.
type Plan struct {
	stages []Stage
	total  time.Duration
}

// NewPlan validates stages and builds a plan. The slice is copied.
func NewPlan(stages []Stage) (*Plan, error) {
	if len(stages) == 0 {
		return nil, errdefs.NewConfigError("stages", "at least one stage is required")
	}

	errs := &errdefs.ConfigErrors{}
	var total time.Duration
	for i, s := range stages {
		field := fmt.Sprintf("stages[%d]", i)
		if s.Duration < 0 {
			errs.Add(field+".duration", fmt.Sprintf("duration cannot be negative: %s", s.Duration))
		}
		if s.Target < 0 {
			errs.Add(field+".target", "target cannot be negative")
		}
		if s.Kind == "" {
			errs.Add(field+".kind", "kind is required")
		}
		total += s.Duration
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}

	copied := make([]Stage, len(stages))
	copy(copied, stages)
	return &Plan{stages: copied, total: total}, nil
}

// Resolve returns the active stage for the given elapsed time.
//
// Each stage owns the window [start, start+duration). Elapsed zero always
// resolves to the first stage, even one of zero duration. Past the end of
// the plan the last stage stays active and Finished is set.
func (p *Plan) Resolve(elapsed time.Duration) Resolution {
	if elapsed <= 0 {
		first := p.stages[0]
		return Resolution{Index: 0, Kind: first.Kind, Target: first.Target, Finished: p.total == 0}
	}

	var start time.Duration
	for i, s := range p.stages {
		end := start + s.Duration
		if elapsed < end {
			return Resolution{Index: i, Kind: s.Kind, Target: s.Target}
		}
		start = end
	}

	last := len(p.stages) - 1
	return Resolution{
		Index:    last,
		Kind:     p.stages[last].Kind,
		Target:   p.stages[last].Target,
		Finished: true,
	}
}

// TotalDuration is the sum of all stage durations.
func (p *Plan) TotalDuration() time.Duration {
	return p.total
}

// Stages returns a copy of the stages.
func (p *Plan) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Kinds returns the distinct workload kinds referenced by the plan, in order
// of first appearance.
func (p *Plan) Kinds() []Kind {
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, s := range p.stages {
		if !seen[s.Kind] {
			seen[s.Kind] = true
			kinds = append(kinds, s.Kind)
		}
	}
	return kinds
}

// MaxTarget returns the highest target across stages.
func (p *Plan) MaxTarget() int {
	maxTarget := 0
	for _, s := range p.stages {
		if s.Target > maxTarget {
			maxTarget = s.Target
		}
	}
	return maxTarget
}

// String renders the plan in the CLI stages format.
func (p *Plan) String() string {
	parts := make([]string, len(p.stages))
	for i, s := range p.stages {
		parts[i] = fmt.Sprintf("%s:%d:%s", s.Duration, s.Target, s.Kind)
	}
	return strings.Join(parts, ",")
}
