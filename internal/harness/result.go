package harness

import (
	"time"

	"github.com/wesleyorama2/paybench/internal/metrics"
	"github.com/wesleyorama2/paybench/internal/pool"
	"github.com/wesleyorama2/paybench/internal/threshold"
	"github.com/wesleyorama2/paybench/internal/workload"
)

// Result is the outcome of a run.
type Result struct {
	Name      string        `json:"name"`
	Plan      string        `json:"plan"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Passed    bool          `json:"passed"`

	Verdicts []threshold.Verdict             `json:"thresholds"`
	Buckets  []metrics.Statistics            `json:"buckets"`
	Overall  *metrics.Snapshot               `json:"overall"`
	Requests map[string]metrics.LatencyStats `json:"requests,omitempty"`
	Pool     pool.Stats                      `json:"pool"`

	ServerSummary *workload.ServerSummary `json:"serverSummary,omitempty"`
	TeardownErr   error                   `json:"-"`
	TeardownError string                  `json:"teardownError,omitempty"`
}

// OK reports whether the run completed its plan, teardown succeeded and
// every threshold passed. An interrupted run is never OK.
func (r *Result) OK() bool {
	return !r.Cancelled && r.TeardownErr == nil && threshold.AllPassed(r.Verdicts)
}

// FailedVerdicts returns the verdicts that did not pass.
func (r *Result) FailedVerdicts() []threshold.Verdict {
	var out []threshold.Verdict
	for _, v := range r.Verdicts {
		if !v.Passed {
			out = append(out, v)
		}
	}
	return out
}
