// Package workload defines what a virtual user does during each stage kind
// and routes iterations to the workload registered for the active stage.
package workload

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/paybench/internal/clock"
	"github.com/wesleyorama2/paybench/internal/errdefs"
	"github.com/wesleyorama2/paybench/internal/metrics"
	"github.com/wesleyorama2/paybench/internal/stage"
)

// Request names used for the overall per-request breakdown.
const (
	RequestCreatePayment = "create_payment"
	RequestGetSummary    = "get_summary"
)

// Workload executes one logical iteration.
//
// Run returns an error describing failed requests, if any. Failures are
// already counted against the relevant bucket; the error is informational
// and never aborts the run.
type Workload interface {
	Kind() stage.Kind
	Run(ctx context.Context) error
}

// Dispatcher routes iterations to the workload registered for a stage kind.
type Dispatcher struct {
	plan      *stage.Plan
	workloads map[stage.Kind]Workload
	logger    *logrus.Logger
}

// NewDispatcher registers workloads by kind. Every kind referenced by the
// plan must have a workload, otherwise a ConfigError is returned.
func NewDispatcher(plan *stage.Plan, logger *logrus.Logger, workloads ...Workload) (*Dispatcher, error) {
	if logger == nil {
		logger = logrus.New()
	}

	d := &Dispatcher{
		plan:      plan,
		workloads: make(map[stage.Kind]Workload, len(workloads)),
		logger:    logger,
	}

	for _, w := range workloads {
		if _, dup := d.workloads[w.Kind()]; dup {
			return nil, errdefs.NewConfigError("workloads", "duplicate workload for kind %s", w.Kind())
		}
		d.workloads[w.Kind()] = w
	}

	var missing []string
	for _, kind := range plan.Kinds() {
		if _, ok := d.workloads[kind]; !ok {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		return nil, errdefs.NewConfigError("stages", "no workload registered for kind: %s", strings.Join(missing, ", "))
	}

	return d, nil
}

// Dispatch runs the workload registered for kind.
func (d *Dispatcher) Dispatch(ctx context.Context, kind stage.Kind) error {
	w, ok := d.workloads[kind]
	if !ok {
		return fmt.Errorf("no workload registered for kind %s", kind)
	}

	err := w.Run(ctx)
	if err != nil {
		d.logger.WithError(err).WithField("kind", kind).Debug("Workload iteration had failures")
	}
	return err
}

// Iterate returns the function every virtual user loops on: it resolves the
// active stage from rc and dispatches to that stage's workload.
func (d *Dispatcher) Iterate(rc *clock.RunClock) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		res := d.plan.Resolve(rc.Elapsed())
		return d.Dispatch(ctx, res.Kind)
	}
}

// bucketSink resolves an optional bucket against the registry. An empty
// name means latencies are discarded.
func bucketSink(reg *metrics.Registry, field, bucket string) (*metrics.Sink, error) {
	if bucket == "" {
		return nil, nil
	}
	sink, err := reg.Sink(bucket)
	if err != nil {
		return nil, errdefs.NewConfigError(field, "bucket %s is not a declared metric", bucket)
	}
	return sink, nil
}
