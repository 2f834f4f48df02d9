// Package harness runs a complete load test: setup, the staged virtual user
// load, teardown and threshold evaluation.
package harness

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/paybench/internal/clock"
	"github.com/wesleyorama2/paybench/internal/config"
	"github.com/wesleyorama2/paybench/internal/errdefs"
	"github.com/wesleyorama2/paybench/internal/metrics"
	"github.com/wesleyorama2/paybench/internal/pool"
	"github.com/wesleyorama2/paybench/internal/stage"
	"github.com/wesleyorama2/paybench/internal/threshold"
	"github.com/wesleyorama2/paybench/internal/workload"
)

const defaultProgressInterval = time.Second

// SetupFunc runs once before the load starts.
type SetupFunc func(ctx context.Context) error

// TeardownFunc runs once after the load with the run's time window.
type TeardownFunc func(ctx context.Context, from, to time.Time) (*workload.ServerSummary, error)

// Option configures a Harness.
type Option func(*Harness)

// WithClock sets the time source. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(h *Harness) { h.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Harness) { h.client = c }
}

// WithSetup replaces the setup hook. nil disables it.
func WithSetup(fn SetupFunc) Option {
	return func(h *Harness) {
		h.setup = fn
		h.setupSet = true
	}
}

// WithTeardown replaces the teardown hook. nil disables it.
func WithTeardown(fn TeardownFunc) Option {
	return func(h *Harness) {
		h.teardown = fn
		h.teardownSet = true
	}
}

// WithProgressInterval sets how often progress is logged. Zero disables it.
func WithProgressInterval(d time.Duration) Option {
	return func(h *Harness) { h.progressInterval = d }
}

// Harness wires configuration into a runnable test.
type Harness struct {
	cfg        *config.TestConfig
	plan       *stage.Plan
	thresholds []threshold.Threshold

	registry   *metrics.Registry
	engine     *metrics.Engine
	dispatcher *workload.Dispatcher
	pool       *pool.Pool

	client *http.Client
	clock  clock.Clock
	logger *logrus.Logger

	setup       SetupFunc
	setupSet    bool
	teardown    TeardownFunc
	teardownSet bool

	progressInterval time.Duration
}

// New validates cfg and builds every component of the run. Defaults are
// applied to cfg first.
func New(cfg *config.TestConfig, opts ...Option) (*Harness, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Harness{
		cfg:              cfg,
		clock:            clock.Real{},
		progressInterval: defaultProgressInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logrus.New()
	}
	if h.client == nil {
		h.client = workload.NewHTTPClient(httpClientConfig(&cfg.Settings))
	}

	var err error
	if h.plan, err = cfg.Plan(); err != nil {
		return nil, err
	}
	if h.thresholds, err = cfg.ParsedThresholds(); err != nil {
		return nil, err
	}
	if h.registry, err = metrics.NewRegistry(cfg.Buckets()...); err != nil {
		return nil, err
	}
	if err := threshold.Check(h.registry, h.thresholds); err != nil {
		return nil, err
	}

	h.engine = metrics.NewEngine()

	populate, err := workload.NewPopulate(h.client, workload.PopulateConfig{
		BaseURL:   cfg.Settings.BaseURL,
		Bucket:    cfg.Populate.Bucket,
		AmountMin: cfg.Populate.AmountMin,
		AmountMax: cfg.Populate.AmountMax,
	}, h.registry, h.engine)
	if err != nil {
		return nil, err
	}

	measure, err := workload.NewMeasure(h.client, workload.MeasureConfig{
		BaseURL: cfg.Settings.BaseURL,
		Windows: cfg.WindowDurations(),
	}, h.registry, h.engine, h.clock)
	if err != nil {
		return nil, err
	}

	if h.dispatcher, err = workload.NewDispatcher(h.plan, h.logger, populate, measure); err != nil {
		return nil, err
	}

	h.pool = pool.New(pool.Config{
		TickInterval: cfg.Settings.TickInterval.GetDuration(config.DefaultTickInterval),
		GracefulStop: cfg.Settings.GracefulStop.GetDuration(config.DefaultGracefulStop),
		Pacing:       poolPacing(cfg.Settings.Pacing),
		MaxRate:      cfg.Settings.MaxRate,
		OnStage: func(res stage.Resolution) {
			h.engine.SetPhase(metrics.Phase(res.Kind))
		},
		OnAdjust: h.engine.SetActiveVUs,
		Logger:   h.logger,
	})

	if !h.setupSet {
		h.setup = h.defaultSetup
	}
	if !h.teardownSet {
		h.teardown = h.defaultTeardown
	}

	return h, nil
}

// Plan returns the stage plan.
func (h *Harness) Plan() *stage.Plan {
	return h.plan
}

// Registry returns the bucket registry.
func (h *Harness) Registry() *metrics.Registry {
	return h.registry
}

// Engine returns the overall metrics engine.
func (h *Harness) Engine() *metrics.Engine {
	return h.engine
}

// Run executes the test.
//
// A setup failure returns a *errdefs.SetupError and nothing else runs.
// Otherwise the result is always returned: cancellation of ctx stops the
// load early but teardown and evaluation still happen, and a teardown
// failure is recorded on the result rather than returned.
func (h *Harness) Run(ctx context.Context) (*Result, error) {
	log := h.logger.WithField("test", h.cfg.Name)

	h.engine.SetPhase(metrics.PhaseSetup)
	if h.setup != nil {
		if err := h.setup(ctx); err != nil {
			log.WithError(err).Error("Setup failed")
			return nil, &errdefs.SetupError{Err: err}
		}
	}

	rc := clock.Start(h.clock)
	log.WithFields(logrus.Fields{
		"plan":     h.plan.String(),
		"duration": h.plan.TotalDuration(),
		"max_vus":  h.plan.MaxTarget(),
		"base_url": h.cfg.Settings.BaseURL,
	}).Info("Run started")

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()

	var g errgroup.Group
	g.Go(func() error {
		defer stopProgress()
		return h.pool.Run(ctx, h.plan, h.dispatcher.Iterate(rc), rc)
	})
	if h.progressInterval > 0 {
		g.Go(func() error {
			h.reportProgress(progressCtx, rc)
			return nil
		})
	}
	runErr := g.Wait()
	finishedAt := rc.Now()

	cancelled := runErr != nil
	if cancelled {
		log.WithError(runErr).Warn("Run interrupted, evaluating partial results")
	}

	result := &Result{
		Name:      h.cfg.Name,
		Plan:      h.plan.String(),
		StartedAt: rc.StartedAt(),
		Duration:  finishedAt.Sub(rc.StartedAt()),
		Cancelled: cancelled,
	}

	h.engine.SetPhase(metrics.PhaseTeardown)
	if h.teardown != nil {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.Settings.Timeout.GetDuration(config.DefaultTimeout))
		summary, err := h.teardown(tctx, rc.StartedAt(), finishedAt)
		cancel()
		if err != nil {
			log.WithError(err).Error("Teardown failed")
			result.TeardownErr = &errdefs.TeardownError{Err: err}
			result.TeardownError = result.TeardownErr.Error()
		}
		result.ServerSummary = summary
	}

	verdicts, err := threshold.Evaluate(h.registry, h.thresholds)
	if err != nil {
		return nil, err
	}
	h.engine.SetPhase(metrics.PhaseDone)

	result.Verdicts = verdicts
	result.Buckets = h.registry.Snapshot()
	result.Overall = h.engine.GetSnapshot()
	result.Requests = h.engine.GetRequestStats()
	result.Pool = h.pool.GetStats()
	result.Passed = result.OK()

	log.WithFields(logrus.Fields{
		"passed":     result.Passed,
		"requests":   result.Overall.TotalRequests,
		"failed":     result.Overall.FailedRequests,
		"iterations": result.Pool.Iterations,
	}).Info("Run finished")

	return result, nil
}

func (h *Harness) defaultSetup(ctx context.Context) error {
	if wait := h.cfg.Hooks.WaitReady.GetDuration(0); wait > 0 {
		h.logger.WithField("timeout", wait).Info("Waiting for target to become ready")
		if err := workload.WaitReady(ctx, h.client, h.cfg.Settings.BaseURL, wait, 0); err != nil {
			return err
		}
	}
	if h.cfg.Hooks.SkipPurge {
		return nil
	}
	if err := workload.Purge(ctx, h.client, h.cfg.Settings.BaseURL); err != nil {
		return err
	}
	h.logger.Info("Payments purged")
	return nil
}

func (h *Harness) defaultTeardown(ctx context.Context, from, to time.Time) (*workload.ServerSummary, error) {
	if h.cfg.Hooks.SkipSummary {
		return nil, nil
	}
	summary, err := workload.FetchSummary(ctx, h.client, h.cfg.Settings.BaseURL, from, to)
	if err != nil {
		return nil, err
	}

	h.logger.WithFields(logrus.Fields{
		"default_requests":  summary.Default.TotalRequests,
		"default_amount":    summary.Default.TotalAmount,
		"fallback_requests": summary.Fallback.TotalRequests,
		"fallback_amount":   summary.Fallback.TotalAmount,
	}).Info("Payments summary")
	return &summary, nil
}

// reportProgress logs a status line every progressInterval until ctx ends.
func (h *Harness) reportProgress(ctx context.Context, rc *clock.RunClock) {
	ticker := time.NewTicker(h.progressInterval)
	defer ticker.Stop()

	total := h.plan.TotalDuration()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := h.engine.GetSnapshot()
			stats := h.pool.GetStats()
			elapsed := rc.Elapsed()
			if elapsed > total {
				elapsed = total
			}
			h.logger.WithFields(logrus.Fields{
				"elapsed":  fmt.Sprintf("%s/%s", elapsed.Truncate(time.Second), total),
				"phase":    snap.CurrentPhase,
				"vus":      stats.ActiveVUs,
				"target":   stats.TargetVUs,
				"requests": snap.TotalRequests,
				"errors":   snap.FailedRequests,
				"p95":      snap.Latency.P95,
			}).Info("Progress")
		}
	}
}

func httpClientConfig(s *config.Settings) workload.HTTPClientConfig {
	hc := workload.DefaultHTTPClientConfig()
	hc.Timeout = s.Timeout.GetDuration(config.DefaultTimeout)
	hc.MaxConnsPerHost = s.MaxConnectionsPerHost
	if s.MaxIdleConnsPerHost > 0 {
		hc.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	}
	hc.InsecureSkipVerify = s.InsecureSkipVerify
	return hc
}

func poolPacing(pc *config.PacingConfig) *pool.Pacing {
	if pc == nil || pc.Type == "" || pc.Type == string(pool.PacingNone) {
		return nil
	}
	d, _ := config.ParseDurationString(pc.Duration)
	minD, _ := config.ParseDurationString(pc.Min)
	maxD, _ := config.ParseDurationString(pc.Max)
	return &pool.Pacing{
		Type:     pool.PacingType(pc.Type),
		Duration: d,
		Min:      minD,
		Max:      maxD,
	}
}
