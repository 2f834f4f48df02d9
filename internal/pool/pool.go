// Package pool runs virtual users against a stage plan.
package pool

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/paybench/internal/clock"
	"github.com/wesleyorama2/paybench/internal/stage"
)

const (
	defaultTickInterval = 100 * time.Millisecond
	defaultGracefulStop = 30 * time.Second
)

// PacingType identifies the type of pacing between iterations.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Pacing controls the think time between iterations of one VU.
type Pacing struct {
	Type     PacingType
	Duration time.Duration
	Min      time.Duration
	Max      time.Duration
}

// Config configures a Pool.
type Config struct {
	// TickInterval is how often the controller re-resolves the plan (default 100ms)
	TickInterval time.Duration

	// GracefulStop bounds the wait for in-flight iterations at the end of the run (default 30s)
	GracefulStop time.Duration

	// Pacing between iterations (optional)
	Pacing *Pacing

	// MaxRate caps iterations per second across all VUs; 0 means unlimited
	MaxRate float64

	// OnStage is called from the controller whenever the active stage changes
	OnStage func(res stage.Resolution)

	// OnAdjust is called after every VU count adjustment with the live count
	OnAdjust func(live int)

	Logger *logrus.Logger
}

// Stats contains real-time pool statistics.
type Stats struct {
	ActiveVUs    int   `json:"activeVUs"`
	TargetVUs    int   `json:"targetVUs"`
	Iterations   int64 `json:"iterations"`
	Errors       int64 `json:"errors"`
	CurrentStage int   `json:"currentStage"`
}

// Pool maintains a set of concurrently running virtual users whose size
// follows the target concurrency of a stage plan.
//
// Scale-up happens within the tick that observes a higher target. Scale-down
// asks the newest VUs to stop after their current iteration, so the live
// goroutine count can briefly exceed the target by the number of VUs that
// were mid-iteration.
type Pool struct {
	config  Config
	limiter *rate.Limiter
	logger  *logrus.Logger

	activeVUs    atomic.Int32
	targetVUs    atomic.Int32
	iterations   atomic.Int64
	errors       atomic.Int64
	currentStage atomic.Int32
	nextID       int

	wg      sync.WaitGroup
	vus     []*VirtualUser
	retired []*VirtualUser
	vusMu   sync.Mutex
}

// New creates a pool.
func New(config Config) *Pool {
	if config.TickInterval <= 0 {
		config.TickInterval = defaultTickInterval
	}
	if config.GracefulStop <= 0 {
		config.GracefulStop = defaultGracefulStop
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	p := &Pool{config: config, logger: config.Logger}
	if config.MaxRate > 0 {
		burst := int(config.MaxRate)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(config.MaxRate), burst)
	}
	p.currentStage.Store(-1)
	return p
}

// Run drives VUs until the plan is exhausted or ctx is cancelled, then waits
// for in-flight iterations to finish (bounded by GracefulStop).
//
// Iterations run on a context that is detached from ctx, so cancellation
// never interrupts a request in flight; it is observed between iterations.
// Returns ctx.Err() if the run was cancelled, nil if the plan completed.
func (p *Pool) Run(ctx context.Context, plan *stage.Plan, fn IterationFunc, rc *clock.RunClock) error {
	iterCtx := context.WithoutCancel(ctx)
	stopCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			stopWorkers()
			p.gracefulShutdown()
			return ctx.Err()
		}

		res := plan.Resolve(rc.Elapsed())
		if res.Finished {
			break
		}

		if prev := int(p.currentStage.Swap(int32(res.Index))); prev != res.Index {
			p.logger.WithFields(logrus.Fields{
				"stage":  res.Index,
				"kind":   res.Kind,
				"target": res.Target,
			}).Info("Stage started")
			if p.config.OnStage != nil {
				p.config.OnStage(res)
			}
		}

		p.targetVUs.Store(int32(res.Target))
		p.adjustVUs(stopCtx, iterCtx, res.Target, fn)

		select {
		case <-ctx.Done():
			stopWorkers()
			p.gracefulShutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	stopWorkers()
	p.gracefulShutdown()
	return nil
}

// adjustVUs spawns or retires VUs to match target.
func (p *Pool) adjustVUs(stopCtx, iterCtx context.Context, target int, fn IterationFunc) {
	p.vusMu.Lock()
	defer p.vusMu.Unlock()

	current := len(p.vus)

	if target > current {
		for i := current; i < target; i++ {
			p.nextID++
			vu := NewVirtualUser(p.nextID)
			p.vus = append(p.vus, vu)
			p.wg.Add(1)
			go p.runVU(stopCtx, iterCtx, vu, fn)
		}
	} else if target < current {
		// Stop excess VUs from the end
		for i := current - 1; i >= target; i-- {
			vu := p.vus[i]
			vu.RequestStop()
			p.retired = append(p.retired, vu)
			p.logger.WithFields(logrus.Fields{
				"vu":         vu.ID,
				"iterations": vu.GetIteration(),
			}).Debug("Retiring VU")
		}
		p.vus = p.vus[:target]
	}
	p.retired = pruneStopped(p.retired)

	if p.config.OnAdjust != nil {
		p.config.OnAdjust(len(p.vus))
	}
}

// runVU runs a single VU until stopped.
func (p *Pool) runVU(stopCtx, iterCtx context.Context, vu *VirtualUser, fn IterationFunc) {
	defer p.wg.Done()
	defer vu.MarkStopped()

	p.activeVUs.Add(1)
	defer p.activeVUs.Add(-1)

	for {
		if stopCtx.Err() != nil || vu.Stopping() {
			return
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(stopCtx); err != nil {
				return
			}
			if vu.Stopping() {
				return
			}
		}

		err := vu.RunIteration(iterCtx, fn)
		if err == errVUStopping {
			return
		}

		p.iterations.Add(1)
		if err != nil {
			p.errors.Add(1)
			p.logger.WithError(err).WithField("vu", vu.ID).Debug("Iteration failed")
		}

		p.applyPacing(stopCtx, vu)
	}
}

// applyPacing waits between iterations.
func (p *Pool) applyPacing(ctx context.Context, vu *VirtualUser) {
	pacing := p.config.Pacing
	if pacing == nil || pacing.Type == PacingNone {
		return
	}

	var wait time.Duration
	switch pacing.Type {
	case PacingConstant:
		wait = pacing.Duration
	case PacingRandom:
		diff := pacing.Max - pacing.Min
		if diff > 0 {
			wait = pacing.Min + time.Duration(rand.Int63n(int64(diff)))
		} else {
			wait = pacing.Min
		}
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-vu.StopCh():
		case <-timer.C:
		}
	}
}

// gracefulShutdown asks every VU to stop and waits for them to finish
// their current iteration.
func (p *Pool) gracefulShutdown() {
	p.vusMu.Lock()
	for _, vu := range p.vus {
		vu.RequestStop()
	}
	pending := append(p.retired, p.vus...)
	p.vus = nil
	p.retired = nil
	p.vusMu.Unlock()

	if p.config.OnAdjust != nil {
		p.config.OnAdjust(0)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.config.GracefulStop):
		stragglers := pruneStopped(pending)
		for _, vu := range stragglers {
			p.logger.WithFields(logrus.Fields{
				"vu":         vu.ID,
				"iterations": vu.GetIteration(),
				"state":      vu.GetState(),
			}).Debug("VU still in flight")
		}
		p.logger.WithField("active_vus", len(stragglers)).
			Warn("Graceful stop timeout expired with iterations still in flight")
	}
}

// pruneStopped drops VUs whose goroutine has exited, reusing vus.
func pruneStopped(vus []*VirtualUser) []*VirtualUser {
	kept := vus[:0]
	for _, vu := range vus {
		if vu.GetState() != VUStateStopped {
			kept = append(kept, vu)
		}
	}
	return kept
}

// GetActiveVUs returns the number of VU goroutines still running,
// including VUs finishing their last iteration after a stop request.
func (p *Pool) GetActiveVUs() int {
	return int(p.activeVUs.Load())
}

// GetStats returns pool statistics.
func (p *Pool) GetStats() Stats {
	return Stats{
		ActiveVUs:    int(p.activeVUs.Load()),
		TargetVUs:    int(p.targetVUs.Load()),
		Iterations:   p.iterations.Load(),
		Errors:       p.errors.Load(),
		CurrentStage: int(p.currentStage.Load()),
	}
}
