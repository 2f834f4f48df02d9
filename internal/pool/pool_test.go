package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/paybench/internal/clock"
	"github.com/wesleyorama2/paybench/internal/stage"
)

func testPlan(t *testing.T) *stage.Plan {
	t.Helper()
	plan, err := stage.NewPlan([]stage.Stage{
		{Duration: 30 * time.Second, Target: 10, Kind: stage.KindPopulate},
		{Duration: 60 * time.Second, Target: 2, Kind: stage.KindMeasure},
	})
	require.NoError(t, err)
	return plan
}

func sleepyIteration(iterations *atomic.Int64) IterationFunc {
	return func(ctx context.Context) error {
		iterations.Add(1)
		time.Sleep(time.Millisecond)
		return nil
	}
}

func TestPool_FollowsPlanWithManualClock(t *testing.T) {
	plan := testPlan(t)
	manual := clock.NewManual(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	rc := clock.Start(manual)

	var kinds []stage.Kind
	var kindsCh = make(chan stage.Kind, 4)
	p := New(Config{
		TickInterval: 5 * time.Millisecond,
		GracefulStop: time.Second,
		OnStage:      func(res stage.Resolution) { kindsCh <- res.Kind },
	})

	var iterations atomic.Int64
	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), plan, sleepyIteration(&iterations), rc)
	}()

	assert.Eventually(t, func() bool { return p.GetActiveVUs() == 10 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 10, p.GetStats().TargetVUs)

	manual.Advance(30 * time.Second)
	assert.Eventually(t, func() bool { return p.GetActiveVUs() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, p.GetStats().CurrentStage)

	manual.Advance(60 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("pool did not finish after plan was exhausted")
	}

	close(kindsCh)
	for k := range kindsCh {
		kinds = append(kinds, k)
	}
	assert.Equal(t, []stage.Kind{stage.KindPopulate, stage.KindMeasure}, kinds)
	assert.Equal(t, 0, p.GetActiveVUs())
	assert.Greater(t, iterations.Load(), int64(0))
	assert.Equal(t, iterations.Load(), p.GetStats().Iterations)
}

func TestPool_CancellationDoesNotInterruptInFlightIteration(t *testing.T) {
	plan, err := stage.NewPlan([]stage.Stage{{Duration: time.Hour, Target: 3, Kind: stage.KindMeasure}})
	require.NoError(t, err)

	started := make(chan struct{}, 3)
	release := make(chan struct{})
	var interrupted, completed atomic.Int64

	fn := func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		if ctx.Err() != nil {
			interrupted.Add(1)
		}
		completed.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := New(Config{TickInterval: 5 * time.Millisecond, GracefulStop: 5 * time.Second})

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, plan, fn, clock.Start(clock.Real{}))
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("VUs did not start")
		}
	}

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}

	assert.Equal(t, int64(3), completed.Load())
	assert.Equal(t, int64(0), interrupted.Load())
	assert.Equal(t, 0, p.GetActiveVUs())
}

func TestPool_IterationErrorsAreCounted(t *testing.T) {
	plan, err := stage.NewPlan([]stage.Stage{{Duration: 100 * time.Millisecond, Target: 2, Kind: stage.KindPopulate}})
	require.NoError(t, err)

	p := New(Config{TickInterval: 5 * time.Millisecond})
	fn := func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return errors.New("boom")
	}

	require.NoError(t, p.Run(context.Background(), plan, fn, clock.Start(clock.Real{})))

	stats := p.GetStats()
	assert.Greater(t, stats.Iterations, int64(0))
	assert.Equal(t, stats.Iterations, stats.Errors)
}

func TestPool_MaxRateLimitsIterations(t *testing.T) {
	plan, err := stage.NewPlan([]stage.Stage{{Duration: 300 * time.Millisecond, Target: 5, Kind: stage.KindPopulate}})
	require.NoError(t, err)

	p := New(Config{TickInterval: 5 * time.Millisecond, MaxRate: 20})

	var iterations atomic.Int64
	require.NoError(t, p.Run(context.Background(), plan, func(ctx context.Context) error {
		iterations.Add(1)
		return nil
	}, clock.Start(clock.Real{})))

	// 20/s over 0.3s plus an initial burst of 20
	assert.LessOrEqual(t, iterations.Load(), int64(35))
	assert.Greater(t, iterations.Load(), int64(0))
}

func TestPool_ConstantPacing(t *testing.T) {
	plan, err := stage.NewPlan([]stage.Stage{{Duration: 200 * time.Millisecond, Target: 1, Kind: stage.KindPopulate}})
	require.NoError(t, err)

	p := New(Config{
		TickInterval: 5 * time.Millisecond,
		Pacing:       &Pacing{Type: PacingConstant, Duration: 50 * time.Millisecond},
	})

	var iterations atomic.Int64
	require.NoError(t, p.Run(context.Background(), plan, sleepyIteration(&iterations), clock.Start(clock.Real{})))

	assert.LessOrEqual(t, iterations.Load(), int64(6))
	assert.GreaterOrEqual(t, iterations.Load(), int64(1))
}
