package metrics

import (
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/paybench/internal/errdefs"
)

func TestPercentile_Interpolated(t *testing.T) {
	sorted := []float64{100, 200, 300, 400, 500}

	assert.Equal(t, 100.0, Percentile(sorted, 0))
	assert.Equal(t, 500.0, Percentile(sorted, 1))
	assert.Equal(t, 300.0, Percentile(sorted, 0.5))
	assert.InDelta(t, 492.0, Percentile(sorted, 0.98), 1e-9)
	assert.InDelta(t, 496.0, Percentile(sorted, 0.99), 1e-9)
	assert.InDelta(t, 15.0, Percentile([]float64{10, 20}, 0.5), 1e-9)
	assert.Equal(t, 7.0, Percentile([]float64{7}, 0.99))
	assert.True(t, math.IsNaN(Percentile(nil, 0.5)))
}

func TestSink_Statistics(t *testing.T) {
	reg, err := NewRegistry("summary_5s_duration")
	require.NoError(t, err)

	sink, err := reg.Sink("summary_5s_duration")
	require.NoError(t, err)

	for _, v := range []float64{500, 100, 400, 200, 300} {
		sink.Add(v)
	}
	sink.Fail()

	stats := sink.Statistics()
	assert.False(t, stats.NoData)
	assert.Equal(t, int64(5), stats.Count)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, 300.0, stats.Avg)
	assert.Equal(t, 100.0, stats.Min)
	assert.Equal(t, 500.0, stats.Max)
	assert.Equal(t, 300.0, stats.Med)
	assert.InDelta(t, 492.0, stats.P98, 1e-9)

	v, err := stats.Value(StatCount)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	_, err = stats.Value(Stat("p(42)"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errdefs.ErrNoData)
}

func TestSink_EmptyIsNoData(t *testing.T) {
	reg, err := NewRegistry("empty")
	require.NoError(t, err)

	stats, err := reg.Statistics("empty")
	require.NoError(t, err)
	assert.True(t, stats.NoData)
	assert.Equal(t, int64(0), stats.Count)

	for _, stat := range []Stat{StatAvg, StatP98, StatP99, StatCount} {
		_, err := stats.Value(stat)
		assert.ErrorIs(t, err, errdefs.ErrNoData, "stat %s", stat)
	}
}

func TestSink_PercentilesAreMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		reg, err := NewRegistry("b")
		require.NoError(t, err)
		sink, _ := reg.Sink("b")

		n := rng.Intn(500) + 1
		for i := 0; i < n; i++ {
			sink.Add(rng.ExpFloat64() * 100)
		}

		stats := sink.Statistics()
		require.LessOrEqual(t, stats.Med, stats.P90, "trial %d", trial)
		require.LessOrEqual(t, stats.P90, stats.P95, "trial %d", trial)
		require.LessOrEqual(t, stats.P95, stats.P98, "trial %d", trial)
		require.LessOrEqual(t, stats.P98, stats.P99, "trial %d", trial)
		require.LessOrEqual(t, stats.P99, stats.Max, "trial %d", trial)
	}
}

func TestSink_ConcurrentAdd(t *testing.T) {
	const workers = 50
	const perWorker = 1000

	reg, err := NewRegistry("b")
	require.NoError(t, err)
	sink, _ := reg.Sink("b")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				sink.Add(float64(w*perWorker + i))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(workers*perWorker), sink.Statistics().Count)
}

func TestRegistry_UnknownBucketIsConfigError(t *testing.T) {
	reg, err := NewRegistry("known")
	require.NoError(t, err)

	err = reg.Add("unknown", 1)
	assert.True(t, errdefs.IsConfigError(err))

	err = reg.Record(Sample{Bucket: "unknown", Value: 1, Timestamp: time.Now()})
	assert.True(t, errdefs.IsConfigError(err))

	err = reg.Record(Sample{Bucket: "known", Value: 12.5, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.True(t, reg.Has("known"))
	assert.Equal(t, []string{"known"}, reg.Buckets())

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].Count)
}

func TestNewRegistry_Invalid(t *testing.T) {
	_, err := NewRegistry("a", "a")
	assert.True(t, errdefs.IsConfigError(err))

	_, err = NewRegistry("")
	assert.True(t, errdefs.IsConfigError(err))
}

func TestSink_RecordTracksSampleWindow(t *testing.T) {
	reg, err := NewRegistry("window")
	require.NoError(t, err)
	sink, err := reg.Sink("window")
	require.NoError(t, err)

	base := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	sink.Record(Sample{Bucket: "window", Value: 20, Timestamp: base.Add(2 * time.Second)})
	sink.Record(Sample{Bucket: "window", Value: 10, Timestamp: base})
	sink.Record(Sample{Bucket: "window", Value: 30, Timestamp: base.Add(time.Second)})

	stats := sink.Statistics()
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, base, stats.FirstSampleAt)
	assert.Equal(t, base.Add(2*time.Second), stats.LastSampleAt)
	assert.Equal(t, 20.0, stats.Med)
}
