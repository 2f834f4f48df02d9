package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/paybench/internal/errdefs"
)

func summaryPlan(t *testing.T) *Plan {
	t.Helper()
	plan, err := NewPlan([]Stage{
		{Duration: 30 * time.Second, Target: 100, Kind: KindPopulate},
		{Duration: 60 * time.Second, Target: 2, Kind: KindMeasure},
	})
	require.NoError(t, err)
	return plan
}

func TestNewPlan_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
	}{
		{"empty", nil},
		{"negative duration", []Stage{{Duration: -time.Second, Target: 1, Kind: KindPopulate}}},
		{"negative target", []Stage{{Duration: time.Second, Target: -1, Kind: KindPopulate}}},
		{"missing kind", []Stage{{Duration: time.Second, Target: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlan(tt.stages)
			assert.Nil(t, plan)
			assert.True(t, errdefs.IsConfigError(err), "expected config error, got %v", err)
		})
	}
}

func TestPlan_ResolveBoundaries(t *testing.T) {
	plan := summaryPlan(t)

	tests := []struct {
		elapsed  time.Duration
		kind     Kind
		target   int
		finished bool
	}{
		{0, KindPopulate, 100, false},
		{29900 * time.Millisecond, KindPopulate, 100, false},
		{30 * time.Second, KindMeasure, 2, false},
		{89900 * time.Millisecond, KindMeasure, 2, false},
		{90 * time.Second, KindMeasure, 2, true},
		{90*time.Second + time.Nanosecond, KindMeasure, 2, true},
		{-time.Second, KindPopulate, 100, false},
	}

	for _, tt := range tests {
		res := plan.Resolve(tt.elapsed)
		assert.Equal(t, tt.kind, res.Kind, "kind at %v", tt.elapsed)
		assert.Equal(t, tt.target, res.Target, "target at %v", tt.elapsed)
		assert.Equal(t, tt.finished, res.Finished, "finished at %v", tt.elapsed)
	}
}

func TestPlan_ZeroDurationFirstStage(t *testing.T) {
	plan, err := NewPlan([]Stage{
		{Duration: 0, Target: 5, Kind: KindPopulate},
		{Duration: 10 * time.Second, Target: 2, Kind: KindMeasure},
	})
	require.NoError(t, err)

	res := plan.Resolve(0)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, KindPopulate, res.Kind)
	assert.Equal(t, 5, res.Target)
	assert.False(t, res.Finished)

	res = plan.Resolve(time.Nanosecond)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, 2, res.Target)
}

func TestPlan_AllZeroDurationsFinishImmediately(t *testing.T) {
	plan, err := NewPlan([]Stage{{Duration: 0, Target: 3, Kind: KindPopulate}})
	require.NoError(t, err)

	res := plan.Resolve(0)
	assert.Equal(t, 3, res.Target)
	assert.True(t, res.Finished)
}

func TestPlan_IsImmutable(t *testing.T) {
	stages := []Stage{{Duration: time.Second, Target: 3, Kind: KindPopulate}}
	plan, err := NewPlan(stages)
	require.NoError(t, err)

	stages[0].Target = 99
	plan.Stages()[0].Target = 42

	assert.Equal(t, 3, plan.Resolve(0).Target)
}

func TestPlan_Accessors(t *testing.T) {
	plan := summaryPlan(t)

	assert.Equal(t, 90*time.Second, plan.TotalDuration())
	assert.Equal(t, []Kind{KindPopulate, KindMeasure}, plan.Kinds())
	assert.Equal(t, 100, plan.MaxTarget())
	assert.Equal(t, "30s:100:populate,1m0s:2:measure", plan.String())
}

func TestParseStages(t *testing.T) {
	stages, err := ParseStages("30s:100, 60s:2")
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, Stage{Duration: 30 * time.Second, Target: 100, Kind: KindPopulate, Name: "stage-1"}, stages[0])
	assert.Equal(t, KindMeasure, stages[1].Kind)

	stages, err = ParseStages("10s:5:measure")
	require.NoError(t, err)
	assert.Equal(t, KindMeasure, stages[0].Kind)

	for _, bad := range []string{"", "30s", "abc:1", "30s:x", "1s:1:populate:extra"} {
		_, err := ParseStages(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
