package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/paybench/internal/errdefs"
	"github.com/wesleyorama2/paybench/internal/stage"
)

const yamlConfig = `
name: rinha
settings:
  baseUrl: http://payments:8080
  timeout: 5s
  maxRate: 200
  pacing:
    type: constant
    duration: 10ms
stages:
  - duration: 10s
    target: 50
    kind: populate
  - duration: "20"
    target: 4
    kind: measure
populate:
  bucket: payments_duration
measure:
  windows: [5s, 30s]
metrics: [payments_duration]
thresholds:
  summary_5s_duration: ["p(98)<400"]
  payments_duration: ["avg<100"]
hooks:
  waitReady: 15s
`

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(yamlConfig), "test.yaml")
	require.NoError(t, err)
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "rinha", cfg.Name)
	assert.Equal(t, "http://payments:8080", cfg.Settings.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Settings.Timeout.GetDuration(0))
	assert.Equal(t, DefaultGracefulStop, cfg.Settings.GracefulStop.GetDuration(0))
	assert.Equal(t, 15*time.Second, cfg.Hooks.WaitReady.GetDuration(0))
	assert.Equal(t, 200.0, cfg.Settings.MaxRate)
	assert.Equal(t, DefaultAmountMin, cfg.Populate.AmountMin)

	plan, err := cfg.Plan()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, plan.TotalDuration())
	assert.Equal(t, stage.KindMeasure, plan.Resolve(10*time.Second).Kind)

	assert.Equal(t, []string{"summary_5s_duration", "summary_30s_duration", "payments_duration"}, cfg.Buckets())

	ths, err := cfg.ParsedThresholds()
	require.NoError(t, err)
	require.Len(t, ths, 2)
	assert.Equal(t, "payments_duration", ths[0].Bucket)
}

func TestParseConfig_JSON(t *testing.T) {
	data := `{
		"name": "json",
		"settings": {"baseUrl": "http://localhost:9999", "gracefulStop": "5s"},
		"stages": [{"duration": "1m", "target": 10, "kind": "populate"}],
		"thresholds": {"summary_10s_duration": ["p(99)<1000"]}
	}`

	cfg, err := ParseConfig([]byte(data), "test.json")
	require.NoError(t, err)
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Settings.GracefulStop.GetDuration(0))
	assert.Equal(t, DefaultWindows, cfg.Measure.Windows)
}

func TestParseConfig_Malformed(t *testing.T) {
	_, err := ParseConfig([]byte("{nope"), "bad.json")
	require.Error(t, err)

	_, err = ParseConfig([]byte("stages: [\n"), "bad.yaml")
	require.Error(t, err)

	_, err = ParseConfig([]byte("settings:\n  timeout: forever\n"), "bad.yml")
	require.Error(t, err)
}

func TestParseConfig_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfig([]byte("stages:\n  - duration: 10s\n    targt: 5\n"), "typo.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targt")

	_, err = ParseConfig([]byte(`{"stages": [], "treshold": {}}`), "typo.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treshold")
}

func TestLoadConfig_UnsupportedOrEmpty(t *testing.T) {
	dir := t.TempDir()

	toml := filepath.Join(dir, "paybench.toml")
	require.NoError(t, os.WriteFile(toml, []byte("name = 'x'"), 0o600))
	_, err := LoadConfig(toml)
	require.Error(t, err)
	assert.True(t, errdefs.IsConfigError(err))

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("\n  \n"), 0o600))
	_, err = LoadConfig(empty)
	require.Error(t, err)
	assert.True(t, errdefs.IsConfigError(err))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paybench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "rinha", cfg.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	plan, err := cfg.Plan()
	require.NoError(t, err)
	assert.Equal(t, "30s:100:populate,1m0s:2:measure", plan.String())

	assert.Equal(t, []string{
		"summary_5s_duration", "summary_10s_duration", "summary_15s_duration", "summary_20s_duration",
	}, cfg.Buckets())

	ths, err := cfg.ParsedThresholds()
	require.NoError(t, err)
	assert.Len(t, ths, 8)
	assert.Equal(t, "summary_10s_duration", ths[0].Bucket)
}

func TestWindowThresholds(t *testing.T) {
	assert.Equal(t, map[string][]string{
		"summary_5s_duration":  {"p(98)<400", "p(99)<500"},
		"summary_10s_duration": {"p(98)<800", "p(99)<1000"},
		"summary_15s_duration": {"p(98)<1200", "p(99)<1500"},
		"summary_20s_duration": {"p(98)<1600", "p(99)<2000"},
	}, Default().Thresholds)

	assert.Equal(t, map[string][]string{
		"summary_1.5s_duration": {"p(98)<120", "p(99)<150"},
	}, WindowThresholds([]time.Duration{1500 * time.Millisecond}))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &TestConfig{
		Settings: Settings{BaseURL: "not a url", MaxRate: -1},
		Stages: []StageConfig{
			{Duration: "-5s", Target: -1, Kind: "populate"},
			{Duration: "10s", Target: 1, Kind: "browse"},
		},
		Populate:   PopulateConfig{Bucket: "ghost", AmountMin: 5, AmountMax: 1},
		Measure:    MeasureConfig{Windows: []string{"5s", "zero"}},
		Thresholds: map[string][]string{"summary_99s_duration": {"p(98)<1"}, "summary_5s_duration": {"p98<1"}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errdefs.IsConfigError(err))

	var cerrs *errdefs.ConfigErrors
	require.ErrorAs(t, err, &cerrs)

	fields := make(map[string]bool)
	for _, e := range cerrs.Errors {
		fields[e.Field] = true
	}
	for _, f := range []string{
		"settings.baseUrl",
		"settings.maxRate",
		"stages[0].duration",
		"stages[0].target",
		"stages[1].kind",
		"populate.amountMax",
		"populate.bucket",
		"measure.windows[1]",
		"thresholds.summary_99s_duration",
		"thresholds.summary_5s_duration[0]",
	} {
		assert.True(t, fields[f], "missing error for %s", f)
	}
}

func TestValidate_DuplicateWindows(t *testing.T) {
	cfg := Default()
	cfg.Measure.Windows = []string{"5s", "10s", "5"}

	err := cfg.Validate()
	require.Error(t, err)

	var cerrs *errdefs.ConfigErrors
	require.ErrorAs(t, err, &cerrs)
	require.Len(t, cerrs.Errors, 1)
	assert.Equal(t, "measure.windows[2]", cerrs.Errors[0].Field)
	assert.Contains(t, cerrs.Errors[0].Message, "duplicate window")
}

func TestValidate_NoStages(t *testing.T) {
	cfg := &TestConfig{}
	cfg.ApplyDefaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one stage")
}

func TestValidate_Pacing(t *testing.T) {
	cfg := Default()
	cfg.Settings.Pacing = &PacingConfig{Type: "random", Min: "2s", Max: "1s"}
	require.Error(t, cfg.Validate())

	cfg.Settings.Pacing = &PacingConfig{Type: "constant"}
	require.Error(t, cfg.Validate())

	cfg.Settings.Pacing = &PacingConfig{Type: "random", Min: "1s", Max: "2s"}
	require.NoError(t, cfg.Validate())
}

func TestApplyDefaults_InfersKinds(t *testing.T) {
	cfg := &TestConfig{Stages: []StageConfig{{Duration: "1s", Target: 1}, {Duration: "1s", Target: 1}}}
	cfg.ApplyDefaults()
	assert.Equal(t, "populate", cfg.Stages[0].Kind)
	assert.Equal(t, "measure", cfg.Stages[1].Kind)
}

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"", 0, false},
		{"30s", 30 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"45", 45 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"abc", 0, true},
		{"10x", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDurationString(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
