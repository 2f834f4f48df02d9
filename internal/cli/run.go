package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wesleyorama2/paybench/internal/config"
	"github.com/wesleyorama2/paybench/internal/harness"
	"github.com/wesleyorama2/paybench/internal/logging"
	"github.com/wesleyorama2/paybench/internal/output"
	"github.com/wesleyorama2/paybench/internal/stage"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a load test against a payments API.

Config file mode:
  paybench run --config test.yaml

Built-in test against another host:
  paybench run --base-url http://localhost:8080

Custom stages (duration:target[:kind]):
  paybench run --stages "10s:50:populate,30s:4:measure"

Every flag can also be set through the environment, e.g. PAYBENCH_BASE_URL.
The exit code is 1 when any threshold fails or the teardown call fails.`,
		Args: cobra.NoArgs,
		RunE: runTest,
	}

	addTestFlags(cmd)
	cmd.Flags().String("format", "text", "Result format: text, json, yaml, junit")
	cmd.Flags().Bool("json", false, "Shortcut for --format json")
	cmd.Flags().String("output", "", "Write the result to this file instead of stdout")
	cmd.Flags().BoolP("quiet", "q", false, "Disable progress logs, print only PASSED or FAILED")
	cmd.Flags().Duration("progress", time.Second, "Progress log interval (0 disables)")
	return cmd
}

// addTestFlags registers the flags that shape the test configuration.
func addTestFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Test configuration file (YAML or JSON)")
	cmd.Flags().String("base-url", "", "Base URL of the payments API")
	cmd.Flags().String("stages", "", "Stages as 'duration:target[:kind],...'")
	cmd.Flags().String("windows", "", "Summary lookback windows as '5s,10s,...' (built-in test derives its thresholds from them)")
	cmd.Flags().Float64("max-rate", 0, "Cap on iterations per second across all VUs")
	cmd.Flags().Duration("timeout", 0, "HTTP request timeout")
	cmd.Flags().Duration("wait-ready", 0, "Wait up to this long for GET /check-status before setup")
	cmd.Flags().Bool("skip-purge", false, "Do not call POST /purge-payments before the run")
	cmd.Flags().Bool("skip-summary", false, "Do not fetch the payments summary after the run")
}

func runTest(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	quiet := v.GetBool("quiet")
	logger, err := logging.New(logging.Config{
		Level:  v.GetString("log-level"),
		Format: v.GetString("log-format"),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	if quiet && logger.GetLevel() > logrus.WarnLevel {
		logger.SetLevel(logrus.WarnLevel)
	}

	format, err := output.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	if v.GetBool("json") {
		format = output.FormatJSON
	}

	cfg, err := loadTestConfig(v)
	if err != nil {
		return err
	}

	progress := v.GetDuration("progress")
	if quiet {
		progress = 0
	}

	h, err := harness.New(cfg, harness.WithLogger(logger), harness.WithProgressInterval(progress))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := h.Run(ctx)
	if err != nil {
		return err
	}

	if err := writeResult(cmd.OutOrStdout(), result, format, v); err != nil {
		return err
	}

	if !result.OK() {
		return errRunFailed
	}
	return nil
}

// writeResult prints the result in the requested format. When an output file
// is given the file receives the formatted result and stdout the text summary.
func writeResult(stdout io.Writer, result *harness.Result, format output.Format, v *viper.Viper) error {
	opts := output.SummaryOptions{
		Quiet:  v.GetBool("quiet"),
		Scheme: output.SchemeFor(stdout, v.GetBool("no-color")),
	}

	path := v.GetString("output")
	if path == "" {
		return output.Write(stdout, result, format, opts)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	fileOpts := output.SummaryOptions{Scheme: output.NoColorScheme()}
	if err := output.Write(f, result, format, fileOpts); err != nil {
		f.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	output.PrintSummary(stdout, result, opts)
	return nil
}

// loadTestConfig reads the config file (or the built-in default) and applies
// flag and environment overrides.
func loadTestConfig(v *viper.Viper) (*config.TestConfig, error) {
	path := v.GetString("config")
	builtin := path == ""

	cfg := config.Default()
	if !builtin {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if s := v.GetString("base-url"); s != "" {
		cfg.Settings.BaseURL = s
	}
	if s := v.GetString("stages"); s != "" {
		parsed, err := stage.ParseStages(s)
		if err != nil {
			return nil, err
		}
		cfg.Stages = cfg.Stages[:0]
		for _, st := range parsed {
			cfg.Stages = append(cfg.Stages, config.StageConfig{
				Duration: st.Duration.String(),
				Target:   st.Target,
				Kind:     string(st.Kind),
				Name:     st.Name,
			})
		}
	}
	if s := v.GetString("windows"); s != "" {
		var windows []string
		for _, w := range strings.Split(s, ",") {
			if w = strings.TrimSpace(w); w != "" {
				windows = append(windows, w)
			}
		}
		cfg.Measure.Windows = windows
		if builtin {
			cfg.Thresholds = config.WindowThresholds(cfg.WindowDurations())
		}
	}
	if r := v.GetFloat64("max-rate"); r > 0 {
		cfg.Settings.MaxRate = r
	}
	if d := v.GetDuration("timeout"); d > 0 {
		cfg.Settings.Timeout = config.Duration(d)
	}
	if d := v.GetDuration("wait-ready"); d > 0 {
		cfg.Hooks.WaitReady = config.Duration(d)
	}
	if v.GetBool("skip-purge") {
		cfg.Hooks.SkipPurge = true
	}
	if v.GetBool("skip-summary") {
		cfg.Hooks.SkipSummary = true
	}

	cfg.ApplyDefaults()
	return cfg, nil
}
