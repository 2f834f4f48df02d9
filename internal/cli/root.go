package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var version = "0.1.0"

// envPrefix namespaces environment overrides, e.g. PAYBENCH_BASE_URL.
const envPrefix = "PAYBENCH"

// errRunFailed signals a completed run whose thresholds or teardown failed.
var errRunFailed = errors.New("run failed")

// NewRootCmd builds the paybench command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "paybench",
		Short:   "Load and latency harness for payments APIs",
		Version: version,
		Long: `paybench drives a payments API through a population phase (many virtual
users creating payments) and a measurement phase (a few virtual users reading
time-windowed payment summaries), then checks latency thresholds per window.

Without a config file the built-in test runs: 30s ramping to 100 VUs of
POST /payments, then 60s of 2 VUs querying GET /payments-summary over 5s, 10s,
15s and 20s windows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")
	root.PersistentFlags().String("log-format", "text", "Log format: text or json")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the root command with os.Args and returns the process exit code.
func Execute() int {
	return execute(context.Background(), NewRootCmd(), os.Args[1:], os.Stderr)
}

func execute(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// newViper binds the command's flags and PAYBENCH_* environment variables.
// Flags set on the command line win over the environment.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	return v, bindErr
}
