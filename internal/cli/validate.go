package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a test configuration and print the resolved plan",
		Args:  cobra.NoArgs,
		RunE:  validateTest,
	}
	addTestFlags(cmd)
	return cmd
}

func validateTest(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadTestConfig(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	plan, err := cfg.Plan()
	if err != nil {
		return err
	}
	thresholds, err := cfg.ParsedThresholds()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Test:      %s\n", cfg.Name)
	fmt.Fprintf(out, "Target:    %s\n", cfg.Settings.BaseURL)
	fmt.Fprintf(out, "Duration:  %s\n", plan.TotalDuration())
	fmt.Fprintf(out, "Peak VUs:  %d\n", plan.MaxTarget())
	fmt.Fprintln(out, "Stages:")
	for i, st := range plan.Stages() {
		fmt.Fprintf(out, "  %d. %-8s %4d VUs for %s\n", i+1, st.Kind, st.Target, st.Duration)
	}
	fmt.Fprintf(out, "Buckets:   %s\n", strings.Join(cfg.Buckets(), ", "))
	fmt.Fprintln(out, "Thresholds:")
	for _, t := range thresholds {
		fmt.Fprintf(out, "  %s\n", t)
	}
	fmt.Fprintln(out, "Configuration is valid")
	return nil
}
