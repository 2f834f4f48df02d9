package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wesleyorama2/paybench/internal/harness"
)

const ruleWidth = 64

// SummaryOptions controls the console summary.
type SummaryOptions struct {
	// Quiet prints only PASSED or FAILED
	Quiet bool

	// Scheme colors the output; nil means no color
	Scheme *ColorScheme
}

// PrintSummary writes the end-of-run summary.
func PrintSummary(w io.Writer, r *harness.Result, opts SummaryOptions) {
	s := opts.Scheme
	if s == nil {
		s = NoColorScheme()
	}

	ok := r.OK()
	if opts.Quiet {
		switch {
		case ok:
			fmt.Fprintln(w, s.Success.Sprint("PASSED"))
		case r.Cancelled:
			fmt.Fprintln(w, s.Error.Sprint("FAILED (interrupted)"))
		default:
			fmt.Fprintln(w, s.Error.Sprint("FAILED"))
		}
		return
	}

	status := s.Success.Sprint("Completed ✓")
	if !ok {
		status = s.Error.Sprint("Failed ✗")
	}
	if r.Cancelled {
		status += s.Warn.Sprint(" (interrupted)")
	}

	rule := s.Border.Sprint(strings.Repeat("━", ruleWidth))
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s - %s\n", s.Title.Sprint(r.Name), status)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Plan:          %s\n", s.Value.Sprint(r.Plan))
	fmt.Fprintf(w, "Duration:      %s\n", s.Value.Sprint(formatDuration(r.Duration)))
	if r.Overall != nil {
		fmt.Fprintf(w, "Total Reqs:    %s\n", s.Value.Sprint(formatNumber(r.Overall.TotalRequests)))
		fmt.Fprintf(w, "Success Rate:  %s\n", successRate(s, r.Overall.ErrorRate, r.Overall.TotalRequests))
		fmt.Fprintf(w, "Iterations:    %s\n", s.Value.Sprint(formatNumber(r.Pool.Iterations)))
	}
	fmt.Fprintln(w)

	if len(r.Requests) > 0 {
		fmt.Fprintln(w, s.Label.Sprint("Requests:"))
		names := make([]string, 0, len(r.Requests))
		for name := range r.Requests {
			names = append(names, name)
		}
		sort.Strings(names)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  name\tcount\tp50\tp95\tp99\tmax")
		for _, name := range names {
			st := r.Requests[name]
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n", name, formatNumber(st.Count),
				formatDurationShort(st.P50), formatDurationShort(st.P95), formatDurationShort(st.P99), formatDurationShort(st.Max))
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(r.Buckets) > 0 {
		fmt.Fprintln(w, s.Label.Sprint("Buckets (ms):"))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  bucket\tavg\tp(98)\tp(99)\tcount\tfailures")
		for _, b := range r.Buckets {
			if b.NoData {
				fmt.Fprintf(tw, "  %s\t-\t-\t-\t0\t%d\n", b.Bucket, b.Failures)
				continue
			}
			fmt.Fprintf(tw, "  %s\t%.2f\t%.2f\t%.2f\t%d\t%d\n", b.Bucket, b.Avg, b.P98, b.P99, b.Count, b.Failures)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(r.Verdicts) > 0 {
		fmt.Fprintln(w, s.Label.Sprint("Thresholds:"))
		for _, v := range r.Verdicts {
			mark := s.Success.Sprint("✓")
			if !v.Passed {
				mark = s.Error.Sprint("✗")
			}
			actual := fmt.Sprintf("%.2f", v.Observed)
			if v.NoData {
				actual = "no data"
			}
			fmt.Fprintf(w, "  %s %s %s (actual: %s)\n", mark, v.Bucket, v.Expression, actual)
		}
		fmt.Fprintln(w)
	}

	if r.ServerSummary != nil {
		ss := r.ServerSummary
		fmt.Fprintln(w, s.Label.Sprint("Server summary:"))
		fmt.Fprintf(w, "  default:   %s requests, %.2f total\n", formatNumber(ss.Default.TotalRequests), ss.Default.TotalAmount)
		fmt.Fprintf(w, "  fallback:  %s requests, %.2f total\n", formatNumber(ss.Fallback.TotalRequests), ss.Fallback.TotalAmount)
		fmt.Fprintln(w)
	}

	if r.TeardownError != "" {
		fmt.Fprintf(w, "%s %s\n\n", s.Error.Sprint("✗"), r.TeardownError)
	}
}

func successRate(s *ColorScheme, errorRate float64, total int64) string {
	if total == 0 {
		return s.Dim.Sprint("n/a")
	}
	rate := 1.0 - errorRate
	c := s.Success
	if rate < 0.99 {
		c = s.Warn
	}
	if rate < 0.95 {
		c = s.Error
	}
	return c.Sprintf("%.1f%%", rate*100)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(str, "-")
	if neg {
		str = str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	var result strings.Builder
	if neg {
		result.WriteString("-")
	}
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
