// Package threshold parses pass/fail criteria such as "p(98)<400" and
// evaluates them against bucket statistics at the end of a run.
package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/wesleyorama2/paybench/internal/errdefs"
	"github.com/wesleyorama2/paybench/internal/metrics"
)

// Comparator is a threshold operator.
type Comparator string

const (
	Less         Comparator = "<"
	LessEqual    Comparator = "<="
	Greater      Comparator = ">"
	GreaterEqual Comparator = ">="
)

// Compare reports whether observed <op> limit holds.
func (c Comparator) Compare(observed, limit float64) bool {
	switch c {
	case Less:
		return observed < limit
	case LessEqual:
		return observed <= limit
	case Greater:
		return observed > limit
	case GreaterEqual:
		return observed >= limit
	default:
		return false
	}
}

var exprPattern = regexp.MustCompile(`^\s*([a-z]+(?:\(\s*[0-9.]+\s*\))?)\s*(<=|>=|<|>)\s*(\S+)\s*$`)

var knownStats = map[metrics.Stat]bool{
	metrics.StatAvg:   true,
	metrics.StatMin:   true,
	metrics.StatMax:   true,
	metrics.StatMed:   true,
	metrics.StatP90:   true,
	metrics.StatP95:   true,
	metrics.StatP98:   true,
	metrics.StatP99:   true,
	metrics.StatCount: true,
}

// Threshold is one criterion on one bucket. Latency limits are in milliseconds.
type Threshold struct {
	Bucket     string
	Statistic  metrics.Stat
	Comparator Comparator
	Limit      float64
	Expression string
}

func (t Threshold) String() string {
	return fmt.Sprintf("%s: %s", t.Bucket, t.Expression)
}

// Parse parses an expression such as "p(98)<400" for bucket.
func Parse(bucket, expr string) (Threshold, error) {
	field := fmt.Sprintf("thresholds.%s", bucket)

	m := exprPattern.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, errdefs.NewConfigError(field, "invalid threshold expression %q", expr)
	}

	stat := metrics.Stat(strings.ReplaceAll(m[1], " ", ""))
	if !knownStats[stat] {
		return Threshold{}, errdefs.NewConfigError(field, "unsupported statistic %q in %q", m[1], expr)
	}

	limit, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Threshold{}, errdefs.NewConfigError(field, "invalid limit %q in %q", m[3], expr)
	}

	return Threshold{
		Bucket:     bucket,
		Statistic:  stat,
		Comparator: Comparator(m[2]),
		Limit:      limit,
		Expression: strings.TrimSpace(expr),
	}, nil
}

// ParseAll parses a bucket -> expressions map. The result is ordered by
// bucket name, then by declaration order within a bucket. Every problem
// is reported.
func ParseAll(exprs map[string][]string) ([]Threshold, error) {
	buckets := make([]string, 0, len(exprs))
	for b := range exprs {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)

	errs := &errdefs.ConfigErrors{}
	var out []Threshold
	for _, b := range buckets {
		for i, expr := range exprs[b] {
			t, err := Parse(b, expr)
			if err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", b, i), err.(*errdefs.ConfigError).Message)
				continue
			}
			out = append(out, t)
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// Verdict is the outcome of one threshold.
type Verdict struct {
	Bucket     string       `json:"bucket"`
	Statistic  metrics.Stat `json:"statistic"`
	Expression string       `json:"expression"`
	Observed   float64      `json:"observed"`
	Limit      float64      `json:"limit"`
	NoData     bool         `json:"noData"`
	Passed     bool         `json:"passed"`
}

func (v Verdict) String() string {
	if v.NoData {
		return fmt.Sprintf("%s %s: no data", v.Bucket, v.Expression)
	}
	return fmt.Sprintf("%s %s: %s=%.2f", v.Bucket, v.Expression, v.Statistic, v.Observed)
}

// Check validates that every threshold names a declared bucket.
func Check(reg *metrics.Registry, thresholds []Threshold) error {
	errs := &errdefs.ConfigErrors{}
	for _, t := range thresholds {
		if !reg.Has(t.Bucket) {
			errs.Add("thresholds."+t.Bucket, "threshold on undeclared bucket")
		}
	}
	return errs.ErrOrNil()
}

// Evaluate computes one verdict per threshold, ordered by bucket name and
// then by input order. Statistics are computed once per bucket.
func Evaluate(reg *metrics.Registry, thresholds []Threshold) ([]Verdict, error) {
	if err := Check(reg, thresholds); err != nil {
		return nil, err
	}

	cache := make(map[string]metrics.Statistics)
	verdicts := make([]Verdict, 0, len(thresholds))
	for _, t := range thresholds {
		stats, ok := cache[t.Bucket]
		if !ok {
			stats, _ = reg.Statistics(t.Bucket)
			cache[t.Bucket] = stats
		}

		v := Verdict{
			Bucket:     t.Bucket,
			Statistic:  t.Statistic,
			Expression: t.Expression,
			Limit:      t.Limit,
		}
		observed, err := stats.Value(t.Statistic)
		switch {
		case errors.Is(err, errdefs.ErrNoData):
			v.NoData = true
		case err != nil:
			return nil, errdefs.NewConfigError("thresholds."+t.Bucket, "%v", err)
		default:
			v.Observed = observed
			v.Passed = t.Comparator.Compare(observed, t.Limit)
		}
		verdicts = append(verdicts, v)
	}

	sort.SliceStable(verdicts, func(i, j int) bool {
		return verdicts[i].Bucket < verdicts[j].Bucket
	})
	return verdicts, nil
}

// AllPassed reports whether every verdict passed.
func AllPassed(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if !v.Passed {
			return false
		}
	}
	return true
}
