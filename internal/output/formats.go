package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/paybench/internal/harness"
)

// Format represents the available output formats
type Format string

const (
	// FormatText is the default human-readable summary
	FormatText Format = "text"
	// FormatJSON outputs the result as JSON
	FormatJSON Format = "json"
	// FormatYAML outputs the result as YAML
	FormatYAML Format = "yaml"
	// FormatJUnit outputs thresholds as JUnit XML (for CI/CD integration)
	FormatJUnit Format = "junit"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML, FormatJUnit:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected text, json, yaml or junit)", s)
	}
}

// Write renders r in the given format.
func Write(w io.Writer, r *harness.Result, format Format, opts SummaryOptions) error {
	switch format {
	case FormatText, "":
		PrintSummary(w, r, opts)
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toYAML(r)); err != nil {
			return err
		}
		return enc.Close()
	case FormatJUnit:
		return writeJUnit(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// toYAML routes the result through its JSON form so both encodings share
// field names.
func toYAML(r *harness.Result) interface{} {
	data, err := json.Marshal(r)
	if err != nil {
		return r
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return r
	}
	return generic
}

// JUnitTestSuites represents a collection of JUnit test suites
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a JUnit test suite
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemOut string          `xml:"system-out,omitempty"`
	SystemErr string          `xml:"system-err,omitempty"`
}

// JUnitTestCase represents a JUnit test case
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
}

// JUnitFailure represents a JUnit test failure
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// writeJUnit emits one test case per threshold, plus one for an interrupted
// run and one for a failed teardown.
func writeJUnit(w io.Writer, r *harness.Result) error {
	suite := JUnitTestSuite{
		Name:      r.Name,
		Time:      r.Duration.Seconds(),
		Timestamp: r.StartedAt.Format(time.RFC3339),
	}

	for _, v := range r.Verdicts {
		tc := JUnitTestCase{
			Name:      fmt.Sprintf("%s %s", v.Bucket, v.Expression),
			Classname: v.Bucket,
		}
		if !v.Passed {
			msg := fmt.Sprintf("%s is %.2f", v.Statistic, v.Observed)
			if v.NoData {
				msg = "no data"
			}
			tc.Failure = &JUnitFailure{Message: msg, Type: "ThresholdFailure", Content: v.String()}
			suite.Failures++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	if r.Cancelled {
		suite.Errors++
		suite.TestCases = append(suite.TestCases, JUnitTestCase{
			Name:      "run",
			Classname: r.Name,
			Failure:   &JUnitFailure{Message: "run interrupted before the plan completed", Type: "Interrupted"},
		})
	}

	if r.TeardownError != "" {
		suite.Errors++
		suite.TestCases = append(suite.TestCases, JUnitTestCase{
			Name:      "teardown",
			Classname: r.Name,
			Failure:   &JUnitFailure{Message: r.TeardownError, Type: "TeardownError"},
		})
	}
	suite.Tests = len(suite.TestCases)

	if r.Overall != nil {
		suite.SystemOut = fmt.Sprintf("requests=%d failed=%d p95=%s", r.Overall.TotalRequests, r.Overall.FailedRequests, r.Overall.Latency.P95)
	}

	out, err := xml.MarshalIndent(JUnitTestSuites{TestSuites: []JUnitTestSuite{suite}}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JUnit XML: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header+string(out)+"\n"); err != nil {
		return err
	}
	return nil
}
