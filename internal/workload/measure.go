package workload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wesleyorama2/paybench/internal/clock"
	"github.com/wesleyorama2/paybench/internal/errdefs"
	"github.com/wesleyorama2/paybench/internal/metrics"
	"github.com/wesleyorama2/paybench/internal/stage"
)

// isoMillis matches JavaScript's Date.toISOString output.
const isoMillis = "2006-01-02T15:04:05.000Z"

// WindowBucket is the bucket name for a summary lookback window,
// e.g. summary_5s_duration.
func WindowBucket(window time.Duration) string {
	secs := window.Seconds()
	if secs == float64(int64(secs)) {
		return fmt.Sprintf("summary_%ds_duration", int64(secs))
	}
	return fmt.Sprintf("summary_%s_duration", window)
}

// FormatTimestamp renders t as UTC ISO-8601 with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// MeasureConfig configures the summary read workload.
type MeasureConfig struct {
	BaseURL string

	// Windows are the lookback intervals queried on every iteration
	Windows []time.Duration
}

type window struct {
	lookback time.Duration
	sink     *metrics.Sink
}

// Measure queries /payments-summary once per configured window per
// iteration. All windows in one iteration share the same "to" instant.
//
// A request counts as a latency sample only when it returns 200 with a JSON
// object carrying both "default" and "fallback". Anything else is recorded
// as a failure of that window's bucket.
type Measure struct {
	client    *http.Client
	url       string
	windows   []window
	validator *BodyValidator
	engine    *metrics.Engine
	clock     clock.Clock
}

// NewMeasure builds the read workload. Every window bucket must be declared
// in reg.
func NewMeasure(client *http.Client, cfg MeasureConfig, reg *metrics.Registry, engine *metrics.Engine, c clock.Clock) (*Measure, error) {
	if len(cfg.Windows) == 0 {
		return nil, errdefs.NewConfigError("measure.windows", "at least one window is required")
	}
	if c == nil {
		c = clock.Real{}
	}

	m := &Measure{
		client:    client,
		url:       strings.TrimRight(cfg.BaseURL, "/") + "/payments-summary",
		validator: NewSummaryValidator(),
		engine:    engine,
		clock:     c,
	}

	seen := make(map[time.Duration]bool, len(cfg.Windows))
	for i, lookback := range cfg.Windows {
		field := fmt.Sprintf("measure.windows[%d]", i)
		if lookback <= 0 {
			return nil, errdefs.NewConfigError(field, "window must be positive")
		}
		if seen[lookback] {
			return nil, errdefs.NewConfigError(field, "duplicate window %s", lookback)
		}
		seen[lookback] = true
		sink, err := bucketSink(reg, field, WindowBucket(lookback))
		if err != nil {
			return nil, err
		}
		m.windows = append(m.windows, window{lookback: lookback, sink: sink})
	}

	return m, nil
}

// Kind returns stage.KindMeasure.
func (m *Measure) Kind() stage.Kind {
	return stage.KindMeasure
}

// Buckets returns the bucket names this workload writes to.
func (m *Measure) Buckets() []string {
	out := make([]string, len(m.windows))
	for i, w := range m.windows {
		out[i] = w.sink.Name()
	}
	return out
}

// Run queries every window once.
func (m *Measure) Run(ctx context.Context) error {
	now := m.clock.Now()

	var errs []error
	for _, w := range m.windows {
		if err := m.query(ctx, w, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Measure) query(ctx context.Context, w window, now time.Time) error {
	op := "GET /payments-summary"

	q := url.Values{}
	q.Set("from", FormatTimestamp(now.Add(-w.lookback)))
	q.Set("to", FormatTimestamp(now))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url+"?"+q.Encode(), nil)
	if err != nil {
		w.sink.Fail()
		return &errdefs.RequestError{Op: op, Bucket: w.sink.Name(), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	res := do(ctx, m.client, req, true)

	var failure error
	switch {
	case res.Err != nil:
		failure = res.Err
	case res.StatusCode != http.StatusOK:
		failure = errors.New("unexpected status")
	default:
		failure = m.validator.Validate(res.Body)
	}

	if m.engine != nil {
		m.engine.RecordLatency(res.Duration, RequestGetSummary, failure == nil, res.Bytes)
	}

	if failure != nil {
		w.sink.Fail()
		return &errdefs.RequestError{Op: op, Bucket: w.sink.Name(), StatusCode: res.StatusCode, Err: failure}
	}

	w.sink.Record(metrics.Sample{Bucket: w.sink.Name(), Value: millis(res.Duration), Timestamp: m.clock.Now()})
	return nil
}
