package metrics

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/paybench/internal/errdefs"
)

// Stat names a statistic computed over a bucket.
type Stat string

const (
	StatAvg   Stat = "avg"
	StatMin   Stat = "min"
	StatMax   Stat = "max"
	StatMed   Stat = "med"
	StatP90   Stat = "p(90)"
	StatP95   Stat = "p(95)"
	StatP98   Stat = "p(98)"
	StatP99   Stat = "p(99)"
	StatCount Stat = "count"
)

// Sample is a single successful measurement routed to a bucket.
type Sample struct {
	Bucket    string
	Value     float64
	Timestamp time.Time
}

// Statistics is a point-in-time view of a bucket.
//
// When NoData is set the bucket never received a sample and every value
// field is meaningless.
type Statistics struct {
	Bucket   string  `json:"bucket"`
	Count    int64   `json:"count"`
	Failures int64   `json:"failures"`
	Avg      float64 `json:"avg"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Med      float64 `json:"med"`
	P90      float64 `json:"p90"`
	P95      float64 `json:"p95"`
	P98      float64 `json:"p98"`
	P99      float64 `json:"p99"`
	NoData   bool    `json:"noData"`

	FirstSampleAt time.Time `json:"firstSampleAt,omitempty"`
	LastSampleAt  time.Time `json:"lastSampleAt,omitempty"`
}

// Value returns the named statistic. An empty bucket yields an error
// wrapping errdefs.ErrNoData for every statistic, count included.
func (s Statistics) Value(stat Stat) (float64, error) {
	if s.NoData {
		return 0, fmt.Errorf("bucket %q: %w", s.Bucket, errdefs.ErrNoData)
	}

	switch stat {
	case StatAvg:
		return s.Avg, nil
	case StatMin:
		return s.Min, nil
	case StatMax:
		return s.Max, nil
	case StatMed:
		return s.Med, nil
	case StatP90:
		return s.P90, nil
	case StatP95:
		return s.P95, nil
	case StatP98:
		return s.P98, nil
	case StatP99:
		return s.P99, nil
	case StatCount:
		return float64(s.Count), nil
	default:
		return 0, fmt.Errorf("unknown statistic %q", stat)
	}
}

// Sink accumulates latency samples for one bucket.
//
// Samples are an unordered multiset; order is only imposed at read time.
// Safe for concurrent use.
type Sink struct {
	name string

	mu      sync.Mutex
	samples []float64
	first   time.Time
	last    time.Time

	failures atomic.Int64
}

func newSink(name string) *Sink {
	return &Sink{name: name, samples: make([]float64, 0, 1024)}
}

// Name returns the bucket name.
func (s *Sink) Name() string {
	return s.name
}

// Add records a successful sample taken now.
func (s *Sink) Add(value float64) {
	s.Record(Sample{Bucket: s.name, Value: value, Timestamp: time.Now()})
}

// Record stores a sample. The sample's bucket is not checked; callers obtain
// the sink from the Registry.
func (s *Sink) Record(sample Sample) {
	s.mu.Lock()
	s.samples = append(s.samples, sample.Value)
	if !sample.Timestamp.IsZero() {
		if s.first.IsZero() || sample.Timestamp.Before(s.first) {
			s.first = sample.Timestamp
		}
		if sample.Timestamp.After(s.last) {
			s.last = sample.Timestamp
		}
	}
	s.mu.Unlock()
}

// Fail records a failed request against this bucket. Failures never
// contribute latency samples.
func (s *Sink) Fail() {
	s.failures.Add(1)
}

// Count returns the number of samples recorded so far.
func (s *Sink) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.samples))
}

// Statistics computes the bucket statistics over a sorted copy of the samples.
func (s *Sink) Statistics() Statistics {
	s.mu.Lock()
	sorted := make([]float64, len(s.samples))
	copy(sorted, s.samples)
	first, last := s.first, s.last
	s.mu.Unlock()

	stats := Statistics{
		Bucket:        s.name,
		Count:         int64(len(sorted)),
		Failures:      s.failures.Load(),
		FirstSampleAt: first,
		LastSampleAt:  last,
	}
	if len(sorted) == 0 {
		stats.NoData = true
		return stats
	}

	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	stats.Avg = sum / float64(len(sorted))
	stats.Min = sorted[0]
	stats.Max = sorted[len(sorted)-1]
	stats.Med = Percentile(sorted, 0.50)
	stats.P90 = Percentile(sorted, 0.90)
	stats.P95 = Percentile(sorted, 0.95)
	stats.P98 = Percentile(sorted, 0.98)
	stats.P99 = Percentile(sorted, 0.99)
	return stats
}

// Percentile returns the p-quantile (0..1) of an ascending slice using
// linear interpolation at rank p*(n-1). Returns NaN for an empty slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Registry holds the declared buckets of a run.
//
// Buckets are declared up front; asking for an undeclared bucket is a
// configuration error, never a silent drop.
type Registry struct {
	order []string
	sinks map[string]*Sink
}

// NewRegistry declares the given buckets. Names must be non-empty and unique.
func NewRegistry(buckets ...string) (*Registry, error) {
	r := &Registry{sinks: make(map[string]*Sink, len(buckets))}
	errs := &errdefs.ConfigErrors{}

	for i, name := range buckets {
		if name == "" {
			errs.Add(fmt.Sprintf("metrics[%d]", i), "bucket name cannot be empty")
			continue
		}
		if _, exists := r.sinks[name]; exists {
			errs.Add(fmt.Sprintf("metrics[%d]", i), fmt.Sprintf("duplicate bucket: %s", name))
			continue
		}
		r.sinks[name] = newSink(name)
		r.order = append(r.order, name)
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

// Sink returns the sink for a declared bucket.
func (r *Registry) Sink(bucket string) (*Sink, error) {
	sink, ok := r.sinks[bucket]
	if !ok {
		return nil, errdefs.NewConfigError("bucket", "unknown bucket: %s", bucket)
	}
	return sink, nil
}

// Has reports whether bucket is declared.
func (r *Registry) Has(bucket string) bool {
	_, ok := r.sinks[bucket]
	return ok
}

// Add records a sample into a declared bucket.
func (r *Registry) Add(bucket string, value float64) error {
	sink, err := r.Sink(bucket)
	if err != nil {
		return err
	}
	sink.Add(value)
	return nil
}

// Record routes a Sample to its bucket.
func (r *Registry) Record(s Sample) error {
	sink, err := r.Sink(s.Bucket)
	if err != nil {
		return err
	}
	sink.Record(s)
	return nil
}

// Statistics returns the statistics of a declared bucket.
func (r *Registry) Statistics(bucket string) (Statistics, error) {
	sink, err := r.Sink(bucket)
	if err != nil {
		return Statistics{}, err
	}
	return sink.Statistics(), nil
}

// Buckets returns the declared bucket names in declaration order.
func (r *Registry) Buckets() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Snapshot returns statistics for every bucket in declaration order.
func (r *Registry) Snapshot() []Statistics {
	out := make([]Statistics, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sinks[name].Statistics())
	}
	return out
}
