package workload

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

// HTTPClientConfig contains HTTP client configuration shared by all VUs.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient creates an HTTP client with the configured settings.
// One client is shared by every VU so connections are pooled.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// result is the outcome of a single timed HTTP call.
type result struct {
	StatusCode int
	Duration   time.Duration
	Body       []byte
	Bytes      int64
	Err        error
}

// do executes req and times it from send until the body is consumed.
// When keepBody is false the body is drained and discarded.
func do(ctx context.Context, client *http.Client, req *http.Request, keepBody bool) result {
	start := time.Now()
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return result{Duration: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	res := result{StatusCode: resp.StatusCode}
	if keepBody {
		res.Body, res.Err = io.ReadAll(resp.Body)
		res.Bytes = int64(len(res.Body))
	} else {
		res.Bytes, res.Err = io.Copy(io.Discard, resp.Body)
	}
	res.Duration = time.Since(start)
	return res
}

// millis converts a duration to fractional milliseconds.
func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
