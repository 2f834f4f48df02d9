package workload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/paybench/internal/errdefs"
)

// ProcessorTotals are the server-side totals reported for one payment processor.
type ProcessorTotals struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalAmount   float64 `json:"totalAmount"`
}

// ServerSummary is the payments summary reported by the target at teardown.
type ServerSummary struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Default  ProcessorTotals `json:"default"`
	Fallback ProcessorTotals `json:"fallback"`
}

// TotalRequests is the sum over both processors.
func (s ServerSummary) TotalRequests() int64 {
	return s.Default.TotalRequests + s.Fallback.TotalRequests
}

// TotalAmount is the sum over both processors.
func (s ServerSummary) TotalAmount() float64 {
	return s.Default.TotalAmount + s.Fallback.TotalAmount
}

// Purge asks the target to drop all stored payments.
func Purge(ctx context.Context, client *http.Client, baseURL string) error {
	op := "POST /purge-payments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/purge-payments", nil)
	if err != nil {
		return &errdefs.RequestError{Op: op, Err: err}
	}

	res := do(ctx, client, req, false)
	if res.Err != nil {
		return &errdefs.RequestError{Op: op, StatusCode: res.StatusCode, Err: res.Err}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &errdefs.RequestError{Op: op, StatusCode: res.StatusCode, Err: errors.New("unexpected status")}
	}
	return nil
}

// WaitReady polls GET /check-status until it answers 2xx or timeout elapses.
func WaitReady(ctx context.Context, client *http.Client, baseURL string, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := strings.TrimRight(baseURL, "/") + "/check-status"
	var last error
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return &errdefs.RequestError{Op: "GET /check-status", Err: err}
		}
		res := do(ctx, client, req, false)
		switch {
		case res.Err != nil:
			last = res.Err
		case res.StatusCode >= 200 && res.StatusCode < 300:
			return nil
		default:
			last = fmt.Errorf("status %d", res.StatusCode)
		}

		select {
		case <-ctx.Done():
			return &errdefs.RequestError{Op: "GET /check-status", Err: fmt.Errorf("target not ready after %s: %w", timeout, last)}
		case <-time.After(interval):
		}
	}
}

// FetchSummary queries /payments-summary over [from, to].
func FetchSummary(ctx context.Context, client *http.Client, baseURL string, from, to time.Time) (ServerSummary, error) {
	op := "GET /payments-summary"
	q := url.Values{}
	q.Set("from", FormatTimestamp(from))
	q.Set("to", FormatTimestamp(to))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/payments-summary?"+q.Encode(), nil)
	if err != nil {
		return ServerSummary{}, &errdefs.RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	res := do(ctx, client, req, true)
	if res.Err != nil {
		return ServerSummary{}, &errdefs.RequestError{Op: op, StatusCode: res.StatusCode, Err: res.Err}
	}
	if res.StatusCode != http.StatusOK {
		return ServerSummary{}, &errdefs.RequestError{Op: op, StatusCode: res.StatusCode, Err: errors.New("unexpected status")}
	}
	if !gjson.ValidBytes(res.Body) {
		return ServerSummary{}, &errdefs.RequestError{Op: op, StatusCode: res.StatusCode, Err: errors.New("response is not valid JSON")}
	}

	parsed := gjson.ParseBytes(res.Body)
	if !parsed.Get("default").Exists() || !parsed.Get("fallback").Exists() {
		return ServerSummary{}, &errdefs.RequestError{Op: op, StatusCode: res.StatusCode, Err: errors.New("response lacks default or fallback")}
	}

	return ServerSummary{
		From:     from.UTC(),
		To:       to.UTC(),
		Default:  totals(parsed.Get("default")),
		Fallback: totals(parsed.Get("fallback")),
	}, nil
}

func totals(r gjson.Result) ProcessorTotals {
	return ProcessorTotals{
		TotalRequests: r.Get("totalRequests").Int(),
		TotalAmount:   r.Get("totalAmount").Float(),
	}
}
