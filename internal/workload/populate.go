package workload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wesleyorama2/paybench/internal/errdefs"
	"github.com/wesleyorama2/paybench/internal/metrics"
	"github.com/wesleyorama2/paybench/internal/stage"
)

// PopulateConfig configures the write workload.
type PopulateConfig struct {
	BaseURL string

	// Bucket receives successful write latencies; empty discards them
	Bucket string

	// Amounts are drawn uniformly from [AmountMin, AmountMax) and rounded to cents
	AmountMin float64
	AmountMax float64
}

// paymentRequest is the body of POST /payments.
type paymentRequest struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
}

// Populate issues one POST /payments per iteration with a random payload.
type Populate struct {
	client    *http.Client
	url       string
	sink      *metrics.Sink
	engine    *metrics.Engine
	amountMin float64
	amountMax float64
}

// NewPopulate builds the write workload. A configured bucket must be
// declared in reg.
func NewPopulate(client *http.Client, cfg PopulateConfig, reg *metrics.Registry, engine *metrics.Engine) (*Populate, error) {
	sink, err := bucketSink(reg, "populate.bucket", cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if cfg.AmountMax <= cfg.AmountMin {
		return nil, errdefs.NewConfigError("populate.amountMax", "amountMax (%.2f) must be greater than amountMin (%.2f)", cfg.AmountMax, cfg.AmountMin)
	}

	return &Populate{
		client:    client,
		url:       strings.TrimRight(cfg.BaseURL, "/") + "/payments",
		sink:      sink,
		engine:    engine,
		amountMin: cfg.AmountMin,
		amountMax: cfg.AmountMax,
	}, nil
}

// Kind returns stage.KindPopulate.
func (p *Populate) Kind() stage.Kind {
	return stage.KindPopulate
}

// Run issues a single payment creation.
func (p *Populate) Run(ctx context.Context) error {
	payload, err := json.Marshal(paymentRequest{
		CorrelationID: uuid.NewString(),
		Amount:        p.amount(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode payment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		if p.sink != nil {
			p.sink.Fail()
		}
		return &errdefs.RequestError{Op: "POST /payments", Bucket: p.bucketName(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res := do(ctx, p.client, req, false)
	success := res.Err == nil && res.StatusCode >= 200 && res.StatusCode < 300
	if p.engine != nil {
		p.engine.RecordLatency(res.Duration, RequestCreatePayment, success, res.Bytes)
	}

	if !success {
		if p.sink != nil {
			p.sink.Fail()
		}
		return &errdefs.RequestError{Op: "POST /payments", Bucket: p.bucketName(), StatusCode: res.StatusCode, Err: res.Err}
	}

	if p.sink != nil {
		p.sink.Add(millis(res.Duration))
	}
	return nil
}

func (p *Populate) amount() float64 {
	v := p.amountMin + rand.Float64()*(p.amountMax-p.amountMin)
	return math.Round(v*100) / 100
}

func (p *Populate) bucketName() string {
	if p.sink == nil {
		return ""
	}
	return p.sink.Name()
}
