package proxy

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics counts requests and the bytes saved by injection deduplication,
// following the same otel-counter wiring the pack's own services use for
// request accounting.
type Metrics struct {
	requests   metric.Int64Counter
	bytesSaved metric.Int64Counter
}

// NewMetrics builds Metrics from a meter; a nil/no-op meter (the
// default when no OTel exporter is configured) makes every counter a
// safe no-op, so the proxy never needs to branch on "is metrics
// enabled".
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("macf_proxy_requests_total",
		metric.WithDescription("requests handled by the macf reverse proxy"))
	if err != nil {
		return nil, err
	}
	bytesSaved, err := meter.Int64Counter("macf_proxy_bytes_saved_total",
		metric.WithDescription("bytes removed from request bodies by injection deduplication"))
	if err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, bytesSaved: bytesSaved}, nil
}

func (m *Metrics) RecordRequest(ctx context.Context) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1)
}

func (m *Metrics) RecordBytesSaved(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSaved.Add(ctx, int64(n))
}
