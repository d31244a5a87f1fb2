package relay

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/domainbridge/domainbridge-go/runtime"
)

// Pipe forwards opaque payloads delivered on a source subscription to a
// destination publisher. It performs no transformation, no buffering and
// no retry: a payload that cannot be published within the publish timeout
// is dropped and counted. Ordering follows source delivery order because
// the runtime invokes a subscription's handler serially.
type Pipe struct {
	dst       runtime.Publisher
	topicName string

	publishTimeout time.Duration
	logger         *slog.Logger
	metrics        Metrics

	forwarded atomic.Int64
	dropped   atomic.Int64
	closed    atomic.Bool
}

// PipeOption configures a Pipe.
type PipeOption func(*Pipe)

// WithPublishTimeout bounds how long one destination publish may block.
func WithPublishTimeout(timeout time.Duration) PipeOption {
	return func(p *Pipe) {
		if timeout > 0 {
			p.publishTimeout = timeout
		}
	}
}

// WithPipeLogger sets the logger.
func WithPipeLogger(logger *slog.Logger) PipeOption {
	return func(p *Pipe) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) PipeOption {
	return func(p *Pipe) {
		if m != nil {
			p.metrics = m
		}
	}
}

// DefaultPublishTimeout bounds a destination publish when no timeout is
// configured.
const DefaultPublishTimeout = time.Second

// NewPipe creates a pipe that forwards to dst. The caller wires
// Pipe.Forward as the handler of the source subscription.
func NewPipe(dst runtime.Publisher, topicName string, options ...PipeOption) *Pipe {
	p := &Pipe{
		dst:            dst,
		topicName:      topicName,
		publishTimeout: DefaultPublishTimeout,
		logger:         slog.Default(),
		metrics:        NoOpMetrics{},
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Forward is a runtime.DeliveryHandler. It always returns nil: a failed
// destination publish is a drop, not a delivery failure to surface to the
// source transport.
func (p *Pipe) Forward(ctx context.Context, payload []byte) error {
	if p.closed.Load() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	if err := p.dst.Publish(ctx, payload); err != nil {
		p.dropped.Add(1)
		p.metrics.RecordDrop(p.topicName, err)
		p.logger.Debug("relay drop",
			"topic", p.topicName,
			"bytes", len(payload),
			"error", err)
		return nil
	}

	p.forwarded.Add(1)
	p.metrics.RecordForward(p.topicName, len(payload))
	return nil
}

// Stats reports how many payloads the pipe has forwarded and dropped.
func (p *Pipe) Stats() Stats {
	return Stats{
		Forwarded: p.forwarded.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// Close stops forwarding. It does not close the destination publisher;
// the endpoint owner does that.
func (p *Pipe) Close() {
	p.closed.Store(true)
}

// Stats is a point-in-time counter snapshot for one pipe.
type Stats struct {
	Forwarded int64
	Dropped   int64
}
