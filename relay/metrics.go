package relay

// Metrics collects relay delivery metrics.
type Metrics interface {
	// RecordForward records a successfully forwarded payload.
	RecordForward(topic string, bytes int)

	// RecordDrop records a payload dropped on a failed destination publish.
	RecordDrop(topic string, err error)
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// RecordForward does nothing.
func (NoOpMetrics) RecordForward(topic string, bytes int) {}

// RecordDrop does nothing.
func (NoOpMetrics) RecordDrop(topic string, err error) {}
