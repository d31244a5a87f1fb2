package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/domainbridge/domainbridge-go/discovery"
	"github.com/domainbridge/domainbridge-go/internal/reliability"
	"github.com/domainbridge/domainbridge-go/qos"
	"github.com/domainbridge/domainbridge-go/relay"
	"github.com/domainbridge/domainbridge-go/runtime"
)

// bridgeKey identifies a bridge request. At most one live bridge exists
// per key; a second request for the same key returns the existing handle
// rather than creating a second relay path, which would double-deliver.
type bridgeKey struct {
	name string
	typ  string
	src  runtime.DomainID
	dst  runtime.DomainID
}

// Registry owns every bridge hosted by one process: it accepts bridge
// requests, drives each bridge's lifecycle on discovery events, and
// tears bridges down on removal.
type Registry struct {
	rt runtime.Runtime

	pollInterval   time.Duration
	publishTimeout time.Duration
	retryPolicy    reliability.RetryPolicy
	clock          clock.Clock
	logger         *slog.Logger
	metrics        relay.Metrics
	onTypeMismatch func(*TypeMismatchError)

	mu     sync.Mutex
	byKey  map[bridgeKey]*handle
	byID   map[HandleID]*handle
	closed bool
	wg     sync.WaitGroup
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPollInterval sets the discovery watchers' fallback poll interval.
func WithPollInterval(interval time.Duration) RegistryOption {
	return func(r *Registry) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithPublishTimeout bounds how long one relayed publish may block.
func WithPublishTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.publishTimeout = timeout
		}
	}
}

// WithRetryPolicy sets the policy pacing endpoint creation retries.
func WithRetryPolicy(policy reliability.RetryPolicy) RegistryOption {
	return func(r *Registry) {
		if policy != nil {
			r.retryPolicy = policy
		}
	}
}

// WithClock sets the clock used for poll and retry timers.
func WithClock(c clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRelayMetrics sets the metrics collector shared by all relay pipes.
func WithRelayMetrics(m relay.Metrics) RegistryOption {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTypeMismatchHandler registers a callback invoked once per
// discovered publisher whose declared type disagrees with the bridge's.
// The callback runs on the bridge's consumer goroutine and must not
// block.
func WithTypeMismatchHandler(fn func(*TypeMismatchError)) RegistryOption {
	return func(r *Registry) {
		r.onTypeMismatch = fn
	}
}

// NewRegistry creates a registry on top of the given domain runtime.
func NewRegistry(rt runtime.Runtime, options ...RegistryOption) *Registry {
	r := &Registry{
		rt:             rt,
		pollInterval:   discovery.DefaultPollInterval,
		publishTimeout: relay.DefaultPublishTimeout,
		retryPolicy:    reliability.NewExponentialBackoff(250*time.Millisecond, 10*time.Second, 2.0, 8),
		clock:          clock.New(),
		logger:         slog.Default(),
		metrics:        relay.NoOpMetrics{},
	}

	for _, opt := range options {
		opt(r)
	}

	r.byKey = make(map[bridgeKey]*handle)
	r.byID = make(map[HandleID]*handle)
	return r
}

// BridgeTopic requests a bridge relaying topic from the src domain into
// the dst domain. A provisional endpoint pair is created immediately with
// the default QoS profile; discovery then converges the pair's profile
// onto the merge of the real publishers' profiles.
//
// Requesting an already-bridged (topic, type, src, dst) returns the
// existing handle id.
func (r *Registry) BridgeTopic(ctx context.Context, topic runtime.Topic, src, dst runtime.DomainID) (HandleID, error) {
	if err := topic.Validate(); err != nil {
		return "", err
	}
	if src == 0 || dst == 0 {
		return "", runtime.ErrUnknownDomain
	}
	if src == dst {
		return "", ErrSameDomain
	}

	key := bridgeKey{name: topic.Name, typ: topic.Type, src: src, dst: dst}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRegistryClosed
	}
	if existing, ok := r.byKey[key]; ok {
		r.mu.Unlock()
		return existing.id, nil
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	h := &handle{
		id:           HandleID(uuid.NewString()),
		topic:        topic,
		src:          src,
		dst:          dst,
		state:        StateRequested,
		breaker:      reliability.NewCircuitBreaker(reliability.WithName("endpoint-create " + topic.Name)),
		reported:     make(map[string]struct{}),
		cancelWatch:  cancel,
		consumerDone: make(chan struct{}),
	}
	r.byKey[key] = h
	r.byID[h.id] = h
	r.mu.Unlock()

	// Requested -> Provisional happens without waiting for discovery.
	pair, err := r.createPair(ctx, topic, src, dst, qos.Profile{})
	if err != nil {
		if fatal := fatalCreationError(err); fatal != nil {
			cancel()
			close(h.consumerDone)
			r.forget(h)
			return "", err
		}
		// Transient. The bridge stays Requested; the consumer goroutine
		// retries on the first snapshot.
		h.mu.Lock()
		h.lastErr = err
		h.mu.Unlock()
		r.logger.Warn("provisional endpoint creation failed",
			"topic", topic.Name, "error", err)
	} else {
		h.mu.Lock()
		h.state = StateProvisional
		h.pair = pair
		h.current = pair.profile
		h.mu.Unlock()
	}

	w := discovery.NewWatcher(r.rt, src, topic.Name,
		discovery.WithPollInterval(r.pollInterval),
		discovery.WithClock(r.clock),
		discovery.WithWatcherLogger(r.logger),
	)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		_ = w.Watch(watchCtx)
	}()
	go func() {
		defer r.wg.Done()
		defer close(h.consumerDone)
		r.consume(watchCtx, h, w)
	}()

	r.logger.Info("bridge requested",
		"topic", topic.Name, "type", topic.Type, "from", src, "to", dst, "id", h.id)
	return h.id, nil
}

// fatalCreationError unwraps errors that should fail the request
// synchronously rather than be retried.
func fatalCreationError(err error) error {
	switch {
	case errors.Is(err, runtime.ErrUnknownDomain),
		errors.Is(err, runtime.ErrEmptyTopicName),
		errors.Is(err, runtime.ErrEmptyTopicType),
		errors.Is(err, runtime.ErrClosed):
		return err
	}
	return nil
}

func (r *Registry) forget(h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, bridgeKey{name: h.topic.Name, typ: h.topic.Type, src: h.src, dst: h.dst})
	delete(r.byID, h.id)
}

// RemoveBridge tears the bridge down: the watcher is cancelled and its
// exit acknowledged before the endpoint pair is destroyed, so no stale
// snapshot can recreate an endpoint after teardown. Removing an unknown
// or already-removed bridge is a no-op.
func (r *Registry) RemoveBridge(id HandleID) error {
	r.mu.Lock()
	h, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.byKey, bridgeKey{name: h.topic.Name, typ: h.topic.Type, src: h.src, dst: h.dst})
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	r.teardown(h)
	r.logger.Info("bridge removed", "topic", h.topic.Name, "id", h.id)
	return nil
}

func (r *Registry) teardown(h *handle) {
	h.cancelWatch()
	<-h.consumerDone

	h.mu.Lock()
	pair := h.pair
	h.pair = nil
	h.state = StateRemoved
	h.mu.Unlock()

	if pair != nil {
		pair.close()
	}
}

// ListBridges reports a summary of every live bridge.
func (r *Registry) ListBridges() []Summary {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.byID))
	for _, h := range r.byID {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	summaries := make([]Summary, 0, len(handles))
	for _, h := range handles {
		summaries = append(summaries, h.summary())
	}
	return summaries
}

// Close removes every bridge and refuses further requests. The runtime
// itself is not closed; the registry does not own it.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	handles := make([]*handle, 0, len(r.byID))
	for _, h := range r.byID {
		handles = append(handles, h)
	}
	r.byID = make(map[HandleID]*handle)
	r.byKey = make(map[bridgeKey]*handle)
	r.mu.Unlock()

	for _, h := range handles {
		r.teardown(h)
	}
	r.wg.Wait()
	return nil
}
