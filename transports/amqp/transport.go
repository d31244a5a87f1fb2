package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/domainbridge/domainbridge-go/internal/reliability"
	"github.com/domainbridge/domainbridge-go/qos"
	"github.com/domainbridge/domainbridge-go/runtime"
)

const (
	headerEndpointID  = "x-endpoint-id"
	headerMessageType = "x-message-type"

	// DefaultAnnounceInterval is how often a publisher re-advertises
	// itself on the announce exchange.
	DefaultAnnounceInterval = 2 * time.Second

	// announceTTLFactor: a publisher missing this many announce intervals
	// is considered gone.
	announceTTLFactor = 3
)

func dataExchange(d runtime.DomainID) string {
	return fmt.Sprintf("domainbridge.domain.%d", uint32(d))
}

func announceExchange(d runtime.DomainID) string {
	return fmt.Sprintf("domainbridge.domain.%d.discovery", uint32(d))
}

// Transport is an AMQP-backed runtime.Runtime. Each domain maps to a
// pair of exchanges on the broker: a topic exchange carrying payloads,
// routed by topic name, and a fanout announce exchange carrying
// publisher advertisements. Discovery is announcement driven, since AMQP
// exposes no endpoint graph of its own: publishers advertise
// periodically, the transport keeps a last-seen table per domain and
// fires graph events when the announced set changes.
type Transport struct {
	url              string
	announceInterval time.Duration
	clock            clock.Clock
	logger           *slog.Logger
	dialPolicy       reliability.RetryPolicy

	mu      sync.Mutex
	conn    *amqp.Connection
	domains map[runtime.DomainID]*domainState
	closed  bool
	stop    chan struct{}
}

type domainState struct {
	table        *discoveryTable
	listenCancel func()
	listenerDone chan struct{}
	sweeperDone  chan struct{}
}

// TransportOption configures the Transport.
type TransportOption func(*Transport)

// WithAnnounceInterval sets how often publishers re-advertise.
func WithAnnounceInterval(interval time.Duration) TransportOption {
	return func(t *Transport) {
		if interval > 0 {
			t.announceInterval = interval
		}
	}
}

// WithClock sets the clock driving announce and expiry timers.
func WithClock(c clock.Clock) TransportOption {
	return func(t *Transport) {
		t.clock = c
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithDialRetryPolicy sets the retry policy for broker dialing.
func WithDialRetryPolicy(policy reliability.RetryPolicy) TransportOption {
	return func(t *Transport) {
		if policy != nil {
			t.dialPolicy = policy
		}
	}
}

// NewTransport creates a transport for the given broker URL. No
// connection is made until Connect or the first endpoint operation.
func NewTransport(url string, options ...TransportOption) *Transport {
	t := &Transport{
		url:              url,
		announceInterval: DefaultAnnounceInterval,
		clock:            clock.New(),
		logger:           slog.Default(),
		dialPolicy:       reliability.NewExponentialBackoff(500*time.Millisecond, 10*time.Second, 2.0, 5),
		domains:          make(map[runtime.DomainID]*domainState),
		stop:             make(chan struct{}),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Connect dials the broker, retrying under the dial policy.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ensureConnLocked(ctx)
}

func (t *Transport) ensureConnLocked(ctx context.Context) error {
	if t.closed {
		return runtime.ErrClosed
	}
	if t.conn != nil && !t.conn.IsClosed() {
		return nil
	}

	err := reliability.Retry(ctx, t.dialPolicy, func() error {
		conn, dialErr := amqp.Dial(t.url)
		if dialErr != nil {
			t.logger.Warn("broker dial failed", "url", t.url, "error", dialErr)
			return dialErr
		}
		t.conn = conn
		return nil
	})
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}

	t.logger.Info("connected to broker", "url", t.url)
	return nil
}

// channel opens a fresh channel, connecting first if necessary.
func (t *Transport) channel(ctx context.Context) (*amqp.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnLocked(ctx); err != nil {
		return nil, err
	}
	return t.conn.Channel()
}

// attachDomain declares the domain's exchanges and starts its discovery
// listener and expiry sweeper on first use.
func (t *Transport) attachDomain(ctx context.Context, d runtime.DomainID) (*domainState, error) {
	if d == 0 {
		return nil, runtime.ErrUnknownDomain
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, runtime.ErrClosed
	}
	if state, ok := t.domains[d]; ok {
		t.mu.Unlock()
		return state, nil
	}
	t.mu.Unlock()

	ch, err := t.channel(ctx)
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(dataExchange(d), "topic", false, true, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declaring data exchange for %d: %w", d, err)
	}
	if err := ch.ExchangeDeclare(announceExchange(d), "fanout", false, true, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declaring announce exchange for %d: %w", d, err)
	}

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declaring announce queue for %d: %w", d, err)
	}
	if err := ch.QueueBind(queue.Name, "", announceExchange(d), false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("binding announce queue for %d: %w", d, err)
	}
	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consuming announcements for %d: %w", d, err)
	}

	ttl := time.Duration(announceTTLFactor) * t.announceInterval
	state := &domainState{
		table:        newDiscoveryTable(t.clock, ttl),
		listenerDone: make(chan struct{}),
		sweeperDone:  make(chan struct{}),
	}
	state.listenCancel = func() { _ = ch.Close() }

	t.mu.Lock()
	if existing, ok := t.domains[d]; ok {
		// Lost the attach race; keep the winner.
		t.mu.Unlock()
		_ = ch.Close()
		close(state.listenerDone)
		close(state.sweeperDone)
		return existing, nil
	}
	t.domains[d] = state
	t.mu.Unlock()

	go func() {
		defer close(state.listenerDone)
		for delivery := range deliveries {
			a, err := decodeAnnouncement(delivery.Body)
			if err != nil {
				t.logger.Debug("dropping malformed announcement", "domain", d, "error", err)
				continue
			}
			state.table.observe(a)
		}
	}()

	go func() {
		defer close(state.sweeperDone)
		ticker := t.clock.Ticker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				state.table.sweep()
			}
		}
	}()

	return state, nil
}

// CreatePublisher implements runtime.Runtime.
func (t *Transport) CreatePublisher(ctx context.Context, d runtime.DomainID, topic runtime.Topic, profile qos.Profile) (runtime.Publisher, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	if _, err := t.attachDomain(ctx, d); err != nil {
		return nil, err
	}

	ch, err := t.channel(ctx)
	if err != nil {
		return nil, err
	}

	p := newPublisher(t, ch, d, topic, profile)
	go p.announceLoop()
	return p, nil
}

// CreateSubscription implements runtime.Runtime.
func (t *Transport) CreateSubscription(ctx context.Context, d runtime.DomainID, topic runtime.Topic, profile qos.Profile, handler runtime.DeliveryHandler) (runtime.Subscription, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, runtime.ErrNilHandler
	}
	if _, err := t.attachDomain(ctx, d); err != nil {
		return nil, err
	}

	ch, err := t.channel(ctx)
	if err != nil {
		return nil, err
	}

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declaring subscription queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, topic.Name, dataExchange(d), false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("binding subscription queue: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consuming subscription queue: %w", err)
	}

	s := newSubscription(ch, topic, handler)
	go s.dispatch(deliveries)
	return s, nil
}

// Publishers implements runtime.Runtime from the domain's announcement
// table.
func (t *Transport) Publishers(ctx context.Context, d runtime.DomainID, topicName string) ([]runtime.PublisherInfo, error) {
	state, err := t.attachDomain(ctx, d)
	if err != nil {
		return nil, err
	}
	return state.table.publishers(topicName), nil
}

// CountPublishers implements runtime.PublisherCounter.
func (t *Transport) CountPublishers(ctx context.Context, d runtime.DomainID, topicName string) (int, error) {
	infos, err := t.Publishers(ctx, d, topicName)
	if err != nil {
		return 0, err
	}
	return len(infos), nil
}

// GraphEvents implements runtime.Runtime. Ticks fire when the domain's
// announced publisher set changes.
func (t *Transport) GraphEvents(d runtime.DomainID) (<-chan struct{}, func()) {
	state, err := t.attachDomain(context.Background(), d)
	if err != nil {
		// A channel that never fires. Callers fall back to polling.
		return make(chan struct{}), func() {}
	}
	return state.table.watch()
}

// Close implements runtime.Runtime.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.stop)
	conn := t.conn
	t.conn = nil
	domains := make([]*domainState, 0, len(t.domains))
	for _, state := range t.domains {
		domains = append(domains, state)
	}
	t.domains = make(map[runtime.DomainID]*domainState)
	t.mu.Unlock()

	for _, state := range domains {
		state.listenCancel()
		<-state.listenerDone
		<-state.sweeperDone
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
