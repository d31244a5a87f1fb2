package inproc

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/domainbridge/domainbridge-go/qos"
	"github.com/domainbridge/domainbridge-go/runtime"
)

// Transport is an in-process runtime.Runtime hosting any number of
// isolated domains in one process. It implements the same discovery and
// QoS-compatibility behavior a real transport exhibits, which makes it
// the runtime of choice for tests and examples: publishers are
// discoverable with their advertised profiles, graph changes fire
// notifications, and incompatible endpoints do not match.
type Transport struct {
	mu      sync.RWMutex
	domains map[runtime.DomainID]*domain
	closed  bool
}

// NewTransport creates an empty in-process transport. Domains come into
// existence on first use.
func NewTransport() *Transport {
	return &Transport{
		domains: make(map[runtime.DomainID]*domain),
	}
}

type domain struct {
	mu          sync.RWMutex
	topics      map[string]*topic
	watchers    map[int]chan struct{}
	nextWatcher int
}

type topic struct {
	publishers    map[string]*publisher
	subscriptions map[string]*subscription
}

func (t *Transport) domainLocked(id runtime.DomainID) (*domain, error) {
	if t.closed {
		return nil, runtime.ErrClosed
	}
	if id == 0 {
		return nil, runtime.ErrUnknownDomain
	}
	d, ok := t.domains[id]
	if !ok {
		d = &domain{
			topics:   make(map[string]*topic),
			watchers: make(map[int]chan struct{}),
		}
		t.domains[id] = d
	}
	return d, nil
}

func (d *domain) topicLocked(name string) *topic {
	tp, ok := d.topics[name]
	if !ok {
		tp = &topic{
			publishers:    make(map[string]*publisher),
			subscriptions: make(map[string]*subscription),
		}
		d.topics[name] = tp
	}
	return tp
}

// notifyGraphChange wakes every graph watcher of the domain. Sends are
// non-blocking; a watcher with a pending tick needs no second one.
func (d *domain) notifyGraphChange() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// CreatePublisher implements runtime.Runtime.
func (t *Transport) CreatePublisher(ctx context.Context, id runtime.DomainID, tc runtime.Topic, profile qos.Profile) (runtime.Publisher, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	d, err := t.domainLocked(id)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p := &publisher{
		dom:   d,
		topic: tc.Name,
		info: runtime.PublisherInfo{
			EndpointID: uuid.NewString(),
			Type:       tc.Type,
			QoS:        profile,
		},
	}

	d.mu.Lock()
	tp := d.topicLocked(tc.Name)
	tp.publishers[p.info.EndpointID] = p
	p.tp = tp
	d.mu.Unlock()

	d.notifyGraphChange()
	return p, nil
}

// CreateSubscription implements runtime.Runtime.
func (t *Transport) CreateSubscription(ctx context.Context, id runtime.DomainID, tc runtime.Topic, profile qos.Profile, handler runtime.DeliveryHandler) (runtime.Subscription, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, runtime.ErrNilHandler
	}

	t.mu.Lock()
	d, err := t.domainLocked(id)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s := &subscription{
		id:       uuid.NewString(),
		dom:      d,
		topic:    tc.Name,
		msgType:  tc.Type,
		profile:  profile,
		handler:  handler,
		queue:    make(chan []byte, deliveryQueueDepth),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	d.mu.Lock()
	tp := d.topicLocked(tc.Name)
	tp.subscriptions[s.id] = s
	s.tp = tp

	// Transient-local publishers replay their history to late joiners.
	var replay [][]byte
	for _, p := range tp.publishers {
		if p.info.Type != tc.Type || !compatible(p.info.QoS, profile) {
			continue
		}
		if p.info.QoS.Durability == qos.TransientLocal && profile.Durability == qos.TransientLocal {
			replay = append(replay, p.snapshotHistory()...)
		}
	}
	d.mu.Unlock()

	go s.dispatch()
	for _, payload := range replay {
		s.enqueue(payload)
	}

	d.notifyGraphChange()
	return s, nil
}

// Publishers implements runtime.Runtime.
func (t *Transport) Publishers(ctx context.Context, id runtime.DomainID, topicName string) ([]runtime.PublisherInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, runtime.ErrClosed
	}
	if id == 0 {
		return nil, runtime.ErrUnknownDomain
	}

	d, ok := t.domains[id]
	if !ok {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	tp, ok := d.topics[topicName]
	if !ok {
		return nil, nil
	}

	infos := make([]runtime.PublisherInfo, 0, len(tp.publishers))
	for _, p := range tp.publishers {
		infos = append(infos, p.info)
	}
	return infos, nil
}

// CountPublishers implements runtime.PublisherCounter.
func (t *Transport) CountPublishers(ctx context.Context, id runtime.DomainID, topicName string) (int, error) {
	infos, err := t.Publishers(ctx, id, topicName)
	if err != nil {
		return 0, err
	}
	return len(infos), nil
}

// GraphEvents implements runtime.Runtime.
func (t *Transport) GraphEvents(id runtime.DomainID) (<-chan struct{}, func()) {
	t.mu.Lock()
	d, err := t.domainLocked(id)
	t.mu.Unlock()
	if err != nil {
		// A channel that never fires. Callers fall back to polling.
		return make(chan struct{}), func() {}
	}

	d.mu.Lock()
	key := d.nextWatcher
	d.nextWatcher++
	ch := make(chan struct{}, 1)
	d.watchers[key] = ch
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		delete(d.watchers, key)
		d.mu.Unlock()
	}
	return ch, cancel
}

// Close implements runtime.Runtime. Every endpoint of every domain is
// torn down.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	domains := make([]*domain, 0, len(t.domains))
	for _, d := range t.domains {
		domains = append(domains, d)
	}
	t.mu.Unlock()

	for _, d := range domains {
		d.mu.Lock()
		var subs []*subscription
		for _, tp := range d.topics {
			for _, s := range tp.subscriptions {
				subs = append(subs, s)
			}
			tp.publishers = make(map[string]*publisher)
			tp.subscriptions = make(map[string]*subscription)
		}
		d.mu.Unlock()

		for _, s := range subs {
			s.stop()
		}
	}
	return nil
}
