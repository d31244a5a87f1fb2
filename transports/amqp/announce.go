package amqp

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/domainbridge/domainbridge-go/qos"
	"github.com/domainbridge/domainbridge-go/runtime"
)

// announcement is the discovery message a publisher emits on its domain's
// announce exchange. AMQP has no discovery of its own, so publishers
// advertise themselves periodically and withdraw with a gone marker.
type announcement struct {
	EndpointID string      `json:"endpointId"`
	Topic      string      `json:"topic"`
	Type       string      `json:"type"`
	QoS        wireProfile `json:"qos"`
	Gone       bool        `json:"gone,omitempty"`
}

// wireProfile is the JSON shape of a QoS profile on the announce exchange.
type wireProfile struct {
	Reliability string `json:"reliability"`
	Durability  string `json:"durability"`
	Liveliness  string `json:"liveliness"`
	DeadlineNs  int64  `json:"deadlineNs"`
	LifespanNs  int64  `json:"lifespanNs"`
	Depth       int    `json:"depth"`
}

func toWireProfile(p qos.Profile) wireProfile {
	return wireProfile{
		Reliability: p.Reliability.String(),
		Durability:  p.Durability.String(),
		Liveliness:  p.Liveliness.String(),
		DeadlineNs:  int64(p.Deadline),
		LifespanNs:  int64(p.Lifespan),
		Depth:       p.Depth,
	}
}

func (w wireProfile) profile() (qos.Profile, error) {
	p := qos.Profile{
		Deadline: time.Duration(w.DeadlineNs),
		Lifespan: time.Duration(w.LifespanNs),
		Depth:    w.Depth,
	}

	switch w.Reliability {
	case "reliable":
		p.Reliability = qos.Reliable
	case "best_effort":
		p.Reliability = qos.BestEffort
	default:
		return p, fmt.Errorf("unknown reliability %q", w.Reliability)
	}

	switch w.Durability {
	case "volatile":
		p.Durability = qos.Volatile
	case "transient_local":
		p.Durability = qos.TransientLocal
	default:
		return p, fmt.Errorf("unknown durability %q", w.Durability)
	}

	switch w.Liveliness {
	case "automatic":
		p.Liveliness = qos.Automatic
	case "manual_by_topic":
		p.Liveliness = qos.ManualByTopic
	default:
		return p, fmt.Errorf("unknown liveliness %q", w.Liveliness)
	}

	return p, nil
}

func encodeAnnouncement(a announcement) ([]byte, error) {
	return json.Marshal(a)
}

func decodeAnnouncement(body []byte) (announcement, error) {
	var a announcement
	if err := json.Unmarshal(body, &a); err != nil {
		return a, fmt.Errorf("decoding announcement: %w", err)
	}
	return a, nil
}

type seenPublisher struct {
	info     runtime.PublisherInfo
	lastSeen time.Time
}

// discoveryTable is one domain's view of announced publishers. Entries
// live until withdrawn or until no announcement arrives within the TTL;
// every set change wakes the graph watchers.
type discoveryTable struct {
	clock clock.Clock
	ttl   time.Duration

	mu          sync.Mutex
	topics      map[string]map[string]seenPublisher
	watchers    map[int]chan struct{}
	nextWatcher int
}

func newDiscoveryTable(c clock.Clock, ttl time.Duration) *discoveryTable {
	return &discoveryTable{
		clock:    c,
		ttl:      ttl,
		topics:   make(map[string]map[string]seenPublisher),
		watchers: make(map[int]chan struct{}),
	}
}

// observe folds one announcement into the table.
func (t *discoveryTable) observe(a announcement) {
	profile, err := a.QoS.profile()
	if err != nil {
		return
	}

	t.mu.Lock()
	changed := false
	byEndpoint, ok := t.topics[a.Topic]
	if a.Gone {
		if ok {
			if _, exists := byEndpoint[a.EndpointID]; exists {
				delete(byEndpoint, a.EndpointID)
				changed = true
			}
		}
	} else {
		if !ok {
			byEndpoint = make(map[string]seenPublisher)
			t.topics[a.Topic] = byEndpoint
		}
		prev, exists := byEndpoint[a.EndpointID]
		info := runtime.PublisherInfo{EndpointID: a.EndpointID, Type: a.Type, QoS: profile}
		if !exists || prev.info.Type != info.Type || !prev.info.QoS.Equal(info.QoS) {
			changed = true
		}
		byEndpoint[a.EndpointID] = seenPublisher{info: info, lastSeen: t.clock.Now()}
	}
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// sweep expires publishers that stopped announcing.
func (t *discoveryTable) sweep() {
	cutoff := t.clock.Now().Add(-t.ttl)

	t.mu.Lock()
	changed := false
	for topic, byEndpoint := range t.topics {
		for id, seen := range byEndpoint {
			if seen.lastSeen.Before(cutoff) {
				delete(byEndpoint, id)
				changed = true
			}
		}
		if len(byEndpoint) == 0 {
			delete(t.topics, topic)
		}
	}
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

func (t *discoveryTable) publishers(topicName string) []runtime.PublisherInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	byEndpoint := t.topics[topicName]
	infos := make([]runtime.PublisherInfo, 0, len(byEndpoint))
	for _, seen := range byEndpoint {
		infos = append(infos, seen.info)
	}
	return infos
}

func (t *discoveryTable) watch() (<-chan struct{}, func()) {
	t.mu.Lock()
	key := t.nextWatcher
	t.nextWatcher++
	ch := make(chan struct{}, 1)
	t.watchers[key] = ch
	t.mu.Unlock()

	return ch, func() {
		t.mu.Lock()
		delete(t.watchers, key)
		t.mu.Unlock()
	}
}

func (t *discoveryTable) notify() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
