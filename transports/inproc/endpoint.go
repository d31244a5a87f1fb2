package inproc

import (
	"context"
	"sync"

	"github.com/domainbridge/domainbridge-go/qos"
	"github.com/domainbridge/domainbridge-go/runtime"
)

// deliveryQueueDepth bounds each subscription's in-flight payload queue.
// A full queue drops, matching the transport's best-effort contract.
const deliveryQueueDepth = 256

// compatible implements the request-offered QoS model: a subscription
// requesting a stricter policy than the publisher offers does not match.
func compatible(offered, requested qos.Profile) bool {
	if offered.Reliability == qos.BestEffort && requested.Reliability == qos.Reliable {
		return false
	}
	if offered.Durability == qos.Volatile && requested.Durability == qos.TransientLocal {
		return false
	}
	if offered.Liveliness == qos.Automatic && requested.Liveliness == qos.ManualByTopic {
		return false
	}
	return true
}

type publisher struct {
	dom   *domain
	tp    *topic
	topic string
	info  runtime.PublisherInfo

	mu      sync.Mutex
	history [][]byte
	closed  bool
}

// Publish implements runtime.Publisher. The payload is delivered to every
// live subscription on the topic whose declared type matches and whose
// requested QoS is compatible with this publisher's offer.
func (p *publisher) Publish(ctx context.Context, payload []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return runtime.ErrClosed
	}
	if p.info.QoS.Durability == qos.TransientLocal {
		p.history = append(p.history, payload)
		if !p.info.QoS.KeepsAll() {
			depth := p.info.QoS.Depth
			if depth < 1 {
				depth = 1
			}
			if len(p.history) > depth {
				p.history = p.history[len(p.history)-depth:]
			}
		}
	}
	p.mu.Unlock()

	p.dom.mu.RLock()
	subs := make([]*subscription, 0, len(p.tp.subscriptions))
	for _, s := range p.tp.subscriptions {
		if s.msgType == p.info.Type && compatible(p.info.QoS, s.profile) {
			subs = append(subs, s)
		}
	}
	p.dom.mu.RUnlock()

	for _, s := range subs {
		s.enqueue(payload)
	}
	return nil
}

// Close implements runtime.Publisher, withdrawing the endpoint from
// discovery and waking graph watchers.
func (p *publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.dom.mu.Lock()
	delete(p.tp.publishers, p.info.EndpointID)
	p.dom.mu.Unlock()

	p.dom.notifyGraphChange()
	return nil
}

func (p *publisher) snapshotHistory() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.history))
	copy(out, p.history)
	return out
}

type subscription struct {
	id      string
	dom     *domain
	tp      *topic
	topic   string
	msgType string
	profile qos.Profile
	handler runtime.DeliveryHandler

	queue    chan []byte
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

// dispatch invokes the handler serially in enqueue order. Serial dispatch
// is what preserves per-topic ordering through a relay.
func (s *subscription) dispatch() {
	defer close(s.finished)
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.queue:
			_ = s.handler(context.Background(), payload)
		}
	}
}

// enqueue hands a payload to the dispatch goroutine, dropping it when the
// queue is full.
func (s *subscription) enqueue(payload []byte) {
	select {
	case <-s.done:
	case s.queue <- payload:
	default:
	}
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		<-s.finished
	})
}

// Close implements runtime.Subscription. No handler invocation begins
// after Close returns.
func (s *subscription) Close() error {
	s.dom.mu.Lock()
	delete(s.tp.subscriptions, s.id)
	s.dom.mu.Unlock()

	s.stop()
	s.dom.notifyGraphChange()
	return nil
}
