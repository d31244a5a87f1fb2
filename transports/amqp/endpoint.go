package amqp

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/domainbridge/domainbridge-go/qos"
	"github.com/domainbridge/domainbridge-go/runtime"
)

type publisher struct {
	tp      *Transport
	domain  runtime.DomainID
	topic   runtime.Topic
	profile qos.Profile
	id      string

	mu     sync.Mutex
	ch     *amqp.Channel
	closed bool

	stopAnnounce chan struct{}
	announceDone chan struct{}
}

func newPublisher(tp *Transport, ch *amqp.Channel, d runtime.DomainID, topic runtime.Topic, profile qos.Profile) *publisher {
	return &publisher{
		tp:           tp,
		domain:       d,
		topic:        topic,
		profile:      profile,
		id:           uuid.NewString(),
		ch:           ch,
		stopAnnounce: make(chan struct{}),
		announceDone: make(chan struct{}),
	}
}

// Publish implements runtime.Publisher. QoS maps onto AMQP as far as the
// broker allows: lifespan becomes per-message expiration, reliability
// selects the delivery mode.
func (p *publisher) Publish(ctx context.Context, payload []byte) error {
	msg := amqp.Publishing{
		Body: payload,
		Headers: amqp.Table{
			headerEndpointID:  p.id,
			headerMessageType: p.topic.Type,
		},
		DeliveryMode: amqp.Transient,
	}
	if p.profile.Reliability == qos.Reliable {
		msg.DeliveryMode = amqp.Persistent
	}
	if p.profile.Lifespan != qos.Unlimited {
		msg.Expiration = strconv.FormatInt(p.profile.Lifespan.Milliseconds(), 10)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return runtime.ErrClosed
	}
	return p.ch.PublishWithContext(ctx, dataExchange(p.domain), p.topic.Name, false, false, msg)
}

// announceLoop advertises the publisher immediately and then on every
// announce interval, and withdraws it on close.
func (p *publisher) announceLoop() {
	defer close(p.announceDone)

	ticker := p.tp.clock.Ticker(p.tp.announceInterval)
	defer ticker.Stop()

	p.announce(false)
	for {
		select {
		case <-p.stopAnnounce:
			p.announce(true)
			return
		case <-ticker.C:
			p.announce(false)
		}
	}
}

func (p *publisher) announce(gone bool) {
	body, err := encodeAnnouncement(announcement{
		EndpointID: p.id,
		Topic:      p.topic.Name,
		Type:       p.topic.Type,
		QoS:        toWireProfile(p.profile),
		Gone:       gone,
	})
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch.IsClosed() {
		return
	}
	if err := p.ch.PublishWithContext(context.Background(), announceExchange(p.domain), "", false, false, amqp.Publishing{
		Body:        body,
		ContentType: "application/json",
	}); err != nil {
		p.tp.logger.Debug("announce failed",
			"topic", p.topic.Name, "domain", p.domain, "error", err)
	}
}

// Close implements runtime.Publisher. The endpoint withdraws itself from
// discovery before the channel goes away.
func (p *publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopAnnounce)
	<-p.announceDone

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}

type subscription struct {
	topic   runtime.Topic
	handler runtime.DeliveryHandler

	mu     sync.Mutex
	ch     *amqp.Channel
	closed bool
	done   chan struct{}
}

func newSubscription(ch *amqp.Channel, topic runtime.Topic, handler runtime.DeliveryHandler) *subscription {
	return &subscription{
		topic:   topic,
		handler: handler,
		ch:      ch,
		done:    make(chan struct{}),
	}
}

// dispatch invokes the handler serially in delivery order. Payloads
// published under a different declared type are skipped; the data
// exchange routes by topic name only.
func (s *subscription) dispatch(deliveries <-chan amqp.Delivery) {
	defer close(s.done)
	for delivery := range deliveries {
		if declared, ok := delivery.Headers[headerMessageType].(string); ok && declared != s.topic.Type {
			continue
		}
		_ = s.handler(context.Background(), delivery.Body)
	}
}

// Close implements runtime.Subscription.
func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.ch.Close()
	<-s.done
	return err
}
