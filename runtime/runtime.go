package runtime

import (
	"context"
	"fmt"

	"github.com/domainbridge/domainbridge-go/qos"
)

// DomainID identifies an isolated communication domain. Endpoints in
// different domains cannot see each other without a bridge.
type DomainID uint32

func (d DomainID) String() string {
	return fmt.Sprintf("domain %d", uint32(d))
}

// Topic identifies a named, typed data channel within a domain.
type Topic struct {
	Name string
	Type string
}

func (t Topic) String() string {
	return fmt.Sprintf("%s [%s]", t.Name, t.Type)
}

// Validate checks that the topic carries both a name and a type identifier.
func (t Topic) Validate() error {
	if t.Name == "" {
		return ErrEmptyTopicName
	}
	if t.Type == "" {
		return ErrEmptyTopicType
	}
	return nil
}

// PublisherInfo describes one discovered publisher endpoint.
type PublisherInfo struct {
	// EndpointID is stable for the lifetime of the discovered publisher.
	EndpointID string
	// Type is the message type the publisher declared, which may disagree
	// with the type a bridge was requested for.
	Type string
	// QoS is the profile the publisher advertises.
	QoS qos.Profile
}

// DeliveryHandler receives each opaque payload delivered to a subscription.
// Handlers for one subscription are invoked serially in delivery order.
type DeliveryHandler func(ctx context.Context, payload []byte) error

// Publisher is a destination-side endpoint owned by a bridge.
type Publisher interface {
	// Publish sends an opaque payload to the topic. It may fail transiently
	// and must respect the context deadline rather than block indefinitely.
	Publish(ctx context.Context, payload []byte) error

	// Close destroys the endpoint, withdrawing it from discovery.
	Close() error
}

// Subscription is a source-side endpoint owned by a bridge.
type Subscription interface {
	// Close destroys the endpoint. No handler invocations begin after
	// Close returns.
	Close() error
}

// Runtime is the per-process handle to the underlying domain transport.
// It is the external collaborator the bridge core calls into; the core
// never touches wire serialization or transport internals itself.
type Runtime interface {
	// CreatePublisher creates a publisher endpoint in the given domain
	// advertising the given QoS profile.
	CreatePublisher(ctx context.Context, domain DomainID, topic Topic, profile qos.Profile) (Publisher, error)

	// CreateSubscription creates a subscription endpoint in the given
	// domain and invokes handler with each delivered payload.
	CreateSubscription(ctx context.Context, domain DomainID, topic Topic, profile qos.Profile, handler DeliveryHandler) (Subscription, error)

	// Publishers enumerates the publishers currently discovered on the
	// named topic in the given domain.
	Publishers(ctx context.Context, domain DomainID, topicName string) ([]PublisherInfo, error)

	// GraphEvents returns a channel that receives a tick whenever the
	// domain's endpoint graph may have changed, and a cancel function
	// that releases the underlying notification registration. Ticks are
	// best-effort wake-ups: they may coalesce and may fire spuriously,
	// so callers must pair them with a bounded poll.
	GraphEvents(domain DomainID) (<-chan struct{}, func())

	// Close releases every endpoint and notification registration the
	// runtime still owns.
	Close() error
}

// PublisherCounter is implemented by runtimes that can cheaply count the
// publishers on a topic, used by tests and tooling to await endpoint
// appearance the way the underlying transports do.
type PublisherCounter interface {
	CountPublishers(ctx context.Context, domain DomainID, topicName string) (int, error)
}
