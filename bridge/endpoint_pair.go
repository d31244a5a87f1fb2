package bridge

import (
	"context"

	"github.com/domainbridge/domainbridge-go/qos"
	"github.com/domainbridge/domainbridge-go/relay"
	"github.com/domainbridge/domainbridge-go/runtime"
)

// endpointPair is the owned (source subscription, destination publisher)
// pair for one bridged topic, with the relay pipe wired between them. A
// handle owns at most one pair at a time; QoS changes destroy the pair
// and build a fresh one, since endpoint QoS cannot be mutated in place.
type endpointPair struct {
	profile qos.Profile
	pub     runtime.Publisher
	sub     runtime.Subscription
	pipe    *relay.Pipe
}

// createPair builds the destination publisher, the relay pipe and the
// source subscription, in that order, so a payload delivered the moment
// the subscription exists already has somewhere to go. Both endpoints
// advertise the same merged profile: the subscription requests exactly
// what the weakest source publisher offers, and the publisher re-offers
// it downstream.
func (r *Registry) createPair(ctx context.Context, topic runtime.Topic, src, dst runtime.DomainID, profile qos.Profile) (*endpointPair, error) {
	pub, err := r.rt.CreatePublisher(ctx, dst, topic, profile)
	if err != nil {
		return nil, &EndpointCreationError{Topic: topic, Source: src, Destination: dst, Err: err}
	}

	pipe := relay.NewPipe(pub, topic.Name,
		relay.WithPublishTimeout(r.publishTimeout),
		relay.WithPipeLogger(r.logger),
		relay.WithMetrics(r.metrics),
	)

	sub, err := r.rt.CreateSubscription(ctx, src, topic, profile, pipe.Forward)
	if err != nil {
		pipe.Close()
		_ = pub.Close()
		return nil, &EndpointCreationError{Topic: topic, Source: src, Destination: dst, Err: err}
	}

	return &endpointPair{
		profile: profile,
		pub:     pub,
		sub:     sub,
		pipe:    pipe,
	}, nil
}

// close tears the pair down. The pipe's gate closes first so a payload
// delivered mid-teardown becomes a no-op instead of reaching a
// half-destroyed publisher; such a payload may be dropped, consistent
// with the relay's best-effort contract.
func (p *endpointPair) close() {
	p.pipe.Close()
	_ = p.sub.Close()
	_ = p.pub.Close()
}
