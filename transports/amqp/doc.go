// Package amqp implements the domain runtime over an AMQP 0-9-1 broker.
//
// Each domain maps to two broker exchanges: a topic exchange named
// domainbridge.domain.<id> carrying opaque payloads routed by topic
// name, and a fanout exchange domainbridge.domain.<id>.discovery
// carrying publisher advertisements. AMQP has no endpoint discovery of
// its own, so publishers announce themselves periodically with their
// topic, declared type and QoS profile; the transport folds the
// announcements into a per-domain last-seen table, expires silent
// publishers after a few missed intervals, and fires graph events on
// every set change.
//
// QoS is honored as far as the broker allows: lifespan maps to
// per-message expiration, reliability to the persistent delivery mode.
// The remaining policies travel in the advertisement so bridges can
// match them faithfully even where the broker cannot enforce them.
package amqp
