// Package relay moves opaque message payloads from a source-domain
// subscription to a destination-domain publisher.
//
// The relay is a transparent best-effort pipe: payloads cross byte for
// byte in source delivery order, transient publish failures drop the
// payload rather than buffer or retry it, and drops are counted rather
// than surfaced as errors. Staleness semantics belong to the QoS profile
// (lifespan) already applied to the destination publisher.
package relay
