// Package runtime defines the interface between the bridge core and the
// underlying domain transport: endpoint creation, publisher enumeration,
// and graph-change notification.
//
// The bridge core is transport-agnostic. Implementations live under
// transports/ — an AMQP-backed runtime for cross-broker deployments and
// an in-process runtime used by tests and examples.
package runtime
