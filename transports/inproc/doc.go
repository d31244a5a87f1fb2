// Package inproc provides an in-process implementation of the domain
// runtime: any number of isolated domains hosted in one process, with
// discoverable publishers, graph-change notification, request-offered
// QoS matching and transient-local history replay.
//
// It exists for tests and examples; production deployments use a real
// transport such as transports/amqp.
package inproc
