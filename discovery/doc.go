// Package discovery watches the publisher graph of a topic in one domain
// and reports complete publisher-set snapshots whenever the set changes.
//
// A watcher combines event-driven wake-up from the runtime's graph-change
// notification with a bounded poll fallback, because push notifications
// from real discovery systems carry no delivery guarantee.
package discovery
