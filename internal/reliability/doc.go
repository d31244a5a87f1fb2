// Package reliability provides the retry policies and circuit breaker
// the bridge uses to recover endpoint creation failures: a failed
// destination-side create is retried with backoff, and a persistently
// rejecting domain trips the breaker until a cool-down elapses.
package reliability
