package bridge

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/domainbridge/domainbridge-go/discovery"
	"github.com/domainbridge/domainbridge-go/qos"
)

// consume drives one handle's state machine off its watcher's snapshots.
// It is the only goroutine that mutates the handle between request and
// removal, which makes every transition atomic with respect to snapshot
// delivery: a snapshot arriving mid-transition waits, coalesced, in the
// watcher's channel.
//
// A failed endpoint recreation arms a retry timer so the bridge recovers
// even when the publisher set never changes again.
func (r *Registry) consume(ctx context.Context, h *handle, w *discovery.Watcher) {
	var (
		latest     discovery.Snapshot
		haveSnap   bool
		retryTimer *clock.Timer
		retryC     <-chan time.Time
		attempt    int
	)
	stopTimer := func() {
		if retryTimer != nil {
			retryTimer.Stop()
			retryTimer = nil
			retryC = nil
		}
	}
	defer stopTimer()

	snaps := w.Snapshots()
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			latest = snap
			haveSnap = true
		case <-retryC:
			retryTimer = nil
			retryC = nil
		}

		if !haveSnap {
			continue
		}
		stopTimer()
		if r.apply(ctx, h, latest) {
			attempt = 0
		} else {
			delay := r.retryPolicy.NextDelay(attempt)
			attempt++
			retryTimer = r.clock.Timer(delay)
			retryC = retryTimer.C
		}
	}
}

// apply reconciles the handle's endpoint pair with one publisher-set
// snapshot. It reports whether the handle now matches the snapshot;
// false means a retry timer should be armed.
func (r *Registry) apply(ctx context.Context, h *handle, snap discovery.Snapshot) bool {
	profiles := make([]qos.Profile, 0, len(snap))
	for id, info := range snap {
		if info.Type != h.topic.Type {
			r.reportMismatch(h, id, info.Type)
			continue
		}
		profiles = append(profiles, info.QoS)
	}

	target := qos.Match(profiles)
	targetState := StateProvisional
	if len(profiles) > 0 {
		targetState = StateMatched
	}

	h.mu.Lock()
	current := h.current
	hasPair := h.pair != nil
	h.mu.Unlock()

	// Equivalent publisher churn leaves the merged profile unchanged;
	// recreating the endpoints would only cause needless churn downstream.
	if hasPair && target.Equal(current) {
		h.mu.Lock()
		h.state = targetState
		h.lastErr = nil
		h.mu.Unlock()
		return true
	}

	// QoS cannot change on a live endpoint. Destroy first, then build the
	// replacement, so two endpoint pairs for one bridge never coexist.
	h.mu.Lock()
	old := h.pair
	h.pair = nil
	h.mu.Unlock()
	if old != nil {
		old.close()
	}

	var pair *endpointPair
	err := h.breaker.Execute(ctx, func() error {
		p, createErr := r.createPair(ctx, h.topic, h.src, h.dst, target)
		if createErr != nil {
			return createErr
		}
		pair = p
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		h.mu.Lock()
		h.lastErr = err
		h.mu.Unlock()
		r.logger.Warn("endpoint pair creation failed",
			"topic", h.topic.Name, "qos", target.String(), "error", err)
		return false
	}

	h.mu.Lock()
	h.pair = pair
	h.current = target
	h.state = targetState
	h.lastErr = nil
	h.mu.Unlock()

	r.logger.Info("bridge endpoints reconciled",
		"topic", h.topic.Name,
		"state", targetState.String(),
		"publishers", len(profiles),
		"qos", target.String())
	return true
}

// reportMismatch signals a type-mismatched publisher exactly once per
// endpoint id.
func (r *Registry) reportMismatch(h *handle, endpointID, discovered string) {
	h.mu.Lock()
	_, seen := h.reported[endpointID]
	if !seen {
		h.reported[endpointID] = struct{}{}
	}
	h.mu.Unlock()
	if seen {
		return
	}

	err := &TypeMismatchError{Topic: h.topic, EndpointID: endpointID, Discovered: discovered}
	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()

	r.logger.Warn("type-mismatched publisher excluded",
		"topic", h.topic.Name,
		"endpoint", endpointID,
		"declared", discovered,
		"requested", h.topic.Type)
	if r.onTypeMismatch != nil {
		r.onTypeMismatch(err)
	}
}
