package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/domainbridge/domainbridge-go/runtime"
)

// Snapshot is the complete set of publishers discovered on a topic at one
// moment, keyed by endpoint id. It is a full set, never a delta.
type Snapshot map[string]runtime.PublisherInfo

// Equal reports whether two snapshots describe the same publisher set
// with the same declared types and QoS profiles.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for id, info := range s {
		got, ok := other[id]
		if !ok || got.Type != info.Type || !got.QoS.Equal(info.QoS) {
			return false
		}
	}
	return true
}

// Watcher observes the publishers on one topic in one domain, emitting a
// Snapshot whenever the observed set changes. It wakes on the runtime's
// graph-change notification and additionally polls at a fixed interval,
// since graph notifications are best-effort.
type Watcher struct {
	rt        runtime.Runtime
	domain    runtime.DomainID
	topicName string

	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger
	snapshots chan Snapshot
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval sets the fallback poll interval.
func WithPollInterval(interval time.Duration) WatcherOption {
	return func(w *Watcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithClock sets the clock used for the poll ticker. Tests inject a mock
// clock to drive polling deterministically.
func WithClock(c clock.Clock) WatcherOption {
	return func(w *Watcher) {
		w.clock = c
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// DefaultPollInterval is the fallback poll interval when none is configured.
const DefaultPollInterval = 100 * time.Millisecond

// NewWatcher creates a watcher for the named topic in the given domain.
// It does not begin observing until Watch is called.
func NewWatcher(rt runtime.Runtime, domain runtime.DomainID, topicName string, options ...WatcherOption) *Watcher {
	w := &Watcher{
		rt:        rt,
		domain:    domain,
		topicName: topicName,
		interval:  DefaultPollInterval,
		clock:     clock.New(),
		logger:    slog.Default(),
		snapshots: make(chan Snapshot, 1),
	}

	for _, opt := range options {
		opt(w)
	}

	return w
}

// Snapshots returns the channel on which changed publisher sets are
// delivered. Pending snapshots are coalesced: a slow consumer always
// observes the most recent set, never a stale intermediate one. The
// channel is closed when Watch returns, which acknowledges cancellation
// to the owner.
func (w *Watcher) Snapshots() <-chan Snapshot {
	return w.snapshots
}

// Watch observes the topic until ctx is cancelled. The first enumeration
// is emitted unconditionally; afterwards a snapshot is emitted only when
// the publisher set changes. Watch always closes the snapshot channel
// before returning.
func (w *Watcher) Watch(ctx context.Context) error {
	defer close(w.snapshots)

	events, cancelEvents := w.rt.GraphEvents(w.domain)
	defer cancelEvents()

	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	var last Snapshot
	first := true
	for {
		snap, err := w.enumerate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Discovery failures are transient. Keep the last known set
			// and retry on the next wake-up.
			w.logger.Warn("publisher enumeration failed",
				"topic", w.topicName,
				"domain", w.domain,
				"error", err)
		} else if first || !snap.Equal(last) {
			first = false
			last = snap
			w.emit(snap)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-events:
		case <-ticker.C:
		}
	}
}

func (w *Watcher) enumerate(ctx context.Context) (Snapshot, error) {
	infos, err := w.rt.Publishers(ctx, w.domain, w.topicName)
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(infos))
	for _, info := range infos {
		snap[info.EndpointID] = info
	}
	return snap, nil
}

// emit delivers snap without blocking, replacing any undelivered snapshot.
func (w *Watcher) emit(snap Snapshot) {
	for {
		select {
		case w.snapshots <- snap:
			return
		default:
		}
		select {
		case <-w.snapshots:
		default:
		}
	}
}
