package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainbridge/domainbridge-go/qos"
	"github.com/domainbridge/domainbridge-go/runtime"
	"github.com/domainbridge/domainbridge-go/transports/inproc"
)

// stubRuntime is a runtime whose publisher set the test mutates directly.
// Its graph notification never fires, forcing the watcher onto its poll
// fallback.
type stubRuntime struct {
	mu   sync.Mutex
	pubs []runtime.PublisherInfo
}

func (s *stubRuntime) setPublishers(pubs ...runtime.PublisherInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pubs = pubs
}

func (s *stubRuntime) Publishers(ctx context.Context, domain runtime.DomainID, topicName string) ([]runtime.PublisherInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]runtime.PublisherInfo, len(s.pubs))
	copy(out, s.pubs)
	return out, nil
}

func (s *stubRuntime) GraphEvents(domain runtime.DomainID) (<-chan struct{}, func()) {
	return make(chan struct{}), func() {}
}

func (s *stubRuntime) CreatePublisher(ctx context.Context, domain runtime.DomainID, topic runtime.Topic, profile qos.Profile) (runtime.Publisher, error) {
	panic("not used")
}

func (s *stubRuntime) CreateSubscription(ctx context.Context, domain runtime.DomainID, topic runtime.Topic, profile qos.Profile, handler runtime.DeliveryHandler) (runtime.Subscription, error) {
	panic("not used")
}

func (s *stubRuntime) Close() error { return nil }

func recvSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "snapshot channel closed unexpectedly")
		return snap
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestWatcherEmitsInitialSnapshot(t *testing.T) {
	rt := &stubRuntime{}
	rt.setPublishers(runtime.PublisherInfo{EndpointID: "ep-1", Type: "test_msgs/BasicTypes"})

	w := NewWatcher(rt, 1, "chatter", WithPollInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()

	snap := recvSnapshot(t, w.Snapshots())
	require.Len(t, snap, 1)
	assert.Contains(t, snap, "ep-1")
}

func TestWatcherPollFallback(t *testing.T) {
	rt := &stubRuntime{}
	mock := clock.NewMock()

	w := NewWatcher(rt, 1, "chatter",
		WithPollInterval(100*time.Millisecond),
		WithClock(mock),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()

	// Initial (empty) snapshot arrives without any clock movement.
	snap := recvSnapshot(t, w.Snapshots())
	assert.Empty(t, snap)

	// The graph notification never fires; only the poll tick can observe
	// this change.
	rt.setPublishers(runtime.PublisherInfo{EndpointID: "late", Type: "test_msgs/BasicTypes"})

	require.Eventually(t, func() bool {
		mock.Add(100 * time.Millisecond)
		select {
		case snap, ok := <-w.Snapshots():
			return ok && len(snap) == 1
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherSuppressesUnchangedSets(t *testing.T) {
	rt := &stubRuntime{}
	rt.setPublishers(runtime.PublisherInfo{EndpointID: "ep-1", Type: "test_msgs/BasicTypes"})
	mock := clock.NewMock()

	w := NewWatcher(rt, 1, "chatter",
		WithPollInterval(50*time.Millisecond),
		WithClock(mock),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx) }()

	recvSnapshot(t, w.Snapshots())

	// Many polls over an unchanged set produce no further snapshots.
	for i := 0; i < 20; i++ {
		mock.Add(50 * time.Millisecond)
	}
	select {
	case snap := <-w.Snapshots():
		t.Fatalf("unexpected snapshot for unchanged set: %v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherGraphEventWakeup(t *testing.T) {
	tr := inproc.NewTransport()
	defer tr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topic := runtime.Topic{Name: "graph_wakeup", Type: "test_msgs/BasicTypes"}

	// A long poll interval proves the wake-up is event driven.
	w := NewWatcher(tr, 1, topic.Name, WithPollInterval(time.Hour))
	go func() { _ = w.Watch(ctx) }()

	snap := recvSnapshot(t, w.Snapshots())
	assert.Empty(t, snap)

	profile := qos.Profile{Reliability: qos.BestEffort, Deadline: 5 * time.Second}
	pub, err := tr.CreatePublisher(ctx, 1, topic, profile)
	require.NoError(t, err)

	snap = recvSnapshot(t, w.Snapshots())
	require.Len(t, snap, 1)
	for _, info := range snap {
		assert.True(t, info.QoS.Equal(profile))
	}

	require.NoError(t, pub.Close())
	snap = recvSnapshot(t, w.Snapshots())
	assert.Empty(t, snap)
}

func TestWatcherCancellation(t *testing.T) {
	tr := inproc.NewTransport()
	defer tr.Close()

	w := NewWatcher(tr, 1, "cancelled", WithPollInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	recvSnapshot(t, w.Snapshots())
	cancel()

	// Cancellation is acknowledged by channel close within a poll interval.
	select {
	case _, ok := <-w.Snapshots():
		assert.False(t, ok, "expected closed snapshot channel")
	case <-time.After(time.Second):
		t.Fatal("snapshot channel not closed after cancellation")
	}

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotEqual(t *testing.T) {
	a := Snapshot{
		"ep-1": {EndpointID: "ep-1", Type: "t", QoS: qos.Profile{Reliability: qos.BestEffort}},
	}

	t.Run("equal sets", func(t *testing.T) {
		b := Snapshot{
			"ep-1": {EndpointID: "ep-1", Type: "t", QoS: qos.Profile{Reliability: qos.BestEffort}},
		}
		assert.True(t, a.Equal(b))
	})

	t.Run("differing size", func(t *testing.T) {
		assert.False(t, a.Equal(Snapshot{}))
	})

	t.Run("differing qos", func(t *testing.T) {
		b := Snapshot{
			"ep-1": {EndpointID: "ep-1", Type: "t", QoS: qos.Profile{}},
		}
		assert.False(t, a.Equal(b))
	})

	t.Run("differing type", func(t *testing.T) {
		b := Snapshot{
			"ep-1": {EndpointID: "ep-1", Type: "other", QoS: qos.Profile{Reliability: qos.BestEffort}},
		}
		assert.False(t, a.Equal(b))
	})
}
