package amqp

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainbridge/domainbridge-go/qos"
)

func announceFor(id string, p qos.Profile) announcement {
	return announcement{
		EndpointID: id,
		Topic:      "chatter",
		Type:       "test_msgs/BasicTypes",
		QoS:        toWireProfile(p),
	}
}

func TestWireProfile(t *testing.T) {
	t.Run("profile survives the wire shape", func(t *testing.T) {
		p := qos.Profile{
			Reliability: qos.BestEffort,
			Durability:  qos.TransientLocal,
			Liveliness:  qos.ManualByTopic,
			Deadline:    123*time.Second + 456*time.Millisecond,
			Lifespan:    554*time.Second + 321*time.Millisecond,
			Depth:       qos.KeepAll,
		}

		got, err := toWireProfile(p).profile()
		require.NoError(t, err)
		assert.True(t, got.Equal(p))
	})

	t.Run("unknown policy values are rejected", func(t *testing.T) {
		w := toWireProfile(qos.Profile{})
		w.Reliability = "psychic"

		_, err := w.profile()
		assert.Error(t, err)
	})
}

func TestDiscoveryTable(t *testing.T) {
	mock := clock.NewMock()

	t.Run("observe adds and updates publishers", func(t *testing.T) {
		table := newDiscoveryTable(mock, time.Minute)

		table.observe(announceFor("ep-1", qos.Profile{Reliability: qos.BestEffort}))
		infos := table.publishers("chatter")
		require.Len(t, infos, 1)
		assert.Equal(t, qos.BestEffort, infos[0].QoS.Reliability)

		// Re-announcement with identical QoS is not a change.
		events, cancel := table.watch()
		defer cancel()
		table.observe(announceFor("ep-1", qos.Profile{Reliability: qos.BestEffort}))
		select {
		case <-events:
			t.Fatal("unchanged announcement fired a graph event")
		default:
		}

		table.observe(announceFor("ep-1", qos.Profile{Reliability: qos.Reliable}))
		select {
		case <-events:
		default:
			t.Fatal("QoS change did not fire a graph event")
		}
	})

	t.Run("gone announcement withdraws the publisher", func(t *testing.T) {
		table := newDiscoveryTable(mock, time.Minute)
		table.observe(announceFor("ep-1", qos.Profile{}))

		gone := announceFor("ep-1", qos.Profile{})
		gone.Gone = true
		table.observe(gone)

		assert.Empty(t, table.publishers("chatter"))
	})

	t.Run("silent publishers expire on sweep", func(t *testing.T) {
		table := newDiscoveryTable(mock, 6*time.Second)
		table.observe(announceFor("ep-1", qos.Profile{}))

		events, cancel := table.watch()
		defer cancel()

		mock.Add(3 * time.Second)
		table.sweep()
		require.Len(t, table.publishers("chatter"), 1)

		mock.Add(4 * time.Second)
		table.sweep()
		assert.Empty(t, table.publishers("chatter"))
		select {
		case <-events:
		default:
			t.Fatal("expiry did not fire a graph event")
		}
	})

	t.Run("malformed profile is ignored", func(t *testing.T) {
		table := newDiscoveryTable(mock, time.Minute)
		a := announceFor("ep-bad", qos.Profile{})
		a.QoS.Durability = "granite"
		table.observe(a)

		assert.Empty(t, table.publishers("chatter"))
	})
}

func TestAnnouncementCodec(t *testing.T) {
	a := announceFor("ep-1", qos.Profile{Reliability: qos.BestEffort, Deadline: time.Second})
	body, err := encodeAnnouncement(a)
	require.NoError(t, err)

	got, err := decodeAnnouncement(body)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = decodeAnnouncement([]byte("{"))
	assert.Error(t, err)
}
