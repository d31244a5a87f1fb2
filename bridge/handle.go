package bridge

import (
	"context"
	"sync"

	"github.com/domainbridge/domainbridge-go/internal/reliability"
	"github.com/domainbridge/domainbridge-go/qos"
	"github.com/domainbridge/domainbridge-go/relay"
	"github.com/domainbridge/domainbridge-go/runtime"
)

// State is the lifecycle state of one bridge.
type State int

const (
	// StateRequested: bridge accepted, endpoint pair not yet created.
	StateRequested State = iota
	// StateProvisional: endpoint pair advertises the default QoS profile
	// because no conforming publisher has been discovered.
	StateProvisional
	// StateMatched: the endpoint pair's profile is the merge of the
	// discovered publishers' profiles.
	StateMatched
	// StateRemoved: bridge torn down. Terminal.
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateProvisional:
		return "provisional"
	case StateMatched:
		return "matched"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// HandleID identifies one accepted bridge request.
type HandleID string

// Summary is a point-in-time description of one bridge, as reported by
// ListBridges.
type Summary struct {
	ID          HandleID
	Topic       runtime.Topic
	Source      runtime.DomainID
	Destination runtime.DomainID
	State       State
	QoS         qos.Profile
	Relay       relay.Stats

	// LastError is the most recent lifecycle error, nil once the bridge
	// is reconciled. A non-nil value alongside a Provisional or Matched
	// state means the endpoint pair could not be (re)created: the bridge
	// keeps its last known state, has no live endpoints, and is retrying
	// on a bounded timer.
	LastError error
}

// handle is the registry's private record of one bridge. Its mutable
// fields change only inside a state transition; transitions run either
// on the handle's consumer goroutine or, for removal, under the
// registry's coordination after that goroutine has exited.
type handle struct {
	id    HandleID
	topic runtime.Topic
	src   runtime.DomainID
	dst   runtime.DomainID

	mu       sync.Mutex
	state    State
	pair     *endpointPair
	current  qos.Profile
	lastErr  error
	breaker  *reliability.CircuitBreaker
	reported map[string]struct{}

	cancelWatch  context.CancelFunc
	consumerDone chan struct{}
}

func (h *handle) summary() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Summary{
		ID:          h.id,
		Topic:       h.topic,
		Source:      h.src,
		Destination: h.dst,
		State:       h.state,
		QoS:         h.current,
		LastError:   h.lastErr,
	}
	if h.pair != nil {
		s.Relay = h.pair.pipe.Stats()
	}
	return s
}
