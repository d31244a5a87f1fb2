package qos

import (
	"fmt"
	"strings"
	"time"
)

// Reliability controls whether delivery of every sample is guaranteed.
type Reliability int

const (
	// Reliable guarantees delivery, retransmitting lost samples.
	Reliable Reliability = iota
	// BestEffort delivers samples once with no retransmission.
	BestEffort
)

func (r Reliability) String() string {
	switch r {
	case Reliable:
		return "reliable"
	case BestEffort:
		return "best_effort"
	default:
		return fmt.Sprintf("reliability(%d)", int(r))
	}
}

// Durability controls whether samples published before a subscription
// existed are delivered to it.
type Durability int

const (
	// Volatile delivers only samples published after the subscription joined.
	Volatile Durability = iota
	// TransientLocal replays the publisher's history to late joiners.
	TransientLocal
)

func (d Durability) String() string {
	switch d {
	case Volatile:
		return "volatile"
	case TransientLocal:
		return "transient_local"
	default:
		return fmt.Sprintf("durability(%d)", int(d))
	}
}

// Liveliness controls how a publisher asserts it is alive.
type Liveliness int

const (
	// Automatic lets the transport assert liveliness on the publisher's behalf.
	Automatic Liveliness = iota
	// ManualByTopic requires the publisher to assert liveliness explicitly.
	ManualByTopic
)

func (l Liveliness) String() string {
	switch l {
	case Automatic:
		return "automatic"
	case ManualByTopic:
		return "manual_by_topic"
	default:
		return fmt.Sprintf("liveliness(%d)", int(l))
	}
}

// Unlimited is the zero duration used for deadline and lifespan fields
// that carry no bound.
const Unlimited time.Duration = 0

// KeepAll is the history depth value requesting unbounded history.
const KeepAll = -1

// Profile is the set of delivery-contract policies an endpoint commits to.
// The zero value is the conservative default profile: reliable, volatile,
// automatic liveliness, unlimited deadline and lifespan, depth 0.
type Profile struct {
	Reliability Reliability
	Durability  Durability
	Liveliness  Liveliness

	// Deadline is the maximum expected interval between samples.
	// Unlimited means no deadline contract.
	Deadline time.Duration

	// Lifespan is how long a sample stays valid after publication.
	// Unlimited means samples never expire.
	Lifespan time.Duration

	// Depth is the history depth. KeepAll requests unbounded history.
	Depth int
}

// Equal reports whether two profiles agree on every policy field.
func (p Profile) Equal(other Profile) bool {
	return p == other
}

// KeepsAll reports whether the profile requests unbounded history.
func (p Profile) KeepsAll() bool {
	return p.Depth == KeepAll
}

func (p Profile) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s/%s", p.Reliability, p.Durability, p.Liveliness)
	if p.Deadline != Unlimited {
		fmt.Fprintf(&b, " deadline=%s", p.Deadline)
	}
	if p.Lifespan != Unlimited {
		fmt.Fprintf(&b, " lifespan=%s", p.Lifespan)
	}
	if p.KeepsAll() {
		b.WriteString(" history=keep_all")
	} else {
		fmt.Fprintf(&b, " history=%d", p.Depth)
	}
	return b.String()
}
