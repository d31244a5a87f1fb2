package qos

import "time"

// Match merges the QoS profiles of every discovered source publisher into
// the single profile the mirrored destination publisher should advertise.
//
// Each field is merged independently so that the result is never stronger
// than the weakest input: a subscriber able to match the weakest source
// publisher can always match the merged profile. Given an empty input,
// Match returns the conservative default profile (the Profile zero value),
// which lets a bridge advertise a provisional endpoint before any source
// publisher is discovered.
//
// Match is a pure function and is insensitive to input order.
func Match(profiles []Profile) Profile {
	if len(profiles) == 0 {
		return Profile{}
	}

	merged := Profile{
		Reliability: Reliable,
		Durability:  TransientLocal,
		Liveliness:  ManualByTopic,
		Deadline:    Unlimited,
		Lifespan:    Unlimited,
		Depth:       KeepAll,
	}
	for _, p := range profiles {
		// A reliable subscriber cannot match a best-effort publisher, so a
		// single best-effort source forces the whole merge to best effort.
		if p.Reliability == BestEffort {
			merged.Reliability = BestEffort
		}
		if p.Durability == Volatile {
			merged.Durability = Volatile
		}
		// Manual liveliness survives only if every publisher asserts it.
		if p.Liveliness != ManualByTopic {
			merged.Liveliness = Automatic
		}
		merged.Deadline = tighterDuration(merged.Deadline, p.Deadline)
		merged.Lifespan = tighterDuration(merged.Lifespan, p.Lifespan)
		merged.Depth = deeperHistory(merged.Depth, p.Depth)
	}
	return merged
}

// tighterDuration picks the smaller of two bounds, treating Unlimited as
// looser than any finite value.
func tighterDuration(a, b time.Duration) time.Duration {
	if a == Unlimited {
		return b
	}
	if b == Unlimited {
		return a
	}
	if b < a {
		return b
	}
	return a
}

// deeperHistory picks the larger of two depths. KeepAll wins only against
// another KeepAll: a single bounded publisher bounds the merge.
func deeperHistory(a, b int) int {
	if a == KeepAll {
		return b
	}
	if b == KeepAll {
		return a
	}
	if b > a {
		return b
	}
	return a
}
