package qos

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatchEmptySet(t *testing.T) {
	t.Run("empty input yields the conservative default profile", func(t *testing.T) {
		merged := Match(nil)

		assert.Equal(t, Reliable, merged.Reliability)
		assert.Equal(t, Volatile, merged.Durability)
		assert.Equal(t, Automatic, merged.Liveliness)
		assert.Equal(t, Unlimited, merged.Deadline)
		assert.Equal(t, Unlimited, merged.Lifespan)
		assert.Equal(t, 0, merged.Depth)
	})
}

func TestMatchSinglePublisher(t *testing.T) {
	t.Run("single publisher profile is returned unchanged", func(t *testing.T) {
		p := Profile{
			Reliability: BestEffort,
			Durability:  TransientLocal,
			Liveliness:  Automatic,
			Deadline:    123*time.Second + 456*time.Millisecond,
			Lifespan:    554*time.Second + 321*time.Millisecond,
			Depth:       1,
		}

		merged := Match([]Profile{p})

		assert.True(t, merged.Equal(p), "merged %v, want %v", merged, p)
	})
}

func TestMatchReliability(t *testing.T) {
	t.Run("all reliable stays reliable", func(t *testing.T) {
		merged := Match([]Profile{{Reliability: Reliable}, {Reliability: Reliable}})
		assert.Equal(t, Reliable, merged.Reliability)
	})

	t.Run("one best effort forces best effort", func(t *testing.T) {
		merged := Match([]Profile{{Reliability: Reliable}, {Reliability: BestEffort}})
		assert.Equal(t, BestEffort, merged.Reliability)
	})
}

func TestMatchDurability(t *testing.T) {
	t.Run("one volatile forces volatile", func(t *testing.T) {
		merged := Match([]Profile{{Durability: TransientLocal}, {Durability: Volatile}})
		assert.Equal(t, Volatile, merged.Durability)
	})

	t.Run("all transient local stays transient local", func(t *testing.T) {
		merged := Match([]Profile{{Durability: TransientLocal}, {Durability: TransientLocal}})
		assert.Equal(t, TransientLocal, merged.Durability)
	})
}

func TestMatchLiveliness(t *testing.T) {
	t.Run("manual by topic requires unanimity", func(t *testing.T) {
		merged := Match([]Profile{{Liveliness: ManualByTopic}, {Liveliness: Automatic}})
		assert.Equal(t, Automatic, merged.Liveliness)

		merged = Match([]Profile{{Liveliness: ManualByTopic}, {Liveliness: ManualByTopic}})
		assert.Equal(t, ManualByTopic, merged.Liveliness)
	})
}

func TestMatchDurations(t *testing.T) {
	t.Run("tightest deadline wins", func(t *testing.T) {
		merged := Match([]Profile{
			{Deadline: 5 * time.Second},
			{Deadline: 2 * time.Second},
			{Deadline: Unlimited},
		})
		assert.Equal(t, 2*time.Second, merged.Deadline)
	})

	t.Run("tightest lifespan wins", func(t *testing.T) {
		merged := Match([]Profile{
			{Lifespan: Unlimited},
			{Lifespan: 10 * time.Minute},
		})
		assert.Equal(t, 10*time.Minute, merged.Lifespan)
	})

	t.Run("all unlimited stays unlimited", func(t *testing.T) {
		merged := Match([]Profile{{}, {}})
		assert.Equal(t, Unlimited, merged.Deadline)
		assert.Equal(t, Unlimited, merged.Lifespan)
	})
}

func TestMatchHistory(t *testing.T) {
	t.Run("deepest bounded depth wins", func(t *testing.T) {
		merged := Match([]Profile{{Depth: 10}, {Depth: 3}})
		assert.Equal(t, 10, merged.Depth)
	})

	t.Run("keep all requires unanimity", func(t *testing.T) {
		merged := Match([]Profile{{Depth: KeepAll}, {Depth: 7}})
		assert.Equal(t, 7, merged.Depth)

		merged = Match([]Profile{{Depth: KeepAll}, {Depth: KeepAll}})
		assert.Equal(t, KeepAll, merged.Depth)
	})
}

func TestMatchOrderIndependence(t *testing.T) {
	profiles := []Profile{
		{Reliability: BestEffort, Durability: TransientLocal, Deadline: 3 * time.Second, Depth: 4},
		{Reliability: Reliable, Durability: Volatile, Lifespan: time.Minute, Depth: KeepAll},
		{Liveliness: ManualByTopic, Deadline: 9 * time.Second, Depth: 12},
		{Deadline: Unlimited, Lifespan: 30 * time.Second},
	}
	want := Match(profiles)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]Profile, len(profiles))
		copy(shuffled, profiles)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := Match(shuffled)
		assert.True(t, got.Equal(want), "iteration %d: merged %v, want %v", i, got, want)
	}
}

func TestMatchNeverStrongerThanWeakestInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randomProfile := func() Profile {
		p := Profile{
			Reliability: Reliability(rng.Intn(2)),
			Durability:  Durability(rng.Intn(2)),
			Liveliness:  Liveliness(rng.Intn(2)),
			Depth:       rng.Intn(20),
		}
		if rng.Intn(2) == 0 {
			p.Deadline = time.Duration(1+rng.Intn(1000)) * time.Millisecond
		}
		if rng.Intn(2) == 0 {
			p.Lifespan = time.Duration(1+rng.Intn(1000)) * time.Millisecond
		}
		if rng.Intn(5) == 0 {
			p.Depth = KeepAll
		}
		return p
	}

	for i := 0; i < 200; i++ {
		profiles := make([]Profile, 1+rng.Intn(5))
		for j := range profiles {
			profiles[j] = randomProfile()
		}
		merged := Match(profiles)

		for _, p := range profiles {
			if p.Reliability == BestEffort {
				assert.Equal(t, BestEffort, merged.Reliability, "input %v", profiles)
			}
			if p.Durability == Volatile {
				assert.Equal(t, Volatile, merged.Durability, "input %v", profiles)
			}
			if p.Deadline != Unlimited {
				assert.LessOrEqual(t, merged.Deadline, p.Deadline, "input %v", profiles)
				assert.NotEqual(t, Unlimited, merged.Deadline, "input %v", profiles)
			}
			if p.Lifespan != Unlimited {
				assert.LessOrEqual(t, merged.Lifespan, p.Lifespan, "input %v", profiles)
				assert.NotEqual(t, Unlimited, merged.Lifespan, "input %v", profiles)
			}
		}
	}
}
