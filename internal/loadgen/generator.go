package loadgen

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Kind weights out of 100.
const (
	weightView   = 45
	weightClick  = 30
	weightLike   = 20
	weightUnlike = 5

	minViewMS = 500
	maxViewMS = 30_000
)

// expectation counts what the generated events should add per item.
type expectation struct {
	clicks int64
	likes  int64 // likes minus unlikes, lower bound zero per item
}

// generateEvents builds cfg.NumEvents interactions followed by cfg.Duplicates
// re-sends of earlier events. Item popularity is skewed so trending has a
// clear head.
func generateEvents(cfg *Config, rng *rand.Rand, now time.Time) ([]Event, map[string]*expectation) {
	events := make([]Event, 0, cfg.NumEvents+cfg.Duplicates)
	expected := make(map[string]*expectation, cfg.Items)
	ts := now.UTC().Format(time.RFC3339)

	for range cfg.NumEvents {
		item := fmt.Sprintf("item-%04d", skewedIndex(rng, cfg.Items))
		user := fmt.Sprintf("user-%05d", rng.IntN(cfg.Users))
		e := Event{EventID: uuid.NewString(), UserID: user, ItemID: item, TS: ts}

		exp, ok := expected[item]
		if !ok {
			exp = &expectation{}
			expected[item] = exp
		}

		switch n := rng.IntN(100); {
		case n < weightView:
			e.Kind = "view"
			e.DurationMS = int64(minViewMS + rng.IntN(maxViewMS-minViewMS))
		case n < weightView+weightClick:
			e.Kind = "click"
			exp.clicks++
		case n < weightView+weightClick+weightLike:
			e.Kind = "like"
			exp.likes++
		default:
			e.Kind = "unlike"
		}
		events = append(events, e)
	}

	for i := 0; i < cfg.Duplicates && i < cfg.NumEvents; i++ {
		events = append(events, events[i])
	}
	return events, expected
}

// skewedIndex returns an index in [0, n) where low indexes are much more
// likely than high ones.
func skewedIndex(rng *rand.Rand, n int) int {
	f := rng.Float64()
	return int(f * f * float64(n))
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
