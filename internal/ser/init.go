package ser

import (
	"math"
	"math/rand/v2"
)

// InitialExcited returns how many of n nodes start Excited for the given
// fraction: round(propActive*n) with halves going to the even neighbour,
// clamped to [0, n].
func InitialExcited(n int, propActive float64) int {
	k := int(math.RoundToEven(propActive * float64(n)))
	if k < 0 {
		return 0
	}
	if k > n {
		return n
	}
	return k
}

// Initialize builds the snapshot at t=0. It picks InitialExcited(n,
// propActive) distinct nodes uniformly at random to start Excited and leaves
// the rest Quiescent. No node starts Refractory.
func Initialize(n int, propActive float64, rng *rand.Rand) Snapshot {
	snap := make(Snapshot, n)
	k := InitialExcited(n, propActive)
	if k == 0 {
		return snap
	}

	// Partial Fisher-Yates: the first k slots of idx end up as a uniform
	// sample without replacement.
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
		snap[idx[i]] = Excited
	}
	return snap
}
