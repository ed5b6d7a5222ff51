package ser

import (
	"context"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// Step computes the snapshot at t+1 from cur, the snapshot at t. It never
// modifies cur.
//
// Nodes are visited in ascending order. A Quiescent node consumes exactly one
// draw from rng (the spontaneous activation draw, taken even when network
// input alone would activate it), a Refractory node consumes one (the
// recovery draw), and an Excited node consumes none.
func Step(cur Snapshot, c Connectome, p Params, rng *rand.Rand) Snapshot {
	excited := cur.excitedIndices(make([]int, 0, len(cur)))
	next := make(Snapshot, len(cur))
	for i, st := range cur {
		next[i] = transition(st, c.Row(i), excited, p, rng)
	}
	return next
}

// StepParallel is the sub-stream variant of Step. Each node draws from its
// own generator keyed by (seed, step, node), and nodes are split across
// workers goroutines. The result depends only on the seed and step index,
// never on workers, but differs from Step's single-stream sequence.
func StepParallel(ctx context.Context, cur Snapshot, c Connectome, p Params, step, workers int) (Snapshot, error) {
	n := len(cur)
	if n == 0 {
		return Snapshot{}, nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	excited := cur.excitedIndices(make([]int, 0, n))
	next := make(Snapshot, n)
	chunk := (n + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			var sub substream
			base := uint64(step) * uint64(n)
			for i := lo; i < hi; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				sub.reset(p.Seed, base+uint64(i))
				next[i] = transition(cur[i], c.Row(i), excited, p, &sub)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

// transition applies the SER rule to a single node. row is the node's
// incoming weights and excited lists the nodes Excited at t.
func transition(st State, row []float64, excited []int, p Params, rng source) State {
	switch st {
	case Excited:
		return Refractory
	case Refractory:
		if rng.Float64() < p.RecoveryProb {
			return Quiescent
		}
		return Refractory
	default:
		spontaneous := rng.Float64() < p.SpontaneousProb
		if spontaneous || input(row, excited) > p.Threshold {
			return Excited
		}
		return Quiescent
	}
}

// input sums the weights a node receives from the currently Excited nodes.
// Summation runs in ascending source order so the result is reproducible.
func input(row []float64, excited []int) float64 {
	var sum float64
	for _, j := range excited {
		sum += row[j]
	}
	return sum
}
