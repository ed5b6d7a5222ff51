package ser

import "math/rand/v2"

// streamID is the PCG stream selector for the sequential generator. It is a
// fixed constant so that the seed alone determines the trajectory.
const streamID = 0x5e7_c0_ffee

// NewRand returns the generator a run with the given seed uses for
// initialization and sequential stepping.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), streamID))
}

// source is the minimal generator interface the transition rule needs.
type source interface {
	Float64() float64
}

// substream is an independent per-node, per-step generator used by the
// parallel stepping mode. It is keyed by (seed, step*N+node), so the draws a
// node sees do not depend on how nodes are split across workers.
type substream struct {
	pcg rand.PCG
}

func (s *substream) reset(seed int64, key uint64) {
	s.pcg.Seed(uint64(seed)^streamID, key)
}

// Float64 returns a uniform value in [0, 1) built from the top 53 bits.
func (s *substream) Float64() float64 {
	return float64(s.pcg.Uint64()>>11) / (1 << 53)
}
