// Package ser implements the stochastic three-state SER cellular automaton
// (Susceptible/Quiescent, Excited, Refractory) on a weighted connectome.
//
// The package is split into three parts that mirror the model:
//
//   - Snapshot and Initialize hold the network state: one State per node, with
//     a random fraction of nodes starting Excited.
//   - Step is the transition engine. It is a pure function from the snapshot
//     at t to a brand-new snapshot at t+1; every node reads only the snapshot
//     at t (synchronous update).
//   - Simulator and Run drive the loop: Run discards the first Transient
//     snapshots and records the rest into an ActivationMatrix.
//
// All randomness comes from a generator owned by the run and seeded from
// Params.Seed, consumed in ascending node order within a step. Two runs with
// identical parameters, connectome and seed produce bit-identical matrices.
//
// Usage:
//
//	p := ser.Params{Steps: 2000, Transient: 200, SpontaneousProb: 0.001,
//	    RecoveryProb: 0.2, PropActive: 0.01, Threshold: 0.05, Seed: 124}
//	m, err := ser.Run(ctx, p, conn)
package ser
