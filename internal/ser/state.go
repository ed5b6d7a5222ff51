package ser

import "fmt"

// State is the discrete state of a single node.
type State int8

// Node states. Refractory uses the internal marker -1; the external encoding
// is applied only when a snapshot is written into an ActivationMatrix.
const (
	Quiescent  State = 0
	Excited    State = 1
	Refractory State = -1
)

// Valid reports whether s is one of the three model states.
func (s State) Valid() bool {
	return s == Quiescent || s == Excited || s == Refractory
}

func (s State) String() string {
	switch s {
	case Quiescent:
		return "quiescent"
	case Excited:
		return "excited"
	case Refractory:
		return "refractory"
	default:
		return fmt.Sprintf("State(%d)", int8(s))
	}
}

// Snapshot maps every node to its state at one discrete time step.
type Snapshot []State

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// Counts tallies how many nodes are in each state.
type Counts struct {
	Quiescent  int `json:"quiescent"`
	Excited    int `json:"excited"`
	Refractory int `json:"refractory"`
}

// Counts returns the number of nodes in each state.
func (s Snapshot) Counts() Counts {
	var c Counts
	for _, st := range s {
		switch st {
		case Quiescent:
			c.Quiescent++
		case Excited:
			c.Excited++
		case Refractory:
			c.Refractory++
		}
	}
	return c
}

// excitedIndices appends the indices of Excited nodes to dst in ascending order.
func (s Snapshot) excitedIndices(dst []int) []int {
	dst = dst[:0]
	for i, st := range s {
		if st == Excited {
			dst = append(dst, i)
		}
	}
	return dst
}
