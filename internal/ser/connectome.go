package ser

import (
	"fmt"
	"math"
)

// Connectome is the weighted adjacency the engine reads. Row(i) holds the
// weights node i receives, indexed by source node, so the input to node i is
// the sum of Row(i)[j] over every Excited node j.
//
// Implementations must not change during a run.
type Connectome interface {
	Size() int
	Row(i int) []float64
}

// CheckConnectome verifies that c is square and that every weight is finite
// and non-negative. Shape problems wrap ErrConfig; bad weights wrap
// ErrNumeric.
func CheckConnectome(c Connectome) error {
	if c == nil {
		return fmt.Errorf("connectome is nil: %w", ErrConfig)
	}
	n := c.Size()
	if n <= 0 {
		return fmt.Errorf("connectome is empty: %w", ErrConfig)
	}
	for i := 0; i < n; i++ {
		row := c.Row(i)
		if len(row) != n {
			return fmt.Errorf("connectome is not square: row %d has %d columns, want %d: %w", i, len(row), n, ErrConfig)
		}
		for j, w := range row {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("weight [%d][%d] is not finite (%v): %w", i, j, w, ErrNumeric)
			}
			if w < 0 {
				return fmt.Errorf("weight [%d][%d] is negative (%v): %w", i, j, w, ErrNumeric)
			}
		}
	}
	return nil
}

// denseConnectome adapts a [][]float64 to Connectome. Used by tests and
// small callers that already hold rows in memory.
type denseConnectome [][]float64

// Dense wraps rows as a Connectome without copying.
func Dense(rows [][]float64) Connectome { return denseConnectome(rows) }

func (d denseConnectome) Size() int           { return len(d) }
func (d denseConnectome) Row(i int) []float64 { return d[i] }
