package ser

import "fmt"

// External cell values of an ActivationMatrix.
const (
	OutputQuiescent  int8 = 0
	OutputExcited    int8 = 1
	OutputRefractory int8 = 2
)

// ActivationMatrix is the recorded history of a run: one row per recorded
// step, one column per node, stored row-major. Cells hold the external
// encoding (OutputQuiescent, OutputExcited, OutputRefractory).
type ActivationMatrix struct {
	Rows int
	Cols int
	Data []int8
}

// NewActivationMatrix allocates a zeroed rows x cols matrix.
func NewActivationMatrix(rows, cols int) *ActivationMatrix {
	return &ActivationMatrix{
		Rows: rows,
		Cols: cols,
		Data: make([]int8, rows*cols),
	}
}

// At returns the cell for recorded step t and node n.
func (m *ActivationMatrix) At(t, n int) int8 {
	return m.Data[t*m.Cols+n]
}

// Row returns the cells of recorded step t. The slice aliases the matrix.
func (m *ActivationMatrix) Row(t int) []int8 {
	return m.Data[t*m.Cols : (t+1)*m.Cols]
}

// setRow writes snap into row t, translating the internal Refractory marker
// to OutputRefractory. This is the only place the external encoding is
// applied.
func (m *ActivationMatrix) setRow(t int, snap Snapshot) {
	row := m.Row(t)
	for i, st := range snap {
		row[i] = Encode(st)
	}
}

// Encode maps a state to its external cell value.
func Encode(st State) int8 {
	if st == Refractory {
		return OutputRefractory
	}
	return int8(st)
}

// Decode maps an external cell value back to a state.
func Decode(v int8) (State, error) {
	switch v {
	case OutputQuiescent:
		return Quiescent, nil
	case OutputExcited:
		return Excited, nil
	case OutputRefractory:
		return Refractory, nil
	default:
		return 0, fmt.Errorf("unknown activation value %d", v)
	}
}

// Activity returns the fraction of cells that are Excited, averaged over
// every recorded step and node. An empty matrix has activity 0.
func (m *ActivationMatrix) Activity() float64 {
	if len(m.Data) == 0 {
		return 0
	}
	excited := 0
	for _, v := range m.Data {
		if v == OutputExcited {
			excited++
		}
	}
	return float64(excited) / float64(len(m.Data))
}

// NodeActivity returns, per node, the fraction of recorded steps in which
// the node was Excited.
func (m *ActivationMatrix) NodeActivity() []float64 {
	out := make([]float64, m.Cols)
	if m.Rows == 0 {
		return out
	}
	for t := 0; t < m.Rows; t++ {
		for n, v := range m.Row(t) {
			if v == OutputExcited {
				out[n]++
			}
		}
	}
	for n := range out {
		out[n] /= float64(m.Rows)
	}
	return out
}
