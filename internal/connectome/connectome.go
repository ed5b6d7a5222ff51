// Package connectome loads and prepares the weighted adjacency matrices the
// SER engine runs on.
//
// Files use the plain-text layout numpy's loadtxt reads: one matrix row per
// line, values separated by whitespace (or commas), '#' starting a comment.
// Row i holds the weights node i receives; column j is the source node.
package connectome

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/nvandessel/sernet/internal/ser"
)

// Matrix is a dense, row-major N x N weight matrix. It satisfies
// ser.Connectome.
type Matrix struct {
	n    int
	data []float64
}

// New returns an n x n zero matrix.
func New(n int) *Matrix {
	return &Matrix{n: n, data: make([]float64, n*n)}
}

// FromRows copies rows into a new Matrix. Rows must all have len(rows)
// columns.
func FromRows(rows [][]float64) (*Matrix, error) {
	n := len(rows)
	m := New(n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), n, ser.ErrConfig)
		}
		copy(m.data[i*n:(i+1)*n], row)
	}
	return m, nil
}

// Size returns the number of nodes.
func (m *Matrix) Size() int { return m.n }

// Row returns the incoming weights of node i. The slice aliases the matrix
// and must not be modified.
func (m *Matrix) Row(i int) []float64 { return m.data[i*m.n : (i+1)*m.n] }

// At returns the weight node i receives from node j.
func (m *Matrix) At(i, j int) float64 { return m.data[i*m.n+j] }


// Validate reports shape and weight problems, wrapping ser.ErrConfig or
// ser.ErrNumeric.
func (m *Matrix) Validate() error {
	return ser.CheckConnectome(m)
}

// Normalize returns a copy with every row divided by its sum. Rows that sum
// to zero are left at zero.
func (m *Matrix) Normalize() *Matrix {
	out := New(m.n)
	for i := 0; i < m.n; i++ {
		src := m.Row(i)
		var sum float64
		for _, w := range src {
			sum += w
		}
		if sum == 0 {
			continue
		}
		dst := out.Row(i)
		for j, w := range src {
			dst[j] = w / sum
		}
	}
	return out
}

// Edges returns the number of non-zero weights.
func (m *Matrix) Edges() int {
	count := 0
	for _, w := range m.data {
		if w != 0 {
			count++
		}
	}
	return count
}

// Checksum returns a hex sha256 of the matrix size and weights, used to tie
// recorded runs to the exact coupling they used.
func (m *Matrix) Checksum() string {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(m.n))
	h.Write(buf[:])
	for _, w := range m.data {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(w))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Parse reads a matrix from r. Blank lines and '#' comments are skipped.
// The result is checked for squareness but not for weight validity; call
// Validate for that.
func Parse(r io.Reader) (*Matrix, error) {
	var rows [][]float64
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ',' || r == '\r'
		})
		if len(fields) == 0 {
			continue
		}

		row := make([]float64, len(fields))
		for j, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %d: %w", lineNo, j+1, err)
			}
			row[j] = v
		}
		if len(rows) > 0 && len(row) != len(rows[0]) {
			return nil, fmt.Errorf("line %d has %d columns, previous rows have %d: %w", lineNo, len(row), len(rows[0]), ser.ErrConfig)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading connectome: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("connectome has no rows: %w", ser.ErrConfig)
	}
	if len(rows[0]) != len(rows) {
		return nil, fmt.Errorf("connectome is %dx%d, must be square: %w", len(rows), len(rows[0]), ser.ErrConfig)
	}
	return FromRows(rows)
}

// Load reads and parses the connectome file at path.
func Load(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening connectome: %w", err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing connectome %s: %w", path, err)
	}
	return m, nil
}

// Write encodes m in the text layout Parse reads.
func (m *Matrix) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < m.n; i++ {
		for j, v := range m.Row(i) {
			if j > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
