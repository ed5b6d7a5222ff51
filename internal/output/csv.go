package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/nvandessel/sernet/internal/ser"
)

type csvWriter struct{}

func (csvWriter) Ext() string { return ".csv" }

// Write emits one comma-separated line per recorded step with no header.
func (csvWriter) Write(w io.Writer, m *ser.ActivationMatrix, _ Metadata) error {
	cw := csv.NewWriter(w)
	record := make([]string, m.Cols)
	for t := 0; t < m.Rows; t++ {
		for n, v := range m.Row(t) {
			record[n] = strconv.Itoa(int(v))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", t, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
