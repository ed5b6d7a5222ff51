package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/sernet/internal/ser"
)

// arrowBatchRows is the number of recorded steps per record batch.
const arrowBatchRows = 1024

type arrowWriter struct{}

func (arrowWriter) Ext() string { return ".arrow" }

// arrowSchema has one int8 column per node, named n0..n{cols-1}.
func arrowSchema(cols int, meta Metadata) *arrow.Schema {
	fields := make([]arrow.Field, cols)
	for i := range fields {
		fields[i] = arrow.Field{Name: "n" + strconv.Itoa(i), Type: arrow.PrimitiveTypes.Int8}
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = meta[k]
	}
	md := arrow.NewMetadata(keys, values)
	return arrow.NewSchema(fields, &md)
}

// Write emits an Arrow IPC file. Rows are grouped into record batches of
// arrowBatchRows recorded steps; metadata is stored on the schema.
func (arrowWriter) Write(w io.Writer, m *ser.ActivationMatrix, meta Metadata) error {
	mem := memory.NewGoAllocator()
	schema := arrowSchema(m.Cols, meta)

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	column := make([]int8, 0, arrowBatchRows)
	for lo := 0; lo < m.Rows; lo += arrowBatchRows {
		hi := min(lo+arrowBatchRows, m.Rows)
		for c := 0; c < m.Cols; c++ {
			column = column[:0]
			for t := lo; t < hi; t++ {
				column = append(column, m.At(t, c))
			}
			b.Field(c).(*array.Int8Builder).AppendValues(column, nil)
		}
		rec := b.NewRecord()
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			fw.Close()
			return fmt.Errorf("writing arrow batch: %w", err)
		}
	}

	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

// ReadArrow decodes a file written by the arrow writer and returns the
// matrix with the schema metadata.
func ReadArrow(r interface {
	io.Reader
	io.Seeker
	io.ReaderAt
}) (*ser.ActivationMatrix, Metadata, error) {
	mem := memory.NewGoAllocator()
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, nil, fmt.Errorf("opening arrow file: %w", err)
	}
	defer fr.Close()

	schema := fr.Schema()
	cols := schema.NumFields()
	meta := Metadata{}
	md := schema.Metadata()
	for i, k := range md.Keys() {
		meta[k] = md.Values()[i]
	}

	var data [][]int8
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, nil, fmt.Errorf("reading arrow batch %d: %w", i, err)
		}
		rows := int(rec.NumRows())
		batch := make([][]int8, rows)
		for t := range batch {
			batch[t] = make([]int8, cols)
		}
		for c := 0; c < cols; c++ {
			col, ok := rec.Column(c).(*array.Int8)
			if !ok {
				return nil, nil, fmt.Errorf("column %d is %s, want int8", c, rec.Column(c).DataType())
			}
			for t := 0; t < rows; t++ {
				batch[t][c] = col.Value(t)
			}
		}
		data = append(data, batch...)
	}

	m := ser.NewActivationMatrix(len(data), cols)
	for t, row := range data {
		copy(m.Row(t), row)
	}
	return m, meta, nil
}
