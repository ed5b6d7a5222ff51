// Package output persists activation matrices.
//
// Three formats are supported: NumPy .npy (the layout the original tooling
// produced with np.save), Apache Arrow IPC files, and CSV. Every format stores
// the external cell encoding: 0 quiescent, 1 excited, 2 refractory.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/sernet/internal/ser"
)

// Writer encodes an activation matrix in one file format.
type Writer interface {
	// Ext is the file extension including the dot.
	Ext() string
	Write(w io.Writer, m *ser.ActivationMatrix, meta Metadata) error
}

// Metadata is attached to formats that can carry it.
type Metadata map[string]string

var writers = map[string]Writer{
	"npy":   npyWriter{},
	"arrow": arrowWriter{},
	"csv":   csvWriter{},
}

// Lookup returns the writer registered for format.
func Lookup(format string) (Writer, error) {
	w, ok := writers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	return w, nil
}

// Stem returns the file stem used for a connectome file:
// activation_matrix_<connectome name without extension>.
func Stem(connectomePath string) string {
	base := filepath.Base(connectomePath)
	return "activation_matrix_" + strings.TrimSuffix(base, filepath.Ext(base))
}

// Save writes m into dir once per format and returns the written paths in
// format order. Files that already exist are overwritten.
func Save(dir, stem string, m *ser.ActivationMatrix, formats []string, meta Metadata) ([]string, error) {
	paths := make([]string, 0, len(formats))
	for _, format := range formats {
		w, err := Lookup(format)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, stem+w.Ext())
		if err := writeFile(path, w, m, meta); err != nil {
			return paths, fmt.Errorf("saving %s: %w", format, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, w Writer, m *ser.ActivationMatrix, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := w.Write(f, m, meta); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
