package output

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/sernet/internal/ser"
)

func sampleMatrix(rows, cols int) *ser.ActivationMatrix {
	m := ser.NewActivationMatrix(rows, cols)
	values := []int8{ser.OutputQuiescent, ser.OutputExcited, ser.OutputRefractory}
	for i := range m.Data {
		m.Data[i] = values[(i*7+i/cols)%3]
	}
	return m
}

func equalMatrix(t *testing.T, got, want *ser.ActivationMatrix) {
	t.Helper()
	if got.Rows != want.Rows || got.Cols != want.Cols {
		t.Fatalf("shape = %dx%d, want %dx%d", got.Rows, got.Cols, want.Rows, want.Cols)
	}
	if !bytes.Equal(int8Bytes(got.Data), int8Bytes(want.Data)) {
		t.Fatal("matrix contents differ")
	}
}

func int8Bytes(v []int8) []byte {
	b := make([]byte, len(v))
	for i, x := range v {
		b[i] = byte(x)
	}
	return b
}

func TestNPY_RoundTrip(t *testing.T) {
	m := sampleMatrix(13, 5)
	var buf bytes.Buffer
	if err := (npyWriter{}).Write(&buf, m, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw := buf.Bytes()
	if string(raw[:6]) != npyMagic {
		t.Fatalf("missing magic: %q", raw[:6])
	}
	if headerEnd := len(raw) - len(m.Data); headerEnd%npyAlign != 0 {
		t.Errorf("data starts at %d, not %d-aligned", headerEnd, npyAlign)
	}
	if !bytes.Contains(raw, []byte("'shape': (13, 5)")) {
		t.Errorf("header does not declare shape: %q", raw[:128])
	}

	got, err := ReadNPY(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadNPY: %v", err)
	}
	equalMatrix(t, got, m)
}

func TestReadNPY_Rejects(t *testing.T) {
	if _, err := ReadNPY(bytes.NewReader([]byte("not numpy at all"))); err == nil {
		t.Error("expected error for bad magic")
	}
	if _, err := ReadNPY(bytes.NewReader([]byte("\x93NU"))); err == nil {
		t.Error("expected error for truncated preamble")
	}

	var buf bytes.Buffer
	if err := (npyWriter{}).Write(&buf, sampleMatrix(2, 3), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data := buf.Bytes()
	data[len(data)-1] = 7
	if _, err := ReadNPY(bytes.NewReader(data)); err == nil {
		t.Error("expected error for a cell outside the activation encoding")
	}
}

func TestArrow_RoundTrip(t *testing.T) {
	// More rows than one batch so multiple record batches are written.
	m := sampleMatrix(arrowBatchRows+37, 4)
	meta := Metadata{"seed": "124", "connectome": "chain.dat"}

	var buf bytes.Buffer
	if err := (arrowWriter{}).Write(&buf, m, meta); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, gotMeta, err := ReadArrow(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadArrow: %v", err)
	}
	equalMatrix(t, got, m)
	if gotMeta["seed"] != "124" || gotMeta["connectome"] != "chain.dat" {
		t.Errorf("metadata = %v", gotMeta)
	}
}

func TestCSV(t *testing.T) {
	m := sampleMatrix(3, 4)
	var buf bytes.Buffer
	if err := (csvWriter{}).Write(&buf, m, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing csv: %v", err)
	}
	if len(records) != 3 || len(records[0]) != 4 {
		t.Fatalf("csv shape = %dx%d", len(records), len(records[0]))
	}
	for r, rec := range records {
		for c, field := range rec {
			want := string('0' + byte(m.At(r, c)))
			if field != want {
				t.Errorf("cell (%d,%d) = %q, want %q", r, c, field, want)
			}
		}
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	m := sampleMatrix(4, 3)

	paths, err := Save(dir, Stem("/data/hagmann.dat"), m, []string{"npy", "arrow", "csv"}, nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := []string{
		filepath.Join(dir, "activation_matrix_hagmann.npy"),
		filepath.Join(dir, "activation_matrix_hagmann.arrow"),
		filepath.Join(dir, "activation_matrix_hagmann.csv"),
	}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i, p := range paths {
		if p != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, p, want[i])
		}
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing output %s: %v", p, err)
		}
	}

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := ReadNPY(f)
	if err != nil {
		t.Fatalf("ReadNPY: %v", err)
	}
	equalMatrix(t, got, m)
}

func TestSave_UnknownFormat(t *testing.T) {
	if _, err := Save(t.TempDir(), "x", sampleMatrix(1, 1), []string{"hdf5"}, nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"sample.dat":          "activation_matrix_sample",
		"/a/b/hagmann.txt":    "activation_matrix_hagmann",
		"noext":               "activation_matrix_noext",
		"dir/conn.normed.dat": "activation_matrix_conn.normed",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}
