package output

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/nvandessel/sernet/internal/ser"
)

// npyMagic opens every .npy file; version 1.0 follows.
const npyMagic = "\x93NUMPY"

// npyAlign is the alignment numpy uses for the start of the data block.
const npyAlign = 64

type npyWriter struct{}

func (npyWriter) Ext() string { return ".npy" }

// Write emits a version 1.0 .npy file holding an int8 C-ordered array of
// shape (rows, cols). Metadata is not representable and is ignored.
func (npyWriter) Write(w io.Writer, m *ser.ActivationMatrix, _ Metadata) error {
	header := fmt.Sprintf("{'descr': '|i1', 'fortran_order': False, 'shape': (%d, %d), }", m.Rows, m.Cols)
	// Pad with spaces so magic + version + length + header + '\n' is aligned.
	total := len(npyMagic) + 2 + 2 + len(header) + 1
	if pad := (npyAlign - total%npyAlign) % npyAlign; pad > 0 {
		header += strings.Repeat(" ", pad)
	}
	header += "\n"

	bw := bufio.NewWriter(w)
	bw.WriteString(npyMagic)
	bw.Write([]byte{1, 0})
	var hlen [2]byte
	binary.LittleEndian.PutUint16(hlen[:], uint16(len(header)))
	bw.Write(hlen[:])
	bw.WriteString(header)

	buf := make([]byte, len(m.Data))
	for i, v := range m.Data {
		buf[i] = byte(v)
	}
	bw.Write(buf)
	return bw.Flush()
}

var npyShape = regexp.MustCompile(`'shape':\s*\((\d+),\s*(\d+)\)`)

// ReadNPY decodes a file written by the npy writer.
func ReadNPY(r io.Reader) (*ser.ActivationMatrix, error) {
	br := bufio.NewReader(r)
	prefix := make([]byte, len(npyMagic)+4)
	if _, err := io.ReadFull(br, prefix); err != nil {
		return nil, fmt.Errorf("reading npy preamble: %w", err)
	}
	if !bytes.Equal(prefix[:len(npyMagic)], []byte(npyMagic)) {
		return nil, fmt.Errorf("not an npy file")
	}
	if prefix[len(npyMagic)] != 1 {
		return nil, fmt.Errorf("unsupported npy version %d.%d", prefix[len(npyMagic)], prefix[len(npyMagic)+1])
	}
	hlen := binary.LittleEndian.Uint16(prefix[len(npyMagic)+2:])
	header := make([]byte, hlen)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("reading npy header: %w", err)
	}
	if !bytes.Contains(header, []byte("'|i1'")) || bytes.Contains(header, []byte("'fortran_order': True")) {
		return nil, fmt.Errorf("unsupported npy layout: %s", strings.TrimSpace(string(header)))
	}
	match := npyShape.FindSubmatch(header)
	if match == nil {
		return nil, fmt.Errorf("npy header has no 2-d shape: %s", strings.TrimSpace(string(header)))
	}
	rows, _ := strconv.Atoi(string(match[1]))
	cols, _ := strconv.Atoi(string(match[2]))

	m := ser.NewActivationMatrix(rows, cols)
	buf := make([]byte, rows*cols)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, fmt.Errorf("reading npy data: %w", err)
	}
	for i, b := range buf {
		if _, err := ser.Decode(int8(b)); err != nil {
			return nil, fmt.Errorf("npy cell %d: %w", i, err)
		}
		m.Data[i] = int8(b)
	}
	return m, nil
}
