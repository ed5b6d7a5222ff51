// Package rundir creates the per-run output directories.
package rundir

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Dir describes a created run directory.
type Dir struct {
	// Path is the directory path.
	Path string

	// Name is the final directory name, possibly with a numeric postfix.
	Name string

	// Renamed reports whether a postfix was added because the requested
	// name was taken.
	Renamed bool
}

// UniquePath returns path if nothing exists there, otherwise the first of
// path_1, path_2, ... that does not exist. The extension, if any, stays last:
// "out.npy" becomes "out_1.npy".
func UniquePath(path string) (string, error) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return path, nil
	} else if err != nil {
		return "", fmt.Errorf("checking %s: %w", path, err)
	}

	dir, name := filepath.Split(path)
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	for i := 1; i < math.MaxInt32; i++ {
		candidate := filepath.Join(dir, stem+"_"+strconv.Itoa(i)+ext)
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no free name for %s", path)
}

// Create makes a new run directory named name under base. If the name is
// taken, a numeric postfix is added. The directory is created exclusively,
// so an existing directory is never reused.
func Create(base, name string) (Dir, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return Dir{}, fmt.Errorf("creating base directory: %w", err)
	}

	requested := filepath.Join(base, name)
	path, err := UniquePath(requested)
	if err != nil {
		return Dir{}, err
	}
	if err := os.Mkdir(path, 0755); err != nil {
		return Dir{}, fmt.Errorf("creating run directory: %w", err)
	}

	return Dir{
		Path:    path,
		Name:    filepath.Base(path),
		Renamed: path != requested,
	}, nil
}

// CopyFile copies src into dir, keeping its base name, and returns the
// destination path.
func CopyFile(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(dir, filepath.Base(src))
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", dst, err)
	}
	return dst, nil
}

// WriteFile creates name inside dir and lets write fill it.
func WriteFile(dir, name string, write func(io.Writer) error) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}
