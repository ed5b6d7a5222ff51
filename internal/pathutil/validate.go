// Package pathutil confines file paths supplied by untrusted callers, such
// as MCP tool arguments, to a set of root directories.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path escapes every allowed root.
var ErrOutsideRoot = errors.New("path is outside the allowed directories")

// RedactPath reduces a full path to .../<parent>/<basename> for error
// messages, e.g. "/home/user/nets/chain.dat" becomes ".../nets/chain.dat".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// CheckWithin reports an error unless path lies inside one of roots after
// cleaning and symlink resolution. Neither the path nor its parents need to
// exist yet.
func CheckWithin(path string, roots ...string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	if len(roots) == 0 {
		return errors.New("no allowed directories configured")
	}
	if strings.ContainsRune(path, '\x00') {
		return errors.New("path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path: %w", err)
	}
	resolved, err := resolveExisting(abs)
	if err != nil {
		return err
	}

	for _, root := range roots {
		rootAbs, err := filepath.Abs(filepath.Clean(root))
		if err != nil {
			continue
		}
		rootResolved, err := resolveExisting(rootAbs)
		if err != nil {
			continue
		}
		if isSubpath(resolved, rootResolved) {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", RedactPath(abs), ErrOutsideRoot)
}

// resolveExisting resolves symlinks on the deepest existing ancestor of
// path and re-appends the missing tail.
func resolveExisting(path string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(path)
	if parent == path {
		return "", fmt.Errorf("cannot resolve path %s", RedactPath(path))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// isSubpath reports whether path is base or below it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
