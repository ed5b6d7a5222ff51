package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/sernet/internal/store"
)

// AuditFile is the audit log name inside the registry directory.
const AuditFile = "audit.jsonl"

// AuditEntry records one MCP tool invocation. It carries parameter
// summaries only, never file contents.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends entries to <root>/.sernet/audit.jsonl. It is safe for
// concurrent use. A nil AuditLogger is safe to use; all methods are no-ops
// on nil receiver.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens the audit log under root. If the file cannot be
// opened a warning is printed to stderr and nil is returned.
func NewAuditLogger(root string) *AuditLogger {
	dir := filepath.Join(root, store.DirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", dir, err)
		return nil
	}

	path := filepath.Join(dir, AuditFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log appends entry as a single JSON line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil || a.file == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.file.Write(data)
}

// Close closes the audit file.
func (a *AuditLogger) Close() error {
	if a == nil || a.file == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.file.Close()
	a.file = nil
	return err
}

// sanitizeToolParams keeps parameters that are safe to log. Numeric model
// parameters are logged by value; paths and names only by presence, since
// they can reveal local directory layout.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	safeValueParams := map[string]bool{
		"t_max":            true,
		"t_th":             true,
		"ri":               true,
		"rf":               true,
		"threshold":        true,
		"seed":             true,
		"frac_init_active": true,
		"workers":          true,
		"formats":          true,
		"normalize":        true,
		"r_rocha":          true,
		"limit":            true,
		"status":           true,
		"id":               true,
	}
	presenceOnlyParams := map[string]bool{
		"config_file":     true,
		"connectome_file": true,
		"run_name":        true,
		"output_dir":      true,
	}

	result := make(map[string]string)
	provided := 0
	for key, val := range params {
		if isUnset(val) {
			continue
		}
		provided++
		switch {
		case safeValueParams[key]:
			result[key] = formatParam(val)
		case presenceOnlyParams[key]:
			result[key] = "(set)"
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", provided)
	return result
}

// isUnset reports whether a tool argument was left at its zero value.
func isUnset(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	case int:
		return x == 0
	case *int:
		return x == nil
	case *int64:
		return x == nil
	case *float64:
		return x == nil
	case *bool:
		return x == nil
	}
	return false
}

func formatParam(v any) string {
	switch x := v.(type) {
	case *int:
		return fmt.Sprintf("%d", *x)
	case *int64:
		return fmt.Sprintf("%d", *x)
	case *float64:
		return fmt.Sprintf("%g", *x)
	case *bool:
		return fmt.Sprintf("%t", *x)
	case []string:
		return strings.Join(x, ",")
	}
	return fmt.Sprintf("%v", v)
}

// auditTool logs a tool invocation.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
