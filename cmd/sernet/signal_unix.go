//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals stop a running simulation or MCP server.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
