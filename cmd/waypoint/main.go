// File: cmd/waypoint/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/waypoint/cmd"
	"github.com/xkilldash9x/waypoint/internal/observability"
)

const panicLogFile = "panic.log"

// Replaced in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(cmd.Execute(ctx)))
}

// exitCode maps the command result to the process status. An interrupted run
// exits cleanly; an unsuccessful run exits 2 so scripts can tell it apart from
// a crash or misconfiguration.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, cmd.ErrRunUnsuccessful):
		return 2
	default:
		return 1
	}
}

// handlePanic writes the panic and stack to panicLogFile and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(msg), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", msg)
		osExit(1)
		return
	}
	fmt.Fprintf(os.Stderr, "waypoint crashed. Details logged to %s\n", panicLogFile)
	osExit(1)
}
