// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go launches fn in a new goroutine. A panic in fn is recovered and logged with the task name,
// the caller's attrs (tenant_id, request_id, ...) and the stack, instead of crashing the process.
// Use it for fire-and-forget work such as audit writes and sink flushes.
func Go(task string, fn func(), attrs ...any) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				args := append([]any{"task", task, "panic", r}, attrs...)
				args = append(args, "stack", string(debug.Stack()))
				slog.Error("recovered panic in background goroutine", args...)
			}
		}()
		fn()
	}()
}
