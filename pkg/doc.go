// Package pkg provides shared utilities for the softsd card slot stack.
//
// This package contains common functionality used by the slot core, the
// controller host and the block device binder, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for slot, controller and binder failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentBringup, "controller bound", "minor", 0)
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrNoDevice) {
//	    // Controller absent, storage unavailable for this slot
//	}
//
// [Errno] maps them onto POSIX error numbers for exit statuses and for
// callers that speak errno.
package pkg
