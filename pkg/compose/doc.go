// Package compose implements the Compose Driver (C4): CLI-binding
// detection (v1 vs v2), per-architecture compose file selection, and the
// up/down/pull/status command set, all run through the Remote Executor.
package compose
