// Package state implements the Deployment State Store (C6):
// deployment.state.json read/write on the managed host, atomic by
// construction because it rides on the Remote Executor's own
// write-temp-then-rename WriteFile contract.
package state
