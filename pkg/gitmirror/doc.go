// Package gitmirror implements the Repository Mirror (C3): cloning,
// fetching, tag enumeration, and checkout, all driven through the Remote
// Executor against the system `git` binary.
package gitmirror
