/*
Package engine implements the Update Engine (C9): the sequential
per-package state machine described in §4.9 that takes a package from
its currently installed version to a target version (the latest
available tag, or an explicit one), running backup, stop, checkout,
migrate and start steps in order and recovering to the previous
version on failure.

This is deliberately not a generic phase/FSM framework with a pluggable
backend and changelog sync — there's exactly one transition shape to
run, so Update's steps are a plain Go function with early returns, not
a table of registered phases. What it keeps is the idea of a single
recovery path invoked uniformly from every failure point.

Engine serializes per package name (one update in flight per package at
a time) and publishes a domain event when an update starts, after each
completed step (backup, stop, migrate, start, health check), and when
the update finishes, through pkg/events, the same pub/sub shape the rest of the system uses
for observability.
*/
package engine
