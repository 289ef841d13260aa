// Package migration implements the Migration Planner (C5): script
// discovery against the filename grammar, deterministic plan
// computation for forward and rollback transitions, and plan execution
// through the Remote Executor.
package migration
