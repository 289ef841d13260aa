// Package types defines the core data structures shared across the
// updater: Package, DeploymentState, UpdateRequest/UpdateResult,
// HealthCheck, and BackupArtifact.
package types
