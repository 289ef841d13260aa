package types

import (
	"time"

	"github.com/modelingevolution/autoupdater/pkg/version"
)

// Version is re-exported for callers that otherwise only import pkg/types.
type Version = version.Version

// Package is a configured deployment unit. Immutable after registration.
type Package struct {
	Name             string
	RepositoryURL    string
	MirrorPath       string
	ComposeSubdir    string
	FriendlyName     string
	CriticalServices []string
	AutoApply        bool
	Auth             AuthConfig
}

// ComposeDir is the local path to the directory holding compose files,
// migration scripts, and deployment.state.json inside the mirror.
func (p Package) ComposeDir() string {
	if p.ComposeSubdir == "" {
		return p.MirrorPath
	}
	return p.MirrorPath + "/" + p.ComposeSubdir
}

// AuthKind selects the Remote Executor's SSH authentication variant.
type AuthKind string

const (
	AuthPassword                  AuthKind = "password"
	AuthPrivateKey                AuthKind = "privateKey"
	AuthPrivateKeyPassphrase      AuthKind = "privateKeyPassphrase"
	AuthPrivateKeyPasswordFallback AuthKind = "privateKeyPasswordFallback"
)

// AuthConfig describes how the Remote Executor authenticates to a package's host.
// Secrets (Password, Passphrase) are never logged and never appear in error strings.
type AuthConfig struct {
	Kind           AuthKind
	User           string
	Host           string
	Password       string
	PrivateKeyPath string
	Passphrase     string
}

// Arch is a host CPU architecture as reported by `uname -m`, normalized.
type Arch string

const (
	ArchX64   Arch = "x64"
	ArchARM64 Arch = "arm64"
)

// GitTagReference pairs a tag's literal name with its parsed version.
type GitTagReference struct {
	TagName string
	Version Version
}

// Direction is the direction of a migration script.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// MigrationScript is a discovered up/down script inside a compose directory.
type MigrationScript struct {
	Filename  string
	Path      string
	Version   Version
	Direction Direction
}

// DeploymentState is the durable, host-side record of a package's installed
// version and applied/failed migration history. Persisted as deployment.state.json.
type DeploymentState struct {
	Version Version   `json:"Version"`
	Updated time.Time `json:"Updated"`
	Up      []Version `json:"Up"`
	Failed  []Version `json:"Failed"`
}

// HasUp reports whether v is recorded as a successfully applied up-script version.
func (s DeploymentState) HasUp(v Version) bool {
	for _, u := range s.Up {
		if u.Equal(v) {
			return true
		}
	}
	return false
}

// HasFailed reports whether v is recorded in the unresolved-failure set.
func (s DeploymentState) HasFailed(v Version) bool {
	for _, f := range s.Failed {
		if f.Equal(v) {
			return true
		}
	}
	return false
}

// UpdateStatus is the terminal outcome of an Engine.Update call.
type UpdateStatus string

const (
	StatusSuccess        UpdateStatus = "Success"
	StatusPartialSuccess UpdateStatus = "PartialSuccess"
	StatusFailed         UpdateStatus = "Failed"
)

// UpdateRequest asks the Engine to bring a package up to date, or to an
// explicit target version when Target is non-nil.
type UpdateRequest struct {
	Package Package
	Target  *Version
}

// UpdateResult is always returned by Engine.Update; it never panics on the
// success path and this is the sole carrier of failure information.
type UpdateResult struct {
	Status            UpdateStatus
	PreviousVersion   Version
	Version           Version
	ExecutedScripts   []string
	BackupID          string
	HealthCheck       *HealthCheck
	RecoveryPerformed bool
	Error             string
}

// HealthVerdict classifies the outcome of a post-start health evaluation.
type HealthVerdict string

const (
	HealthHealthy         HealthVerdict = "Healthy"
	HealthNonCritical     HealthVerdict = "NonCriticalFailure"
	HealthCriticalFailure HealthVerdict = "CriticalFailure"
)

// HealthCheck is the derived (not persisted) result of a Health Evaluator pass.
type HealthCheck struct {
	Verdict           HealthVerdict
	HealthyServices   []string
	UnhealthyServices []string
}

// CriticalFailure reports whether this health check requires a rollback attempt.
func (h HealthCheck) CriticalFailure() bool {
	return h.Verdict == HealthCriticalFailure
}

// BackupArtifact is a file on the host under the package's backups directory,
// annotated with the sidecar metadata recorded alongside it.
type BackupArtifact struct {
	File         string
	Version      Version
	PackageName  string
	CreatedDate  time.Time
	GitCommit    string
	GitTagExists bool
}

// RegistryEntry is the Registry's locally cached view of a package, answering
// Control API reads without a live mirror fetch.
type RegistryEntry struct {
	PackageName    string
	CurrentVersion Version
	LastChecked    time.Time
	LastStatus     string
	LastError      string
}
