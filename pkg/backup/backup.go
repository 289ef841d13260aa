package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/types"
	"github.com/modelingevolution/autoupdater/pkg/version"
	"github.com/rs/zerolog"
)

// ScriptName is the well-known backup-manager script a package may place
// in its compose directory. Its presence is the sole capability signal
// (§4.7) — there is no separate manifest flag for it.
const ScriptName = "backup-manager.sh"

// sidecarSuffix is appended to a backup file's own name to produce its
// metadata sidecar path.
const sidecarSuffix = ".meta.json"

// scriptResult is the JSON contract a backup-manager script writes to
// stdout for both create and restore invocations.
type scriptResult struct {
	File    string `json:"file"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// sidecar is the on-disk metadata schema next to a backup file (§6).
type sidecar struct {
	Version      string    `json:"version"`
	PackageName  string    `json:"packageName"`
	CreatedDate  time.Time `json:"createdDate"`
	BackupFile   string    `json:"backupFile"`
	GitCommit    string    `json:"gitCommit"`
	GitTagExists bool      `json:"gitTagExists"`
}

// Manager creates, restores and lists backup artifacts through the
// backup-manager script convention. When the script is absent, List
// returns no artifacts and no error, while Create and Restore return an
// "unsupported" error; Supported reports the capability up front.
type Manager struct {
	exec   executor.Executor
	logger zerolog.Logger
}

// New returns a Manager backed by exec.
func New(exec executor.Executor, logger zerolog.Logger) *Manager {
	return &Manager{exec: exec, logger: logger.With().Str("component", "backup").Logger()}
}

func scriptPath(composeDir string) string {
	return composeDir + "/" + ScriptName
}

// Supported reports whether composeDir declares backup capability.
func (m *Manager) Supported(ctx context.Context, composeDir string) (bool, error) {
	return m.exec.FileExists(ctx, scriptPath(composeDir))
}

// Create invokes the backup-manager script for the given package version
// and, on success, writes its metadata sidecar. gitCommit and
// gitTagExists describe the mirror-side state at the moment of capture;
// the Engine supplies them because only it has visibility into both the
// compose directory and the git mirror.
func (m *Manager) Create(ctx context.Context, composeDir, packageName string, v version.Version, gitCommit string, gitTagExists bool) (types.BackupArtifact, error) {
	ok, err := m.Supported(ctx, composeDir)
	if err != nil {
		return types.BackupArtifact{}, fmt.Errorf("probe backup capability: %w", err)
	}
	if !ok {
		return types.BackupArtifact{}, fmt.Errorf("backup: unsupported for %s", composeDir)
	}

	cmd := fmt.Sprintf("sudo ./%s create --version=%s", ScriptName, shellQuote(v.String()))
	res, err := m.exec.Exec(ctx, cmd, composeDir)
	if err != nil {
		return types.BackupArtifact{}, fmt.Errorf("run backup-manager create: %w", err)
	}
	if res.Failed() {
		return types.BackupArtifact{}, fmt.Errorf("backup-manager create exited %d: %s", res.ExitCode, res.Stderr)
	}

	var parsed scriptResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Stdout)), &parsed); err != nil {
		return types.BackupArtifact{}, fmt.Errorf("parse backup-manager output %q: %w", res.Stdout, err)
	}
	if parsed.Error != "" {
		return types.BackupArtifact{}, fmt.Errorf("backup-manager create: %s: %s", parsed.Error, parsed.Message)
	}
	if parsed.File == "" {
		return types.BackupArtifact{}, fmt.Errorf("backup-manager create: empty file in result")
	}

	commit := gitCommit
	if commit == "" {
		commit = "unknown"
	}
	artifact := types.BackupArtifact{
		File:         parsed.File,
		Version:      v,
		PackageName:  packageName,
		CreatedDate:  time.Now().UTC(),
		GitCommit:    commit,
		GitTagExists: gitTagExists,
	}

	side := sidecar{
		Version:      v.String(),
		PackageName:  packageName,
		CreatedDate:  artifact.CreatedDate,
		BackupFile:   parsed.File,
		GitCommit:    commit,
		GitTagExists: gitTagExists,
	}
	data, err := json.MarshalIndent(side, "", "  ")
	if err != nil {
		return types.BackupArtifact{}, fmt.Errorf("marshal backup sidecar: %w", err)
	}
	if err := m.exec.WriteFile(ctx, parsed.File+sidecarSuffix, data); err != nil {
		return types.BackupArtifact{}, fmt.Errorf("write backup sidecar: %w", err)
	}

	m.logger.Info().Str("package", packageName).Str("file", parsed.File).Msg("backup created")
	return artifact, nil
}

// Restore invokes the backup-manager script's restore command for a
// previously captured file. It returns the sidecar metadata (if any) so
// the Engine can decide whether to check out a recorded git tag — this
// package never touches the git mirror itself.
func (m *Manager) Restore(ctx context.Context, composeDir, file string) (*types.BackupArtifact, error) {
	ok, err := m.Supported(ctx, composeDir)
	if err != nil {
		return nil, fmt.Errorf("probe backup capability: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("backup: unsupported for %s", composeDir)
	}

	cmd := fmt.Sprintf("sudo ./%s restore --file=%s", ScriptName, shellQuote(file))
	res, err := m.exec.Exec(ctx, cmd, composeDir)
	if err != nil {
		return nil, fmt.Errorf("run backup-manager restore: %w", err)
	}
	if res.Failed() {
		return nil, fmt.Errorf("backup-manager restore exited %d: %s", res.ExitCode, res.Stderr)
	}

	var parsed scriptResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Stdout)), &parsed); err != nil {
		return nil, fmt.Errorf("parse backup-manager output %q: %w", res.Stdout, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("backup-manager restore: %s: %s", parsed.Error, parsed.Message)
	}

	artifact, err := m.readSidecar(ctx, file)
	if err != nil {
		m.logger.Warn().Err(err).Str("file", file).Msg("restore succeeded but sidecar unreadable")
		return nil, nil
	}
	return artifact, nil
}

// backupsDir is where a backup-manager script is expected to place its
// output files and their sidecars, relative to composeDir.
func backupsDir(composeDir string) string {
	return composeDir + "/backups"
}

// List reads every sidecar under composeDir's backups directory.
func (m *Manager) List(ctx context.Context, composeDir string) ([]types.BackupArtifact, error) {
	ok, err := m.Supported(ctx, composeDir)
	if err != nil {
		return nil, fmt.Errorf("probe backup capability: %w", err)
	}
	if !ok {
		return nil, nil
	}

	dir := backupsDir(composeDir)
	names, err := m.exec.ListFiles(ctx, dir, "*"+sidecarSuffix)
	if err != nil {
		return nil, fmt.Errorf("list backup sidecars: %w", err)
	}

	artifacts := make([]types.BackupArtifact, 0, len(names))
	for _, name := range names {
		full := dir + "/" + name
		data, err := m.exec.ReadFile(ctx, full)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", full).Msg("skipping unreadable sidecar")
			continue
		}
		var side sidecar
		if err := json.Unmarshal(data, &side); err != nil {
			m.logger.Warn().Err(err).Str("file", name).Msg("skipping malformed sidecar")
			continue
		}
		artifacts = append(artifacts, types.BackupArtifact{
			File:         side.BackupFile,
			Version:      version.Parse(side.Version),
			PackageName:  side.PackageName,
			CreatedDate:  side.CreatedDate,
			GitCommit:    side.GitCommit,
			GitTagExists: side.GitTagExists,
		})
	}
	return artifacts, nil
}

func (m *Manager) readSidecar(ctx context.Context, file string) (*types.BackupArtifact, error) {
	data, err := m.exec.ReadFile(ctx, file+sidecarSuffix)
	if err != nil {
		return nil, err
	}
	var side sidecar
	if err := json.Unmarshal(data, &side); err != nil {
		return nil, err
	}
	return &types.BackupArtifact{
		File:         side.BackupFile,
		Version:      version.Parse(side.Version),
		PackageName:  side.PackageName,
		CreatedDate:  side.CreatedDate,
		GitCommit:    side.GitCommit,
		GitTagExists: side.GitTagExists,
	}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
