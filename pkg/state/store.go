package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/types"
)

// FileName is the fixed name of the persisted state file inside a
// package's compose directory.
const FileName = "deployment.state.json"

// ErrCorrupt wraps a JSON schema failure per the StateCorrupt error kind
// (§7): the caller should treat this as an Empty current version for
// planning purposes, log a warning, and proceed — Finalize will still
// write a well-formed file.
type ErrCorrupt struct {
	Path string
	Err  error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("state file %s is corrupt: %v", e.Path, e.Err)
}

func (e *ErrCorrupt) Unwrap() error { return e.Err }

// Store reads and writes deployment.state.json on the managed host
// through the Remote Executor. Concurrency: per-composeDir writes are
// serialized by the Engine's per-package lock — this Store assumes a
// single writer at a time and does no locking of its own (§4.6).
type Store struct {
	exec executor.Executor
}

// New returns a Store backed by exec.
func New(exec executor.Executor) *Store {
	return &Store{exec: exec}
}

func path(composeDir string) string {
	return composeDir + "/" + FileName
}

// Exists reports whether a state file is present for composeDir.
func (s *Store) Exists(ctx context.Context, composeDir string) (bool, error) {
	return s.exec.FileExists(ctx, path(composeDir))
}

// Read loads the state file. It returns (nil, nil) if the file is
// absent — that's not an error, it's "no deployment yet". Readers must
// tolerate missing Up/Failed keys (they default to nil slices, treated
// as empty).
func (s *Store) Read(ctx context.Context, composeDir string) (*types.DeploymentState, error) {
	p := path(composeDir)
	exists, err := s.exec.FileExists(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", p, err)
	}
	if !exists {
		return nil, nil
	}

	data, err := s.exec.ReadFile(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}

	var st types.DeploymentState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, &ErrCorrupt{Path: p, Err: err}
	}
	return &st, nil
}

// Write persists state, ensuring composeDir exists first. The underlying
// Executor.WriteFile is itself atomic (write-temp-then-rename), which is
// how this satisfies §8 property 3 without the Store managing temp
// files directly. All four JSON keys are always written, per §6.
func (s *Store) Write(ctx context.Context, composeDir string, st types.DeploymentState) error {
	if err := s.exec.MakeDir(ctx, composeDir); err != nil {
		return fmt.Errorf("ensure compose dir %s: %w", composeDir, err)
	}

	if st.Up == nil {
		st.Up = []types.Version{}
	}
	if st.Failed == nil {
		st.Failed = []types.Version{}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal deployment state: %w", err)
	}

	if err := s.exec.WriteFile(ctx, path(composeDir), data); err != nil {
		return fmt.Errorf("write %s: %w", path(composeDir), err)
	}
	return nil
}
