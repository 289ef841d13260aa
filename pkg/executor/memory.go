package executor

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// ExecFunc lets a test script respond to a specific command instead of the
// default "succeed with empty output".
type ExecFunc func(command, workingDir string) (Result, error)

// InMemoryExecutor is a scripted fake satisfying Executor, used by every
// other component's unit tests so none of them need a live host. Files
// live in a flat in-memory map; commands default to a zero-exit no-op
// unless a matching ExecFunc is registered via OnExec.
type InMemoryExecutor struct {
	mu           sync.Mutex
	files        map[string][]byte
	execHandlers map[string]ExecFunc
	arch         string
	calls        []string
}

// NewInMemoryExecutor returns an empty in-memory executor defaulting to x64.
func NewInMemoryExecutor() *InMemoryExecutor {
	return &InMemoryExecutor{
		files:        make(map[string][]byte),
		execHandlers: make(map[string]ExecFunc),
		arch:         "x64",
	}
}

// WithArch overrides the reported host architecture.
func (e *InMemoryExecutor) WithArch(arch string) *InMemoryExecutor {
	e.arch = arch
	return e
}

// SeedFile preloads a file as if it were already present on the host.
func (e *InMemoryExecutor) SeedFile(path string, data []byte) *InMemoryExecutor {
	e.files[path] = data
	return e
}

// OnExec registers a handler invoked whenever Exec is called with exactly
// this command string.
func (e *InMemoryExecutor) OnExec(command string, fn ExecFunc) {
	e.execHandlers[command] = fn
}

// Calls returns every command string passed to Exec, in order, for assertions.
func (e *InMemoryExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *InMemoryExecutor) Exec(_ context.Context, command string, workingDir string) (Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, command)
	handler, ok := e.execHandlers[command]
	e.mu.Unlock()

	if ok {
		return handler(command, workingDir)
	}
	return Result{Command: command, ExitCode: 0}, nil
}

func (e *InMemoryExecutor) FileExists(_ context.Context, p string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.files[p]
	return ok, nil
}

func (e *InMemoryExecutor) DirExists(_ context.Context, p string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix := strings.TrimSuffix(p, "/") + "/"
	for f := range e.files {
		if strings.HasPrefix(f, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (e *InMemoryExecutor) MakeDir(_ context.Context, _ string) error { return nil }

func (e *InMemoryExecutor) ReadFile(_ context.Context, p string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[p]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", p)
	}
	return data, nil
}

func (e *InMemoryExecutor) WriteFile(_ context.Context, p string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[p] = data
	return nil
}

func (e *InMemoryExecutor) ListFiles(_ context.Context, dir string, glob string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []string
	for f := range e.files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		rest := f[len(prefix):]
		if strings.Contains(rest, "/") {
			continue
		}
		if glob != "" {
			if ok, _ := path.Match(glob, rest); !ok {
				continue
			}
		}
		out = append(out, rest)
	}
	sort.Strings(out)
	return out, nil
}

func (e *InMemoryExecutor) IsExecutable(_ context.Context, p string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.files[p]
	return ok, nil
}

func (e *InMemoryExecutor) Architecture(_ context.Context) (string, error) {
	return e.arch, nil
}
