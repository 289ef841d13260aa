package compose

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/modelingevolution/autoupdater/pkg/executor"
)

// Binding is the detected compose CLI invocation style.
type Binding string

const (
	BindingV2Subcommand Binding = "v2" // `docker compose ...`
	BindingV1Hyphenated Binding = "v1" // `docker-compose ...`
)

// Driver knows the compose CLI binding for a host and builds/runs
// up/down/pull/ps commands against a selected set of compose files. All
// invocations are prefixed with sudo — a fixed policy of this driver, not
// a per-call option (§4.4).
type Driver struct {
	exec    executor.Executor
	logger  zerolog.Logger
	mu      sync.Mutex
	binding Binding // empty until first DetectBinding call
}

// New returns a Driver for the given host executor.
func New(exec executor.Executor, logger zerolog.Logger) *Driver {
	return &Driver{exec: exec, logger: logger.With().Str("component", "compose").Logger()}
}

// DetectBinding probes `docker compose version` then `docker-compose
// --version`, caching the winner for the process lifetime. If both
// probes fail it defaults to the v2 form, so the operator sees a clean
// "command not found" rather than a silent misdetection.
func (d *Driver) DetectBinding(ctx context.Context) Binding {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.binding != "" {
		return d.binding
	}

	if res, err := d.exec.Exec(ctx, "docker compose version", ""); err == nil && !res.Failed() {
		d.binding = BindingV2Subcommand
		return d.binding
	}
	if res, err := d.exec.Exec(ctx, "docker-compose --version", ""); err == nil && !res.Failed() {
		d.binding = BindingV1Hyphenated
		return d.binding
	}

	d.logger.Warn().Msg("neither docker compose nor docker-compose probed successfully, defaulting to v2 form")
	d.binding = BindingV2Subcommand
	return d.binding
}

func (d *Driver) cli() string {
	if d.binding == BindingV1Hyphenated {
		return "docker-compose"
	}
	return "docker compose"
}

// FilesFor returns the subset of compose files in dir applicable to arch:
// always docker-compose.yml if present, plus docker-compose.<arch>.yml;
// any other architecture's overlay is excluded. Order is base-first,
// arch-overlay second (§4.4).
func (d *Driver) FilesFor(ctx context.Context, dir string, arch string) ([]string, error) {
	all, err := d.exec.ListFiles(ctx, dir, "docker-compose*.yml")
	if err != nil {
		return nil, fmt.Errorf("list compose files in %s: %w", dir, err)
	}

	var base string
	var overlay string
	for _, f := range all {
		switch f {
		case "docker-compose.yml":
			base = f
		case fmt.Sprintf("docker-compose.%s.yml", arch):
			overlay = f
		}
	}

	var out []string
	if base != "" {
		out = append(out, base)
	}
	if overlay != "" {
		out = append(out, overlay)
	}
	return out, nil
}

func fileFlags(files []string) string {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, `-f "%s" `, f)
	}
	return strings.TrimSpace(b.String())
}

// Up runs `<compose> -f ... up -d` in dir.
func (d *Driver) Up(ctx context.Context, dir string, files []string) (executor.Result, error) {
	return d.run(ctx, dir, fmt.Sprintf("%s up -d", fileFlags(files)))
}

// Down runs `<compose> -f ... down` in dir.
func (d *Driver) Down(ctx context.Context, dir string, files []string) (executor.Result, error) {
	return d.run(ctx, dir, fmt.Sprintf("%s down", fileFlags(files)))
}

// Pull runs `<compose> -f ... pull` in dir.
func (d *Driver) Pull(ctx context.Context, dir string, files []string) (executor.Result, error) {
	return d.run(ctx, dir, fmt.Sprintf("%s pull", fileFlags(files)))
}

// Restart is Down followed by Up — never the compose `restart` verb,
// because `restart` does not re-apply changed compose files, which is
// exactly the situation a file-selection change (new arch overlay,
// rollback to an older tag) puts us in.
func (d *Driver) Restart(ctx context.Context, dir string, files []string) (executor.Result, error) {
	if res, err := d.Down(ctx, dir, files); err != nil || res.Failed() {
		return res, err
	}
	return d.Up(ctx, dir, files)
}

// Status runs `<compose> -f ... ps`.
func (d *Driver) Status(ctx context.Context, dir string, files []string) (executor.Result, error) {
	return d.run(ctx, dir, fmt.Sprintf("%s ps", fileFlags(files)))
}

// StatusJSON runs `<compose> -f ... ps --format json`, the machine-
// readable form the Health Evaluator parses to classify service state
// (§4.8) instead of scraping the human-oriented ps table.
func (d *Driver) StatusJSON(ctx context.Context, dir string, files []string) (executor.Result, error) {
	return d.run(ctx, dir, fmt.Sprintf("%s ps --format json", fileFlags(files)))
}

// ProjectList runs `<compose> ls --format json`.
func (d *Driver) ProjectList(ctx context.Context, dir string) (executor.Result, error) {
	return d.run(ctx, dir, "ls --format json")
}

func (d *Driver) run(ctx context.Context, dir string, sub string) (executor.Result, error) {
	d.DetectBinding(ctx)
	cmd := fmt.Sprintf("sudo %s %s", d.cli(), sub)
	d.logger.Debug().Str("dir", dir).Str("cmd", cmd).Msg("running compose command")
	return d.exec.Exec(ctx, cmd, dir)
}
