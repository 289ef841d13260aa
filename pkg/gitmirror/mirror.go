package gitmirror

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/types"
	"github.com/modelingevolution/autoupdater/pkg/version"
)

// Mirror drives the system `git` binary through the Remote Executor
// rather than linking a Go git implementation — no repository in the
// reference stack this system is built from imports one, and shelling a
// well-known CLI is the same pattern already used for compose and
// migration scripts (see DESIGN.md).
type Mirror struct {
	exec   executor.Executor
	logger zerolog.Logger
}

// New returns a Mirror driving git through exec.
func New(exec executor.Executor, logger zerolog.Logger) *Mirror {
	return &Mirror{exec: exec, logger: logger.With().Str("component", "gitmirror").Logger()}
}

// EnsureMirror clones repoUrl into localPath if absent, or verifies the
// existing checkout opens cleanly.
func (m *Mirror) EnsureMirror(ctx context.Context, repoUrl, localPath string) error {
	exists, err := m.exec.DirExists(ctx, localPath+"/.git")
	if err != nil {
		return fmt.Errorf("probe mirror %s: %w", localPath, err)
	}
	if exists {
		m.logger.Debug().Str("path", localPath).Msg("mirror already present")
		return nil
	}

	m.logger.Info().Str("repo", repoUrl).Str("path", localPath).Msg("cloning mirror")
	if err := m.exec.MakeDir(ctx, localPath); err != nil {
		return fmt.Errorf("create mirror dir %s: %w", localPath, err)
	}
	res, err := m.exec.Exec(ctx, fmt.Sprintf("git clone %s %s", shellQuote(repoUrl), shellQuote(localPath)), "")
	if err != nil {
		return fmt.Errorf("clone %s: %w", repoUrl, err)
	}
	if res.Failed() {
		return fmt.Errorf("clone %s: %s", repoUrl, res.Stderr)
	}
	return nil
}

// Fetch refreshes remote refs (tags included) for an existing mirror.
func (m *Mirror) Fetch(ctx context.Context, localPath string) error {
	res, err := m.exec.Exec(ctx, "git fetch --tags --force", localPath)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", localPath, err)
	}
	if res.Failed() {
		return fmt.Errorf("fetch %s: %s", localPath, res.Stderr)
	}
	return nil
}

// ListTags enumerates tags and pairs each with its parsed version. Tags
// that don't parse (per version.ParseTag) are discarded, not reported as
// errors — an unparseable tag is simply not a release candidate.
func (m *Mirror) ListTags(ctx context.Context, localPath string) ([]types.GitTagReference, error) {
	res, err := m.exec.Exec(ctx, "git tag --list", localPath)
	if err != nil {
		return nil, fmt.Errorf("list tags %s: %w", localPath, err)
	}
	if res.Failed() {
		return nil, fmt.Errorf("list tags %s: %s", localPath, res.Stderr)
	}

	var refs []types.GitTagReference
	for _, line := range strings.Split(res.Stdout, "\n") {
		tag := strings.TrimSpace(line)
		if tag == "" {
			continue
		}
		v := version.ParseTag(tag)
		if v.IsEmpty() {
			continue
		}
		refs = append(refs, types.GitTagReference{TagName: tag, Version: v})
	}
	return refs, nil
}

// Checkout hard-switches the mirror's working tree to tagName. The mirror
// is service-owned, so a dirty tree is treated as an unexpected error
// rather than something to reconcile.
func (m *Mirror) Checkout(ctx context.Context, localPath, tagName string) error {
	status, err := m.exec.Exec(ctx, "git status --porcelain", localPath)
	if err != nil {
		return fmt.Errorf("status %s: %w", localPath, err)
	}
	if strings.TrimSpace(status.Stdout) != "" {
		return fmt.Errorf("mirror %s has uncommitted changes, refusing checkout", localPath)
	}

	res, err := m.exec.Exec(ctx, "git checkout --force "+shellQuote(tagName), localPath)
	if err != nil {
		return fmt.Errorf("checkout %s@%s: %w", localPath, tagName, err)
	}
	if res.Failed() {
		return fmt.Errorf("checkout %s@%s: %s", localPath, tagName, res.Stderr)
	}
	m.logger.Info().Str("path", localPath).Str("tag", tagName).Msg("checked out tag")
	return nil
}

// HeadCommit returns the full SHA of the mirror's current HEAD.
func (m *Mirror) HeadCommit(ctx context.Context, localPath string) (string, error) {
	res, err := m.exec.Exec(ctx, "git rev-parse HEAD", localPath)
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD %s: %w", localPath, err)
	}
	if res.Failed() {
		return "", fmt.Errorf("rev-parse HEAD %s: %s", localPath, res.Stderr)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// TagExists reports whether tagName is a known tag in the mirror.
func (m *Mirror) TagExists(ctx context.Context, localPath, tagName string) (bool, error) {
	res, err := m.exec.Exec(ctx, "git tag --list "+shellQuote(tagName), localPath)
	if err != nil {
		return false, fmt.Errorf("tag --list %s: %w", localPath, err)
	}
	if res.Failed() {
		return false, fmt.Errorf("tag --list %s: %s", localPath, res.Stderr)
	}
	return strings.TrimSpace(res.Stdout) == tagName, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
