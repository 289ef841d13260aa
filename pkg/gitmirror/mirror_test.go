package gitmirror

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/modelingevolution/autoupdater/pkg/executor"
)

func TestEnsureMirrorClonesWhenAbsent(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	m := New(exec, zerolog.Nop())

	if err := m.EnsureMirror(ctx, "git@example.com:acme/app.git", "/mirrors/app"); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, c := range exec.Calls() {
		if c == "git clone 'git@example.com:acme/app.git' '/mirrors/app'" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a git clone call, got %v", exec.Calls())
	}
}

func TestEnsureMirrorSkipsCloneWhenPresent(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.SeedFile("/mirrors/app/.git/HEAD", nil)
	m := New(exec, zerolog.Nop())

	if err := m.EnsureMirror(ctx, "git@example.com:acme/app.git", "/mirrors/app"); err != nil {
		t.Fatal(err)
	}
	for _, c := range exec.Calls() {
		if c != "" && c[:len("git clone")] == "git clone" {
			t.Errorf("should not have cloned an existing mirror, got call %q", c)
		}
	}
}

func TestListTagsDiscardsUnparseable(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.OnExec("git tag --list", func(command, workingDir string) (executor.Result, error) {
		return executor.Result{Stdout: "v1.0.0\nnightly\nv1.1.0\n"}, nil
	})
	m := New(exec, zerolog.Nop())

	refs, err := m.ListTags(ctx, "/mirrors/app")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("ListTags = %v, want 2 parseable tags", refs)
	}
}

func TestCheckoutRefusesDirtyTree(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.OnExec("git status --porcelain", func(command, workingDir string) (executor.Result, error) {
		return executor.Result{Stdout: " M some/file.go\n"}, nil
	})
	m := New(exec, zerolog.Nop())

	if err := m.Checkout(ctx, "/mirrors/app", "v1.1.0"); err == nil {
		t.Fatal("expected checkout to refuse a dirty tree")
	}
}

func TestHeadCommitReturnsTrimmedSHA(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.OnExec("git rev-parse HEAD", func(command, workingDir string) (executor.Result, error) {
		return executor.Result{Stdout: "abc123\n"}, nil
	})
	m := New(exec, zerolog.Nop())

	sha, err := m.HeadCommit(ctx, "/mirrors/app")
	if err != nil {
		t.Fatal(err)
	}
	if sha != "abc123" {
		t.Errorf("HeadCommit = %q, want abc123", sha)
	}
}

func TestTagExists(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.OnExec("git tag --list 'v1.0.0'", func(command, workingDir string) (executor.Result, error) {
		return executor.Result{Stdout: "v1.0.0\n"}, nil
	})
	m := New(exec, zerolog.Nop())

	ok, err := m.TagExists(ctx, "/mirrors/app", "v1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected TagExists to return true")
	}
}
