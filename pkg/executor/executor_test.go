package executor

import (
	"context"
	"testing"
)

func TestInMemoryExecutorWriteThenReadFile(t *testing.T) {
	ctx := context.Background()
	e := NewInMemoryExecutor()

	if err := e.WriteFile(ctx, "/deploy/foo/deployment.state.json", []byte(`{"Version":"1.0.0"}`)); err != nil {
		t.Fatal(err)
	}

	got, err := e.ReadFile(ctx, "/deploy/foo/deployment.state.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"Version":"1.0.0"}` {
		t.Errorf("ReadFile = %q, want the written payload", got)
	}

	exists, _ := e.FileExists(ctx, "/deploy/foo/deployment.state.json")
	if !exists {
		t.Error("FileExists should report true after WriteFile")
	}

	missing, _ := e.FileExists(ctx, "/deploy/foo/missing.json")
	if missing {
		t.Error("FileExists should report false for a file never written")
	}
}

func TestInMemoryExecutorListFilesMatchesGlob(t *testing.T) {
	ctx := context.Background()
	e := NewInMemoryExecutor()
	e.SeedFile("/deploy/foo/up-1.0.1.sh", nil)
	e.SeedFile("/deploy/foo/up-1.1.0.sh", nil)
	e.SeedFile("/deploy/foo/down-1.0.0.sh", nil)
	e.SeedFile("/deploy/foo/README.md", nil)

	got, err := e.ListFiles(ctx, "/deploy/foo", "up-*.sh")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ListFiles = %v, want 2 up-*.sh matches", got)
	}
}

func TestInMemoryExecutorExecDefaultsToSuccess(t *testing.T) {
	ctx := context.Background()
	e := NewInMemoryExecutor()

	res, err := e.Exec(ctx, "echo hi", "/some/dir")
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed() {
		t.Error("unregistered command should default to exit 0")
	}
	if len(e.Calls()) != 1 || e.Calls()[0] != "echo hi" {
		t.Errorf("Calls() = %v, want [echo hi]", e.Calls())
	}
}

func TestInMemoryExecutorOnExecOverride(t *testing.T) {
	ctx := context.Background()
	e := NewInMemoryExecutor()
	e.OnExec("sudo docker compose up -d", func(command, workingDir string) (Result, error) {
		return Result{Command: command, ExitCode: 1, Stderr: "boom"}, nil
	})

	res, err := e.Exec(ctx, "sudo docker compose up -d", "/deploy/foo")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Failed() || res.Stderr != "boom" {
		t.Errorf("Exec result = %+v, want scripted failure", res)
	}
}
