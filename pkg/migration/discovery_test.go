package migration

import (
	"context"
	"testing"

	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/types"
)

func TestParseFilenameGrammar(t *testing.T) {
	cases := []struct {
		name      string
		wantOK    bool
		wantDir   types.Direction
		wantVer   string
	}{
		{"up-1.2.3.sh", true, types.DirectionUp, "1.2.3"},
		{"down-v1.2.3.sh", true, types.DirectionDown, "v1.2.3"},
		{"up-1.2.3-rc.1.sh", true, types.DirectionUp, "1.2.3-rc.1"},
		{"README.md", false, "", ""},
		{"up-1.2.sh", false, "", ""},
		{"sideways-1.2.3.sh", false, "", ""},
	}
	for _, c := range cases {
		script, ok := ParseFilename(c.name)
		if ok != c.wantOK {
			t.Errorf("ParseFilename(%q) ok = %v, want %v", c.name, ok, c.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if script.Direction != c.wantDir {
			t.Errorf("ParseFilename(%q) direction = %v, want %v", c.name, script.Direction, c.wantDir)
		}
		if script.Version.String() != c.wantVer {
			t.Errorf("ParseFilename(%q) version = %v, want %v", c.name, script.Version, c.wantVer)
		}
	}
}

func TestDiscoverIgnoresNonMatchingNames(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.SeedFile("/deploy/foo/up-1.0.1.sh", nil)
	exec.SeedFile("/deploy/foo/down-1.0.0.sh", nil)
	exec.SeedFile("/deploy/foo/notes.sh", nil)

	scripts, err := Discover(ctx, exec, "/deploy/foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 2 {
		t.Fatalf("Discover = %v, want 2 scripts", scripts)
	}
}
