package migration

import (
	"context"
	"fmt"
	"regexp"

	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/types"
	"github.com/modelingevolution/autoupdater/pkg/version"
)

// filenameRegexp is the migration script filename grammar from §6:
// `^(up|down)-(v?\d+\.\d+\.\d+(-[A-Za-z0-9.]+)?)\.sh$`. Direction and
// version are fully determined by the filename; any other name is
// ignored by discovery.
var filenameRegexp = regexp.MustCompile(`^(up|down)-(v?\d+\.\d+\.\d+(?:-[A-Za-z0-9.]+)?)\.sh$`)

// ParseFilename is the pure validation operation §4.5 calls out
// separately: it reports whether filename matches the grammar and, if so,
// its direction and version.
func ParseFilename(filename string) (types.MigrationScript, bool) {
	m := filenameRegexp.FindStringSubmatch(filename)
	if m == nil {
		return types.MigrationScript{}, false
	}

	dir := types.DirectionUp
	if m[1] == "down" {
		dir = types.DirectionDown
	}

	v := version.Parse(m[2])
	if v.IsEmpty() {
		return types.MigrationScript{}, false
	}

	return types.MigrationScript{Filename: filename, Version: v, Direction: dir}, true
}

// Discover lists every up-*.sh/down-*.sh script in dir and parses each
// via ParseFilename, discarding non-matching names.
func Discover(ctx context.Context, exec executor.Executor, dir string) ([]types.MigrationScript, error) {
	names, err := exec.ListFiles(ctx, dir, "*.sh")
	if err != nil {
		return nil, fmt.Errorf("list scripts in %s: %w", dir, err)
	}

	var scripts []types.MigrationScript
	for _, name := range names {
		script, ok := ParseFilename(name)
		if !ok {
			continue
		}
		script.Path = dir + "/" + name
		scripts = append(scripts, script)
	}
	return scripts, nil
}
