package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/modelingevolution/autoupdater/pkg/types"
)

var (
	composeDir = flag.String("compose-dir", "", "Path to a single package's compose directory (default: scan -root)")
	root       = flag.String("root", "/var/lib/autoupdater/mirrors", "Root directory to scan for deployment.state.json files")
	dryRun     = flag.Bool("dry-run", false, "Report corrupt state files without repairing them")
	repair     = flag.Bool("repair", false, "Reset corrupt deployment.state.json files to an empty valid state")
)

const stateFileName = "deployment.state.json"

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("autoupdater state tool - deployment.state.json validator/repair")
	log.Println("=================================================================")

	paths, err := findStateFiles()
	if err != nil {
		log.Fatalf("failed to scan for state files: %v", err)
	}
	if len(paths) == 0 {
		log.Println("no deployment.state.json files found")
		return
	}

	var corrupt int
	for _, p := range paths {
		if err := inspectAndRepair(p); err != nil {
			corrupt++
			log.Printf("⚠ %s: %v", p, err)
			continue
		}
	}

	log.Printf("\nScanned %d state file(s), %d corrupt", len(paths), corrupt)
	if corrupt > 0 && !*repair {
		log.Println("Re-run with -repair to reset corrupt files to an empty valid state.")
	}
}

func findStateFiles() ([]string, error) {
	if *composeDir != "" {
		return []string{filepath.Join(*composeDir, stateFileName)}, nil
	}

	var found []string
	err := filepath.Walk(*root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.Name() == stateFileName {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}

// inspectAndRepair implements §7's StateCorrupt recovery policy offline:
// a deployment.state.json that fails schema validation is, in the running
// process, treated as an Empty current version for planning. This tool
// lets an operator find such files ahead of time and, with -repair, write
// back a valid empty-state document (after backing up the original) so
// the file parses again. The repaired document records the Empty
// version, so the package is still treated as never-installed.
func inspectAndRepair(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}

	var state types.DeploymentState
	if err := json.Unmarshal(data, &state); err == nil {
		return nil
	} else if !*repair {
		return fmt.Errorf("invalid schema: %w", err)
	} else {
		log.Printf("invalid schema: %v", err)
	}

	if *dryRun {
		log.Printf("[DRY RUN] would repair %s", path)
		return nil
	}

	backupPath := path + ".backup"
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("backup before repair: %w", err)
	}
	log.Printf("✓ backed up corrupt file to %s", backupPath)

	empty, err := json.Marshal(types.DeploymentState{})
	if err != nil {
		return fmt.Errorf("marshal empty state: %w", err)
	}
	if err := os.WriteFile(path, empty, 0600); err != nil {
		return fmt.Errorf("write repaired state: %w", err)
	}
	log.Printf("✓ repaired %s to empty state", path)
	return nil
}
