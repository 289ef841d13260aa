package migration

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/types"
	"github.com/modelingevolution/autoupdater/pkg/version"
)

// Plan computes the ordered set of scripts to run for a transition from
// fromVersion to targetVersion, given the full set of discovered scripts
// and the previously-executed (Up) versions. Planner output depends only
// on these four inputs (§8 property 7): no clock, no I/O, no hidden state.
//
// Returns the ordered plan and whether any selected script's version is
// also present in failedVersions — the Engine treats that as a "resume"
// of a previously-failed transition.
func Plan(scripts []types.MigrationScript, fromVersion, targetVersion version.Version, executedVersions, failedVersions []version.Version) (plan []types.MigrationScript, resume bool) {
	if fromVersion.Equal(targetVersion) {
		return nil, false
	}

	executed := toSet(executedVersions)

	if targetVersion.GreaterThan(fromVersion) {
		for _, s := range scripts {
			if s.Direction != types.DirectionUp {
				continue
			}
			if !s.Version.GreaterThan(fromVersion) {
				continue
			}
			if s.Version.GreaterThan(targetVersion) {
				continue
			}
			if executed[s.Version.String()] {
				continue
			}
			plan = append(plan, s)
		}
		sort.Slice(plan, func(i, j int) bool { return plan[i].Version.LessThan(plan[j].Version) })
	} else {
		for _, s := range scripts {
			if s.Direction != types.DirectionDown {
				continue
			}
			if s.Version.GreaterThan(fromVersion) {
				continue
			}
			if !s.Version.GreaterThan(targetVersion) {
				continue
			}
			if !executed[s.Version.String()] {
				continue
			}
			plan = append(plan, s)
		}
		sort.Slice(plan, func(i, j int) bool { return plan[i].Version.GreaterThan(plan[j].Version) })
	}

	failed := toSet(failedVersions)
	for _, s := range plan {
		if failed[s.Version.String()] {
			resume = true
			break
		}
	}
	return plan, resume
}

func toSet(versions []version.Version) map[string]bool {
	set := make(map[string]bool, len(versions))
	for _, v := range versions {
		set[v.String()] = true
	}
	return set
}

// StepResult records the outcome of running a single script in a plan.
type StepResult struct {
	Script   types.MigrationScript
	ExitCode int
	Stderr   string
}

// Execute runs plan in order against dir through exec, as a privileged
// shell command, stopping at the first non-zero exit. It returns the
// steps that ran (including the failing one, if any) so the caller can
// update Up/Failed accordingly.
func Execute(ctx context.Context, exec executor.Executor, logger zerolog.Logger, dir string, plan []types.MigrationScript) (ran []StepResult, firstFailure *StepResult, err error) {
	for _, s := range plan {
		execOK, verr := exec.IsExecutable(ctx, s.Path)
		if verr != nil {
			return ran, nil, fmt.Errorf("check executable %s: %w", s.Path, verr)
		}
		if !execOK {
			return ran, nil, fmt.Errorf("script %s is not marked executable", s.Path)
		}

		logger.Info().Str("script", s.Filename).Str("version", s.Version.String()).Msg("running migration script")
		res, rerr := exec.Exec(ctx, "sudo "+s.Path, dir)
		if rerr != nil {
			return ran, nil, fmt.Errorf("run %s: %w", s.Filename, rerr)
		}

		step := StepResult{Script: s, ExitCode: res.ExitCode, Stderr: res.Stderr}
		ran = append(ran, step)

		if res.Failed() {
			logger.Error().Str("script", s.Filename).Int("exit_code", res.ExitCode).Str("stderr", res.Stderr).Msg("migration script failed")
			failed := step
			return ran, &failed, nil
		}
	}
	return ran, nil, nil
}
