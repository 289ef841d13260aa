package health

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/modelingevolution/autoupdater/pkg/compose"
	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/types"
)

func TestComposeCheckerHealthyWhenAllRunning(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.OnExec(`sudo docker compose -f "docker-compose.yml" ps --format json`, func(command, workingDir string) (executor.Result, error) {
		return executor.Result{Stdout: `{"Service":"web","State":"running","Health":"healthy"}
{"Service":"worker","State":"running","Health":""}`}, nil
	})
	driver := compose.New(exec, zerolog.Nop())
	checker := NewComposeChecker(driver, "/deploy/foo", []string{"docker-compose.yml"}, "foo", nil)

	result := checker.Check(ctx)
	if result.Verdict != types.HealthHealthy {
		t.Errorf("Verdict = %v, want Healthy", result.Verdict)
	}
}

func TestComposeCheckerNonCriticalFailureForNonCriticalService(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.OnExec(`sudo docker compose -f "docker-compose.yml" ps --format json`, func(command, workingDir string) (executor.Result, error) {
		return executor.Result{Stdout: `{"Service":"foo","State":"running","Health":"healthy"}
{"Service":"sidecar","State":"exited","Health":""}`}, nil
	})
	driver := compose.New(exec, zerolog.Nop())
	checker := NewComposeChecker(driver, "/deploy/foo", []string{"docker-compose.yml"}, "foo", nil)

	result := checker.Check(ctx)
	if result.Verdict != types.HealthNonCritical {
		t.Errorf("Verdict = %v, want NonCriticalFailure", result.Verdict)
	}
}

func TestComposeCheckerCriticalFailureWhenPackageServiceDown(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.OnExec(`sudo docker compose -f "docker-compose.yml" ps --format json`, func(command, workingDir string) (executor.Result, error) {
		return executor.Result{Stdout: `{"Service":"foo","State":"exited","Health":""}`}, nil
	})
	driver := compose.New(exec, zerolog.Nop())
	checker := NewComposeChecker(driver, "/deploy/foo", []string{"docker-compose.yml"}, "foo", nil)

	result := checker.Check(ctx)
	if result.Verdict != types.HealthCriticalFailure {
		t.Errorf("Verdict = %v, want CriticalFailure", result.Verdict)
	}
}

func TestComposeCheckerHonorsExplicitCriticalList(t *testing.T) {
	ctx := context.Background()
	exec := executor.NewInMemoryExecutor()
	exec.OnExec(`sudo docker compose -f "docker-compose.yml" ps --format json`, func(command, workingDir string) (executor.Result, error) {
		return executor.Result{Stdout: `{"Service":"db","State":"exited","Health":""}`}, nil
	})
	driver := compose.New(exec, zerolog.Nop())
	checker := NewComposeChecker(driver, "/deploy/foo", []string{"docker-compose.yml"}, "foo", []string{"db"})

	result := checker.Check(ctx)
	if result.Verdict != types.HealthCriticalFailure {
		t.Errorf("Verdict = %v, want CriticalFailure for configured critical service", result.Verdict)
	}
}
