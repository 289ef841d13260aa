package health

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"

	"github.com/modelingevolution/autoupdater/pkg/compose"
	"github.com/modelingevolution/autoupdater/pkg/types"
)

// containerStatus is the subset of `docker compose ps --format json`
// fields this evaluator needs. Compose prints one JSON object per line
// (NDJSON), not a single array, for both the v1 and v2 bindings.
type containerStatus struct {
	Service string `json:"Service"`
	State   string `json:"State"`
	Health  string `json:"Health"`
}

func (c containerStatus) running() bool {
	return strings.EqualFold(c.State, "running")
}

// healthy reports whether the container counts as healthy: a declared
// healthcheck must report "healthy"; absent one, "running" is enough.
func (c containerStatus) healthy() bool {
	if !c.running() {
		return false
	}
	if c.Health == "" {
		return true
	}
	return strings.EqualFold(c.Health, "healthy")
}

// ComposeChecker classifies a package's running services against its
// CriticalServices allowlist (§4.8), returning a types.HealthCheck that
// distinguishes critical from non-critical failures.
type ComposeChecker struct {
	Driver      *compose.Driver
	ComposeDir  string
	Files       []string
	PackageName string
	Critical    []string
}

// NewComposeChecker returns a checker for composeDir's running services.
// If critical is empty, PackageName alone is treated as the critical
// service, per §4.8's open-question resolution.
func NewComposeChecker(driver *compose.Driver, composeDir string, files []string, packageName string, critical []string) *ComposeChecker {
	return &ComposeChecker{
		Driver:      driver,
		ComposeDir:  composeDir,
		Files:       files,
		PackageName: packageName,
		Critical:    critical,
	}
}

func (c *ComposeChecker) criticalSet() map[string]bool {
	set := make(map[string]bool)
	if len(c.Critical) == 0 {
		set[c.PackageName] = true
		return set
	}
	for _, name := range c.Critical {
		set[name] = true
	}
	return set
}

// Check queries compose ps and classifies the result per §4.8.
func (c *ComposeChecker) Check(ctx context.Context) types.HealthCheck {
	res, err := c.Driver.StatusJSON(ctx, c.ComposeDir, c.Files)
	if err != nil || res.Failed() {
		return types.HealthCheck{
			Verdict:           types.HealthCriticalFailure,
			UnhealthyServices: []string{"(compose ps failed)"},
		}
	}

	critical := c.criticalSet()
	var healthyNames, unhealthyNames []string
	criticalFailed := false

	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var status containerStatus
		if err := json.Unmarshal([]byte(line), &status); err != nil {
			continue
		}
		if status.healthy() {
			healthyNames = append(healthyNames, status.Service)
			continue
		}
		unhealthyNames = append(unhealthyNames, status.Service)
		if critical[status.Service] {
			criticalFailed = true
		}
	}

	verdict := types.HealthHealthy
	switch {
	case criticalFailed:
		verdict = types.HealthCriticalFailure
	case len(unhealthyNames) > 0:
		verdict = types.HealthNonCritical
	}

	return types.HealthCheck{
		Verdict:           verdict,
		HealthyServices:   healthyNames,
		UnhealthyServices: unhealthyNames,
	}
}
