/*
Package health implements the Health Evaluator (C8): it judges whether a
package's running containers are in a state the Update Engine can accept
as a finished transition.

ComposeChecker runs `compose ps --format json` and classifies the whole
service set per §4.8 — Healthy, NonCriticalFailure, or CriticalFailure —
against a package's CriticalServices allowlist (defaulting to the
package's own name when that list is empty). The Update Engine enters
recovery only on CriticalFailure; a non-critical service being down does
not block a transition, and the update finishes as PartialSuccess.

	driver := compose.New(exec, logger)
	checker := health.NewComposeChecker(driver, composeDir, files, "myapp", pkg.CriticalServices)
	result := checker.Check(ctx)
	if result.CriticalFailure() {
		// Engine enters Recover
	}
*/
package health
