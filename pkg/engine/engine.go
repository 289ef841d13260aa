package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/modelingevolution/autoupdater/pkg/backup"
	"github.com/modelingevolution/autoupdater/pkg/compose"
	"github.com/modelingevolution/autoupdater/pkg/events"
	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/gitmirror"
	"github.com/modelingevolution/autoupdater/pkg/health"
	"github.com/modelingevolution/autoupdater/pkg/migration"
	"github.com/modelingevolution/autoupdater/pkg/state"
	"github.com/modelingevolution/autoupdater/pkg/types"
	"github.com/modelingevolution/autoupdater/pkg/version"
)

// Engine is the Update Engine (C9): the per-package state machine that
// plans, executes and (on failure) recovers a version transition. Only
// one Update may run per package at a time — Engine serializes on a
// lock keyed by package name, the same per-entity-lock shape the
// reference corpus's reconciler uses at a coarser (whole-cycle) grain.
type Engine struct {
	exec    executor.Executor
	mirror  *gitmirror.Mirror
	compose *compose.Driver
	state   *state.Store
	backup  *backup.Manager
	broker  *events.Broker
	logger  zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns an Engine wiring together every component it orchestrates.
func New(exec executor.Executor, mirror *gitmirror.Mirror, composeDriver *compose.Driver, stateStore *state.Store, backupMgr *backup.Manager, broker *events.Broker, logger zerolog.Logger) *Engine {
	return &Engine{
		exec:    exec,
		mirror:  mirror,
		compose: composeDriver,
		state:   stateStore,
		backup:  backupMgr,
		broker:  broker,
		logger:  logger.With().Str("component", "engine").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(packageName string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[packageName]
	if !ok {
		l = &sync.Mutex{}
		e.locks[packageName] = l
	}
	return l
}

func (e *Engine) publish(eventType events.EventType, packageName, message string) {
	e.publishWithMetadata(eventType, packageName, message, nil)
}

func (e *Engine) publishWithMetadata(eventType events.EventType, packageName, message string, metadata map[string]string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Package:   packageName,
		Message:   message,
		Metadata:  metadata,
	})
}

// Update brings pkg up to targetVersion (or the latest available tag, if
// req.Target is nil), running the state machine described in §4.9. It
// never returns a Go error for expected business outcomes — every
// outcome, success or failure, is carried in the returned UpdateResult.
func (e *Engine) Update(ctx context.Context, req types.UpdateRequest) types.UpdateResult {
	pkg := req.Package
	lock := e.lockFor(pkg.Name)
	lock.Lock()
	defer lock.Unlock()

	log := e.logger.With().Str("package", pkg.Name).Logger()
	e.publish(events.EventUpdateStarted, pkg.Name, "")

	result := e.run(ctx, log, pkg, req.Target)

	e.publishWithMetadata(events.EventUpdateFinished, pkg.Name, string(result.Status), map[string]string{
		"status":            string(result.Status),
		"recoveryPerformed": strconv.FormatBool(result.RecoveryPerformed),
	})
	return result
}

func (e *Engine) run(ctx context.Context, log zerolog.Logger, pkg types.Package, explicitTarget *version.Version) types.UpdateResult {
	composeDir := pkg.ComposeDir()

	current, up, failed := e.readCurrentState(ctx, composeDir, log)

	if ctx.Err() != nil {
		return failResult(current, current, stepErr(KindCancelled, "Mirror", ctx.Err(), "").Error())
	}
	if err := e.mirror.EnsureMirror(ctx, pkg.RepositoryURL, pkg.MirrorPath); err != nil {
		return failResult(current, current, stepErr(KindTransportFailed, "EnsureMirror", err, "").Error())
	}
	if err := e.mirror.Fetch(ctx, pkg.MirrorPath); err != nil {
		return failResult(current, current, stepErr(KindTransportFailed, "Fetch", err, "").Error())
	}
	tags, err := e.mirror.ListTags(ctx, pkg.MirrorPath)
	if err != nil {
		return failResult(current, current, stepErr(KindCommandFailed, "ListTags", err, "").Error())
	}
	tagByVersion := make(map[string]string, len(tags))
	for _, t := range tags {
		tagByVersion[versionKey(t.Version)] = t.TagName
	}

	target := resolveTarget(current, tags, explicitTarget)

	if target.Equal(current) {
		log.Info().Str("version", current.String()).Msg("already at target version, no-op")
		e.publish(events.EventStepCompleted, pkg.Name, "Resolved:noop")
		return types.UpdateResult{Status: types.StatusSuccess, PreviousVersion: current, Version: current}
	}

	log.Info().Str("from", current.String()).Str("to", target.String()).Msg("update target resolved")
	e.publish(events.EventUpgradeDetected, pkg.Name, fmt.Sprintf("%s -> %s", current.String(), target.String()))

	arch, err := e.exec.Architecture(ctx)
	if err != nil {
		return failResult(current, current, stepErr(KindTransportFailed, "Architecture", err, "").Error())
	}

	scripts, err := migration.Discover(ctx, e.exec, composeDir)
	if err != nil {
		return failResult(current, current, stepErr(KindCommandFailed, "DiscoverMigrations", err, "").Error())
	}
	plan, _ := migration.Plan(scripts, current, target, up, failed)

	preFiles, err := e.compose.FilesFor(ctx, composeDir, arch)
	if err != nil {
		return failResult(current, current, stepErr(KindCommandFailed, "SelectComposeFiles", err, "").Error())
	}

	// Backup
	var backupID string
	haveBackup := false
	if supported, serr := e.backup.Supported(ctx, composeDir); serr == nil && supported {
		headCommit, _ := e.mirror.HeadCommit(ctx, pkg.MirrorPath)
		tagExists := false
		if tagName, ok := tagByVersion[versionKey(current)]; ok {
			tagExists, _ = e.mirror.TagExists(ctx, pkg.MirrorPath, tagName)
		}
		artifact, berr := e.backup.Create(ctx, composeDir, pkg.Name, current, headCommit, tagExists)
		if berr != nil {
			return types.UpdateResult{
				Status:          types.StatusFailed,
				PreviousVersion: current,
				Version:         current,
				Error:           stepErr(KindCommandFailed, "BackupCreate", berr, "").Error(),
			}
		}
		backupID = artifact.File
		haveBackup = true
	}
	e.publish(events.EventStepCompleted, pkg.Name, "Backup")

	doRecover := func(reason string, failedVersion *version.Version) types.UpdateResult {
		return e.recover(ctx, log, pkg, composeDir, arch, current, tagByVersion, haveBackup, backupID, up, failed, reason, failedVersion)
	}

	// Stop
	if res, derr := e.compose.Down(ctx, composeDir, preFiles); derr != nil || res.Failed() {
		return doRecover(composeDownFailureMessage(derr, res), nil)
	}
	e.publish(events.EventStepCompleted, pkg.Name, "Stop")

	// Checkout
	tagName, ok := tagByVersion[versionKey(target)]
	if !ok {
		tagName = target.String()
	}
	if err := e.mirror.Checkout(ctx, pkg.MirrorPath, tagName); err != nil {
		return doRecover(stepErr(KindTransportFailed, "Checkout", err, "").Error(), nil)
	}

	// Migrate
	ran, firstFailure, merr := migration.Execute(ctx, e.exec, log, composeDir, plan)
	executedScripts := scriptNames(ran)
	if merr != nil {
		return doRecover(stepErr(KindCommandFailed, "Migrate", merr, "").Error(), nil)
	}
	if firstFailure != nil {
		fv := firstFailure.Script.Version
		up = append(up, succeededVersions(ran, fv)...)
		scriptErr := fmt.Errorf("%s exited %d", firstFailure.Script.Filename, firstFailure.ExitCode)
		return doRecover(stepErr(KindCommandFailed, "Migrate", scriptErr, firstFailure.Stderr).Error(), &fv)
	}
	up = append(up, succeededVersions(ran, version.Empty)...)
	e.publish(events.EventStepCompleted, pkg.Name, "Migrate")

	// Checkout+Start
	postFiles, err := e.compose.FilesFor(ctx, composeDir, arch)
	if err != nil {
		return doRecover(stepErr(KindCommandFailed, "SelectComposeFiles", err, "").Error(), nil)
	}
	if res, uerr := e.compose.Up(ctx, composeDir, postFiles); uerr != nil || res.Failed() {
		return doRecover(composeUpFailureMessage(uerr, res), nil)
	}
	e.publish(events.EventStepCompleted, pkg.Name, "Start")

	// HealthCheck
	checker := health.NewComposeChecker(e.compose, composeDir, postFiles, pkg.Name, pkg.CriticalServices)
	hc := checker.Check(ctx)
	e.publish(events.EventStepCompleted, pkg.Name, "HealthCheck")

	if hc.CriticalFailure() {
		return doRecover(stepErr(KindHealthCritical, "HealthCheck", fmt.Errorf("critical health check failure after start"), "").Error(), nil)
	}

	status := types.StatusSuccess
	if hc.Verdict == types.HealthNonCritical {
		status = types.StatusPartialSuccess
	}
	return e.finalize(ctx, log, composeDir, status, current, target, up, dropVersion(failed, target), executedScripts, backupID, &hc, false, "")
}

func (e *Engine) readCurrentState(ctx context.Context, composeDir string, log zerolog.Logger) (version.Version, []version.Version, []version.Version) {
	st, err := e.state.Read(ctx, composeDir)
	if err != nil {
		log.Warn().Err(err).Msg("deployment state unreadable, treating current version as empty")
		return version.Empty, nil, nil
	}
	if st == nil {
		return version.Empty, nil, nil
	}
	return st.Version, st.Up, st.Failed
}

// versionKey normalizes a Version for use as a map key, independent of the
// "v" prefix a tag name may carry — tagByVersion must match "1.1.0" against
// a tag parsed from "v1.1.0" since they're the same semantic version.
func versionKey(v version.Version) string {
	if v.IsEmpty() {
		return "-"
	}
	return fmt.Sprintf("%d.%d.%d-%s", v.Major(), v.Minor(), v.Patch(), v.PreRelease())
}

func resolveTarget(current version.Version, tags []types.GitTagReference, explicit *version.Version) version.Version {
	if explicit != nil {
		return *explicit
	}
	versions := make([]version.Version, 0, len(tags))
	for _, t := range tags {
		versions = append(versions, t.Version)
	}
	latest := version.Max(versions)
	if latest.GreaterThan(current) {
		return latest
	}
	return current
}

func (e *Engine) finalize(ctx context.Context, log zerolog.Logger, composeDir string, status types.UpdateStatus, previous, achieved version.Version, up, failed []version.Version, executed []string, backupID string, hc *types.HealthCheck, recoveryPerformed bool, errMsg string) types.UpdateResult {
	st := types.DeploymentState{
		Version: achieved,
		Updated: time.Now().UTC(),
		Up:      up,
		Failed:  failed,
	}
	if err := e.state.Write(ctx, composeDir, st); err != nil {
		log.Error().Err(err).Msg("failed to persist deployment state")
	}

	return types.UpdateResult{
		Status:            status,
		PreviousVersion:   previous,
		Version:           achieved,
		ExecutedScripts:   executed,
		BackupID:          backupID,
		HealthCheck:       hc,
		RecoveryPerformed: recoveryPerformed,
		Error:             errMsg,
	}
}

func (e *Engine) recover(ctx context.Context, log zerolog.Logger, pkg types.Package, composeDir, arch string, previous version.Version, tagByVersion map[string]string, haveBackup bool, backupID string, up, failed []version.Version, reason string, failedVersion *version.Version) types.UpdateResult {
	if failedVersion != nil {
		failed = addVersion(failed, *failedVersion)
	}

	if !haveBackup {
		log.Error().Str("reason", reason).Msg("update failed, no backup available, recovery not attempted")
		noBackup := stepErr(KindBackupUnavailable, "Recover", fmt.Errorf("%s (no recovery possible: no backup)", reason), "")
		return e.finalize(ctx, log, composeDir, types.StatusFailed, previous, previous, up, failed, nil, "", nil, false, noBackup.Error())
	}

	log.Error().Str("reason", reason).Msg("update failed, attempting recovery from backup")

	curFiles, _ := e.compose.FilesFor(ctx, composeDir, arch)
	if _, err := e.compose.Down(ctx, composeDir, curFiles); err != nil {
		log.Warn().Err(err).Msg("recovery: compose down failed, continuing")
	}

	restored, rerr := e.backup.Restore(ctx, composeDir, backupID)
	if rerr != nil {
		log.Error().Err(rerr).Msg("recovery: backup restore failed")
	}
	if restored != nil && restored.GitTagExists {
		if tagName, ok := tagByVersion[versionKey(previous)]; ok {
			if cerr := e.mirror.Checkout(ctx, pkg.MirrorPath, tagName); cerr != nil {
				log.Error().Err(cerr).Msg("recovery: checkout of previous tag failed")
			}
		}
	}

	prevFiles, _ := e.compose.FilesFor(ctx, composeDir, arch)
	if res, err := e.compose.Up(ctx, composeDir, prevFiles); err != nil || res.Failed() {
		log.Error().Err(err).Msg("recovery: compose up of previous version failed")
	}

	return e.finalize(ctx, log, composeDir, types.StatusFailed, previous, previous, up, failed, nil, backupID, nil, true, reason)
}

func composeDownFailureMessage(err error, res executor.Result) string {
	if err != nil {
		return stepErr(KindTransportFailed, "ComposeDown", err, "").Error()
	}
	return stepErr(KindCommandFailed, "ComposeDown", fmt.Errorf("exited %d", res.ExitCode), res.Stderr).Error()
}

func composeUpFailureMessage(err error, res executor.Result) string {
	if err != nil {
		return stepErr(KindTransportFailed, "ComposeUp", err, "").Error()
	}
	return stepErr(KindCommandFailed, "ComposeUp", fmt.Errorf("exited %d", res.ExitCode), res.Stderr).Error()
}

// stepErr builds a *StepError, truncating stderr per §7.
func stepErr(kind ErrorKind, step string, err error, stderr string) *StepError {
	return &StepError{Kind: kind, Step: step, Err: err, Stderr: stderr}
}

func scriptNames(ran []migration.StepResult) []string {
	names := make([]string, 0, len(ran))
	for _, r := range ran {
		names = append(names, r.Script.Filename)
	}
	return names
}

func succeededVersions(ran []migration.StepResult, excluding version.Version) []version.Version {
	out := make([]version.Version, 0, len(ran))
	for _, r := range ran {
		if !excluding.IsEmpty() && r.Script.Version.Equal(excluding) {
			continue
		}
		out = append(out, r.Script.Version)
	}
	return out
}

func addVersion(versions []version.Version, v version.Version) []version.Version {
	for _, existing := range versions {
		if existing.Equal(v) {
			return versions
		}
	}
	return append(versions, v)
}

func dropVersion(versions []version.Version, v version.Version) []version.Version {
	out := make([]version.Version, 0, len(versions))
	for _, existing := range versions {
		if existing.Equal(v) {
			continue
		}
		out = append(out, existing)
	}
	return out
}

func failResult(previous, achieved version.Version, errMsg string) types.UpdateResult {
	return types.UpdateResult{
		Status:          types.StatusFailed,
		PreviousVersion: previous,
		Version:         achieved,
		Error:           errMsg,
	}
}
