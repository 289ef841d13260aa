package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/modelingevolution/autoupdater/pkg/engine"
	"github.com/modelingevolution/autoupdater/pkg/events"
	"github.com/modelingevolution/autoupdater/pkg/gitmirror"
	"github.com/modelingevolution/autoupdater/pkg/state"
	"github.com/modelingevolution/autoupdater/pkg/types"
	"github.com/modelingevolution/autoupdater/pkg/version"
)

// DefaultInterval is the reconciliation period §4.10 specifies as the default.
const DefaultInterval = 30 * time.Second

// Reconciler holds the immutable set of configured packages and runs the
// background loop that fetches each one's mirror, compares the newest tag
// against its installed version, publishes an UpgradeAvailable event when
// the tag is newer, and then (per the package's AutoApply flag) runs an
// Engine.Update.
type Reconciler struct {
	packages []types.Package
	mirror   *gitmirror.Mirror
	states   *state.Store
	engine   *engine.Engine
	store    *Store
	broker   *events.Broker
	logger   zerolog.Logger
	interval time.Duration

	mu       sync.RWMutex
	inFlight map[string]bool
	stopCh   chan struct{}
}

// New builds a Reconciler over a fixed set of packages. interval <= 0 falls
// back to DefaultInterval.
func New(packages []types.Package, mirror *gitmirror.Mirror, states *state.Store, eng *engine.Engine, store *Store, broker *events.Broker, logger zerolog.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		packages: packages,
		mirror:   mirror,
		states:   states,
		engine:   eng,
		store:    store,
		broker:   broker,
		logger:   logger,
		interval: interval,
		inFlight: make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop in the background.
func (r *Reconciler) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop stops the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Int("packages", len(r.packages)).Dur("interval", r.interval).Msg("reconciler started")

	r.reconcileAll(ctx)
	for {
		select {
		case <-ticker.C:
			r.reconcileAll(ctx)
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) reconcileAll(ctx context.Context) {
	for _, pkg := range r.packages {
		pkg := pkg
		if r.markInFlight(pkg.Name) {
			go func() {
				defer r.clearInFlight(pkg.Name)
				if err := r.reconcileOne(ctx, pkg); err != nil {
					r.logger.Error().Err(err).Str("package", pkg.Name).Msg("reconciliation cycle failed")
				}
			}()
		} else {
			r.logger.Debug().Str("package", pkg.Name).Msg("skipping tick, update already in flight")
		}
	}
}

func (r *Reconciler) markInFlight(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[name] {
		return false
	}
	r.inFlight[name] = true
	return true
}

func (r *Reconciler) clearInFlight(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, name)
}

// reconcileOne fetches a package's mirror, resolves its current and newest
// versions, refreshes the registry cache, and applies the AutoApply policy.
func (r *Reconciler) reconcileOne(ctx context.Context, pkg types.Package) error {
	log := r.logger.With().Str("package", pkg.Name).Logger()

	if err := r.mirror.EnsureMirror(ctx, pkg.RepositoryURL, pkg.MirrorPath); err != nil {
		return r.recordError(pkg, fmt.Errorf("ensure mirror: %w", err))
	}
	if err := r.mirror.Fetch(ctx, pkg.MirrorPath); err != nil {
		return r.recordError(pkg, fmt.Errorf("fetch: %w", err))
	}

	tags, err := r.mirror.ListTags(ctx, pkg.MirrorPath)
	if err != nil {
		return r.recordError(pkg, fmt.Errorf("list tags: %w", err))
	}
	versions := make([]version.Version, 0, len(tags))
	for _, t := range tags {
		versions = append(versions, t.Version)
	}
	latest := version.Max(versions)

	current := version.Empty
	st, err := r.states.Read(ctx, pkg.ComposeDir())
	if err != nil {
		return r.recordError(pkg, fmt.Errorf("read deployment state: %w", err))
	}
	if st != nil {
		current = st.Version
	}

	entry := types.RegistryEntry{
		PackageName:    pkg.Name,
		CurrentVersion: current,
		LastChecked:    time.Now(),
		LastStatus:     "Reconciled",
	}
	if err := r.store.Upsert(entry); err != nil {
		log.Error().Err(err).Msg("failed to persist registry entry")
	}

	if latest.IsEmpty() || !latest.GreaterThan(current) {
		return nil
	}

	log.Info().Str("current", current.String()).Str("available", latest.String()).Msg("upgrade available")
	r.broker.Publish(&events.Event{
		ID:      uuid.NewString(),
		Type:    events.EventUpgradeDetected,
		Package: pkg.Name,
		Message: fmt.Sprintf("upgrade available: %s -> %s", current.String(), latest.String()),
		Metadata: map[string]string{
			"currentVersion":   current.String(),
			"availableVersion": latest.String(),
		},
	})

	if !pkg.AutoApply {
		return nil
	}

	result := r.engine.Update(ctx, types.UpdateRequest{Package: pkg})
	r.recordResult(pkg, result)
	return nil
}

func (r *Reconciler) recordError(pkg types.Package, err error) error {
	entry := types.RegistryEntry{
		PackageName: pkg.Name,
		LastChecked: time.Now(),
		LastStatus:  "Error",
		LastError:   err.Error(),
	}
	if prior, getErr := r.store.Get(pkg.Name); getErr == nil && prior != nil {
		entry.CurrentVersion = prior.CurrentVersion
	}
	if upsertErr := r.store.Upsert(entry); upsertErr != nil {
		r.logger.Error().Err(upsertErr).Str("package", pkg.Name).Msg("failed to persist registry entry after error")
	}
	return err
}

// recordResult refreshes the registry cache with the terminal outcome of an
// engine-driven update, satisfying §4.10's "refreshed ... after every engine
// result" requirement.
func (r *Reconciler) recordResult(pkg types.Package, result types.UpdateResult) {
	entry := types.RegistryEntry{
		PackageName:    pkg.Name,
		CurrentVersion: result.Version,
		LastChecked:    time.Now(),
		LastStatus:     string(result.Status),
		LastError:      result.Error,
	}
	if err := r.store.Upsert(entry); err != nil {
		r.logger.Error().Err(err).Str("package", pkg.Name).Msg("failed to persist registry entry after update")
	}
}

// TriggerUpdate enqueues an on-demand update for name, honored by the Control
// API's POST /update/{name}. It returns immediately with an opaque update id
// once the package's lock is claimed; the engine's eventual result is
// delivered through the event broker and reflected in the registry cache,
// never through this call's return value. busy=true means an update for this
// package was already in flight and nothing new was started.
func (r *Reconciler) TriggerUpdate(ctx context.Context, name string) (updateID string, busy bool, found bool) {
	pkg, ok := r.packageByName(name)
	if !ok {
		return "", false, false
	}
	if !r.markInFlight(name) {
		return "", true, true
	}

	updateID = uuid.NewString()
	go func() {
		defer r.clearInFlight(name)
		// Detached from the triggering request's context: an HTTP handler's
		// context is canceled the moment it returns, and this update must
		// outlive that by design (§4.11 returns "started" immediately).
		result := r.engine.Update(context.Background(), types.UpdateRequest{Package: pkg})
		r.recordResult(pkg, result)
	}()
	return updateID, false, true
}

// UpgradeInfo answers the Control API's GET /upgrades/{name}: the cached
// current version plus a live read of the newest tag in the mirror. Unlike
// the reconciliation tick, this does not Fetch first — it reports against
// whatever the mirror already holds, so a single query never blocks on a
// network round trip the periodic loop will perform anyway.
func (r *Reconciler) UpgradeInfo(ctx context.Context, name string) (current, available version.Version, found bool, err error) {
	pkg, ok := r.packageByName(name)
	if !ok {
		return version.Empty, version.Empty, false, nil
	}

	entry, err := r.store.Get(name)
	if err != nil {
		return version.Empty, version.Empty, true, err
	}
	if entry != nil {
		current = entry.CurrentVersion
	}

	tags, err := r.mirror.ListTags(ctx, pkg.MirrorPath)
	if err != nil {
		return current, version.Empty, true, fmt.Errorf("list tags: %w", err)
	}
	versions := make([]version.Version, 0, len(tags))
	for _, t := range tags {
		versions = append(versions, t.Version)
	}
	return current, version.Max(versions), true, nil
}

// Packages returns the configured package set.
func (r *Reconciler) Packages() []types.Package {
	return r.packages
}

func (r *Reconciler) packageByName(name string) (types.Package, bool) {
	for _, p := range r.packages {
		if p.Name == name {
			return p, true
		}
	}
	return types.Package{}, false
}

// Entry returns the cached RegistryEntry for name, if one has been recorded.
func (r *Reconciler) Entry(name string) (*types.RegistryEntry, error) {
	return r.store.Get(name)
}

// Entries returns the cached RegistryEntry for every configured package.
func (r *Reconciler) Entries() ([]types.RegistryEntry, error) {
	return r.store.List()
}
