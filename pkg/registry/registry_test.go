package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelingevolution/autoupdater/pkg/backup"
	"github.com/modelingevolution/autoupdater/pkg/compose"
	engineeng "github.com/modelingevolution/autoupdater/pkg/engine"
	"github.com/modelingevolution/autoupdater/pkg/events"
	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/gitmirror"
	"github.com/modelingevolution/autoupdater/pkg/log"
	"github.com/modelingevolution/autoupdater/pkg/state"
	"github.com/modelingevolution/autoupdater/pkg/types"
	"github.com/modelingevolution/autoupdater/pkg/version"
)

const (
	mirrorPath = "/mirrors/foo"
	composeDir = mirrorPath + "/deploy"
)

func testPackage(autoApply bool) types.Package {
	return types.Package{
		Name:          "foo",
		RepositoryURL: "git@example.com:acme/foo.git",
		MirrorPath:    mirrorPath,
		ComposeSubdir: "deploy",
		AutoApply:     autoApply,
	}
}

func newTestReconciler(t *testing.T, autoApply bool) (*Reconciler, *executor.InMemoryExecutor) {
	t.Helper()
	exec := executor.NewInMemoryExecutor()
	exec.SeedFile(mirrorPath+"/.git/HEAD", nil)
	exec.SeedFile(composeDir+"/docker-compose.yml", nil)
	exec.SeedFile(composeDir+"/deployment.state.json",
		[]byte(`{"Version":"1.0.0","Updated":"2024-01-01T00:00:00Z","Up":[],"Failed":[]}`))
	exec.OnExec("git tag --list", func(command, workingDir string) (executor.Result, error) {
		return executor.Result{Stdout: "v1.0.0\nv1.1.0\n"}, nil
	})
	exec.OnExec(`sudo docker compose -f "docker-compose.yml" ps --format json`,
		func(command, workingDir string) (executor.Result, error) {
			return executor.Result{Stdout: `{"Service":"foo","State":"running","Health":""}` + "\n"}, nil
		})
	exec.SeedFile(composeDir+"/up-1.1.0.sh", nil)

	mirror := gitmirror.New(exec, log.Logger)
	composeDriver := compose.New(exec, log.Logger)
	stateStore := state.New(exec)
	backupMgr := backup.New(exec, log.Logger)
	broker := events.NewBroker()
	eng := engineeng.New(exec, mirror, composeDriver, stateStore, backupMgr, broker, log.Logger)

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := New([]types.Package{testPackage(autoApply)}, mirror, stateStore, eng, store, broker, log.Logger, 0)
	return r, exec
}

func TestStoreUpsertAndGet(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	entry := types.RegistryEntry{PackageName: "foo", CurrentVersion: version.Parse("1.0.0"), LastStatus: "Success"}
	require.NoError(t, store.Upsert(entry))

	got, err := store.Get("foo")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "foo", got.PackageName)
	assert.True(t, got.CurrentVersion.Equal(version.Parse("1.0.0")))
}

func TestStoreGetMissingReturnsNil(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreListReturnsAllEntries(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Upsert(types.RegistryEntry{PackageName: "foo"}))
	require.NoError(t, store.Upsert(types.RegistryEntry{PackageName: "bar"}))

	entries, err := store.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReconcileOnePublishesUpgradeAvailableWithoutAutoApply(t *testing.T) {
	ctx := context.Background()
	r, exec := newTestReconciler(t, false)

	require.NoError(t, r.reconcileOne(ctx, r.packages[0]))

	entry, err := r.Entry("foo")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.CurrentVersion.Equal(version.Parse("1.0.0")), "without AutoApply the cached version stays at the installed one")

	for _, c := range exec.Calls() {
		assert.NotContains(t, c, "down", "no update should have run without AutoApply")
	}
}

func TestReconcileOneAutoAppliesWhenFlagSet(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReconciler(t, true)

	require.NoError(t, r.reconcileOne(ctx, r.packages[0]))

	entry, err := r.Entry("foo")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.CurrentVersion.Equal(version.Parse("1.1.0")), "AutoApply should have driven the package to the newest tag")
	assert.Equal(t, string(types.StatusSuccess), entry.LastStatus)
}

func TestTriggerUpdateReturnsBusyWhenAlreadyInFlight(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReconciler(t, false)
	r.markInFlight("foo")

	_, busy, found := r.TriggerUpdate(ctx, "foo")

	assert.True(t, found)
	assert.True(t, busy)
}

func TestTriggerUpdateReturnsNotFoundForUnknownPackage(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestReconciler(t, false)

	_, busy, found := r.TriggerUpdate(ctx, "unknown")

	assert.False(t, found)
	assert.False(t, busy)
}
