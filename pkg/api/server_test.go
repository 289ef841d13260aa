package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelingevolution/autoupdater/pkg/backup"
	"github.com/modelingevolution/autoupdater/pkg/compose"
	"github.com/modelingevolution/autoupdater/pkg/engine"
	"github.com/modelingevolution/autoupdater/pkg/events"
	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/gitmirror"
	"github.com/modelingevolution/autoupdater/pkg/log"
	"github.com/modelingevolution/autoupdater/pkg/registry"
	"github.com/modelingevolution/autoupdater/pkg/state"
	"github.com/modelingevolution/autoupdater/pkg/types"
)

const (
	mirrorPath = "/mirrors/foo"
	composeDir = mirrorPath + "/deploy"
)

func newTestServer(t *testing.T) (*Server, *executor.InMemoryExecutor) {
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
	eng := engine.New(exec, mirror, composeDriver, stateStore, backupMgr, broker, log.Logger)

	store, err := registry.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pkg := types.Package{Name: "foo", RepositoryURL: "git@example.com:acme/foo.git", MirrorPath: mirrorPath, ComposeSubdir: "deploy"}
	reg := registry.New([]types.Package{pkg}, mirror, stateStore, eng, store, broker, log.Logger, 0)

	return NewServer("127.0.0.1:0", []*registry.Reconciler{reg}, log.Logger), exec
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlePackagesListsConfiguredPackages(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/packages")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Packages []packageSummary `json:"packages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Packages, 1)
	assert.Equal(t, "foo", body.Packages[0].Name)
	assert.Equal(t, "-", body.Packages[0].CurrentVersion, "no reconciliation has run yet, so the cache is empty")
}

func TestHandleUpgradeReportsAvailableVersion(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/upgrades/foo")

	require.Equal(t, http.StatusOK, rec.Code)
	var body upgradeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "v1.1.0", body.AvailableVersion)
	assert.True(t, body.UpgradeAvailable)
}

func TestHandleUpgradeReturnsNotFoundForUnknownPackage(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/upgrades/bogus")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpdateStartsAndReturnsAccepted(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodPost, "/update/foo")

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body updateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "started", body.Status)
	assert.NotEmpty(t, body.UpdateID)
}

func TestHandleUpdateAllStartsEveryConfiguredPackage(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodPost, "/update-all")

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body struct {
		UpdatesStarted []string `json:"updatesStarted"`
		Skipped        []string `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"foo"}, body.UpdatesStarted)
	assert.Empty(t, body.Skipped)
}

func TestHandleHealthAlwaysOK(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadyReflectsRegistryReachability(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}
