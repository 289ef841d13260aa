package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelingevolution/autoupdater/pkg/api"
	"github.com/modelingevolution/autoupdater/pkg/backup"
	"github.com/modelingevolution/autoupdater/pkg/compose"
	"github.com/modelingevolution/autoupdater/pkg/config"
	"github.com/modelingevolution/autoupdater/pkg/engine"
	"github.com/modelingevolution/autoupdater/pkg/events"
	"github.com/modelingevolution/autoupdater/pkg/executor"
	"github.com/modelingevolution/autoupdater/pkg/gitmirror"
	"github.com/modelingevolution/autoupdater/pkg/log"
	"github.com/modelingevolution/autoupdater/pkg/metrics"
	"github.com/modelingevolution/autoupdater/pkg/registry"
	"github.com/modelingevolution/autoupdater/pkg/state"
	"github.com/modelingevolution/autoupdater/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "autoupdater",
	Short:   "Container deployment auto-updater",
	Long:    `autoupdater watches a set of version-controlled deployment repositories and safely applies new tagged releases by orchestrating compose, migration scripts, and backup/restore around each transition.`,
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"autoupdater version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "/etc/autoupdater/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)
}

var loadedConfig *config.Config

func initLogging() {
	configPath, _ := rootCmd.PersistentFlags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	loadedConfig = cfg

	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON || cfg.LogJSON,
	})
}

// hostGroup is one Remote Executor's worth of packages: every package
// whose Auth targets the same host shares one SSH connection, one git
// mirror, one compose driver, one state store, one backup manager, and
// one Engine, per §4.1's "one *ssh.Client per Package host."
type hostGroup struct {
	key      string
	packages []types.Package
}

func groupByHost(packages []types.Package) []hostGroup {
	order := make([]string, 0)
	byKey := make(map[string][]types.Package)
	for _, pkg := range packages {
		key := string(pkg.Auth.Kind) + "|" + pkg.Auth.User + "|" + pkg.Auth.Host
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], pkg)
	}

	groups := make([]hostGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, hostGroup{key: key, packages: byKey[key]})
	}
	return groups
}

func buildExecutor(ctx context.Context, pkg types.Package) (executor.Executor, error) {
	if pkg.Auth.Kind == "" {
		return executor.NewLocalExecutor(), nil
	}
	return executor.NewSSHExecutor(ctx, pkg.Auth)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := loadedConfig
	logger := log.Logger

	store, err := registry.NewStore(filepath.Dir(cfg.RegistryDbPath))
	if err != nil {
		return fmt.Errorf("open registry store: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	packages := cfg.ToPackages()
	groups := groupByHost(packages)

	reconcilers := make([]*registry.Reconciler, 0, len(groups))
	closers := make([]func() error, 0, len(groups))

	for _, group := range groups {
		exec, err := buildExecutor(ctx, group.packages[0])
		if err != nil {
			return fmt.Errorf("connect to host for packages %v: %w", packageNames(group.packages), err)
		}
		if closer, ok := exec.(interface{ Close() error }); ok {
			closers = append(closers, closer.Close)
		}

		mirror := gitmirror.New(exec, logger)
		composeDriver := compose.New(exec, logger)
		stateStore := state.New(exec)
		backupMgr := backup.New(exec, logger)
		eng := engine.New(exec, mirror, composeDriver, stateStore, backupMgr, broker, logger)

		rec := registry.New(group.packages, mirror, stateStore, eng, store, broker, logger, cfg.ReconcileInterval)
		rec.Start(ctx)
		reconcilers = append(reconcilers, rec)

		logger.Info().Strs("packages", packageNames(group.packages)).Msg("reconciler started for host group")
	}
	defer func() {
		for _, rec := range reconcilers {
			rec.Stop()
		}
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}()

	collector := metrics.NewCollector(reconcilers, broker)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(cfg.ControlAPIAddr, reconcilers, logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start control API: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Stop(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.ControlAPIAddr).Int("packages", len(packages)).Msg("autoupdater running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	return nil
}

func packageNames(packages []types.Package) []string {
	names := make([]string, 0, len(packages))
	for _, p := range packages {
		names = append(names, p.Name)
	}
	return names
}
