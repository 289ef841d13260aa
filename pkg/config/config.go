// Package config loads the process configuration document (§6.1): a
// single YAML file naming the packages this instance watches and the
// ambient knobs (log level, registry DB path, reconcile interval,
// Control API address). Of these, only the log settings have CLI flag
// overrides (--log-level, --log-json); the rest come from the file alone.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/modelingevolution/autoupdater/pkg/types"
)

// Config is the root of the YAML configuration document. RegistryDbPath
// names the registry database file; the store is opened in that path's
// directory under the fixed name registry.db, so a different base name is
// not used.
type Config struct {
	LogLevel          string          `yaml:"logLevel"`
	LogJSON           bool            `yaml:"logJSON"`
	RegistryDbPath    string          `yaml:"registryDbPath"`
	ReconcileInterval time.Duration   `yaml:"-"`
	RawInterval       string          `yaml:"reconcileInterval"`
	ControlAPIAddr    string          `yaml:"controlApiAddr"`
	Packages          []PackageConfig `yaml:"packages"`
}

// PackageConfig is one entry of the packages list.
type PackageConfig struct {
	Name             string     `yaml:"name"`
	RepositoryURL    string     `yaml:"repositoryUrl"`
	MirrorPath       string     `yaml:"mirrorPath"`
	ComposeSubdir    string     `yaml:"composeSubdir"`
	FriendlyName     string     `yaml:"friendlyName"`
	CriticalServices []string   `yaml:"criticalServices"`
	AutoApply        bool       `yaml:"autoApply"`
	Auth             AuthConfig `yaml:"auth"`
}

// AuthConfig mirrors types.AuthConfig in YAML-tagged form.
type AuthConfig struct {
	Kind           string `yaml:"kind"`
	User           string `yaml:"user"`
	Host           string `yaml:"host"`
	Password       string `yaml:"password"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
	Passphrase     string `yaml:"passphrase"`
}

// Defaults applied to any field the document leaves unset.
const (
	DefaultRegistryDbPath    = "/var/lib/autoupdater/registry.db"
	DefaultReconcileInterval = 30 * time.Second
	DefaultControlAPIAddr    = "127.0.0.1:8090"
	DefaultLogLevel          = "info"
)

// Load reads and parses the YAML document at path, applying defaults for
// any field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RegistryDbPath == "" {
		cfg.RegistryDbPath = DefaultRegistryDbPath
	}
	if cfg.ControlAPIAddr == "" {
		cfg.ControlAPIAddr = DefaultControlAPIAddr
	}
	cfg.ReconcileInterval = DefaultReconcileInterval
	if cfg.RawInterval != "" {
		d, err := time.ParseDuration(cfg.RawInterval)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: reconcileInterval: %w", path, err)
		}
		cfg.ReconcileInterval = d
	}

	for i, pkg := range cfg.Packages {
		if pkg.Name == "" {
			return nil, fmt.Errorf("parse config %s: packages[%d] missing name", path, i)
		}
		if pkg.RepositoryURL == "" {
			return nil, fmt.Errorf("parse config %s: package %q missing repositoryUrl", path, pkg.Name)
		}
	}

	return &cfg, nil
}

// ToPackages converts the document's package list into domain types.Package values.
func (c *Config) ToPackages() []types.Package {
	out := make([]types.Package, 0, len(c.Packages))
	for _, p := range c.Packages {
		out = append(out, types.Package{
			Name:             p.Name,
			RepositoryURL:    p.RepositoryURL,
			MirrorPath:       p.MirrorPath,
			ComposeSubdir:    p.ComposeSubdir,
			FriendlyName:     p.FriendlyName,
			CriticalServices: p.CriticalServices,
			AutoApply:        p.AutoApply,
			Auth: types.AuthConfig{
				Kind:           types.AuthKind(p.Auth.Kind),
				User:           p.Auth.User,
				Host:           p.Auth.Host,
				Password:       p.Auth.Password,
				PrivateKeyPath: p.Auth.PrivateKeyPath,
				Passphrase:     p.Auth.Passphrase,
			},
		})
	}
	return out
}
