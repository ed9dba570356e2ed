package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/safecmd/assets"
	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/pkg/filesystem"
	"github.com/doeshing/safecmd/internal/ports"
)

// FileLoader loads YAML configuration from ~/.safecmd/config.yaml
// (overridable via SAFECMD_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider. A missing config file is seeded from
// the embedded defaults and is not an error.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.resolvePath()
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return domain.Config{}, fmt.Errorf("create config dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if err := os.WriteFile(path, assets.DefaultConfigYAML, domain.SecureFilePermissions); err != nil {
				return domain.Config{}, fmt.Errorf("write default config: %w", err)
			}
			data = assets.DefaultConfigYAML
		} else {
			return domain.Config{}, err
		}
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("parse config: %w", err)
	}

	return hydrateDefaults(cfg), nil
}

// Save persists the configuration back to the config file.
func (l *FileLoader) Save(cfg domain.Config) error {
	path := l.resolvePath()
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, domain.SecureFilePermissions)
}

// Reset rewrites the config file from the embedded defaults and returns the
// resulting configuration.
func (l *FileLoader) Reset() (domain.Config, error) {
	path := l.resolvePath()
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return domain.Config{}, fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, assets.DefaultConfigYAML, domain.SecureFilePermissions); err != nil {
		return domain.Config{}, fmt.Errorf("write default config: %w", err)
	}
	var cfg domain.Config
	if err := yaml.Unmarshal(assets.DefaultConfigYAML, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("parse default config: %w", err)
	}
	return hydrateDefaults(cfg), nil
}

// Path returns the resolved config file location.
func (l *FileLoader) Path() string {
	return l.resolvePath()
}

func (l *FileLoader) resolvePath() string {
	if l.overridePath != "" {
		return ExpandPath(l.overridePath)
	}
	if custom := os.Getenv("SAFECMD_CONFIG"); custom != "" {
		return ExpandPath(custom)
	}
	return filepath.Join(filesystem.StateDir(), "config.yaml")
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	state := filesystem.StateDir()
	if cfg.Security.RulesFile == "" {
		cfg.Security.RulesFile = filepath.Join(state, "rules.yaml")
	}
	if cfg.Backups.Root == "" {
		cfg.Backups.Root = filepath.Join(state, "backups")
	}
	if cfg.Backups.RetentionDays <= 0 {
		cfg.Backups.RetentionDays = domain.DefaultBackupRetentionDays
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = filepath.Join(state, "ledger", "changes.db")
	}
	if cfg.Rollback.Dir == "" {
		cfg.Rollback.Dir = filepath.Join(state, "rollback")
	}
	if cfg.Execution.TimeoutSeconds <= 0 {
		cfg.Execution.TimeoutSeconds = int(domain.DefaultExecutionTimeout.Seconds())
	}
	if cfg.RestorePoints.IndexFile == "" {
		cfg.RestorePoints.IndexFile = filepath.Join(state, "restore_points.json")
	}

	cfg.Security.RulesFile = ExpandPath(cfg.Security.RulesFile)
	cfg.Backups.Root = ExpandPath(cfg.Backups.Root)
	cfg.Ledger.Path = ExpandPath(cfg.Ledger.Path)
	cfg.Rollback.Dir = ExpandPath(cfg.Rollback.Dir)
	cfg.RestorePoints.IndexFile = ExpandPath(cfg.RestorePoints.IndexFile)
	return cfg
}

// ExpandPath resolves a leading ~/ against the user home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(filesystem.UserHomeDir(), path[2:])
	}
	return path
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
