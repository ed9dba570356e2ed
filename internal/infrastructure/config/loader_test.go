package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSeedsDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	loader := NewFileLoader(path)

	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)

	require.FileExists(t, path)
	require.Equal(t, "1", cfg.ConfigFormatVersion)
	require.NotEmpty(t, cfg.Backups.Root)
	require.NotEmpty(t, cfg.Ledger.Path)
	require.Greater(t, cfg.Backups.RetentionDays, 0)
}

func TestLoadHydratesMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("config_format_version: \"1\"\n"), 0o600))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, cfg.Security.RulesFile)
	require.NotEmpty(t, cfg.Rollback.Dir)
	require.Positive(t, cfg.Execution.TimeoutSeconds)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security: ["), 0o600))

	_, err := NewFileLoader(path).Load(context.Background())
	require.Error(t, err)
}
