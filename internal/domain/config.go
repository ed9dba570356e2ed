package domain

import "time"

// Config is the engine configuration persisted at ~/.safecmd/config.yaml.
type Config struct {
	ConfigFormatVersion string               `yaml:"config_format_version"`
	Security            SecuritySettings     `yaml:"security"`
	Backups             BackupSettings       `yaml:"backups"`
	Ledger              LedgerSettings       `yaml:"ledger"`
	Rollback            RollbackSettings     `yaml:"rollback"`
	Execution           ExecutionSettings    `yaml:"execution"`
	RestorePoints       RestorePointSettings `yaml:"restore_points"`
}

// SecuritySettings locates the pattern-store rule file.
type SecuritySettings struct {
	RulesFile string `yaml:"rules_file"`
}

// BackupSettings controls the snapshot store.
type BackupSettings struct {
	Root          string `yaml:"root"`
	RetentionDays int    `yaml:"retention_days"`
}

// LedgerSettings locates the append-only change ledger database.
type LedgerSettings struct {
	Path string `yaml:"path"`
}

// RollbackSettings locates generated rollback artifacts.
type RollbackSettings struct {
	Dir string `yaml:"dir"`
}

// ExecutionSettings controls the supervised command runner.
type ExecutionSettings struct {
	Shell          string `yaml:"shell"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the execution timeout as a duration.
func (e ExecutionSettings) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return DefaultExecutionTimeout
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// RestorePointSettings configures the pass-through to the OS checkpoint
// mechanism. Empty CreateCommand means the mechanism is unavailable on this
// host; CRITICAL executions are then held rather than silently downgraded.
type RestorePointSettings struct {
	CreateCommand string `yaml:"create_command"`
	ListCommand   string `yaml:"list_command"`
	IndexFile     string `yaml:"index_file"`
}
