package domain

import "time"

// File permission constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
)

// Timeout and duration constants
const (
	// DefaultExecutionTimeout bounds a supervised command run. On timeout
	// the change record is marked unknown/partial, never success.
	DefaultExecutionTimeout = 5 * time.Minute
	// DefaultRestorePointTimeout bounds the OS checkpoint call.
	DefaultRestorePointTimeout = 60 * time.Second
)

// Retention and display limits
const (
	// DefaultBackupRetentionDays is how long backups are kept before the
	// explicit prune job may remove them.
	DefaultBackupRetentionDays = 30
	// DefaultChangeListLimit is the default number of ledger entries shown.
	DefaultChangeListLimit = 20
)
