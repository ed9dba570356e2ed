package domain

import "time"

// Backup is a durable pre-execution snapshot of one resource. It is owned
// exclusively by the backup manager; change records reference backups by ID
// and never copy them. A backup is retained until an explicit user-initiated
// restore or retention-policy prune, never silently deleted.
type Backup struct {
	ID          string             `json:"id"`
	Resource    ResourceDescriptor `json:"resource"`
	Operation   string             `json:"operation,omitempty"`
	PayloadPath string             `json:"payload_path"`
	SHA256      string             `json:"sha256"`
	SizeBytes   int64              `json:"size_bytes"`
	CreatedAt   time.Time          `json:"created_at"`
}

// RestoreResult summarises a restore or rollback application. Conflicts are
// resources whose current content diverged from the snapshot after the
// original command ran; they are surfaced, never silently overwritten.
type RestoreResult struct {
	Restored  []string `json:"restored,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
	Manual    []string `json:"manual,omitempty"`
}

// Clean reports whether the restore completed without conflicts or manual
// follow-up steps.
func (r RestoreResult) Clean() bool {
	return len(r.Conflicts) == 0 && len(r.Manual) == 0
}
