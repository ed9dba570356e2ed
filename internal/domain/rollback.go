package domain

import "time"

// StepKind identifies one inverse operation in a rollback artifact.
type StepKind string

const (
	StepRestoreFile      StepKind = "restore_file"
	StepRestoreDirectory StepKind = "restore_directory"
	StepStartService     StepKind = "start_service"
	// StepManual documents an effect that cannot be undone automatically.
	// A non-empty artifact therefore never implies automatic recoverability.
	StepManual StepKind = "manual"
)

// RollbackArtifactID derives the artifact identifier for a change. The
// mapping is deterministic so a ChangeRecord can reference its artifact even
// though the artifact is generated only after the record is written.
func RollbackArtifactID(changeID string) string {
	return "rbk_" + changeID
}

// RollbackStep is a single inverse operation.
type RollbackStep struct {
	Kind     StepKind `json:"kind"`
	Target   string   `json:"target"`
	BackupID string   `json:"backup_id,omitempty"`
	Note     string   `json:"note,omitempty"`
}

// RollbackArtifact is the ordered inverse-operation sequence derived from a
// ChangeRecord. Steps undo effects in reverse forward order (last effect
// first). Generated exactly once per change record; may be applied zero or
// many times.
type RollbackArtifact struct {
	ID        string         `json:"id"`
	ChangeID  string         `json:"change_id"`
	Steps     []RollbackStep `json:"steps"`
	Script    string         `json:"script"`
	CreatedAt time.Time      `json:"created_at"`
}

// Automatic reports whether every step can be applied without human action.
func (a RollbackArtifact) Automatic() bool {
	for _, s := range a.Steps {
		if s.Kind == StepManual {
			return false
		}
	}
	return len(a.Steps) > 0
}
