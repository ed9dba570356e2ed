package domain

import "time"

// Outcome classifies how an executed command ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomePartial marks an action that applied some but not all of its
	// effects, such as a rollback with surfaced conflicts.
	OutcomePartial Outcome = "partial"
	// OutcomeUnknown marks a command that hit the execution timeout: the
	// process was abandoned mid-flight, so the resulting state is
	// unknown/partial and must not be assumed either way.
	OutcomeUnknown Outcome = "unknown"
)

// ChangeRecord is the permanent audit entry for one command's outcome.
// Records are append-only: once written, fields are never edited. A rollback
// execution produces its own ChangeRecord rather than touching the original.
//
// Invariant: for HIGH and CRITICAL commands BackupIDs is non-empty and every
// referenced backup was created strictly before ExecutedAt.
type ChangeRecord struct {
	ID            string        `json:"id"`
	CommandID     string        `json:"command_id"`
	CommandText   string        `json:"command_text"`
	Tier          RiskTier      `json:"tier"`
	Reversibility Reversibility `json:"reversibility"`
	BackupIDs     []string      `json:"backup_ids,omitempty"`
	BeforeSummary string        `json:"before_summary,omitempty"`
	AfterSummary  string        `json:"after_summary,omitempty"`
	Outcome       Outcome       `json:"outcome"`
	ExitCode      int           `json:"exit_code"`
	RollbackID    string        `json:"rollback_id,omitempty"`
	RestorePoint  string        `json:"restore_point,omitempty"`
	ExecutedAt    time.Time     `json:"executed_at"`
	RecordedAt    time.Time     `json:"recorded_at"`
}

// Refusal is the audit entry for a command that never executed: a deny-list
// block or a user rejection. Kept separate from ChangeRecord because no host
// state changed and no backup exists.
type Refusal struct {
	ID          string    `json:"id"`
	CommandID   string    `json:"command_id"`
	CommandText string    `json:"command_text"`
	Tier        RiskTier  `json:"tier"`
	Rule        string    `json:"rule,omitempty"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChangeFilter narrows ledger queries. Zero values mean "no constraint".
type ChangeFilter struct {
	Since    time.Time
	Until    time.Time
	Resource string
	Outcome  Outcome
	Limit    int
}
