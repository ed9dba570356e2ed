package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coordinator's refusal and deferral paths.
var (
	// ErrValidationBlocked marks a deny-list match. It is a deliberate
	// refusal, not a failure: no state changed and no retry can help.
	ErrValidationBlocked = errors.New("command blocked by deny-list rule")

	// ErrRestorePointUnavailable defers a CRITICAL execution when the
	// OS-level checkpoint mechanism is down. The command stays approved
	// and is surfaced as blocked-pending-restore-point.
	ErrRestorePointUnavailable = errors.New("restore point mechanism unavailable")

	ErrProposalNotFound = errors.New("proposal not found")
	ErrNotAwaitingApproval = errors.New("proposal is not awaiting approval")
)

// BackupFailure means a snapshot could not be completed. The backup
// manager's own partial work has already been rolled back and execution
// never starts.
type BackupFailure struct {
	Resource string
	Err      error
}

func (e *BackupFailure) Error() string {
	return fmt.Sprintf("backup of %s failed: %v", e.Resource, e.Err)
}

func (e *BackupFailure) Unwrap() error { return e.Err }

// ExecutionFailure means the command ran and failed or partially applied.
// It is recorded in the ledger, never retried automatically.
type ExecutionFailure struct {
	ChangeID string
	Outcome  Outcome
	Err      error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution failed (%s, change %s): %v", e.Outcome, e.ChangeID, e.Err)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

// RollbackFailure means inverse steps could not be fully applied. It
// escalates to manual intervention and is never auto-retried, since
// re-applying a partially-applied inverse can compound damage.
type RollbackFailure struct {
	ChangeID string
	Step     RollbackStep
	Err      error
}

func (e *RollbackFailure) Error() string {
	return fmt.Sprintf("rollback of change %s failed at %s %s: %v", e.ChangeID, e.Step.Kind, e.Step.Target, e.Err)
}

func (e *RollbackFailure) Unwrap() error { return e.Err }
