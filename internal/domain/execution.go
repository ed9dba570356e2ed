package domain

import "time"

// CommandState tracks a proposal through the coordinator's state machine.
type CommandState string

const (
	StateProposed         CommandState = "proposed"
	StateClassified       CommandState = "classified"
	StateBlocked          CommandState = "blocked"
	StateAwaitingApproval CommandState = "awaiting_approval"
	StateApproved         CommandState = "approved"
	StateBackingUp        CommandState = "backing_up"
	StateExecuting        CommandState = "executing"
	StateLogged           CommandState = "logged"
	StateBackupFailed     CommandState = "backup_failed"
	StateExecutionFailed  CommandState = "execution_failed"
	StateCancelled        CommandState = "cancelled"
)

// transitions is the allowed-transition table. Terminal states have no
// entry. Any non-terminal state may additionally fail into a terminal
// failure state; those edges are listed explicitly where they are legal.
var transitions = map[CommandState][]CommandState{
	StateProposed:         {StateClassified},
	StateClassified:       {StateBlocked, StateAwaitingApproval},
	StateAwaitingApproval: {StateApproved, StateCancelled},
	StateApproved:         {StateBackingUp, StateExecuting},
	StateBackingUp:        {StateExecuting, StateBackupFailed},
	StateExecuting:        {StateLogged, StateExecutionFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s CommandState) CanTransition(next CommandState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s CommandState) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// Proposal pairs an immutable Command with its evaluation results and the
// coordinator state. This is what persists across process restarts so that
// approval can arrive asynchronously from a later invocation.
type Proposal struct {
	Command    Command             `json:"command"`
	Report     RiskReport          `json:"report"`
	Prediction *PredictedChangeSet `json:"prediction,omitempty"`
	State      CommandState        `json:"state"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// ExecutionResult wraps details from the command executor.
type ExecutionResult struct {
	Ran      bool          `json:"ran"`
	DryRun   bool          `json:"dry_run"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// ApprovalOutcome is returned by the coordinator's approve operation.
type ApprovalOutcome struct {
	Proposal   Proposal            `json:"proposal"`
	Execution  *ExecutionResult    `json:"execution,omitempty"`
	Prediction *PredictedChangeSet `json:"prediction,omitempty"`
	Change     *ChangeRecord       `json:"change,omitempty"`
	Backups    []Backup            `json:"backups,omitempty"`
}
