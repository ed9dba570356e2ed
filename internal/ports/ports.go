// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// These interfaces form the contract between the execution coordinator and
// the infrastructure adapters (classifier, simulator, backup store, ledger,
// command runner). The coordinator depends only on abstractions, which keeps
// the safety pipeline testable with in-memory or temp-dir implementations.
package ports

import (
	"context"

	"github.com/doeshing/safecmd/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.safecmd/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// Classifier assigns a risk tier and reversibility class to raw command
// text. Classification never fails: unparseable input is classified
// fail-closed as CRITICAL with reversibility NONE. Pure function over the
// pattern store; safe to call concurrently.
type Classifier interface {
	Classify(commandText string) domain.RiskReport
}

// Simulator predicts the resource changes a command would cause without
// executing it. Simulation is idempotent and side-effect-free: it routes
// through a non-executing text interpreter, never the real command runner.
type Simulator interface {
	Simulate(commandText string) domain.PredictedChangeSet
}

// BackupManager captures restorable snapshots of resources a command is
// about to mutate. Snapshot is all-or-nothing: on partial failure it rolls
// back its own partial work and returns *domain.BackupFailure, so a command
// is never eligible for execution with incomplete backups.
type BackupManager interface {
	Snapshot(resources []domain.ResourceDescriptor, operation string) ([]domain.Backup, error)
	Restore(backupID string, force bool) (domain.RestoreResult, error)
	Get(backupID string) (domain.Backup, error)
	List() ([]domain.Backup, error)
	Prune(retentionDays int) ([]string, error)
}

// RollbackGenerator synthesizes an inverse action sequence from a completed
// change record and persists it as a durable artifact.
type RollbackGenerator interface {
	Generate(record domain.ChangeRecord, backups []domain.Backup) (domain.RollbackArtifact, error)
	Load(changeID string) (domain.RollbackArtifact, error)
}

// RollbackApplier executes a generated artifact best-effort: drifted
// resources are surfaced as conflicts rather than overwritten.
type RollbackApplier interface {
	Apply(artifact domain.RollbackArtifact) (domain.RestoreResult, error)
}

// Ledger is the append-only, durable audit log. It exposes no delete
// operation; retention expiry is a separately-audited job outside this
// interface.
type Ledger interface {
	Record(record domain.ChangeRecord) error
	RecordRefusal(refusal domain.Refusal) error
	Query(filter domain.ChangeFilter) (ChangeIterator, error)
	GetChange(changeID string) (domain.ChangeRecord, error)
}

// ChangeIterator is a lazy cursor over ledger entries ordered by timestamp
// ascending. Restart by issuing the query again.
type ChangeIterator interface {
	Next() bool
	Record() domain.ChangeRecord
	Err() error
	Close() error
}

// ProposalStore persists proposals between the propose and approve steps so
// approval can arrive asynchronously from a later process invocation.
type ProposalStore interface {
	SaveProposal(p domain.Proposal) error
	GetProposal(commandID string) (domain.Proposal, error)
	UpdateProposalState(commandID string, state domain.CommandState) error
	PendingProposals() ([]domain.Proposal, error)
}

// CommandExecutor runs shell commands in the configured shell environment.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (domain.ExecutionResult, error)
}

// RestorePointer is the thin pass-through to the OS-level checkpoint
// mechanism. Create returns domain.ErrRestorePointUnavailable when the
// mechanism is not configured or fails.
type RestorePointer interface {
	Create(ctx context.Context, description string) (domain.RestorePointRef, error)
	List(ctx context.Context) ([]domain.RestorePointRef, error)
}

// IntentResolver is the external natural-language-to-command collaborator.
// The engine consumes it through this narrow interface only.
type IntentResolver interface {
	Resolve(ctx context.Context, prompt string) (command string, explanation string, err error)
}

// Logger provides structured logging abstraction for the application layer.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
