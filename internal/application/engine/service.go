// Package engine implements the execution coordinator: the supervised
// pipeline that takes a proposed command through classification, dry-run
// prediction, approval, pre-execution backup, execution and ledger recording.
//
// The coordinator owns the proposal state machine. Adapters behind the ports
// interfaces do the actual work; this package only sequences them and
// enforces the safety invariants between steps.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/ports"
)

// Deps bundles the adapters the coordinator sequences.
type Deps struct {
	Config        domain.Config
	Classifier    ports.Classifier
	Simulator     ports.Simulator
	Backups       ports.BackupManager
	Rollback      ports.RollbackGenerator
	Applier       ports.RollbackApplier
	Ledger        ports.Ledger
	Proposals     ports.ProposalStore
	Runner        ports.CommandExecutor
	RestorePoints ports.RestorePointer
	Resolver      ports.IntentResolver
	Logger        ports.Logger
}

// Service is the execution coordinator. A single instance serializes the
// backup-execute-record window with execMu so concurrent approvals cannot
// interleave their snapshots and executions.
type Service struct {
	cfg       domain.Config
	classify  ports.Classifier
	simulate  ports.Simulator
	backups   ports.BackupManager
	rollback  ports.RollbackGenerator
	applier   ports.RollbackApplier
	ledger    ports.Ledger
	proposals ports.ProposalStore
	runner    ports.CommandExecutor
	restore   ports.RestorePointer
	resolver  ports.IntentResolver
	log       ports.Logger

	execMu sync.Mutex
	now    func() time.Time

	// statResource lets tests substitute filesystem existence checks.
	statResource func(path string) bool
}

// NewService creates the coordinator.
func NewService(deps Deps) *Service {
	return &Service{
		cfg:       deps.Config,
		classify:  deps.Classifier,
		simulate:  deps.Simulator,
		backups:   deps.Backups,
		rollback:  deps.Rollback,
		applier:   deps.Applier,
		ledger:    deps.Ledger,
		proposals: deps.Proposals,
		runner:    deps.Runner,
		restore:   deps.RestorePoints,
		resolver:  deps.Resolver,
		log:       deps.Logger,
		now:       time.Now,
		statResource: func(path string) bool {
			_, err := os.Lstat(path)
			return err == nil
		},
	}
}

// Propose classifies and simulates raw command text, persists the resulting
// proposal, and returns it. A deny-list match ends in the Blocked terminal
// state and is audited as a refusal; everything else waits for approval.
func (s *Service) Propose(ctx context.Context, text, intent string) (domain.Proposal, error) {
	report := s.classify.Classify(text)
	now := s.now().UTC()

	cmd := domain.Command{
		ID:            uuid.NewString(),
		Raw:           text,
		Intent:        intent,
		Privilege:     report.Privilege,
		Tier:          report.Tier,
		Reversibility: report.Reversibility,
		CreatedAt:     now,
	}
	p := domain.Proposal{
		Command:   cmd,
		Report:    report,
		State:     domain.StateClassified,
		UpdatedAt: now,
	}

	if report.Blocked {
		p.State = domain.StateBlocked
		s.auditRefusal(p, "matched deny-list rule")
	} else {
		pred := s.simulate.Simulate(text)
		p.Prediction = &pred
		p.State = domain.StateAwaitingApproval
	}

	if err := s.proposals.SaveProposal(p); err != nil {
		return domain.Proposal{}, fmt.Errorf("persist proposal: %w", err)
	}
	s.log.Info("command proposed", map[string]interface{}{
		"command_id": cmd.ID,
		"tier":       cmd.Tier,
		"state":      p.State,
	})
	if report.Blocked {
		return p, domain.ErrValidationBlocked
	}
	return p, nil
}

// ProposeFromPrompt resolves a natural-language prompt to concrete command
// text, then proposes it. The resolver's explanation is returned for display;
// the resolved text still goes through the full classify/approve pipeline,
// the resolver gets no shortcut around it.
func (s *Service) ProposeFromPrompt(ctx context.Context, prompt string) (domain.Proposal, string, error) {
	if s.resolver == nil {
		return domain.Proposal{}, "", errors.New("no intent resolver configured")
	}
	text, explanation, err := s.resolver.Resolve(ctx, prompt)
	if err != nil {
		return domain.Proposal{}, "", err
	}
	p, err := s.Propose(ctx, text, prompt)
	return p, explanation, err
}

// Simulate returns the dry-run prediction for command text without creating
// a proposal.
func (s *Service) Simulate(text string) domain.PredictedChangeSet {
	return s.simulate.Simulate(text)
}

// Pending lists proposals still in flight, oldest first.
func (s *Service) Pending() ([]domain.Proposal, error) {
	return s.proposals.PendingProposals()
}

// GetProposal fetches one proposal by command ID.
func (s *Service) GetProposal(commandID string) (domain.Proposal, error) {
	return s.proposals.GetProposal(commandID)
}

// Cancel rejects a proposal awaiting approval. The rejection is audited as a
// refusal; no host state has changed, so no change record is written.
func (s *Service) Cancel(ctx context.Context, commandID, reason string) error {
	p, err := s.proposals.GetProposal(commandID)
	if err != nil {
		return err
	}
	if p.State != domain.StateAwaitingApproval {
		return fmt.Errorf("%w: state is %s", domain.ErrNotAwaitingApproval, p.State)
	}
	if reason == "" {
		reason = "cancelled by user"
	}
	// Transition first: a refusal is only audited once the proposal really
	// left the awaiting state.
	if err := s.transition(&p, domain.StateCancelled); err != nil {
		return err
	}
	s.auditRefusal(p, reason)
	return nil
}

// Approve runs the approved command through the supervised execution window.
//
// Blocked proposals fail with ErrValidationBlocked no matter how often
// approval is retried. With dryRun set, the stored prediction is returned
// and the proposal stays awaiting approval. A CRITICAL command requires an
// OS restore point first; if that mechanism is unavailable the proposal is
// held in Approved and ErrRestorePointUnavailable is returned.
func (s *Service) Approve(ctx context.Context, commandID string, dryRun bool) (domain.ApprovalOutcome, error) {
	p, err := s.proposals.GetProposal(commandID)
	if err != nil {
		return domain.ApprovalOutcome{}, err
	}
	out := domain.ApprovalOutcome{Proposal: p, Prediction: p.Prediction}

	switch p.State {
	case domain.StateBlocked:
		s.auditRefusal(p, "approval attempted on blocked command")
		return out, domain.ErrValidationBlocked
	case domain.StateAwaitingApproval, domain.StateApproved:
		// Approved is reachable when a CRITICAL run was previously held
		// waiting for the restore point mechanism.
	default:
		return out, fmt.Errorf("%w: state is %s", domain.ErrNotAwaitingApproval, p.State)
	}

	if dryRun {
		pred := p.Prediction
		if pred == nil {
			fresh := s.simulate.Simulate(p.Command.Raw)
			pred = &fresh
		}
		out.Prediction = pred
		out.Execution = &domain.ExecutionResult{DryRun: true}
		return out, nil
	}

	if p.State == domain.StateAwaitingApproval {
		if err := s.transition(&p, domain.StateApproved); err != nil {
			return out, err
		}
		out.Proposal = p
	}

	var restorePoint string
	if p.Command.Tier == domain.TierCritical {
		ref, err := s.restore.Create(ctx, "before: "+p.Command.Raw)
		if err != nil {
			s.log.Warn("critical execution held, restore point unavailable", map[string]interface{}{
				"command_id": p.Command.ID,
			})
			return out, fmt.Errorf("critical command held: %w", err)
		}
		restorePoint = ref.ID
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()
	return s.execute(ctx, p, restorePoint)
}

// execute runs the backup-execute-record sequence. Caller holds execMu.
func (s *Service) execute(ctx context.Context, p domain.Proposal, restorePoint string) (domain.ApprovalOutcome, error) {
	out := domain.ApprovalOutcome{Proposal: p, Prediction: p.Prediction}

	var backups []domain.Backup
	if p.Command.Tier != domain.TierSafe {
		if err := s.transition(&p, domain.StateBackingUp); err != nil {
			return out, err
		}
		out.Proposal = p

		targets := s.snapshotTargets(p)
		snapped, err := s.backups.Snapshot(targets, p.Command.Raw)
		if err == nil && len(snapped) == 0 && requiresBackup(p.Command.Tier) {
			err = &domain.BackupFailure{
				Resource: p.Command.Raw,
				Err:      errors.New("no restorable resources to snapshot"),
			}
		}
		if err != nil {
			if terr := s.transition(&p, domain.StateBackupFailed); terr != nil {
				s.log.Error("state update failed", terr, map[string]interface{}{"command_id": p.Command.ID})
			}
			out.Proposal = p
			s.log.Error("backup failed, execution refused", err, map[string]interface{}{
				"command_id": p.Command.ID,
			})
			return out, err
		}
		backups = snapped
	}
	out.Backups = backups

	if err := s.transition(&p, domain.StateExecuting); err != nil {
		return out, err
	}
	out.Proposal = p

	// The execution timestamp is taken only after every snapshot is durable,
	// so backup CreatedAt strictly precedes ExecutedAt in the record.
	started := s.now().UTC()
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Execution.Timeout())
	defer cancel()
	result, execErr := s.runner.Execute(runCtx, p.Command.Raw)
	out.Execution = &result

	outcome := domain.OutcomeSuccess
	switch {
	case result.TimedOut:
		outcome = domain.OutcomeUnknown
	case execErr != nil || !result.Ran || result.ExitCode != 0:
		outcome = domain.OutcomeFailure
	}

	rec := domain.ChangeRecord{
		ID:            uuid.NewString(),
		CommandID:     p.Command.ID,
		CommandText:   p.Command.Raw,
		Tier:          p.Command.Tier,
		Reversibility: p.Command.Reversibility,
		BackupIDs:     backupIDs(backups),
		BeforeSummary: beforeSummary(backups),
		AfterSummary:  afterSummary(result, execErr),
		Outcome:       outcome,
		ExitCode:      result.ExitCode,
		RestorePoint:  restorePoint,
		ExecutedAt:    started,
		RecordedAt:    s.now().UTC(),
	}
	rec.RollbackID = domain.RollbackArtifactID(rec.ID)

	if err := s.ledger.Record(rec); err != nil {
		// The command already ran; losing the audit entry is worse than any
		// state-machine bookkeeping. Surface it loudly.
		s.log.Error("ledger write failed after execution", err, map[string]interface{}{
			"command_id": p.Command.ID,
			"change_id":  rec.ID,
		})
		return out, fmt.Errorf("record change: %w", err)
	}
	out.Change = &rec

	if _, err := s.rollback.Generate(rec, backups); err != nil {
		s.log.Error("rollback artifact generation failed", err, map[string]interface{}{
			"change_id": rec.ID,
		})
	}

	final := domain.StateLogged
	if outcome != domain.OutcomeSuccess {
		final = domain.StateExecutionFailed
	}
	if err := s.transition(&p, final); err != nil {
		s.log.Error("state update failed", err, map[string]interface{}{"command_id": p.Command.ID})
	}
	out.Proposal = p

	if outcome != domain.OutcomeSuccess {
		cause := execErr
		if cause == nil {
			cause = fmt.Errorf("exit code %d", result.ExitCode)
		}
		return out, &domain.ExecutionFailure{ChangeID: rec.ID, Outcome: outcome, Err: cause}
	}
	return out, nil
}

// RollbackChange applies the inverse artifact for a recorded change. The
// application itself is audited as a fresh change record; the original entry
// is never edited. Partial application with conflicts yields OutcomePartial.
func (s *Service) RollbackChange(ctx context.Context, changeID string) (domain.RestoreResult, domain.ChangeRecord, error) {
	orig, err := s.ledger.GetChange(changeID)
	if err != nil {
		return domain.RestoreResult{}, domain.ChangeRecord{}, err
	}
	artifact, err := s.rollback.Load(changeID)
	if err != nil {
		return domain.RestoreResult{}, domain.ChangeRecord{}, err
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	started := s.now().UTC()
	result, applyErr := s.applier.Apply(artifact)

	outcome := domain.OutcomeSuccess
	switch {
	case applyErr != nil:
		outcome = domain.OutcomeFailure
	case !result.Clean():
		outcome = domain.OutcomePartial
	}

	rec := domain.ChangeRecord{
		ID:            uuid.NewString(),
		CommandID:     orig.CommandID,
		CommandText:   "rollback " + changeID,
		Tier:          orig.Tier,
		Reversibility: orig.Reversibility,
		BackupIDs:     orig.BackupIDs,
		BeforeSummary: "rollback of change " + changeID,
		AfterSummary:  restoreSummary(result),
		Outcome:       outcome,
		ExecutedAt:    started,
		RecordedAt:    s.now().UTC(),
	}
	if err := s.ledger.Record(rec); err != nil {
		s.log.Error("ledger write failed after rollback", err, map[string]interface{}{
			"change_id": changeID,
		})
		return result, rec, fmt.Errorf("record rollback: %w", err)
	}
	if applyErr != nil {
		return result, rec, applyErr
	}
	return result, rec, nil
}

// ShowRollback loads the persisted artifact for a change without applying it.
func (s *Service) ShowRollback(changeID string) (domain.RollbackArtifact, error) {
	return s.rollback.Load(changeID)
}

// ListChanges materializes a filtered ledger query, oldest first.
func (s *Service) ListChanges(filter domain.ChangeFilter) ([]domain.ChangeRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = domain.DefaultChangeListLimit
	}
	it, err := s.ledger.Query(filter)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var records []domain.ChangeRecord
	for it.Next() {
		records = append(records, it.Record())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// GetChange fetches one ledger entry by ID.
func (s *Service) GetChange(changeID string) (domain.ChangeRecord, error) {
	return s.ledger.GetChange(changeID)
}

// ListBackups lists stored snapshots, newest first.
func (s *Service) ListBackups() ([]domain.Backup, error) {
	return s.backups.List()
}

// RestoreBackup restores one snapshot by ID and audits the restore in the
// ledger. Conflicting drift is surfaced unless force is set.
func (s *Service) RestoreBackup(backupID string, force bool) (domain.RestoreResult, error) {
	b, err := s.backups.Get(backupID)
	if err != nil {
		return domain.RestoreResult{}, err
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	started := s.now().UTC()
	result, restoreErr := s.backups.Restore(backupID, force)

	outcome := domain.OutcomeSuccess
	switch {
	case restoreErr != nil:
		outcome = domain.OutcomeFailure
	case !result.Clean():
		outcome = domain.OutcomePartial
	}
	rec := domain.ChangeRecord{
		ID:            uuid.NewString(),
		CommandText:   "restore backup " + backupID,
		Tier:          domain.TierCaution,
		Reversibility: domain.ReversibilityFull,
		BackupIDs:     []string{backupID},
		BeforeSummary: "restore of " + b.Resource.String(),
		AfterSummary:  restoreSummary(result),
		Outcome:       outcome,
		ExecutedAt:    started,
		RecordedAt:    s.now().UTC(),
	}
	if err := s.ledger.Record(rec); err != nil {
		s.log.Error("ledger write failed after restore", err, map[string]interface{}{
			"backup_id": backupID,
		})
	}
	return result, restoreErr
}

// PruneBackups removes snapshots past the configured retention window.
func (s *Service) PruneBackups() ([]string, error) {
	days := s.cfg.Backups.RetentionDays
	if days <= 0 {
		days = domain.DefaultBackupRetentionDays
	}
	return s.backups.Prune(days)
}

// CreateRestorePoint triggers the OS-level checkpoint mechanism directly.
func (s *Service) CreateRestorePoint(ctx context.Context, description string) (domain.RestorePointRef, error) {
	return s.restore.Create(ctx, description)
}

// ListRestorePoints lists checkpoints recorded through this engine.
func (s *Service) ListRestorePoints(ctx context.Context) ([]domain.RestorePointRef, error) {
	return s.restore.List(ctx)
}

// Reconcile cross-checks the backup store against the ledger and proposal
// store. A backup referenced by no change record means the process died
// between snapshot and recording; a proposal stuck in a mid-flight state
// means the same. Both are surfaced as warnings for the operator.
func (s *Service) Reconcile() ([]string, error) {
	var warnings []string

	referenced := map[string]bool{}
	it, err := s.ledger.Query(domain.ChangeFilter{})
	if err != nil {
		return nil, err
	}
	for it.Next() {
		for _, id := range it.Record().BackupIDs {
			referenced[id] = true
		}
	}
	if err := it.Err(); err != nil {
		it.Close()
		return nil, err
	}
	it.Close()

	stored, err := s.backups.List()
	if err != nil {
		return nil, err
	}
	for _, b := range stored {
		if !referenced[b.ID] {
			warnings = append(warnings, fmt.Sprintf("backup %s (%s) is referenced by no change record; a run may have died before recording", b.ID, b.Resource))
		}
	}

	pending, err := s.proposals.PendingProposals()
	if err != nil {
		return nil, err
	}
	for _, p := range pending {
		switch p.State {
		case domain.StateBackingUp, domain.StateExecuting:
			warnings = append(warnings, fmt.Sprintf("proposal %s is stuck in state %s; verify host state manually", p.Command.ID, p.State))
		}
	}
	return warnings, nil
}

// transition moves a proposal to the next state and persists it, rejecting
// edges the state machine does not allow.
func (s *Service) transition(p *domain.Proposal, next domain.CommandState) error {
	if !p.State.CanTransition(next) {
		return fmt.Errorf("illegal state transition %s -> %s", p.State, next)
	}
	p.State = next
	p.UpdatedAt = s.now().UTC()
	return s.proposals.UpdateProposalState(p.Command.ID, next)
}

// snapshotTargets selects the filesystem resources to back up: mutating
// predictions of file or directory kind that currently exist. A resource the
// command is about to create has nothing to snapshot yet, and service state
// is not restorable through the file backup store.
func (s *Service) snapshotTargets(p domain.Proposal) []domain.ResourceDescriptor {
	if p.Prediction == nil {
		return nil
	}
	seen := map[string]bool{}
	var targets []domain.ResourceDescriptor
	for _, r := range p.Prediction.MutatingResources() {
		if r.Kind != domain.ResourceFile && r.Kind != domain.ResourceDirectory {
			continue
		}
		if seen[r.String()] || !s.statResource(r.Path) {
			continue
		}
		seen[r.String()] = true
		targets = append(targets, r)
	}
	return targets
}

func (s *Service) auditRefusal(p domain.Proposal, reason string) {
	refusal := domain.Refusal{
		ID:          uuid.NewString(),
		CommandID:   p.Command.ID,
		CommandText: p.Command.Raw,
		Tier:        p.Command.Tier,
		Reason:      reason,
		CreatedAt:   s.now().UTC(),
	}
	if len(p.Report.MatchedRules) > 0 {
		refusal.Rule = p.Report.MatchedRules[0]
	}
	if err := s.ledger.RecordRefusal(refusal); err != nil {
		s.log.Error("refusal audit write failed", err, map[string]interface{}{
			"command_id": p.Command.ID,
		})
	}
}

// requiresBackup reports whether a tier may not reach execution without at
// least one completed backup.
func requiresBackup(t domain.RiskTier) bool {
	return t == domain.TierHigh || t == domain.TierCritical
}

func backupIDs(backups []domain.Backup) []string {
	if len(backups) == 0 {
		return nil
	}
	ids := make([]string, 0, len(backups))
	for _, b := range backups {
		ids = append(ids, b.ID)
	}
	return ids
}

func beforeSummary(backups []domain.Backup) string {
	if len(backups) == 0 {
		return "no resources snapshotted"
	}
	parts := make([]string, 0, len(backups))
	for _, b := range backups {
		parts = append(parts, b.Resource.String())
	}
	return "snapshotted " + strings.Join(parts, ", ")
}

func afterSummary(result domain.ExecutionResult, execErr error) string {
	switch {
	case result.TimedOut:
		return "timed out; resulting state unknown"
	case execErr != nil:
		return "failed to run: " + execErr.Error()
	case result.ExitCode != 0:
		line := firstLine(result.Stderr)
		if line == "" {
			return fmt.Sprintf("exited with code %d", result.ExitCode)
		}
		return fmt.Sprintf("exited with code %d: %s", result.ExitCode, line)
	default:
		return "completed successfully"
	}
}

func restoreSummary(r domain.RestoreResult) string {
	return fmt.Sprintf("restored %d, conflicts %d, skipped %d, manual %d",
		len(r.Restored), len(r.Conflicts), len(r.Skipped), len(r.Manual))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
