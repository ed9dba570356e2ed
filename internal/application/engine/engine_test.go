package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/ports"
)

// --- fakes -----------------------------------------------------------------

type fakeClassifier struct {
	reports map[string]domain.RiskReport
}

func (f *fakeClassifier) Classify(text string) domain.RiskReport {
	if r, ok := f.reports[text]; ok {
		return r
	}
	return domain.RiskReport{
		Tier:          domain.TierCaution,
		Reversibility: domain.ReversibilityPartial,
		Privilege:     domain.PrivilegeUser,
	}
}

type fakeSimulator struct {
	preds map[string]domain.PredictedChangeSet
	calls int
}

func (f *fakeSimulator) Simulate(text string) domain.PredictedChangeSet {
	f.calls++
	if p, ok := f.preds[text]; ok {
		return p
	}
	return domain.PredictedChangeSet{CommandText: text}
}

type fakeBackups struct {
	mu       sync.Mutex
	failWith error
	stored   []domain.Backup
	restores []string
	restore  domain.RestoreResult
}

func (f *fakeBackups) Snapshot(resources []domain.ResourceDescriptor, operation string) ([]domain.Backup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []domain.Backup
	for i, r := range resources {
		b := domain.Backup{
			ID:        fmt.Sprintf("bkp-%d-%d", len(f.stored), i),
			Resource:  r,
			Operation: operation,
			CreatedAt: time.Now().UTC(),
		}
		out = append(out, b)
		f.stored = append(f.stored, b)
	}
	return out, nil
}

func (f *fakeBackups) Restore(backupID string, force bool) (domain.RestoreResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restores = append(f.restores, backupID)
	return f.restore, nil
}

func (f *fakeBackups) Get(backupID string) (domain.Backup, error) {
	for _, b := range f.stored {
		if b.ID == backupID {
			return b, nil
		}
	}
	return domain.Backup{}, fmt.Errorf("backup %s not found", backupID)
}

func (f *fakeBackups) List() ([]domain.Backup, error) { return f.stored, nil }

func (f *fakeBackups) Prune(retentionDays int) ([]string, error) { return nil, nil }

type fakeLedger struct {
	mu       sync.Mutex
	records  []domain.ChangeRecord
	refusals []domain.Refusal
}

func (f *fakeLedger) Record(r domain.ChangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}

func (f *fakeLedger) RecordRefusal(r domain.Refusal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refusals = append(f.refusals, r)
	return nil
}

func (f *fakeLedger) Query(filter domain.ChangeFilter) (ports.ChangeIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sliceIterator{records: append([]domain.ChangeRecord(nil), f.records...)}, nil
}

func (f *fakeLedger) GetChange(changeID string) (domain.ChangeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == changeID {
			return r, nil
		}
	}
	return domain.ChangeRecord{}, fmt.Errorf("change %s not found", changeID)
}

type sliceIterator struct {
	records []domain.ChangeRecord
	pos     int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.records) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Record() domain.ChangeRecord { return it.records[it.pos-1] }
func (it *sliceIterator) Err() error                  { return nil }
func (it *sliceIterator) Close() error                { return nil }

type fakeProposals struct {
	mu        sync.Mutex
	items     map[string]domain.Proposal
	updateErr error
}

func newFakeProposals() *fakeProposals {
	return &fakeProposals{items: map[string]domain.Proposal{}}
}

func (f *fakeProposals) SaveProposal(p domain.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[p.Command.ID] = p
	return nil
}

func (f *fakeProposals) GetProposal(commandID string) (domain.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[commandID]
	if !ok {
		return domain.Proposal{}, domain.ErrProposalNotFound
	}
	return p, nil
}

func (f *fakeProposals) UpdateProposalState(commandID string, state domain.CommandState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	p, ok := f.items[commandID]
	if !ok {
		return domain.ErrProposalNotFound
	}
	p.State = state
	f.items[commandID] = p
	return nil
}

func (f *fakeProposals) PendingProposals() ([]domain.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Proposal
	for _, p := range f.items {
		if !p.State.Terminal() {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []time.Time
	result domain.ExecutionResult
	err    error
	block  chan struct{}
}

func (f *fakeRunner) Execute(ctx context.Context, command string) (domain.ExecutionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now().UTC())
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.result, f.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRestorePointer struct {
	available bool
	created   []string
}

func (f *fakeRestorePointer) Create(ctx context.Context, description string) (domain.RestorePointRef, error) {
	if !f.available {
		return domain.RestorePointRef{}, domain.ErrRestorePointUnavailable
	}
	ref := domain.RestorePointRef{ID: fmt.Sprintf("rp-%d", len(f.created)), Description: description}
	f.created = append(f.created, ref.ID)
	return ref, nil
}

func (f *fakeRestorePointer) List(ctx context.Context) ([]domain.RestorePointRef, error) {
	return nil, nil
}

type fakeGenerator struct {
	mu        sync.Mutex
	artifacts map[string]domain.RollbackArtifact
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{artifacts: map[string]domain.RollbackArtifact{}}
}

func (f *fakeGenerator) Generate(record domain.ChangeRecord, backups []domain.Backup) (domain.RollbackArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := domain.RollbackArtifact{
		ID:        domain.RollbackArtifactID(record.ID),
		ChangeID:  record.ID,
		CreatedAt: time.Now().UTC(),
	}
	for i := len(backups) - 1; i >= 0; i-- {
		a.Steps = append(a.Steps, domain.RollbackStep{
			Kind:     domain.StepRestoreFile,
			Target:   backups[i].Resource.Path,
			BackupID: backups[i].ID,
		})
	}
	f.artifacts[record.ID] = a
	return a, nil
}

func (f *fakeGenerator) Load(changeID string) (domain.RollbackArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artifacts[changeID]
	if !ok {
		return domain.RollbackArtifact{}, fmt.Errorf("artifact for change %s not found", changeID)
	}
	return a, nil
}

type fakeApplier struct {
	result domain.RestoreResult
	err    error
}

func (f *fakeApplier) Apply(artifact domain.RollbackArtifact) (domain.RestoreResult, error) {
	return f.result, f.err
}

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]interface{})        {}
func (nopLogger) Info(string, map[string]interface{})         {}
func (nopLogger) Warn(string, map[string]interface{})         {}
func (nopLogger) Error(string, error, map[string]interface{}) {}

// --- harness ---------------------------------------------------------------

type harness struct {
	svc        *Service
	classifier *fakeClassifier
	simulator  *fakeSimulator
	backups    *fakeBackups
	ledger     *fakeLedger
	proposals  *fakeProposals
	runner     *fakeRunner
	restore    *fakeRestorePointer
	generator  *fakeGenerator
	applier    *fakeApplier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		classifier: &fakeClassifier{reports: map[string]domain.RiskReport{}},
		simulator:  &fakeSimulator{preds: map[string]domain.PredictedChangeSet{}},
		backups:    &fakeBackups{},
		ledger:     &fakeLedger{},
		proposals:  newFakeProposals(),
		runner:     &fakeRunner{result: domain.ExecutionResult{Ran: true, ExitCode: 0}},
		restore:    &fakeRestorePointer{available: true},
		generator:  newFakeGenerator(),
		applier:    &fakeApplier{},
	}
	h.svc = NewService(Deps{
		Config:        domain.Config{Execution: domain.ExecutionSettings{TimeoutSeconds: 30}},
		Classifier:    h.classifier,
		Simulator:     h.simulator,
		Backups:       h.backups,
		Rollback:      h.generator,
		Applier:       h.applier,
		Ledger:        h.ledger,
		Proposals:     h.proposals,
		Runner:        h.runner,
		RestorePoints: h.restore,
		Logger:        nopLogger{},
	})
	// Fakes hand out resources that do not exist on disk.
	h.svc.statResource = func(string) bool { return true }
	return h
}

func filePrediction(text string, paths ...string) domain.PredictedChangeSet {
	pred := domain.PredictedChangeSet{CommandText: text}
	for _, p := range paths {
		pred.Changes = append(pred.Changes, domain.PredictedChange{
			Resource:    domain.ResourceDescriptor{Kind: domain.ResourceFile, Path: p},
			Operation:   domain.OpDelete,
			Destructive: true,
		})
	}
	return pred
}

// --- tests -----------------------------------------------------------------

func TestBlockedCommandNeverExecutes(t *testing.T) {
	h := newHarness(t)
	const text = "rm -rf /"
	h.classifier.reports[text] = domain.RiskReport{
		Tier:          domain.TierCritical,
		Reversibility: domain.ReversibilityNone,
		MatchedRules:  []string{"delete-root"},
		Blocked:       true,
	}

	p, err := h.svc.Propose(context.Background(), text, "")
	require.ErrorIs(t, err, domain.ErrValidationBlocked)
	assert.Equal(t, domain.StateBlocked, p.State)

	// Approval can be retried any number of times; the block is absolute.
	for i := 0; i < 3; i++ {
		_, err = h.svc.Approve(context.Background(), p.Command.ID, false)
		require.ErrorIs(t, err, domain.ErrValidationBlocked)
	}

	assert.Zero(t, h.runner.callCount())
	assert.Empty(t, h.ledger.records, "a blocked command must leave no change record")
	assert.Len(t, h.ledger.refusals, 4, "proposal plus each approval attempt is audited")
	assert.Equal(t, "delete-root", h.ledger.refusals[0].Rule)
}

func TestDryRunLeavesProposalPending(t *testing.T) {
	h := newHarness(t)
	const text = "tar czf /backups/etc.tar.gz /etc"
	h.simulator.preds[text] = domain.PredictedChangeSet{
		CommandText: text,
		Changes: []domain.PredictedChange{{
			Resource:  domain.ResourceDescriptor{Kind: domain.ResourceFile, Path: "/backups/etc.tar.gz"},
			Operation: domain.OpCreate,
		}},
	}

	p, err := h.svc.Propose(context.Background(), text, "archive /etc")
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingApproval, p.State)
	require.NotNil(t, p.Prediction)

	out, err := h.svc.Approve(context.Background(), p.Command.ID, true)
	require.NoError(t, err)
	require.NotNil(t, out.Execution)
	assert.True(t, out.Execution.DryRun)
	require.NotNil(t, out.Prediction)
	assert.Equal(t, domain.OpCreate, out.Prediction.Changes[0].Operation)

	assert.Zero(t, h.runner.callCount(), "dry-run must not reach the runner")
	stored, err := h.svc.GetProposal(p.Command.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingApproval, stored.State)

	// The same proposal is still approvable for real afterwards.
	out, err = h.svc.Approve(context.Background(), p.Command.ID, false)
	require.NoError(t, err)
	require.NotNil(t, out.Change)
	assert.Equal(t, domain.OutcomeSuccess, out.Change.Outcome)
	assert.Equal(t, domain.StateLogged, out.Proposal.State)
}

func TestHighTierBackupPrecedesExecution(t *testing.T) {
	h := newHarness(t)
	const text = "rm /home/user/report.txt"
	h.classifier.reports[text] = domain.RiskReport{
		Tier:          domain.TierHigh,
		Reversibility: domain.ReversibilityFull,
	}
	h.simulator.preds[text] = filePrediction(text, "/home/user/report.txt")

	p, err := h.svc.Propose(context.Background(), text, "")
	require.NoError(t, err)

	out, err := h.svc.Approve(context.Background(), p.Command.ID, false)
	require.NoError(t, err)
	require.NotNil(t, out.Change)
	require.Len(t, out.Backups, 1)

	rec := *out.Change
	assert.Equal(t, domain.OutcomeSuccess, rec.Outcome)
	require.NotEmpty(t, rec.BackupIDs)
	assert.Equal(t, out.Backups[0].ID, rec.BackupIDs[0])
	assert.False(t, rec.ExecutedAt.Before(out.Backups[0].CreatedAt),
		"backup must be durable before execution starts")
	assert.Equal(t, domain.RollbackArtifactID(rec.ID), rec.RollbackID)

	artifact, err := h.svc.ShowRollback(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, artifact.ChangeID)
	require.NotEmpty(t, artifact.Steps)
	assert.Equal(t, out.Backups[0].ID, artifact.Steps[0].BackupID)
}

func TestBackupFailureBlocksExecution(t *testing.T) {
	h := newHarness(t)
	const text = "rm /data/a.txt /data/locked.txt"
	h.classifier.reports[text] = domain.RiskReport{
		Tier:          domain.TierHigh,
		Reversibility: domain.ReversibilityFull,
	}
	h.simulator.preds[text] = filePrediction(text, "/data/a.txt", "/data/locked.txt")
	h.backups.failWith = &domain.BackupFailure{Resource: "file:/data/locked.txt", Err: errors.New("permission denied")}

	p, err := h.svc.Propose(context.Background(), text, "")
	require.NoError(t, err)

	out, err := h.svc.Approve(context.Background(), p.Command.ID, false)
	var bf *domain.BackupFailure
	require.ErrorAs(t, err, &bf)
	assert.Equal(t, "file:/data/locked.txt", bf.Resource)

	assert.Zero(t, h.runner.callCount(), "execution must never start on a failed backup")
	assert.Nil(t, out.Change)
	assert.Empty(t, h.ledger.records)

	stored, err := h.svc.GetProposal(p.Command.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateBackupFailed, stored.State)
	assert.True(t, stored.State.Terminal())
}

func TestHighTierWithNothingToSnapshotFailsClosed(t *testing.T) {
	h := newHarness(t)
	const text = "rm /does/not/exist"
	h.classifier.reports[text] = domain.RiskReport{
		Tier:          domain.TierHigh,
		Reversibility: domain.ReversibilityFull,
	}
	h.simulator.preds[text] = filePrediction(text, "/does/not/exist")
	h.svc.statResource = func(string) bool { return false }

	p, err := h.svc.Propose(context.Background(), text, "")
	require.NoError(t, err)

	_, err = h.svc.Approve(context.Background(), p.Command.ID, false)
	var bf *domain.BackupFailure
	require.ErrorAs(t, err, &bf)
	assert.Zero(t, h.runner.callCount())
}

func TestCriticalHeldWithoutRestorePoint(t *testing.T) {
	h := newHarness(t)
	const text = "mkfs.ext4 /dev/sdb1"
	h.classifier.reports[text] = domain.RiskReport{
		Tier:          domain.TierCritical,
		Reversibility: domain.ReversibilityNone,
	}
	h.simulator.preds[text] = filePrediction(text, "/dev/sdb1")
	h.restore.available = false

	p, err := h.svc.Propose(context.Background(), text, "")
	require.NoError(t, err)

	_, err = h.svc.Approve(context.Background(), p.Command.ID, false)
	require.ErrorIs(t, err, domain.ErrRestorePointUnavailable)
	assert.Zero(t, h.runner.callCount())

	stored, err := h.svc.GetProposal(p.Command.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateApproved, stored.State, "held, not failed")

	// Once the mechanism recovers, the held approval goes through and the
	// restore point reference lands in the change record.
	h.restore.available = true
	out, err := h.svc.Approve(context.Background(), p.Command.ID, false)
	require.NoError(t, err)
	require.NotNil(t, out.Change)
	assert.Equal(t, "rp-0", out.Change.RestorePoint)
	assert.Equal(t, 1, h.runner.callCount())
}

func TestTimeoutRecordsUnknownOutcome(t *testing.T) {
	h := newHarness(t)
	const text = "cp big.img /mnt/slow/"
	h.simulator.preds[text] = filePrediction(text, "/mnt/slow/big.img")
	h.runner.result = domain.ExecutionResult{Ran: true, ExitCode: -1, TimedOut: true}
	h.runner.err = context.DeadlineExceeded

	p, err := h.svc.Propose(context.Background(), text, "")
	require.NoError(t, err)

	out, err := h.svc.Approve(context.Background(), p.Command.ID, false)
	var ef *domain.ExecutionFailure
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, domain.OutcomeUnknown, ef.Outcome)

	require.NotNil(t, out.Change)
	assert.Equal(t, domain.OutcomeUnknown, out.Change.Outcome)
	assert.Contains(t, out.Change.AfterSummary, "unknown")
	assert.Equal(t, domain.StateExecutionFailed, out.Proposal.State)
}

func TestFailedCommandStillRecorded(t *testing.T) {
	h := newHarness(t)
	const text = "systemctl restart nothing.service"
	h.runner.result = domain.ExecutionResult{Ran: true, ExitCode: 5, Stderr: "Unit nothing.service not found.\n"}

	p, err := h.svc.Propose(context.Background(), text, "")
	require.NoError(t, err)

	out, err := h.svc.Approve(context.Background(), p.Command.ID, false)
	var ef *domain.ExecutionFailure
	require.ErrorAs(t, err, &ef)

	require.NotNil(t, out.Change)
	assert.Equal(t, domain.OutcomeFailure, out.Change.Outcome)
	assert.Equal(t, 5, out.Change.ExitCode)
	assert.Contains(t, out.Change.AfterSummary, "Unit nothing.service not found.")
	require.Len(t, h.ledger.records, 1)
}

func TestCancelAuditsRefusal(t *testing.T) {
	h := newHarness(t)
	p, err := h.svc.Propose(context.Background(), "chmod 600 notes.txt", "")
	require.NoError(t, err)

	require.NoError(t, h.svc.Cancel(context.Background(), p.Command.ID, "changed my mind"))

	stored, err := h.svc.GetProposal(p.Command.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, stored.State)
	require.Len(t, h.ledger.refusals, 1)
	assert.Equal(t, "changed my mind", h.ledger.refusals[0].Reason)

	_, err = h.svc.Approve(context.Background(), p.Command.ID, false)
	require.ErrorIs(t, err, domain.ErrNotAwaitingApproval)
	assert.Empty(t, h.ledger.records)
}

func TestCancelFailedTransitionLeavesNoRefusal(t *testing.T) {
	h := newHarness(t)
	p, err := h.svc.Propose(context.Background(), "chmod 600 notes.txt", "")
	require.NoError(t, err)

	h.proposals.updateErr = errors.New("store unavailable")
	require.Error(t, h.svc.Cancel(context.Background(), p.Command.ID, "changed my mind"))
	assert.Empty(t, h.ledger.refusals, "a cancellation that did not persist must not be audited")

	h.proposals.updateErr = nil
	require.NoError(t, h.svc.Cancel(context.Background(), p.Command.ID, "changed my mind"))
	require.Len(t, h.ledger.refusals, 1)
}

func TestApproveUnknownProposal(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Approve(context.Background(), "no-such-id", false)
	require.ErrorIs(t, err, domain.ErrProposalNotFound)
}

func TestConcurrentApprovalsSerialize(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.runner.block = release

	var ids []string
	for i := 0; i < 2; i++ {
		p, err := h.svc.Propose(context.Background(), fmt.Sprintf("touch /tmp/f%d", i), "")
		require.NoError(t, err)
		ids = append(ids, p.Command.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = h.svc.Approve(context.Background(), id, false)
		}(id)
	}

	// Only one approval may be inside the execution window at a time.
	assert.Eventually(t, func() bool { return h.runner.callCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.runner.callCount())

	close(release)
	wg.Wait()
	assert.Equal(t, 2, h.runner.callCount())
	assert.Len(t, h.ledger.records, 2)
}

func TestRollbackChangeWritesNewRecord(t *testing.T) {
	h := newHarness(t)
	const text = "rm /home/user/todo.md"
	h.classifier.reports[text] = domain.RiskReport{
		Tier:          domain.TierHigh,
		Reversibility: domain.ReversibilityFull,
	}
	h.simulator.preds[text] = filePrediction(text, "/home/user/todo.md")
	h.applier.result = domain.RestoreResult{Restored: []string{"/home/user/todo.md"}}

	p, err := h.svc.Propose(context.Background(), text, "")
	require.NoError(t, err)
	out, err := h.svc.Approve(context.Background(), p.Command.ID, false)
	require.NoError(t, err)
	require.NotNil(t, out.Change)
	original := *out.Change

	result, rbRec, err := h.svc.RollbackChange(context.Background(), original.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/user/todo.md"}, result.Restored)
	assert.Equal(t, domain.OutcomeSuccess, rbRec.Outcome)
	assert.NotEqual(t, original.ID, rbRec.ID, "rollback is a fresh record, the original is never edited")
	assert.Equal(t, "rollback "+original.ID, rbRec.CommandText)

	require.Len(t, h.ledger.records, 2)
	fetched, err := h.svc.GetChange(original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Outcome, fetched.Outcome)
}

func TestRollbackConflictsYieldPartialOutcome(t *testing.T) {
	h := newHarness(t)
	const text = "rm /srv/app/config.yml"
	h.classifier.reports[text] = domain.RiskReport{Tier: domain.TierHigh, Reversibility: domain.ReversibilityFull}
	h.simulator.preds[text] = filePrediction(text, "/srv/app/config.yml")
	h.applier.result = domain.RestoreResult{Conflicts: []string{"/srv/app/config.yml"}}

	p, err := h.svc.Propose(context.Background(), text, "")
	require.NoError(t, err)
	out, err := h.svc.Approve(context.Background(), p.Command.ID, false)
	require.NoError(t, err)

	result, rbRec, err := h.svc.RollbackChange(context.Background(), out.Change.ID)
	require.NoError(t, err)
	assert.False(t, result.Clean())
	assert.Equal(t, domain.OutcomePartial, rbRec.Outcome)
}

func TestReconcileFlagsOrphanedBackups(t *testing.T) {
	h := newHarness(t)

	// A backup with no ledger reference simulates a crash between snapshot
	// and record.
	h.backups.stored = append(h.backups.stored, domain.Backup{
		ID:       "bkp-orphan",
		Resource: domain.ResourceDescriptor{Kind: domain.ResourceFile, Path: "/tmp/lost"},
	})

	warnings, err := h.svc.Reconcile()
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "bkp-orphan")

	// Once a record references the backup the warning disappears.
	require.NoError(t, h.ledger.Record(domain.ChangeRecord{
		ID:        "chg-1",
		BackupIDs: []string{"bkp-orphan"},
	}))
	warnings, err = h.svc.Reconcile()
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestSafeTierSkipsBackup(t *testing.T) {
	h := newHarness(t)
	const text = "ls -la"
	h.classifier.reports[text] = domain.RiskReport{
		Tier:          domain.TierSafe,
		Reversibility: domain.ReversibilityFull,
	}

	p, err := h.svc.Propose(context.Background(), text, "")
	require.NoError(t, err)
	out, err := h.svc.Approve(context.Background(), p.Command.ID, false)
	require.NoError(t, err)

	assert.Empty(t, out.Backups)
	assert.Empty(t, h.backups.stored)
	require.NotNil(t, out.Change)
	assert.Empty(t, out.Change.BackupIDs)
	assert.Equal(t, domain.StateLogged, out.Proposal.State)
}
