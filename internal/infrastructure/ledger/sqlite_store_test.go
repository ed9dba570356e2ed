package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/safecmd/internal/domain"
)

func openStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "changes.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func sampleRecord(executedAt time.Time, outcome domain.Outcome, text string) domain.ChangeRecord {
	return domain.ChangeRecord{
		ID:            uuid.NewString(),
		CommandID:     uuid.NewString(),
		CommandText:   text,
		Tier:          domain.TierHigh,
		Reversibility: domain.ReversibilityFull,
		BackupIDs:     []string{"b-1"},
		Outcome:       outcome,
		ExecutedAt:    executedAt,
		RecordedAt:    executedAt.Add(time.Millisecond),
	}
}

func collect(t *testing.T, store *SQLiteStore, filter domain.ChangeFilter) []domain.ChangeRecord {
	t.Helper()
	it, err := store.Query(filter)
	require.NoError(t, err)
	defer it.Close()
	var out []domain.ChangeRecord
	for it.Next() {
		out = append(out, it.Record())
	}
	require.NoError(t, it.Err())
	return out
}

func TestRecordAndQueryOrderedAscending(t *testing.T) {
	store, _ := openStore(t)
	base := time.Now().Add(-time.Hour)

	// Insert out of order; query must come back timestamp-ascending.
	require.NoError(t, store.Record(sampleRecord(base.Add(30*time.Minute), domain.OutcomeSuccess, "rm /tmp/b")))
	require.NoError(t, store.Record(sampleRecord(base, domain.OutcomeSuccess, "rm /tmp/a")))
	require.NoError(t, store.Record(sampleRecord(base.Add(10*time.Minute), domain.OutcomeFailure, "rm /tmp/c")))

	records := collect(t, store, domain.ChangeFilter{})
	require.Len(t, records, 3)
	require.Equal(t, "rm /tmp/a", records[0].CommandText)
	require.Equal(t, "rm /tmp/c", records[1].CommandText)
	require.Equal(t, "rm /tmp/b", records[2].CommandText)
}

func TestQueryFilters(t *testing.T) {
	store, _ := openStore(t)
	base := time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Record(sampleRecord(base, domain.OutcomeSuccess, "rm /srv/app/cache")))
	require.NoError(t, store.Record(sampleRecord(base.Add(time.Hour), domain.OutcomeFailure, "systemctl stop nginx")))

	byOutcome := collect(t, store, domain.ChangeFilter{Outcome: domain.OutcomeFailure})
	require.Len(t, byOutcome, 1)
	require.Equal(t, "systemctl stop nginx", byOutcome[0].CommandText)

	byResource := collect(t, store, domain.ChangeFilter{Resource: "/srv/app"})
	require.Len(t, byResource, 1)

	bySince := collect(t, store, domain.ChangeFilter{Since: base.Add(30 * time.Minute)})
	require.Len(t, bySince, 1)
	require.Equal(t, "systemctl stop nginx", bySince[0].CommandText)
}

func TestQueryIsRestartable(t *testing.T) {
	store, _ := openStore(t)
	require.NoError(t, store.Record(sampleRecord(time.Now(), domain.OutcomeSuccess, "rm x")))

	first := collect(t, store, domain.ChangeFilter{})
	second := collect(t, store, domain.ChangeFilter{})
	require.Equal(t, first, second)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	store, path := openStore(t)
	rec := sampleRecord(time.Now(), domain.OutcomeSuccess, "rm /tmp/z")
	require.NoError(t, store.Record(rec))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetChange(rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.CommandText, got.CommandText)
	require.Equal(t, rec.BackupIDs, got.BackupIDs)
}

func TestRecordRejectsDuplicateID(t *testing.T) {
	store, _ := openStore(t)
	rec := sampleRecord(time.Now(), domain.OutcomeSuccess, "rm /tmp/dup")
	require.NoError(t, store.Record(rec))
	require.Error(t, store.Record(rec), "ledger is append-only; IDs can never be rewritten")
}

func TestRefusalAudit(t *testing.T) {
	store, _ := openStore(t)
	require.NoError(t, store.RecordRefusal(domain.Refusal{
		ID:          uuid.NewString(),
		CommandID:   uuid.NewString(),
		CommandText: "rm -rf /",
		Tier:        domain.TierCritical,
		Rule:        "delete-root",
		Reason:      "deny-list match",
		CreatedAt:   time.Now(),
	}))
}

func TestProposalLifecycle(t *testing.T) {
	store, _ := openStore(t)
	p := domain.Proposal{
		Command: domain.Command{
			ID:            uuid.NewString(),
			Raw:           "rm /tmp/file",
			Tier:          domain.TierHigh,
			Reversibility: domain.ReversibilityFull,
			CreatedAt:     time.Now().UTC(),
		},
		Report: domain.RiskReport{Tier: domain.TierHigh},
		State:  domain.StateAwaitingApproval,
	}
	require.NoError(t, store.SaveProposal(p))

	got, err := store.GetProposal(p.Command.ID)
	require.NoError(t, err)
	require.Equal(t, p.Command.Raw, got.Command.Raw)
	require.Equal(t, domain.StateAwaitingApproval, got.State)

	pending, err := store.PendingProposals()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.UpdateProposalState(p.Command.ID, domain.StateLogged))
	got, err = store.GetProposal(p.Command.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateLogged, got.State)

	pending, err = store.PendingProposals()
	require.NoError(t, err)
	require.Empty(t, pending)

	_, err = store.GetProposal("missing")
	require.ErrorIs(t, err, domain.ErrProposalNotFound)
}

func TestPendingProposalsIncludeMidFlightStates(t *testing.T) {
	store, _ := openStore(t)
	p := domain.Proposal{
		Command: domain.Command{
			ID:        uuid.NewString(),
			Raw:       "rm /tmp/file",
			Tier:      domain.TierHigh,
			CreatedAt: time.Now().UTC(),
		},
		State: domain.StateAwaitingApproval,
	}
	require.NoError(t, store.SaveProposal(p))

	// A proposal left in backing_up or executing means a process died inside
	// the execution window; it must stay visible so reconciliation can flag it.
	for _, state := range []domain.CommandState{
		domain.StateApproved,
		domain.StateBackingUp,
		domain.StateExecuting,
	} {
		require.NoError(t, store.UpdateProposalState(p.Command.ID, state))
		pending, err := store.PendingProposals()
		require.NoError(t, err)
		require.Len(t, pending, 1, "state %s must be listed as pending", state)
		require.Equal(t, state, pending[0].State)
	}

	require.NoError(t, store.UpdateProposalState(p.Command.ID, domain.StateExecutionFailed))
	pending, err := store.PendingProposals()
	require.NoError(t, err)
	require.Empty(t, pending, "terminal states are not pending")
}
