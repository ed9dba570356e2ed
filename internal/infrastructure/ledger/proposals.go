package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doeshing/safecmd/internal/domain"
)

// SaveProposal implements ports.ProposalStore. The full proposal (command,
// risk report, prediction) is stored as a JSON payload; the state column is
// duplicated for querying.
func (s *SQLiteStore) SaveProposal(p domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(`INSERT INTO proposals (command_id, payload, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(command_id) DO UPDATE SET payload=excluded.payload,
			state=excluded.state, updated_at=excluded.updated_at`,
		p.Command.ID, string(payload), string(p.State), now, now,
	)
	if err != nil {
		return fmt.Errorf("save proposal: %w", err)
	}
	return nil
}

// GetProposal implements ports.ProposalStore.
func (s *SQLiteStore) GetProposal(commandID string) (domain.Proposal, error) {
	var payload, state string
	err := s.db.QueryRow(`SELECT payload, state FROM proposals WHERE command_id = ?`, commandID).
		Scan(&payload, &state)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Proposal{}, domain.ErrProposalNotFound
		}
		return domain.Proposal{}, fmt.Errorf("get proposal: %w", err)
	}
	var p domain.Proposal
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.Proposal{}, fmt.Errorf("decode proposal: %w", err)
	}
	p.State = domain.CommandState(state)
	return p, nil
}

// UpdateProposalState implements ports.ProposalStore. The state column and
// the JSON payload are kept in sync.
func (s *SQLiteStore) UpdateProposalState(commandID string, state domain.CommandState) error {
	p, err := s.GetProposal(commandID)
	if err != nil {
		return err
	}
	p.State = state
	p.UpdatedAt = time.Now().UTC()
	return s.SaveProposal(p)
}

// PendingProposals implements ports.ProposalStore: every proposal in a
// non-terminal state, oldest first. This includes backing_up and executing,
// which only persist when a process died inside the execution window; the
// reconcile check depends on seeing them.
func (s *SQLiteStore) PendingProposals() ([]domain.Proposal, error) {
	rows, err := s.db.Query(`SELECT payload, state FROM proposals
		WHERE state IN (?, ?, ?, ?) ORDER BY created_at ASC`,
		string(domain.StateAwaitingApproval), string(domain.StateApproved),
		string(domain.StateBackingUp), string(domain.StateExecuting))
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []domain.Proposal
	for rows.Next() {
		var payload, state string
		if err := rows.Scan(&payload, &state); err != nil {
			return nil, err
		}
		var p domain.Proposal
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode proposal: %w", err)
		}
		p.State = domain.CommandState(state)
		out = append(out, p)
	}
	return out, rows.Err()
}
