// Package ledger persists the append-only change ledger and the pending
// proposal table in a SQLite database.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/ports"
)

// SQLiteStore implements ports.Ledger and ports.ProposalStore.
//
// The changes and refusals tables are append-only by construction: the store
// exposes no UPDATE or DELETE path for them. Retention expiry is a separate,
// separately-audited job and is deliberately absent here.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates (or opens) the ledger database at path.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	// synchronous=FULL so a record reported as written survives a crash
	// immediately after Record returns.
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=FULL;`,
		`CREATE TABLE IF NOT EXISTS changes (
			id TEXT PRIMARY KEY,
			command_id TEXT NOT NULL,
			command_text TEXT NOT NULL,
			tier TEXT NOT NULL,
			reversibility TEXT NOT NULL,
			backup_ids TEXT,
			before_summary TEXT,
			after_summary TEXT,
			outcome TEXT NOT NULL,
			exit_code INTEGER,
			rollback_id TEXT,
			restore_point TEXT,
			executed_at TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS refusals (
			id TEXT PRIMARY KEY,
			command_id TEXT NOT NULL,
			command_text TEXT NOT NULL,
			tier TEXT NOT NULL,
			rule TEXT,
			reason TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS proposals (
			command_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_changes_executed_at ON changes(executed_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init ledger schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Record implements ports.Ledger. Inserts only; an existing ID is an error,
// never an overwrite.
func (s *SQLiteStore) Record(record domain.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backupIDs, err := json.Marshal(record.BackupIDs)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO changes
		(id, command_id, command_text, tier, reversibility, backup_ids,
		 before_summary, after_summary, outcome, exit_code, rollback_id,
		 restore_point, executed_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.CommandID,
		record.CommandText,
		string(record.Tier),
		string(record.Reversibility),
		string(backupIDs),
		record.BeforeSummary,
		record.AfterSummary,
		string(record.Outcome),
		record.ExitCode,
		record.RollbackID,
		record.RestorePoint,
		record.ExecutedAt.UTC().Format(time.RFC3339Nano),
		record.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}

// RecordRefusal implements ports.Ledger.
func (s *SQLiteStore) RecordRefusal(refusal domain.Refusal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO refusals
		(id, command_id, command_text, tier, rule, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		refusal.ID,
		refusal.CommandID,
		refusal.CommandText,
		string(refusal.Tier),
		refusal.Rule,
		refusal.Reason,
		refusal.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record refusal: %w", err)
	}
	return nil
}

// Query implements ports.Ledger. The returned iterator is lazy and
// rows-backed; calling Query again restarts the sequence.
func (s *SQLiteStore) Query(filter domain.ChangeFilter) (ports.ChangeIterator, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, command_id, command_text, tier, reversibility,
		backup_ids, before_summary, after_summary, outcome, exit_code,
		rollback_id, restore_point, executed_at, recorded_at FROM changes`)

	var clauses []string
	var args []interface{}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "datetime(executed_at) >= datetime(?)")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "datetime(executed_at) <= datetime(?)")
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}
	if filter.Resource != "" {
		clauses = append(clauses, "(command_text LIKE ? OR before_summary LIKE ? OR after_summary LIKE ?)")
		pattern := "%" + filter.Resource + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if filter.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	if len(clauses) > 0 {
		builder.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	builder.WriteString(" ORDER BY datetime(executed_at) ASC")
	if filter.Limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	return &changeIterator{rows: rows}, nil
}

// GetChange implements ports.Ledger.
func (s *SQLiteStore) GetChange(changeID string) (domain.ChangeRecord, error) {
	row := s.db.QueryRow(`SELECT id, command_id, command_text, tier, reversibility,
		backup_ids, before_summary, after_summary, outcome, exit_code,
		rollback_id, restore_point, executed_at, recorded_at
		FROM changes WHERE id = ?`, changeID)
	record, err := scanChange(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ChangeRecord{}, fmt.Errorf("change %s not found", changeID)
		}
		return domain.ChangeRecord{}, err
	}
	return record, nil
}

type changeIterator struct {
	rows *sql.Rows
	cur  domain.ChangeRecord
	err  error
}

func (it *changeIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		if it.err == nil {
			it.err = it.rows.Err()
		}
		return false
	}
	it.cur, it.err = scanChange(it.rows.Scan)
	return it.err == nil
}

func (it *changeIterator) Record() domain.ChangeRecord { return it.cur }
func (it *changeIterator) Err() error                  { return it.err }
func (it *changeIterator) Close() error                { return it.rows.Close() }

func scanChange(scan func(dest ...interface{}) error) (domain.ChangeRecord, error) {
	var rec domain.ChangeRecord
	var backupIDs, executedAt, recordedAt string
	var tier, reversibility, outcome string
	err := scan(
		&rec.ID, &rec.CommandID, &rec.CommandText, &tier, &reversibility,
		&backupIDs, &rec.BeforeSummary, &rec.AfterSummary, &outcome,
		&rec.ExitCode, &rec.RollbackID, &rec.RestorePoint, &executedAt, &recordedAt,
	)
	if err != nil {
		return domain.ChangeRecord{}, err
	}
	rec.Tier = domain.RiskTier(tier)
	rec.Reversibility = domain.Reversibility(reversibility)
	rec.Outcome = domain.Outcome(outcome)
	if backupIDs != "" {
		if err := json.Unmarshal([]byte(backupIDs), &rec.BackupIDs); err != nil {
			return domain.ChangeRecord{}, fmt.Errorf("decode backup ids: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, executedAt); err == nil {
		rec.ExecutedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
		rec.RecordedAt = t
	}
	return rec, nil
}

var (
	_ ports.Ledger        = (*SQLiteStore)(nil)
	_ ports.ProposalStore = (*SQLiteStore)(nil)
)
