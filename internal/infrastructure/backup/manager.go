// Package backup implements the snapshot store used before destructive
// commands execute. Every snapshot is durably persisted (fsync) before the
// manager reports success, and a snapshot batch is all-or-nothing: partial
// work is rolled back so a command can never run with incomplete backups.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/ports"
)

const indexFile = "index.json"

// Manager owns all Backup values. Change records reference backups by ID and
// never copy payloads.
type Manager struct {
	root string
	log  ports.Logger

	mu    sync.Mutex
	index map[string]domain.Backup

	now func() time.Time
}

// NewManager opens (or creates) the backup store rooted at root.
func NewManager(root string, log ports.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create backup root: %w", err)
	}
	m := &Manager{root: root, log: log, index: map[string]domain.Backup{}, now: time.Now}
	if err := m.loadIndex(); err != nil {
		return nil, err
	}
	return m, nil
}

// Snapshot implements ports.BackupManager. Each resource gets its own
// timestamp+uuid-keyed backup so an earlier backup of the same resource is
// never silently overwritten. On any failure all backups created in this
// call are removed and a *domain.BackupFailure is returned.
func (m *Manager) Snapshot(resources []domain.ResourceDescriptor, operation string) ([]domain.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var created []domain.Backup
	cleanup := func() {
		for _, b := range created {
			_ = os.RemoveAll(filepath.Dir(b.PayloadPath))
			delete(m.index, b.ID)
		}
	}

	for _, res := range resources {
		b, err := m.snapshotOne(res, operation)
		if err != nil {
			cleanup()
			return nil, &domain.BackupFailure{Resource: res.String(), Err: err}
		}
		created = append(created, b)
		m.index[b.ID] = b
	}

	if err := m.saveIndexLocked(); err != nil {
		cleanup()
		return nil, &domain.BackupFailure{Resource: "index", Err: err}
	}
	return created, nil
}

func (m *Manager) snapshotOne(res domain.ResourceDescriptor, operation string) (domain.Backup, error) {
	info, err := os.Lstat(res.Path)
	if err != nil {
		return domain.Backup{}, fmt.Errorf("stat resource: %w", err)
	}

	id := m.now().UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
	dir := filepath.Join(m.root, id)
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return domain.Backup{}, err
	}

	payload := filepath.Join(dir, "payload")
	var sum string
	var size int64
	if info.IsDir() {
		sum, size, err = copyDir(res.Path, payload)
		res.Kind = domain.ResourceDirectory
	} else {
		sum, size, err = copyFile(res.Path, payload)
		res.Kind = domain.ResourceFile
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return domain.Backup{}, err
	}

	b := domain.Backup{
		ID:          id,
		Resource:    res,
		Operation:   operation,
		PayloadPath: payload,
		SHA256:      sum,
		SizeBytes:   size,
		CreatedAt:   m.now().UTC(),
	}
	meta, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		_ = os.RemoveAll(dir)
		return domain.Backup{}, err
	}
	if err := writeFileSync(filepath.Join(dir, "metadata.json"), meta); err != nil {
		_ = os.RemoveAll(dir)
		return domain.Backup{}, err
	}
	return b, nil
}

// Restore implements ports.BackupManager. When the target currently exists
// with content that diverged from the snapshot, the restore is reported as a
// conflict and skipped unless force is set; unexpected intermediate state is
// surfaced, never silently overwritten.
func (m *Manager) Restore(backupID string, force bool) (domain.RestoreResult, error) {
	b, err := m.Get(backupID)
	if err != nil {
		return domain.RestoreResult{}, err
	}

	var result domain.RestoreResult
	if _, statErr := os.Lstat(b.Resource.Path); statErr == nil && !force {
		current, hashErr := hashResource(b.Resource.Path)
		if hashErr == nil && current != b.SHA256 {
			result.Conflicts = append(result.Conflicts, b.Resource.Path)
			return result, nil
		}
		if hashErr == nil && current == b.SHA256 {
			result.Skipped = append(result.Skipped, b.Resource.Path)
			return result, nil
		}
	}

	if err := os.RemoveAll(b.Resource.Path); err != nil {
		return result, fmt.Errorf("clear restore target: %w", err)
	}
	if b.Resource.Kind == domain.ResourceDirectory {
		err = restoreDir(b.PayloadPath, b.Resource.Path)
	} else {
		_, _, err = copyFile(b.PayloadPath, b.Resource.Path)
	}
	if err != nil {
		return result, fmt.Errorf("restore %s: %w", b.Resource.Path, err)
	}
	result.Restored = append(result.Restored, b.Resource.Path)
	if m.log != nil {
		m.log.Info("backup restored", map[string]interface{}{"backup": b.ID, "target": b.Resource.Path})
	}
	return result, nil
}

// Get returns one backup by ID.
func (m *Manager) Get(backupID string) (domain.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.index[backupID]
	if !ok {
		return domain.Backup{}, fmt.Errorf("backup %s not found", backupID)
	}
	return b, nil
}

// List returns all backups, newest first.
func (m *Manager) List() ([]domain.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Backup, 0, len(m.index))
	for _, b := range m.index {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Prune removes backups older than the retention window. It is the only
// deletion path and is always explicitly invoked, never run implicitly.
func (m *Manager) Prune(retentionDays int) ([]string, error) {
	if retentionDays <= 0 {
		retentionDays = domain.DefaultBackupRetentionDays
	}
	cutoff := m.now().UTC().AddDate(0, 0, -retentionDays)

	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned []string
	for id, b := range m.index {
		if b.CreatedAt.Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(m.root, id)); err != nil {
				return pruned, fmt.Errorf("prune %s: %w", id, err)
			}
			delete(m.index, id)
			pruned = append(pruned, id)
		}
	}
	if len(pruned) > 0 {
		if err := m.saveIndexLocked(); err != nil {
			return pruned, err
		}
	}
	sort.Strings(pruned)
	return pruned, nil
}

func (m *Manager) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(m.root, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read backup index: %w", err)
	}
	if err := json.Unmarshal(data, &m.index); err != nil {
		return fmt.Errorf("parse backup index: %w", err)
	}
	return nil
}

func (m *Manager) saveIndexLocked() error {
	data, err := json.MarshalIndent(m.index, "", "  ")
	if err != nil {
		return err
	}
	return writeFileSync(filepath.Join(m.root, indexFile), data)
}

var _ ports.BackupManager = (*Manager)(nil)
