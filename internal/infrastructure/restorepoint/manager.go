// Package restorepoint is the thin pass-through to the OS-level checkpoint
// mechanism. The checkpoints themselves are owned by the OS; this package
// only runs the configured commands and keeps a reference index.
package restorepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/ports"
)

// Manager implements ports.RestorePointer over a configured checkpoint
// command (Checkpoint-Computer on Windows, timeshift/snapper on Linux).
type Manager struct {
	settings domain.RestorePointSettings
	runner   ports.CommandExecutor
	log      ports.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewManager builds the pass-through. runner executes the checkpoint
// command; it is the same supervised executor used for approved commands.
func NewManager(settings domain.RestorePointSettings, runner ports.CommandExecutor, log ports.Logger) *Manager {
	return &Manager{settings: settings, runner: runner, log: log, now: time.Now}
}

// Create implements ports.RestorePointer. An unconfigured or failing
// mechanism yields domain.ErrRestorePointUnavailable so callers hold the
// command instead of silently downgrading it.
func (m *Manager) Create(ctx context.Context, description string) (domain.RestorePointRef, error) {
	if m.settings.CreateCommand == "" {
		return domain.RestorePointRef{}, domain.ErrRestorePointUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, domain.DefaultRestorePointTimeout)
	defer cancel()

	result, err := m.runner.Execute(ctx, m.settings.CreateCommand)
	if err != nil || result.ExitCode != 0 {
		if m.log != nil {
			m.log.Warn("restore point creation failed", map[string]interface{}{
				"exit_code": result.ExitCode,
				"stderr":    result.Stderr,
			})
		}
		return domain.RestorePointRef{}, fmt.Errorf("%w: checkpoint command failed", domain.ErrRestorePointUnavailable)
	}

	ref := domain.RestorePointRef{
		ID:          uuid.NewString(),
		Description: description,
		CreatedAt:   m.now().UTC(),
	}
	if err := m.appendRef(ref); err != nil {
		return domain.RestorePointRef{}, err
	}
	return ref, nil
}

// List implements ports.RestorePointer. With a list command configured the
// OS mechanism is queried directly, one checkpoint per output line; the
// local reference index is the fallback when the mechanism is unconfigured
// or its query fails.
func (m *Manager) List(ctx context.Context) ([]domain.RestorePointRef, error) {
	if m.settings.ListCommand != "" {
		refs, err := m.listFromCommand(ctx)
		if err == nil {
			return refs, nil
		}
		if m.log != nil {
			m.log.Warn("restore point listing failed, using local index", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readIndex()
}

func (m *Manager) listFromCommand(ctx context.Context) ([]domain.RestorePointRef, error) {
	ctx, cancel := context.WithTimeout(ctx, domain.DefaultRestorePointTimeout)
	defer cancel()

	result, err := m.runner.Execute(ctx, m.settings.ListCommand)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("list command exited with code %d", result.ExitCode)
	}

	var refs []domain.RestorePointRef
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ref := domain.RestorePointRef{ID: line, Description: line}
		if fields := strings.Fields(line); len(fields) > 1 {
			ref.ID = fields[0]
			ref.Description = strings.TrimSpace(line[len(fields[0]):])
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (m *Manager) appendRef(ref domain.RestorePointRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	refs, err := m.readIndex()
	if err != nil {
		return err
	}
	refs = append(refs, ref)
	data, err := json.MarshalIndent(refs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.settings.IndexFile), domain.DirectoryPermissions); err != nil {
		return err
	}
	f, err := os.OpenFile(m.settings.IndexFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, domain.SecureFilePermissions)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (m *Manager) readIndex() ([]domain.RestorePointRef, error) {
	data, err := os.ReadFile(m.settings.IndexFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read restore point index: %w", err)
	}
	var refs []domain.RestorePointRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("parse restore point index: %w", err)
	}
	return refs, nil
}

var _ ports.RestorePointer = (*Manager)(nil)
