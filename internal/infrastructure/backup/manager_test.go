package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/doeshing/safecmd/internal/domain"
)

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	m, err := NewManager(root, nil)
	require.NoError(t, err)
	return m, root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSnapshotAndRestoreFile(t *testing.T) {
	m, _ := newManager(t)
	work := t.TempDir()
	target := filepath.Join(work, "notes.txt")
	writeFile(t, target, "original content")

	backups, err := m.Snapshot([]domain.ResourceDescriptor{{Kind: domain.ResourceFile, Path: target}}, "delete file")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.NotEmpty(t, backups[0].SHA256)
	require.Equal(t, int64(len("original content")), backups[0].SizeBytes)

	// Simulate the destructive command, then restore.
	require.NoError(t, os.Remove(target))
	result, err := m.Restore(backups[0].ID, false)
	require.NoError(t, err)
	require.Equal(t, []string{target}, result.Restored)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "original content", string(data))
}

func TestSnapshotDirectoryRoundTrip(t *testing.T) {
	m, _ := newManager(t)
	work := t.TempDir()
	dir := filepath.Join(work, "project")
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "beta")

	backups, err := m.Snapshot([]domain.ResourceDescriptor{{Kind: domain.ResourceDirectory, Path: dir}}, "delete tree")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	result, err := m.Restore(backups[0].ID, false)
	require.NoError(t, err)
	require.True(t, result.Clean())

	data, err := os.ReadFile(filepath.Join(dir, "sub", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "beta", string(data))
}

func TestSnapshotPartialFailureRollsBack(t *testing.T) {
	m, root := newManager(t)
	work := t.TempDir()
	good := filepath.Join(work, "good.txt")
	writeFile(t, good, "keep me")

	resources := []domain.ResourceDescriptor{
		{Kind: domain.ResourceFile, Path: good},
		{Kind: domain.ResourceFile, Path: filepath.Join(work, "missing.txt")},
	}
	_, err := m.Snapshot(resources, "simulated failure")
	require.Error(t, err)

	var failure *domain.BackupFailure
	require.True(t, errors.As(err, &failure))

	// No partial backup may remain, on disk or in the index.
	list, err := m.List()
	require.NoError(t, err)
	require.Empty(t, list)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		require.Equal(t, "index.json", e.Name())
	}

	// The source resource is untouched.
	data, err := os.ReadFile(good)
	require.NoError(t, err)
	require.Equal(t, "keep me", string(data))
}

func TestRestoreSurfacesConflictOnDrift(t *testing.T) {
	m, _ := newManager(t)
	work := t.TempDir()
	target := filepath.Join(work, "config.yaml")
	writeFile(t, target, "before")

	backups, err := m.Snapshot([]domain.ResourceDescriptor{{Kind: domain.ResourceFile, Path: target}}, "edit")
	require.NoError(t, err)

	// Independent modification between backup and rollback time.
	writeFile(t, target, "someone else changed this")

	result, err := m.Restore(backups[0].ID, false)
	require.NoError(t, err)
	require.Equal(t, []string{target}, result.Conflicts)
	require.Empty(t, result.Restored)

	// Force overrides the conflict.
	result, err = m.Restore(backups[0].ID, true)
	require.NoError(t, err)
	require.Equal(t, []string{target}, result.Restored)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "before", string(data))
}

func TestIndexSurvivesReopen(t *testing.T) {
	m, root := newManager(t)
	work := t.TempDir()
	target := filepath.Join(work, "data.bin")
	writeFile(t, target, "payload")

	backups, err := m.Snapshot([]domain.ResourceDescriptor{{Kind: domain.ResourceFile, Path: target}}, "op")
	require.NoError(t, err)

	reopened, err := NewManager(root, nil)
	require.NoError(t, err)
	got, err := reopened.Get(backups[0].ID)
	require.NoError(t, err)
	require.Equal(t, backups[0].SHA256, got.SHA256)
}

func TestPruneRemovesOnlyExpiredBackups(t *testing.T) {
	m, _ := newManager(t)
	work := t.TempDir()
	oldFile := filepath.Join(work, "old.txt")
	newFile := filepath.Join(work, "new.txt")
	writeFile(t, oldFile, "old")
	writeFile(t, newFile, "new")

	m.now = func() time.Time { return time.Now().AddDate(0, 0, -45) }
	oldBackups, err := m.Snapshot([]domain.ResourceDescriptor{{Kind: domain.ResourceFile, Path: oldFile}}, "op")
	require.NoError(t, err)

	m.now = time.Now
	newBackups, err := m.Snapshot([]domain.ResourceDescriptor{{Kind: domain.ResourceFile, Path: newFile}}, "op")
	require.NoError(t, err)

	pruned, err := m.Prune(30)
	require.NoError(t, err)
	require.Equal(t, []string{oldBackups[0].ID}, pruned)

	_, err = m.Get(newBackups[0].ID)
	require.NoError(t, err)
}
