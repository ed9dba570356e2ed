package rollback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/infrastructure/backup"
)

func newBackupManager(t *testing.T) *backup.Manager {
	t.Helper()
	m, err := backup.NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	return m
}

func sampleRecord(reversibility domain.Reversibility) domain.ChangeRecord {
	return domain.ChangeRecord{
		ID:            "chg-1",
		CommandID:     "cmd-1",
		CommandText:   "rm /tmp/a /tmp/b",
		Tier:          domain.TierHigh,
		Reversibility: reversibility,
		ExecutedAt:    time.Now(),
	}
}

func TestGenerateReversesForwardOrder(t *testing.T) {
	g, err := NewGenerator(t.TempDir())
	require.NoError(t, err)

	backups := []domain.Backup{
		{ID: "b-1", Resource: domain.ResourceDescriptor{Kind: domain.ResourceFile, Path: "/tmp/a"}},
		{ID: "b-2", Resource: domain.ResourceDescriptor{Kind: domain.ResourceDirectory, Path: "/tmp/b"}},
	}
	artifact, err := g.Generate(sampleRecord(domain.ReversibilityFull), backups)
	require.NoError(t, err)

	require.Len(t, artifact.Steps, 2)
	require.Equal(t, "b-2", artifact.Steps[0].BackupID)
	require.Equal(t, domain.StepRestoreDirectory, artifact.Steps[0].Kind)
	require.Equal(t, "b-1", artifact.Steps[1].BackupID)
	require.True(t, artifact.Automatic())
	require.Contains(t, artifact.Script, "safecmd backups restore b-2")
}

func TestGenerateIrreversibleStillProducesArtifact(t *testing.T) {
	g, err := NewGenerator(t.TempDir())
	require.NoError(t, err)

	record := sampleRecord(domain.ReversibilityNone)
	artifact, err := g.Generate(record, nil)
	require.NoError(t, err)

	require.Len(t, artifact.Steps, 1)
	require.Equal(t, domain.StepManual, artifact.Steps[0].Kind)
	require.False(t, artifact.Automatic())
	require.Contains(t, artifact.Script, "manual recovery required")
}

func TestGeneratePersistsAndLoads(t *testing.T) {
	dir := t.TempDir()
	g, err := NewGenerator(dir)
	require.NoError(t, err)

	record := sampleRecord(domain.ReversibilityFull)
	artifact, err := g.Generate(record, []domain.Backup{
		{ID: "b-1", Resource: domain.ResourceDescriptor{Kind: domain.ResourceFile, Path: "/tmp/a"}},
	})
	require.NoError(t, err)

	loaded, err := g.Load(record.ID)
	require.NoError(t, err)
	require.Equal(t, artifact, loaded)
	require.FileExists(t, filepath.Join(dir, record.ID+".sh"))
}

func TestApplyRestoresSnapshotContent(t *testing.T) {
	backups := newBackupManager(t)
	g, err := NewGenerator(t.TempDir())
	require.NoError(t, err)

	work := t.TempDir()
	target := filepath.Join(work, "doc.txt")
	require.NoError(t, os.WriteFile(target, []byte("pre-command content"), 0o644))

	snaps, err := backups.Snapshot([]domain.ResourceDescriptor{{Kind: domain.ResourceFile, Path: target}}, "delete")
	require.NoError(t, err)
	require.NoError(t, os.Remove(target))

	record := sampleRecord(domain.ReversibilityFull)
	artifact, err := g.Generate(record, snaps)
	require.NoError(t, err)

	result, err := NewApplier(backups, nil).Apply(artifact)
	require.NoError(t, err)
	require.True(t, result.Clean())
	require.Equal(t, []string{target}, result.Restored)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "pre-command content", string(data))
}

func TestApplySurfacesManualSteps(t *testing.T) {
	backups := newBackupManager(t)
	g, err := NewGenerator(t.TempDir())
	require.NoError(t, err)

	artifact, err := g.Generate(sampleRecord(domain.ReversibilityNone), nil)
	require.NoError(t, err)

	result, err := NewApplier(backups, nil).Apply(artifact)
	require.NoError(t, err)
	require.False(t, result.Clean())
	require.Len(t, result.Manual, 1)
}
