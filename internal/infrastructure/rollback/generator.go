// Package rollback synthesizes and applies inverse action sequences for
// completed change records.
package rollback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/ports"
)

// Generator builds rollback artifacts from change records and persists them
// under its artifact directory, one JSON document plus a reviewable shell
// script per change.
type Generator struct {
	dir string
	now func() time.Time
}

// NewGenerator opens (or creates) the artifact store at dir.
func NewGenerator(dir string) (*Generator, error) {
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return nil, fmt.Errorf("create rollback dir: %w", err)
	}
	return &Generator{dir: dir, now: time.Now}, nil
}

// Generate implements ports.RollbackGenerator. Steps undo effects in
// reverse forward order. A change with no backups still yields an artifact:
// its single step documents that manual recovery is required, so callers can
// distinguish "nothing to undo" from "cannot undo automatically".
func (g *Generator) Generate(record domain.ChangeRecord, backups []domain.Backup) (domain.RollbackArtifact, error) {
	// Artifact IDs are derived from the change ID so the append-only ledger
	// row can reference its artifact before generation happens.
	artifact := domain.RollbackArtifact{
		ID:        domain.RollbackArtifactID(record.ID),
		ChangeID:  record.ID,
		CreatedAt: g.now().UTC(),
	}

	// Last effect undone first.
	for i := len(backups) - 1; i >= 0; i-- {
		b := backups[i]
		kind := domain.StepRestoreFile
		if b.Resource.Kind == domain.ResourceDirectory {
			kind = domain.StepRestoreDirectory
		}
		artifact.Steps = append(artifact.Steps, domain.RollbackStep{
			Kind:     kind,
			Target:   b.Resource.Path,
			BackupID: b.ID,
			Note:     fmt.Sprintf("restore from backup %s", b.ID),
		})
	}

	if len(artifact.Steps) == 0 || record.Reversibility == domain.ReversibilityNone {
		artifact.Steps = append(artifact.Steps, domain.RollbackStep{
			Kind:   domain.StepManual,
			Target: record.CommandText,
			Note:   "manual recovery required",
		})
	}

	artifact.Script = renderScript(record, artifact)
	if err := g.persist(artifact); err != nil {
		return domain.RollbackArtifact{}, err
	}
	return artifact, nil
}

// Load implements ports.RollbackGenerator, fetching the artifact previously
// generated for a change.
func (g *Generator) Load(changeID string) (domain.RollbackArtifact, error) {
	data, err := os.ReadFile(g.artifactPath(changeID))
	if err != nil {
		return domain.RollbackArtifact{}, fmt.Errorf("load rollback artifact for change %s: %w", changeID, err)
	}
	var artifact domain.RollbackArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return domain.RollbackArtifact{}, fmt.Errorf("decode rollback artifact: %w", err)
	}
	return artifact, nil
}

func (g *Generator) persist(artifact domain.RollbackArtifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileSync(g.artifactPath(artifact.ChangeID), data); err != nil {
		return fmt.Errorf("persist rollback artifact: %w", err)
	}
	scriptPath := filepath.Join(g.dir, artifact.ChangeID+".sh")
	if err := writeFileSync(scriptPath, []byte(artifact.Script)); err != nil {
		return fmt.Errorf("persist rollback script: %w", err)
	}
	return nil
}

func (g *Generator) artifactPath(changeID string) string {
	return filepath.Join(g.dir, changeID+".json")
}

// renderScript produces the reviewable script form of the artifact. Restore
// steps reference the safecmd backup store rather than raw copies so the
// conflict checks still apply when the script is replayed through the CLI.
func renderScript(record domain.ChangeRecord, artifact domain.RollbackArtifact) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# Rollback for change " + record.ID + "\n")
	b.WriteString("# Original command: " + record.CommandText + "\n")
	b.WriteString("# Review before running.\n\n")
	for i, step := range artifact.Steps {
		fmt.Fprintf(&b, "# Step %d: %s %s\n", i+1, step.Kind, step.Target)
		switch step.Kind {
		case domain.StepRestoreFile, domain.StepRestoreDirectory:
			fmt.Fprintf(&b, "safecmd backups restore %s\n", step.BackupID)
		case domain.StepStartService:
			fmt.Fprintf(&b, "systemctl start %s\n", step.Target)
		default:
			fmt.Fprintf(&b, "echo %q\n", "manual recovery required: "+step.Target)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
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

var _ ports.RollbackGenerator = (*Generator)(nil)
