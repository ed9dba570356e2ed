package rollback

import (
	"github.com/doeshing/safecmd/internal/domain"
	"github.com/doeshing/safecmd/internal/ports"
)

// Applier executes rollback artifacts through the backup manager.
// Application is best-effort restoration: resources that drifted since
// backup time come back as conflicts, and manual steps are reported, not
// attempted.
type Applier struct {
	backups ports.BackupManager
	log     ports.Logger
}

// NewApplier builds an applier over the backup store.
func NewApplier(backups ports.BackupManager, log ports.Logger) *Applier {
	return &Applier{backups: backups, log: log}
}

// Apply implements ports.RollbackApplier. On a step failure it stops and
// returns *domain.RollbackFailure with whatever was already restored; it
// never retries, since re-applying a partially-applied inverse can compound
// damage.
func (a *Applier) Apply(artifact domain.RollbackArtifact) (domain.RestoreResult, error) {
	var result domain.RestoreResult
	for _, step := range artifact.Steps {
		switch step.Kind {
		case domain.StepRestoreFile, domain.StepRestoreDirectory:
			stepResult, err := a.backups.Restore(step.BackupID, false)
			if err != nil {
				return result, &domain.RollbackFailure{ChangeID: artifact.ChangeID, Step: step, Err: err}
			}
			result.Restored = append(result.Restored, stepResult.Restored...)
			result.Conflicts = append(result.Conflicts, stepResult.Conflicts...)
			result.Skipped = append(result.Skipped, stepResult.Skipped...)
		case domain.StepManual:
			result.Manual = append(result.Manual, step.Note+": "+step.Target)
		default:
			result.Manual = append(result.Manual, "unsupported step "+string(step.Kind)+": "+step.Target)
		}
	}
	if a.log != nil {
		a.log.Info("rollback applied", map[string]interface{}{
			"change":    artifact.ChangeID,
			"restored":  len(result.Restored),
			"conflicts": len(result.Conflicts),
			"manual":    len(result.Manual),
		})
	}
	return result, nil
}

var _ ports.RollbackApplier = (*Applier)(nil)
