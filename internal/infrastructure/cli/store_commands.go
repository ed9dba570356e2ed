package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/doeshing/safecmd/internal/app"
	"github.com/doeshing/safecmd/internal/domain"
)

const (
	msgNoPendingProposals = "No proposals pending."
	msgNoBackupsStored    = "No backups stored."
	msgNoChangesRecorded  = "No changes recorded yet."
	msgNoRestorePoints    = "No restore points recorded."
)

func newBackupsCommand(container *app.Container) *cobra.Command {
	backupsCmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and restore pre-execution snapshots",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			backups, err := container.Engine.ListBackups()
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), msgNoBackupsStored)
				return nil
			}
			for _, b := range backups {
				fmt.Fprintf(cmd.OutOrStdout(), "%s | %s | %s | %s\n",
					b.ID,
					b.Resource,
					humanize.Bytes(uint64(b.SizeBytes)),
					humanize.Time(b.CreatedAt))
			}
			return nil
		},
	}

	var force bool
	restoreCmd := &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Restore a backup to its original location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := container.Engine.RestoreBackup(args[0], force)
			RenderRestoreResult(cmd.OutOrStdout(), result)
			return err
		},
	}
	restoreCmd.Flags().BoolVar(&force, "force", false, "Overwrite resources that changed since the snapshot")

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove backups past the configured retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := container.Engine.PruneBackups()
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
				return nil
			}
			for _, id := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", id)
			}
			return nil
		},
	}

	backupsCmd.AddCommand(listCmd, restoreCmd, pruneCmd)
	return backupsCmd
}

func newChangesCommand(container *app.Container) *cobra.Command {
	changesCmd := &cobra.Command{
		Use:   "changes",
		Short: "Inspect the append-only change ledger",
	}

	var (
		limit    int
		since    time.Duration
		resource string
		outcome  string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded changes, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.ChangeFilter{
				Resource: resource,
				Outcome:  domain.Outcome(outcome),
				Limit:    limit,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			records, err := container.Engine.ListChanges(filter)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), msgNoChangesRecorded)
				return nil
			}
			for _, rec := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s | %s | %s | %-7s | %s\n",
					rec.ExecutedAt.Format(time.RFC3339),
					rec.ID,
					strings.ToUpper(string(rec.Tier)),
					rec.Outcome,
					rec.CommandText)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", domain.DefaultChangeListLimit, "Max entries to show")
	listCmd.Flags().DurationVar(&since, "since", 0, "Only changes newer than this age (e.g. 24h)")
	listCmd.Flags().StringVar(&resource, "resource", "", "Only changes touching this resource path")
	listCmd.Flags().StringVar(&outcome, "outcome", "", "Only changes with this outcome (success|failure|partial|unknown)")

	showCmd := &cobra.Command{
		Use:   "show <change-id>",
		Short: "Show one ledger entry in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := container.Engine.GetChange(args[0])
			if err != nil {
				return err
			}
			renderChangeRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	changesCmd.AddCommand(listCmd, showCmd)
	return changesCmd
}

func newRollbackCommand(container *app.Container) *cobra.Command {
	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Inspect and apply generated rollback artifacts",
	}

	showCmd := &cobra.Command{
		Use:   "show <change-id>",
		Short: "Show the rollback plan for a change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := container.Engine.ShowRollback(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rollback %s for change %s", artifact.ID, artifact.ChangeID)
			if !artifact.Automatic() {
				fmt.Fprint(out, " (requires manual steps)")
			}
			fmt.Fprintln(out)
			for i, step := range artifact.Steps {
				fmt.Fprintf(out, "  %d. %s %s", i+1, step.Kind, step.Target)
				if step.Note != "" {
					fmt.Fprintf(out, " (%s)", step.Note)
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, "\nScript:")
			fmt.Fprint(out, artifact.Script)
			return nil
		},
	}

	applyCmd := &cobra.Command{
		Use:   "apply <change-id>",
		Short: "Apply the rollback for a change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, rec, err := container.Engine.RollbackChange(cmd.Context(), args[0])
			out := cmd.OutOrStdout()
			RenderRestoreResult(out, result)
			if rec.ID != "" {
				fmt.Fprintf(out, "Recorded as change %s (outcome: %s)\n", rec.ID, rec.Outcome)
			}
			return err
		},
	}

	rollbackCmd.AddCommand(showCmd, applyCmd)
	return rollbackCmd
}

func newRestorePointCommand(container *app.Container) *cobra.Command {
	restoreCmd := &cobra.Command{
		Use:   "restore-point",
		Short: "Manage OS-level restore points",
	}

	createCmd := &cobra.Command{
		Use:   "create [description]",
		Short: "Create a restore point through the configured OS mechanism",
		RunE: func(cmd *cobra.Command, args []string) error {
			description := strings.Join(args, " ")
			if description == "" {
				description = "manual checkpoint"
			}
			ref, err := container.Engine.CreateRestorePoint(cmd.Context(), description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created restore point %s (%s)\n", ref.ID, ref.Description)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List restore points created through safecmd",
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := container.Engine.ListRestorePoints(cmd.Context())
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), msgNoRestorePoints)
				return nil
			}
			for _, ref := range refs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s | %s | %s\n",
					ref.CreatedAt.Format(time.RFC3339), ref.ID, ref.Description)
			}
			return nil
		},
	}

	restoreCmd.AddCommand(createCmd, listCmd)
	return restoreCmd
}

func newDoctorCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Cross-check backups, ledger and proposals for crash leftovers",
		RunE: func(cmd *cobra.Command, args []string) error {
			warnings, err := container.Engine.Reconcile()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(warnings) == 0 {
				fmt.Fprintln(out, "Ledger and backup store are consistent.")
				return nil
			}
			for _, w := range warnings {
				fmt.Fprintf(out, "[WARN] %s\n", w)
			}
			return nil
		},
	}
}

func renderChangeRecord(out io.Writer, rec domain.ChangeRecord) {
	fmt.Fprintf(out, "Change: %s\n", rec.ID)
	fmt.Fprintf(out, "Command: %s\n", rec.CommandText)
	fmt.Fprintf(out, "Risk: %s (reversibility: %s)\n", strings.ToUpper(string(rec.Tier)), rec.Reversibility)
	fmt.Fprintf(out, "Outcome: %s (exit code %d)\n", rec.Outcome, rec.ExitCode)
	fmt.Fprintf(out, "Executed: %s (%s)\n", rec.ExecutedAt.Format(time.RFC3339), humanize.Time(rec.ExecutedAt))
	if rec.BeforeSummary != "" {
		fmt.Fprintf(out, "Before: %s\n", rec.BeforeSummary)
	}
	if rec.AfterSummary != "" {
		fmt.Fprintf(out, "After: %s\n", rec.AfterSummary)
	}
	for _, id := range rec.BackupIDs {
		fmt.Fprintf(out, "Backup: %s\n", id)
	}
	if rec.RollbackID != "" {
		fmt.Fprintf(out, "Rollback: %s\n", rec.RollbackID)
	}
	if rec.RestorePoint != "" {
		fmt.Fprintf(out, "Restore point: %s\n", rec.RestorePoint)
	}
}
