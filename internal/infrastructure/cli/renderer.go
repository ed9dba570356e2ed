package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/doeshing/safecmd/internal/domain"
)

// RenderProposal prints a proposal's risk report in a friendly, ASCII-only
// format, ending with the next step the user should take.
func RenderProposal(out io.Writer, p domain.Proposal, explanation string) {
	fmt.Fprintf(out, "Proposal %s\n", p.Command.ID)
	fmt.Fprintf(out, "Command: %s\n", p.Command.Raw)
	if p.Command.Intent != "" {
		fmt.Fprintf(out, "Intent: %s\n", p.Command.Intent)
	}
	if explanation != "" {
		fmt.Fprintf(out, "Resolved: %s\n", explanation)
	}

	fmt.Fprintf(out, "\nRisk: %s (reversibility: %s, privilege: %s)\n",
		strings.ToUpper(string(p.Command.Tier)), p.Command.Reversibility, p.Command.Privilege)
	for _, rule := range p.Report.MatchedRules {
		fmt.Fprintf(out, " - matched rule: %s\n", rule)
	}
	for _, path := range p.Report.ProtectedPaths {
		fmt.Fprintf(out, " - touches protected path: %s\n", path)
	}
	for _, warning := range p.Report.Warnings {
		fmt.Fprintf(out, " - warning: %s\n", warning)
	}
	if p.Report.SaferAlternative != "" {
		fmt.Fprintf(out, "Safer alternative: %s\n", p.Report.SaferAlternative)
	}

	if p.State == domain.StateBlocked {
		fmt.Fprintln(out, "\nBLOCKED: this command matches a deny-list rule and will never execute.")
		return
	}

	if p.Prediction != nil {
		fmt.Fprintln(out)
		RenderPrediction(out, *p.Prediction)
	}
	fmt.Fprintf(out, "\nAwaiting approval. Run: safecmd approve %s\n", p.Command.ID)
}

// RenderPrediction prints the dry-run change set.
func RenderPrediction(out io.Writer, pred domain.PredictedChangeSet) {
	fmt.Fprintln(out, "Predicted changes:")
	if len(pred.Changes) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, c := range pred.Changes {
		marker := " "
		if c.Destructive {
			marker = "!"
		}
		fmt.Fprintf(out, "  %s %-7s %s", marker, c.Operation, c.Resource)
		if c.Detail != "" {
			fmt.Fprintf(out, " (%s)", c.Detail)
		}
		fmt.Fprintln(out)
	}
	if pred.RequiresAdmin {
		fmt.Fprintln(out, "  requires admin privileges")
	}
	if pred.EstimatedDuration > 0 {
		fmt.Fprintf(out, "  estimated duration: %s\n", pred.EstimatedDuration)
	}
	for _, note := range pred.Notes {
		fmt.Fprintf(out, "  note: %s\n", note)
	}
}

// RenderOutcome prints the result of an approved execution.
func RenderOutcome(out io.Writer, outcome domain.ApprovalOutcome) {
	if outcome.Execution != nil && outcome.Execution.DryRun {
		fmt.Fprintln(out, "Dry run, nothing executed.")
		if outcome.Prediction != nil {
			RenderPrediction(out, *outcome.Prediction)
		}
		return
	}

	for _, b := range outcome.Backups {
		fmt.Fprintf(out, "Backed up %s as %s\n", b.Resource, b.ID)
	}

	exec := outcome.Execution
	if exec != nil {
		switch {
		case exec.TimedOut:
			fmt.Fprintln(out, "Command timed out; resulting state is unknown.")
		case exec.ExitCode == 0 && exec.Ran:
			fmt.Fprintln(out, "Command executed successfully.")
		default:
			fmt.Fprintf(out, "Command failed with exit code %d.\n", exec.ExitCode)
		}
		if exec.Stdout != "" {
			fmt.Fprintln(out, "\nstdout:")
			fmt.Fprint(out, exec.Stdout)
		}
		if exec.Stderr != "" {
			fmt.Fprintln(out, "\nstderr:")
			fmt.Fprint(out, exec.Stderr)
		}
	}

	if outcome.Change != nil {
		fmt.Fprintf(out, "\nRecorded as change %s (outcome: %s)\n", outcome.Change.ID, outcome.Change.Outcome)
		if outcome.Change.RestorePoint != "" {
			fmt.Fprintf(out, "Restore point: %s\n", outcome.Change.RestorePoint)
		}
		fmt.Fprintf(out, "Rollback available via: safecmd rollback apply %s\n", outcome.Change.ID)
	}
}

// RenderRestoreResult prints the result of a restore or rollback application.
func RenderRestoreResult(out io.Writer, result domain.RestoreResult) {
	for _, r := range result.Restored {
		fmt.Fprintf(out, "restored: %s\n", r)
	}
	for _, s := range result.Skipped {
		fmt.Fprintf(out, "skipped (already matches snapshot): %s\n", s)
	}
	for _, c := range result.Conflicts {
		fmt.Fprintf(out, "CONFLICT (changed since snapshot, use --force to overwrite): %s\n", c)
	}
	for _, m := range result.Manual {
		fmt.Fprintf(out, "manual step required: %s\n", m)
	}
	if result.Clean() && len(result.Restored) == 0 && len(result.Skipped) == 0 {
		fmt.Fprintln(out, "nothing to restore")
	}
}
