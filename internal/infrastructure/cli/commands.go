package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/doeshing/safecmd/internal/app"
	"github.com/doeshing/safecmd/internal/domain"
)

func newProposeCommand(container *app.Container) *cobra.Command {
	var (
		intent     string
		fromPrompt bool
	)

	cmd := &cobra.Command{
		Use:   "propose [command text]",
		Short: "Classify and simulate a command, then queue it for approval",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if fromPrompt {
				p, explanation, err := container.Engine.ProposeFromPrompt(cmd.Context(), text)
				if err != nil && !errors.Is(err, domain.ErrValidationBlocked) {
					return err
				}
				RenderProposal(out, p, explanation)
				return err
			}

			p, err := container.Engine.Propose(cmd.Context(), text, intent)
			if err != nil && !errors.Is(err, domain.ErrValidationBlocked) {
				return err
			}
			RenderProposal(out, p, "")
			return err
		},
	}

	cmd.Flags().StringVar(&intent, "intent", "", "What the command is meant to accomplish (recorded with the proposal)")
	cmd.Flags().BoolVar(&fromPrompt, "from-prompt", false, "Treat the argument as natural language and resolve it to a command first")
	return cmd
}

func newApproveCommand(container *app.Container) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "approve <proposal-id>",
		Short: "Approve a pending proposal and run it under supervision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := container.Engine.Approve(cmd.Context(), args[0], dryRun)
			RenderOutcome(cmd.OutOrStdout(), outcome)
			if errors.Is(err, domain.ErrRestorePointUnavailable) {
				fmt.Fprintln(cmd.OutOrStdout(), "Held: a restore point is required for critical commands. Retry once the mechanism is available.")
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the predicted changes without executing")
	return cmd
}

func newCancelCommand(container *app.Container) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <proposal-id>",
		Short: "Reject a pending proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.Engine.Cancel(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled proposal %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the proposal is rejected (recorded in the audit log)")
	return cmd
}

func newPendingCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List proposals still awaiting a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			proposals, err := container.Engine.Pending()
			if err != nil {
				return err
			}
			if len(proposals) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), msgNoPendingProposals)
				return nil
			}
			for _, p := range proposals {
				fmt.Fprintf(cmd.OutOrStdout(), "%s | %s | %s | %s | %s\n",
					p.UpdatedAt.Format(time.RFC3339),
					p.Command.ID,
					strings.ToUpper(string(p.Command.Tier)),
					p.State,
					p.Command.Raw)
			}
			return nil
		},
	}
}

func newSimulateCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate [command text]",
		Short: "Predict what a command would change, without proposing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pred := container.Engine.Simulate(strings.Join(args, " "))
			RenderPrediction(cmd.OutOrStdout(), pred)
			return nil
		},
	}
}
