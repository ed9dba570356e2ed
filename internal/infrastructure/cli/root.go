package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/doeshing/safecmd/internal/app"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, error) {
	container, err := app.BuildContainer(ctx, opts.Verbose)
	if err != nil {
		return nil, err
	}

	proposeCmd := newProposeCommand(container)

	root := &cobra.Command{
		Use:   "safecmd [command text]",
		Short: "safecmd - supervised command execution with backups and rollback",
		Long: "safecmd classifies shell commands by risk, predicts their effects,\n" +
			"backs up what they touch, runs them under supervision and records\n" +
			"every change in an append-only ledger with generated rollbacks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			proposeCmd.SetArgs(args)
			return proposeCmd.ExecuteContext(cmd.Context())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(proposeCmd)
	root.AddCommand(newApproveCommand(container))
	root.AddCommand(newCancelCommand(container))
	root.AddCommand(newPendingCommand(container))
	root.AddCommand(newSimulateCommand(container))
	root.AddCommand(newBackupsCommand(container))
	root.AddCommand(newChangesCommand(container))
	root.AddCommand(newRollbackCommand(container))
	root.AddCommand(newRestorePointCommand(container))
	root.AddCommand(newConfigCommand(container))
	root.AddCommand(newDoctorCommand(container))
	root.AddCommand(newVersionCommand())
	return root, nil
}
