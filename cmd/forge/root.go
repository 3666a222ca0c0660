package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "forge",
		Short:         "forge drives submissions through a gradeforge orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runShell(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.AddCommand(newShellCmd(app))
	cmd.AddCommand(newSubmitCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
