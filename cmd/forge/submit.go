package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newSubmitCmd implements the one-shot CLI shape: submit
// --exercise-name <name> --file-path <path>. Exits non-zero on any
// failure.
func newSubmitCmd(app *AppContext) *cobra.Command {
	opts := submitOptions{}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a source file against a single exercise and print its TestReport",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateSubmitOptions(opts); err != nil {
				return err
			}

			ctx, log := app.CommandContext(cmd, "command.submit")

			source, err := os.ReadFile(opts.FilePath)
			if err != nil {
				return fmt.Errorf("read source file: %w", err)
			}

			report, err := app.Ref.ProcessSubmission(ctx, opts.ExerciseName, string(source), app.User)
			if err != nil {
				if log != nil {
					log.Error(err, "submission failed")
				}
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&opts.ExerciseName, "exercise-name", "", "exercise to submit against")
	cmd.Flags().StringVar(&opts.FilePath, "file-path", "", "path to the submission source file")

	return cmd
}
