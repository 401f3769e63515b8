package cli

import (
	"depwait/internal/apperrors"
	"depwait/internal/waiter"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
)

func (a *App) newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Inspect an already downloaded result file for the failure marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.FailureMarker == "" {
				return apperrors.Validation("failureMarker", "failure marker is required")
			}

			path := args[0]
			text, err := waiter.Inspect(filepath.Base(path), path, cfg.FailureMarker)
			code := apperrors.ExitCode(err, cfg.SkipExitCode)
			slog.Info("Checked result file", "path", path, "outcome", apperrors.Outcome(err), "exitCode", code)

			fmt.Fprintf(a.out(), "%s: %s\n", path, apperrors.Outcome(err))
			if text != "" && err != nil {
				fmt.Fprintln(a.out(), text)
			}
			if code != apperrors.ExitSuccess {
				return &exitError{code: code, err: err}
			}
			return nil
		},
	}
}
