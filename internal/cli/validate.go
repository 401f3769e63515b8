package cli

import (
	"depwait/internal/apperrors"
	"depwait/internal/dependency"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (a *App) newValidateCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the planned artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			specs, err := loadDependencies(cfg)
			if err != nil {
				fmt.Fprintln(a.out(), "invalid:", err)
				return &exitError{code: apperrors.ExitFailure, err: err}
			}

			out := a.out()
			if asJSON {
				// Defaults applied, so the output can be fed back as DEPENDENCIES_JSON.
				data, err := dependency.Marshal(specs)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			// Each dependency's clock starts when the previous one resolves,
			// so the latest deadline is the running sum of timeouts.
			var worst time.Duration
			fmt.Fprintf(out, "repository=%s runId=%s fetchMode=%s\n", cfg.Repository, cfg.RunID, cfg.FetchMode)
			for _, spec := range specs {
				worst += spec.Timeout
				fmt.Fprintf(out, "%-24s artifact=%s timeout=%s latest=+%s\n",
					spec.Name, spec.ArtifactName(cfg.RunID), spec.Timeout, worst)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the normalized dependency list as JSON")
	return cmd
}
