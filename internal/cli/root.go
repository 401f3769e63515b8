// Package cli implements the depwait command line.
package cli

import (
	"context"
	"depwait/internal/config"
	"depwait/internal/fetch"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// App holds the process-level collaborators of the CLI.
type App struct {
	Out io.Writer
	Err io.Writer

	// NewFetcher builds the artifact fetcher; defaults to fetch.New.
	NewFetcher func(ctx context.Context, cfg *config.Config) (fetch.Fetcher, error)
}

// exitError carries a specific process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the command line and returns the process exit status.
func (a *App) Execute(ctx context.Context, args []string) int {
	cmd := a.NewRootCommand()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(a.errOut(), "Error:", err)
	return 1
}

// NewRootCommand builds the depwait command tree. Running the root command
// without a subcommand is the same as "depwait wait".
func (a *App) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "depwait",
		Short:         "Wait for upstream CI jobs and gate on their results",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out())
	root.SetErr(a.errOut())

	flags := root.PersistentFlags()
	flags.String("env-file", os.Getenv("DEPWAIT_ENV_FILE"), "dotenv file loaded before reading the environment")
	flags.Duration("retry-interval", 0, "time between fetch attempts (overrides RETRY_INTERVAL)")
	flags.String("download-dir", "", "directory artifacts are downloaded into (overrides DOWNLOAD_DIR)")
	flags.String("fetch-mode", "", "command, http or docker (overrides FETCH_MODE)")
	flags.Int("upstream-failure-exit-code", 0, "exit code when an upstream job failed (overrides UPSTREAM_FAILURE_EXIT_CODE)")

	wait := a.newWaitCommand()
	root.RunE = wait.RunE
	root.AddCommand(wait, a.newValidateCommand(), a.newCheckCommand())
	return root
}

// loadConfig reads the environment (after the optional dotenv file), applies
// flag overrides and installs the configured logger.
func (a *App) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	envFile, err := flags.GetString("env-file")
	if err != nil {
		return nil, err
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg := config.LoadConfigFromEnv()
	if err := applyFlags(flags, cfg); err != nil {
		return nil, err
	}

	logger, err := newLogger(a.out(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

// applyFlags overrides cfg with the flags set explicitly on the command line.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	if flags.Changed("retry-interval") {
		if cfg.RetryInterval, err = flags.GetDuration("retry-interval"); err != nil {
			return err
		}
	}
	if flags.Changed("download-dir") {
		if cfg.DownloadDir, err = flags.GetString("download-dir"); err != nil {
			return err
		}
	}
	if flags.Changed("fetch-mode") {
		if cfg.FetchMode, err = flags.GetString("fetch-mode"); err != nil {
			return err
		}
	}
	if flags.Changed("upstream-failure-exit-code") {
		if cfg.SkipExitCode, err = flags.GetInt("upstream-failure-exit-code"); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *App) errOut() io.Writer {
	if a.Err == nil {
		return os.Stderr
	}
	return a.Err
}
