package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"text/template"

	"github.com/mattn/go-shellwords"
)

// Command runs an external download command, e.g. `gh run download`.
// The command line is a text/template over Request; substituted values are
// shell-quoted before the line is split into argv, so no shell is involved.
type Command struct {
	tmpl *template.Template
	env  []string
}

// NewCommand parses the command template.
func NewCommand(commandTemplate string) (*Command, error) {
	tmpl, err := parseTemplate("command", commandTemplate)
	if err != nil {
		return nil, err
	}
	return &Command{tmpl: tmpl, env: os.Environ()}, nil
}

// Argv renders the command line for req and splits it into arguments.
func (c *Command) Argv(req Request) ([]string, error) {
	line, err := render(c.tmpl, req, shellQuote)
	if err != nil {
		return nil, err
	}

	argv, err := shellwords.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command template rendered to an empty command")
	}
	return argv, nil
}

// Fetch runs the command; exit status 0 means the artifact was downloaded.
func (c *Command) Fetch(ctx context.Context, req Request) error {
	argv, err := c.Argv(req)
	if err != nil {
		return Permanent(err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(append([]string{}, c.env...), req.Env()...)

	var output tailBuffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Permanent(fmt.Errorf("download command not found: %w", err))
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("download command failed: %w; output=%s", err, output.String())
	}

	slog.Debug("Download command succeeded", "artifact", req.Artifact, "command", argv[0])
	return nil
}
