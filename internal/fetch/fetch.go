// Package fetch implements the external download operation a waiter polls.
//
// A Fetcher either brings a dependency's result artifact into Request.Dir
// (nil error) or reports that it is not available yet (any error). Errors
// wrapped with Permanent signal misconfiguration and stop the wait.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"
)

// Request identifies one artifact download.
type Request struct {
	Dependency string
	Artifact   string
	RunID      string
	Repository string
	Dir        string
}

// Env returns the request as DEPWAIT_* environment entries.
func (r Request) Env() []string {
	return []string{
		"DEPWAIT_DEPENDENCY=" + r.Dependency,
		"DEPWAIT_ARTIFACT=" + r.Artifact,
		"DEPWAIT_RUN_ID=" + r.RunID,
		"DEPWAIT_REPOSITORY=" + r.Repository,
		"DEPWAIT_DIR=" + r.Dir,
	}
}

// Fetcher downloads a dependency's result artifact.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) error
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) error

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the waiter stops retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// parseTemplate parses a fetch template; unknown fields are errors at render time.
func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid %s template: %w", name, err)
	}
	return tmpl, nil
}

// render executes tmpl against req after passing every field through escape.
func render(tmpl *template.Template, req Request, escape func(string) string) (string, error) {
	data := Request{
		Dependency: escape(req.Dependency),
		Artifact:   escape(req.Artifact),
		RunID:      escape(req.RunID),
		Repository: escape(req.Repository),
		Dir:        escape(req.Dir),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:@%+=,-]+$`)

// shellQuote quotes s so go-shellwords reads it back as a single word.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// maxOutput bounds how much command output is attached to errors.
const maxOutput = 4 << 10

// tailBuffer keeps the last maxOutput bytes written to it.
type tailBuffer struct {
	buf []byte
}

var _ io.Writer = (*tailBuffer)(nil)

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - maxOutput; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}
