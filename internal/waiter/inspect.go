package waiter

import (
	"depwait/internal/apperrors"
	"depwait/internal/dependency"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// maxLoggedResult bounds how much of a result file is logged.
const maxLoggedResult = 200

// Inspect reads a downloaded result file and checks it for marker.
// A missing file is ErrArtifactMissing; a file containing marker anywhere
// in its trimmed text is ErrUpstreamFailed.
func Inspect(name, path, marker string) (string, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", apperrors.ArtifactMissing(name, path, err)
	}
	if err != nil {
		return "", apperrors.Internal("read result file", err)
	}

	text := strings.TrimSpace(string(content))
	if strings.Contains(text, marker) {
		return text, apperrors.UpstreamFailed(name, marker)
	}
	return text, nil
}

func (w *Waiter) inspect(logger *slog.Logger, spec dependency.Spec) error {
	path := w.config.ResultPath()
	text, err := Inspect(spec.Name, path, w.config.FailureMarker)

	switch {
	case errors.Is(err, apperrors.ErrArtifactMissing):
		logger.Error("Result file missing after download", "path", path)
	case errors.Is(err, apperrors.ErrUpstreamFailed):
		logger.Warn("Upstream job reported failure", "path", path, "result", truncate(text))
	case err != nil:
		logger.Error("Failed to read result file", "path", path, "error", err)
	default:
		logger.Info("Upstream job result", "result", truncate(text))
	}
	return err
}

func truncate(s string) string {
	if len(s) <= maxLoggedResult {
		return s
	}
	cut := maxLoggedResult
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
