package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"text/template"
)

// HTTP downloads an artifact from a URL, for artifact stores that expose
// plain HTTP (object storage, an internal artifact proxy, the GitHub
// artifact API). Zip and tar.gz responses are extracted into Request.Dir;
// anything else is written as the result file.
type HTTP struct {
	tmpl       *template.Template
	resultFile string
	token      string
	httpClient *http.Client
}

// NewHTTP parses the URL template. resultFile is the path, relative to
// Request.Dir, the response body is written to.
func NewHTTP(httpClient *http.Client, urlTemplate, resultFile, token string) (*HTTP, error) {
	tmpl, err := parseTemplate("url", urlTemplate)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTP{
		tmpl:       tmpl,
		resultFile: resultFile,
		token:      token,
		httpClient: httpClient,
	}, nil
}

// URL renders the download URL for req.
func (h *HTTP) URL(req Request) (string, error) {
	raw, err := render(h.tmpl, req, url.PathEscape)
	if err != nil {
		return "", err
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return "", fmt.Errorf("invalid download url %q: %w", raw, err)
	}
	return raw, nil
}

// Fetch downloads the result file. 404, 408, 429 and 5xx mean "not yet";
// any other non-200 status is permanent.
func (h *HTTP) Fetch(ctx context.Context, req Request) error {
	rawURL, err := h.URL(req)
	if err != nil {
		return Permanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if h.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("download failed with status %d", resp.StatusCode)
		if retryableStatus(resp.StatusCode) {
			return statusErr
		}
		return Permanent(statusErr)
	}

	switch format := archiveFormat(resp.Header.Get("Content-Type"), httpReq.URL.Path); format {
	case archiveZip:
		archivePath := filepath.Join(req.Dir, ".artifact.zip")
		defer os.Remove(archivePath)
		if _, err := writeAtomic(archivePath, resp.Body); err != nil {
			return err
		}
		if err := extractZip(archivePath, req.Dir); err != nil {
			return err
		}
		slog.Debug("Extracted artifact", "format", format, "dir", req.Dir)
	case archiveTarGz:
		if err := extractTarGz(resp.Body, req.Dir); err != nil {
			return err
		}
		slog.Debug("Extracted artifact", "format", format, "dir", req.Dir)
	default:
		destPath := filepath.Join(req.Dir, h.resultFile)
		written, err := writeAtomic(destPath, resp.Body)
		if err != nil {
			return err
		}
		slog.Debug("Downloaded artifact", "bytes", written, "path", destPath)
	}
	return nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusNotFound, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return code >= 500
	}
}

// writeAtomic streams r into path through a temp file so a partial download
// never leaves a result file behind.
func writeAtomic(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := file.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(file, r)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return 0, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("failed to move file into place: %w", err)
	}
	return written, nil
}
