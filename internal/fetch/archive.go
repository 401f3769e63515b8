package fetch

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Archive formats an HTTP download may arrive in.
const (
	archiveNone  = ""
	archiveZip   = "zip"
	archiveTarGz = "tar.gz"
)

// maxExtractedBytes bounds the total size extracted from one archive.
const maxExtractedBytes = 1 << 30

// archiveFormat detects an archive from the response Content-Type, falling
// back to the URL path suffix. GitHub's artifact API serves zip files.
func archiveFormat(contentType, urlPath string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "application/zip", "application/x-zip-compressed":
			return archiveZip
		case "application/gzip", "application/x-gzip", "application/x-tar+gzip", "application/x-gtar":
			return archiveTarGz
		}
	}

	lower := strings.ToLower(path.Base(urlPath))
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return archiveZip
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return archiveTarGz
	default:
		return archiveNone
	}
}

// safeJoin resolves name inside dest, rejecting entries that would escape it.
func safeJoin(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return filepath.Join(dest, clean), nil
}

// extractZip extracts the zip file at src into dest.
func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer r.Close()

	budget := int64(maxExtractedBytes)
	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			slog.Debug("Skipping archive entry", "name", f.Name, "mode", f.Mode())
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		n, err := extractFile(target, rc, budget)
		rc.Close()
		if err != nil {
			return err
		}
		budget -= n
	}
	return nil
}

// extractTarGz extracts a gzip-compressed tar stream into dest.
func extractTarGz(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	budget := int64(maxExtractedBytes)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			n, err := extractFile(target, tr, budget)
			if err != nil {
				return err
			}
			budget -= n
		default:
			slog.Debug("Skipping archive entry", "name", header.Name, "type", header.Typeflag)
		}
	}
}

// extractFile writes at most budget bytes of r to target.
func extractFile(target string, r io.Reader, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create parent directory: %w", err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(r, budget+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to extract %s: %w", filepath.Base(target), err)
	}
	if n > budget {
		return n, fmt.Errorf("archive exceeds %d bytes", int64(maxExtractedBytes))
	}
	return n, nil
}
