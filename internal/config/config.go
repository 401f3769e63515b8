// Package config provides configuration loading from environment variables.
package config

import (
	"depwait/internal/apperrors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Fetch modes.
const (
	FetchModeCommand = "command"
	FetchModeHTTP    = "http"
	FetchModeDocker  = "docker"
)

// DefaultFetchCommand downloads a run-scoped artifact with the GitHub CLI.
const DefaultFetchCommand = "gh run download --name {{.Artifact}} --dir {{.Dir}} --repo {{.Repository}}"

// Config holds configuration for a single depwait invocation.
// It is loaded once at start and treated as immutable afterwards.
type Config struct {
	DependenciesJSON string
	Repository       string
	RunID            string

	RetryInterval   time.Duration
	DownloadDir     string
	ResultFile      string
	FailureMarker   string
	SkipExitCode    int
	FetchMode       string
	FetchCommand    string
	FetchURL        string
	FetchToken      string
	FetchImage      string
	FetchTimeout    time.Duration
	CallbackURL     string
	CallbackKey     string
	CallbackEvents  string
	CallbackTimeout time.Duration
	MetricsTextfile string
	MetricsPort     string
	LogLevel        string
	LogFormat       string
}

// LoadConfigFromEnv loads depwait configuration from environment variables.
func LoadConfigFromEnv() *Config {
	return &Config{
		DependenciesJSON: GetEnv("DEPENDENCIES_JSON", "[]"),
		Repository:       FirstEnv("", "REPOSITORY", "GITHUB_REPOSITORY"),
		RunID:            FirstEnv("", "RUN_ID", "GITHUB_RUN_ID"),
		RetryInterval:    GetDurationEnv("RETRY_INTERVAL", 10*time.Second),
		DownloadDir:      GetEnv("DOWNLOAD_DIR", "artifacts"),
		ResultFile:       GetEnv("RESULT_FILE", "result.txt"),
		FailureMarker:    GetEnv("FAILURE_MARKER", "FAILURE"),
		SkipExitCode:     GetIntEnv("UPSTREAM_FAILURE_EXIT_CODE", 78),
		FetchMode:        strings.ToLower(GetEnv("FETCH_MODE", FetchModeCommand)),
		FetchCommand:     GetEnv("FETCH_COMMAND", DefaultFetchCommand),
		FetchURL:         GetEnv("FETCH_URL", ""),
		FetchToken:       GetSecretFile(GetEnv("FETCH_TOKEN_FILE", "")),
		FetchImage:       GetEnv("FETCH_IMAGE", "ghcr.io/cli/cli:latest"),
		FetchTimeout:     GetDurationEnv("FETCH_TIMEOUT", 5*time.Minute),
		CallbackURL:      GetEnv("CALLBACK_URL", ""),
		CallbackKey:      GetEnv("CALLBACK_KEY", GetSecretFile(GetEnv("CALLBACK_KEY_FILE", ""))),
		CallbackEvents:   GetEnv("CALLBACK_EVENTS", ""),
		CallbackTimeout:  GetDurationEnv("CALLBACK_TIMEOUT", 10*time.Second),
		MetricsTextfile:  GetEnv("METRICS_TEXTFILE", ""),
		MetricsPort:      GetEnv("METRICS_PORT", ""),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		LogFormat:        GetEnv("LOG_FORMAT", "json"),
	}
}

// ResultPath returns the path of the result file inside the download directory.
func (c *Config) ResultPath() string {
	return filepath.Join(c.DownloadDir, c.ResultFile)
}

// Validate checks the fields every invocation needs.
func (c *Config) Validate() error {
	if c.Repository == "" {
		return apperrors.Validation("repository", "GITHUB_REPOSITORY (or REPOSITORY) is required")
	}
	// Artifact names embed the run identifier so concurrent runs never collide.
	if c.RunID == "" {
		return apperrors.Validation("runId", "RUN_ID (or GITHUB_RUN_ID) is required")
	}
	if c.RetryInterval <= 0 {
		return apperrors.Validation("retryInterval", "retry interval must be positive")
	}
	if c.DownloadDir == "" {
		return apperrors.Validation("downloadDir", "download directory is required")
	}
	if c.ResultFile == "" || filepath.IsAbs(c.ResultFile) || strings.HasPrefix(filepath.Clean(c.ResultFile), "..") {
		return apperrors.Validation("resultFile", "result file must be a relative path inside the download directory")
	}
	if c.FailureMarker == "" {
		return apperrors.Validation("failureMarker", "failure marker is required")
	}
	if c.SkipExitCode < 1 || c.SkipExitCode > 255 {
		return apperrors.Validation("skipExitCode", fmt.Sprintf("upstream failure exit code must be 1-255, got %d", c.SkipExitCode))
	}

	switch c.FetchMode {
	case FetchModeCommand, FetchModeDocker:
		if strings.TrimSpace(c.FetchCommand) == "" {
			return apperrors.Validation("fetchCommand", "fetch command is required")
		}
	case FetchModeHTTP:
		if c.FetchURL == "" {
			return apperrors.Validation("fetchUrl", "FETCH_URL is required in http mode")
		}
	default:
		return apperrors.Validation("fetchMode", fmt.Sprintf("unknown fetch mode: %q", c.FetchMode))
	}

	if c.FetchMode == FetchModeDocker && c.FetchImage == "" {
		return apperrors.Validation("fetchImage", "FETCH_IMAGE is required in docker mode")
	}
	return nil
}
