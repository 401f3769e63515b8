package cloudevent

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"depwait/pkg/retry"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sender sends CloudEvents over HTTP.
type Sender struct {
	client *http.Client
	retry  retry.Config
}

// NewSender creates a new CloudEvent sender. Failed deliveries are retried
// following policy; client errors (4xx) are never retried.
func NewSender(timeout time.Duration, policy retry.Config) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
		retry:  policy,
	}
}

// SendOptions controls how a CloudEvent is sent.
type SendOptions struct {
	SigningKey string // HMAC key for signing
}

// Send delivers a CloudEvent via HTTP POST, retrying transient failures.
func (s *Sender) Send(ctx context.Context, url string, event *CloudEvent, opts SendOptions) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return backoff.Retry(func() error {
		err := s.post(ctx, url, event, body, opts)
		if IsClientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, retry.NewExponential(ctx, s.retry))
}

func (s *Sender) post(ctx context.Context, url string, event *CloudEvent, body []byte, opts SendOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	// CloudEvent headers
	req.Header.Set("Content-Type", "application/cloudevents+json")
	req.Header.Set("Ce-Specversion", event.SpecVersion)
	req.Header.Set("Ce-Type", event.Type)
	req.Header.Set("Ce-Source", event.Source)
	req.Header.Set("Ce-Subject", event.Subject)
	req.Header.Set("Ce-Id", event.ID)
	req.Header.Set("Ce-Time", event.Time.Format(time.RFC3339))

	if opts.SigningKey != "" {
		req.Header.Set("X-Signature-256", generateSignature(body, opts.SigningKey))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &HTTPError{StatusCode: resp.StatusCode}
}

// Sign computes HMAC-SHA256 signature for a CloudEvent.
func Sign(event *CloudEvent, key string) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return generateSignature(body, key), nil
}

// generateSignature generates HMAC-SHA256 signature.
func generateSignature(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsClientError returns true for 4xx errors (shouldn't retry).
func IsClientError(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}
