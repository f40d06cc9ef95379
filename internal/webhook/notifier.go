// Package webhook delivers batch completion reports to caller-supplied
// callback URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Notifier POSTs JSON payloads to webhook URLs, retrying transient
// failures with backoff.
type Notifier struct {
	client      *http.Client
	logger      *zap.Logger
	retryDelays []time.Duration
}

// New builds a Notifier. A nil client gets a 10 second timeout default.
func New(client *http.Client, logger *zap.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		client:      client,
		logger:      logger,
		retryDelays: []time.Duration{time.Second, 5 * time.Second},
	}
}

// ValidateURL rejects webhook targets that are not absolute http(s) URLs.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url missing host")
	}
	return nil
}

// Notify delivers the payload. A 2xx answer counts as delivered; 5xx and
// transport errors are retried, anything else fails immediately.
func (n *Notifier) Notify(ctx context.Context, target string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(n.retryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook delivery canceled: %w", ctx.Err())
			case <-time.After(n.retryDelays[attempt-1]):
			}
		}
		retryable, err := n.post(ctx, target, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		n.logger.Warn("webhook delivery failed",
			zap.String("target", target),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return fmt.Errorf("delivering webhook after retries: %w", lastErr)
}

func (n *Notifier) post(ctx context.Context, target string, body []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("webhook answered %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook answered %d", resp.StatusCode)
	}
}
