// Package webhook posts bridge output to a chat service through an
// incoming-webhook URL (Discord-compatible payload shape).
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxRetryWindow = 30 * time.Second

type Sender struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

func New(url string, log *slog.Logger) *Sender {
	return &Sender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type webhookPayload struct {
	Content string `json:"content"`
}

// Send posts one message, retrying transient failures with exponential
// backoff inside a bounded window.
func (s *Sender) Send(text string) error {
	body, err := json.Marshal(webhookPayload{Content: text})
	if err != nil {
		return err
	}

	op := func() error {
		req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("webhook status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("webhook status %d", resp.StatusCode))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxRetryWindow
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	return nil
}
