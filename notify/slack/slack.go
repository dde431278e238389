// Package slack posts bench notifications to a Slack incoming
// webhook, typically when a long sweep finishes overnight. Deliveries
// run behind a circuit breaker so a dead webhook cannot stall the
// caller on every message.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchtop-io/benchd/dataset"
	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/metrics"
	"github.com/benchtop-io/benchd/internal/netutil"
	"github.com/benchtop-io/benchd/internal/resilience"
)

const (
	defaultTimeout   = 10 * time.Second
	breakerThreshold = 3
	breakerCooldown  = 30 * time.Second
)

// Options configures a Notifier.
type Options struct {
	// WebhookURL is the Slack incoming-webhook endpoint. Required,
	// must be https.
	WebhookURL string
	// Channel overrides the webhook's default channel when set.
	Channel string
	// Timeout bounds each delivery. Defaults to 10s.
	Timeout time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Notifier delivers messages to one webhook.
type Notifier struct {
	url     string
	channel string
	timeout time.Duration
	client  *http.Client
	breaker *resilience.Breaker
	logger  zerolog.Logger
}

// New validates the webhook URL and builds a Notifier.
func New(opts Options) (*Notifier, error) {
	u, err := netutil.ValidateWebhookURL(opts.WebhookURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Notifier{
		url:     u,
		channel: opts.Channel,
		timeout: timeout,
		client:  client,
		breaker: resilience.NewBreaker("slack_webhook", breakerThreshold, breakerCooldown),
		logger:  log.WithComponent("slack"),
	}, nil
}

// Notify posts a plain text message to the webhook. While the breaker
// is open the message is dropped and an error wrapping
// resilience.ErrOpen returns.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("empty notification text")
	}

	msg := map[string]string{"text": text}
	if n.channel != "" {
		msg["channel"] = n.channel
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	err = n.breaker.Execute(func() error {
		return n.deliver(ctx, payload)
	})
	switch {
	case errors.Is(err, resilience.ErrOpen):
		metrics.IncNotification("skipped")
		n.logger.Debug().
			Str("url", netutil.SanitizeURL(n.url)).
			Msg("webhook circuit open, notification dropped")
		return fmt.Errorf("notification dropped: %w", err)
	case err != nil:
		metrics.IncNotification("failure")
		return err
	}
	metrics.IncNotification("success")
	return nil
}

func (n *Notifier) deliver(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		n.logger.Warn().
			Int("status", resp.StatusCode).
			Str("url", netutil.SanitizeURL(n.url)).
			Msg("webhook rejected notification")
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	n.logger.Debug().
		Str("url", netutil.SanitizeURL(n.url)).
		Msg("notification delivered")
	return nil
}

// NotifyRunComplete announces a finished run with its outcome and row
// count.
func (n *Notifier) NotifyRunComplete(ctx context.Context, run *dataset.Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	text := fmt.Sprintf("Run %q %s with %d rows (guid %s)",
		run.Name, run.Status, run.RowCount, run.GUID)
	return n.Notify(ctx, text)
}
