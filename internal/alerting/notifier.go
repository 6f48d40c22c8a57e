// Package alerting delivers alert rising edges to operators.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ErrCooldown is returned when an alert for the same metric was delivered
// within the cooldown period.
var ErrCooldown = errors.New("alert suppressed by cooldown")

// Alert describes one alert rising edge.
type Alert struct {
	Metric   string            `json:"metric"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
	RaisedAt time.Time         `json:"raisedAt"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log. It is used when no webhook is
// configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the alert.
func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	event := n.logger.Warn().
		Str("metric", alert.Metric).
		Time("raised_at", alert.RaisedAt)
	for k, v := range alert.Details {
		event = event.Str(k, v)
	}
	event.Msg(alert.Title)
	return nil
}

// WebhookConfig holds configuration for a WebhookNotifier.
type WebhookConfig struct {
	URL string

	// Cooldown is the minimum gap between two deliveries for one metric.
	// Default: 15 minutes
	Cooldown time.Duration

	// Timeout bounds a single POST. Default: 10 seconds
	Timeout time.Duration

	// MaxRetries after the first attempt. Default: 3
	MaxRetries uint64

	// InitialInterval is the first retry delay. Default: 500ms
	InitialInterval time.Duration

	Logger zerolog.Logger
}

// WebhookNotifier POSTs alerts as JSON. Delivery is retried with exponential
// backoff on transport errors and 5xx responses.
type WebhookNotifier struct {
	url             string
	cooldown        time.Duration
	maxRetries      uint64
	initialInterval time.Duration
	client          *http.Client
	logger          zerolog.Logger
	now             func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}

	return &WebhookNotifier{
		url:             strings.TrimSpace(cfg.URL),
		cooldown:        cfg.Cooldown,
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		client:          &http.Client{Timeout: cfg.Timeout},
		logger:          cfg.Logger.With().Str("component", "alert_webhook").Logger(),
		now:             time.Now,
		lastSent:        make(map[string]time.Time),
	}
}

// Notify delivers alert unless the metric is cooling down.
func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	if !n.reserve(alert.Metric) {
		n.logger.Debug().Str("metric", alert.Metric).Msg("alert suppressed by cooldown")
		return ErrCooldown
	}

	body, err := json.Marshal(alert)
	if err != nil {
		n.release(alert.Metric)
		return fmt.Errorf("marshal alert: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.initialInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, n.maxRetries), ctx)

	attempts := 0
	err = backoff.Retry(func() error {
		attempts++
		return n.post(ctx, body)
	}, policy)
	if err != nil {
		n.release(alert.Metric)
		n.logger.Error().
			Err(err).
			Str("metric", alert.Metric).
			Int("attempts", attempts).
			Msg("alert delivery failed")
		return fmt.Errorf("deliver alert: %w", err)
	}

	n.logger.Info().
		Str("metric", alert.Metric).
		Int("attempts", attempts).
		Msg("alert delivered")
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("webhook rejected alert: %d", resp.StatusCode))
	}
}

// reserve claims the cooldown slot for metric.
func (n *WebhookNotifier) reserve(metric string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.lastSent[metric]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.lastSent[metric] = now
	return true
}

// release frees the slot after a failed delivery so the next edge retries.
func (n *WebhookNotifier) release(metric string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.lastSent, metric)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*WebhookNotifier)(nil)
)
