// Package webhook delivers domain events to HTTP endpoints. Each request
// body is signed with HMAC-SHA256 so receivers can verify its origin.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/events"
)

// Request headers set on every delivery.
const (
	HeaderSignature = "X-Clinic-Signature"
	HeaderEvent     = "X-Clinic-Event"
	HeaderDelivery  = "X-Clinic-Delivery"
	HeaderTimestamp = "X-Clinic-Timestamp"
)

var ErrClosed = errors.New("webhook publisher is closed")

// Config lists the endpoints and the event patterns they receive. A
// pattern is an exact type ("invoice.paid") or a prefix wildcard
// ("appointment.*").
type Config struct {
	URLs       []string
	Secret     string
	Events     []string
	MaxRetries int
	Timeout    time.Duration
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
}

func (c Config) Enabled() bool { return len(c.URLs) > 0 }

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature, with or without the "sha256="
// prefix, matches payload.
func VerifySignature(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url %q has no host", raw)
	}
	return nil
}

// Publisher implements events.Publisher. Deliveries run in the background;
// Close waits for them.
type Publisher struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPublisher validates cfg. The client may be nil.
func NewPublisher(cfg Config, client *http.Client, logger zerolog.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("no webhook urls configured")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("a webhook signing secret is required")
	}
	for _, u := range cfg.URLs {
		if err := validateURL(u); err != nil {
			return nil, err
		}
	}
	if len(cfg.Events) == 0 {
		cfg.Events = []string{"*"}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Publisher{cfg: cfg, client: client, logger: logger}, nil
}

func (p *Publisher) subscribed(eventType string) bool {
	for _, pat := range p.cfg.Events {
		if events.Matches(pat, eventType) {
			return true
		}
	}
	return false
}

// Publish queues ev for every endpoint when its type is subscribed.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	if !p.subscribed(ev.Type) {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	ctx = context.WithoutCancel(ctx)
	for _, u := range p.cfg.URLs {
		p.wg.Add(1)
		go func(target string) {
			defer p.wg.Done()
			if err := p.deliver(ctx, target, ev, payload); err != nil {
				p.logger.Warn().Err(err).
					Str("url", target).
					Str("event_type", ev.Type).
					Str("event_id", ev.ID.String()).
					Msg("webhook delivery failed")
			}
		}(u)
	}
	return nil
}

// deliver posts payload until a 2xx answer or the retries run out. 4xx
// answers other than 408 and 429 are not retried.
func (p *Publisher) deliver(ctx context.Context, target string, ev events.Event, payload []byte) error {
	sig := "sha256=" + SignPayload(payload, p.cfg.Secret)
	backoff := p.cfg.Backoff

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		retry, err := p.post(ctx, target, ev, payload, sig)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (p *Publisher) post(ctx context.Context, target string, ev events.Event, payload []byte, sig string) (retry bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderEvent, ev.Type)
	req.Header.Set(HeaderDelivery, ev.ID.String())
	req.Header.Set(HeaderTimestamp, time.Now().UTC().Format(time.RFC3339))

	resp, err := p.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	retry = resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests
	return retry, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
}

// Close rejects further events and waits for in-flight deliveries.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
