// Package webhook delivers journeykit domain events to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"journeykit/core"
)

// Delivery headers.
const (
	HeaderEvent     = "X-Journeykit-Event"
	HeaderDelivery  = "X-Journeykit-Delivery"
	HeaderSignature = "X-Journeykit-Signature"
)

// Sink posts domain events to configured HTTP endpoints. Each event is
// sent to all endpoints concurrently; an endpoint answering 5xx or failing
// at the transport is retried with linear backoff.
type Sink struct {
	client    *http.Client
	endpoints []string
	events    map[core.EventType]struct{}
	secret    []byte
	retries   int
	backoff   time.Duration
	log       *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 5s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithEvents limits delivery to the given event types.
func WithEvents(types ...core.EventType) Option {
	return func(s *Sink) {
		for _, t := range types {
			s.events[t] = struct{}{}
		}
	}
}

// WithSecret signs each body with HMAC-SHA256 in HeaderSignature.
func WithSecret(secret string) Option { return func(s *Sink) { s.secret = []byte(secret) } }

// WithRetries sets how often a failed delivery is retried and the base
// delay between attempts.
func WithRetries(n int, backoff time.Duration) Option {
	return func(s *Sink) {
		if n >= 0 {
			s.retries = n
		}
		s.backoff = backoff
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// DefaultBackoff is the base delay between delivery attempts.
const DefaultBackoff = 200 * time.Millisecond

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		events:  map[core.EventType]struct{}{},
		retries: 3,
		backoff: DefaultBackoff,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Wants reports whether the sink delivers events of typ.
func (s *Sink) Wants(typ core.EventType) bool {
	if len(s.events) == 0 {
		return true
	}
	_, ok := s.events[typ]
	return ok
}

// Handle is an engine event handler. Delivery errors are logged.
func (s *Sink) Handle(ctx context.Context, e core.Event) {
	if err := s.Deliver(ctx, e); err != nil {
		s.log.Warn("webhook delivery failed", "event", e.Type, "user", e.UserID, "error", err)
	}
}

// Deliver posts e to every endpoint and returns the first endpoint error.
func (s *Sink) Deliver(ctx context.Context, e core.Event) error {
	if len(s.endpoints) == 0 || !s.Wants(e.Type) {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	id := uuid.NewString()

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range s.endpoints {
		ep := ep
		g.Go(func() error {
			if err := s.post(gctx, ep, id, e.Type, body); err != nil {
				return fmt.Errorf("%s: %w", ep, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Sink) post(ctx context.Context, endpoint, id string, typ core.EventType, body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}
		retry, err := s.send(ctx, endpoint, id, typ, body)
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

// send makes one attempt and reports whether a failure is worth retrying.
func (s *Sink) send(ctx context.Context, endpoint, id string, typ core.EventType, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(typ))
	req.Header.Set(HeaderDelivery, id)
	if len(s.secret) > 0 {
		req.Header.Set(HeaderSignature, "sha256="+Sign(s.secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}
	return false, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
