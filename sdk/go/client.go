package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"journeykit/core"
	"journeykit/engine"
	"journeykit/points"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the journeykit HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// RecordActivity reports one completed activity and returns what it earned.
func (c *Client) RecordActivity(ctx context.Context, userID, sessionID string, in ActivityInput) (engine.ActivityOutcome, error) {
	var out engine.ActivityOutcome
	p, err := sessionPath(userID, sessionID, "/activities")
	if err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, p, in, &out)
	return out, err
}

// State fetches the points, badges and recent transactions of a session.
func (c *Client) State(ctx context.Context, userID, sessionID string) (core.UserState, error) {
	var st core.UserState
	p, err := sessionPath(userID, sessionID, "")
	if err != nil {
		return st, err
	}
	err = c.do(ctx, http.MethodGet, p, nil, &st)
	return st, err
}

// EndSession drops the session's celebration queue. It reports whether a
// queue existed.
func (c *Client) EndSession(ctx context.Context, userID, sessionID string) (bool, error) {
	p, err := sessionPath(userID, sessionID, "")
	if err != nil {
		return false, err
	}
	var body struct {
		Ended bool `json:"ended"`
	}
	err = c.do(ctx, http.MethodDelete, p, nil, &body)
	return body.Ended, err
}

// Unseen lists badges the user has not acknowledged yet.
func (c *Client) Unseen(ctx context.Context, userID, sessionID string) ([]core.UserBadge, error) {
	p, err := sessionPath(userID, sessionID, "/badges/unseen")
	if err != nil {
		return nil, err
	}
	var body struct {
		Badges []core.UserBadge `json:"badges"`
	}
	err = c.do(ctx, http.MethodGet, p, nil, &body)
	return body.Badges, err
}

// MarkSeen acknowledges badges; no keys acknowledges all of them.
func (c *Client) MarkSeen(ctx context.Context, userID, sessionID string, keys ...core.BadgeKey) (int, error) {
	p, err := sessionPath(userID, sessionID, "/badges/seen")
	if err != nil {
		return 0, err
	}
	if keys == nil {
		keys = []core.BadgeKey{}
	}
	var body struct {
		Updated int `json:"updated"`
	}
	err = c.do(ctx, http.MethodPost, p, map[string]any{"badges": keys}, &body)
	return body.Updated, err
}

// Celebrations returns the current and pending celebrations.
func (c *Client) Celebrations(ctx context.Context, userID, sessionID string) (engine.CelebrationView, error) {
	var view engine.CelebrationView
	p, err := sessionPath(userID, sessionID, "/celebrations")
	if err != nil {
		return view, err
	}
	err = c.do(ctx, http.MethodGet, p, nil, &view)
	return view, err
}

// Dismiss removes the current celebration and promotes the next one.
func (c *Client) Dismiss(ctx context.Context, userID, sessionID string) (DismissResult, error) {
	var res DismissResult
	p, err := sessionPath(userID, sessionID, "/celebrations/dismiss")
	if err != nil {
		return res, err
	}
	err = c.do(ctx, http.MethodPost, p, nil, &res)
	return res, err
}

// ClearCelebrations empties the session's celebration queue.
func (c *Client) ClearCelebrations(ctx context.Context, userID, sessionID string) error {
	p, err := sessionPath(userID, sessionID, "/celebrations")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, p, nil, nil)
}

// Calculate previews the points of an activity without recording it.
func (c *Client) Calculate(ctx context.Context, in CalculateInput) (points.Result, error) {
	var res points.Result
	err := c.do(ctx, http.MethodPost, "/points/calculate", in, &res)
	return res, err
}

// Catalog lists badge definitions. Hidden badges are included on request.
func (c *Client) Catalog(ctx context.Context, includeHidden bool) ([]core.Badge, error) {
	var body struct {
		Badges []core.Badge `json:"badges"`
	}
	err := c.do(ctx, http.MethodGet, "/catalog?include_hidden="+strconv.FormatBool(includeHidden), nil, &body)
	return body.Badges, err
}

// Leaderboard returns the top entries of a session. limit <= 0 uses the
// server default.
func (c *Client) Leaderboard(ctx context.Context, sessionID string, limit int) (Leaderboard, error) {
	var lb Leaderboard
	if strings.TrimSpace(sessionID) == "" {
		return lb, ErrEmptySessionID
	}
	p := "/sessions/" + url.PathEscape(sessionID) + "/leaderboard"
	if limit > 0 {
		p += "?limit=" + strconv.Itoa(limit)
	}
	err := c.do(ctx, http.MethodGet, p, nil, &lb)
	return lb, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &hs)
	return hs, err
}

// EventFilter narrows the WebSocket stream. Empty fields match everything.
type EventFilter struct {
	UserID    string
	SessionID string
	Types     []core.EventType
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, f EventFilter) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if f.UserID != "" {
		q.Set("user", f.UserID)
	}
	if f.SessionID != "" {
		q.Set("session", f.SessionID)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		q.Set("types", strings.Join(types, ","))
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func sessionPath(userID, sessionID, suffix string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrEmptyUserID
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrEmptySessionID
	}
	return "/users/" + url.PathEscape(userID) + "/sessions/" + url.PathEscape(sessionID) + suffix, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
