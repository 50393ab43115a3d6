package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"journeykit/core"
	"journeykit/leaderboard"
)

// ActivityInput is the body of RecordActivity. UserID and SessionID in the
// embedded context are ignored; the path decides them. A zero Timestamp
// means "now" on the server.
type ActivityInput struct {
	core.BadgeCheckContext
	HasCombo    bool   `json:"has_combo,omitempty"`
	IsEarlyBird bool   `json:"is_early_bird,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// CalculateInput previews a points calculation. A nil BasePoints uses the
// server's table for Activity.
type CalculateInput struct {
	Activity    core.ActivityType `json:"activity_type"`
	BasePoints  *int              `json:"base_points,omitempty"`
	Streak      int               `json:"streak"`
	HasCombo    bool              `json:"has_combo"`
	IsEarlyBird bool              `json:"is_early_bird"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// DismissResult is the queue after a dismiss. Dismissed is nil when the
// queue was already empty.
type DismissResult struct {
	Dismissed *core.CelebrationEvent  `json:"dismissed"`
	Current   *core.CelebrationEvent  `json:"current"`
	Pending   []core.CelebrationEvent `json:"pending"`
}

// Leaderboard is one session's ranking.
type Leaderboard struct {
	SessionID core.SessionID      `json:"session_id"`
	Entries   []leaderboard.Entry `json:"entries"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// IsInvalidInput reports whether err is a 400 rejecting the request input.
func IsInvalidInput(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")

// ErrEmptySessionID is returned when session id is empty.
var ErrEmptySessionID = errors.New("session id is required")
