package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	wsadapter "journeykit/adapters/websocket"
	"journeykit/core"
	"journeykit/engine"
	"journeykit/leaderboard"
	"journeykit/points"
	"journeykit/realtime"
)

const (
	maxBodyBytes        = 1 << 20
	defaultLeaderboardN = 10
	maxLeaderboardN     = 100
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Leaderboards, if set, serves per-session rankings.
	Leaderboards *leaderboard.Boards
	Logger       *slog.Logger
	// Now stamps activities posted without a timestamp.
	Now func() time.Time
}

type api struct {
	svc      *engine.Service
	boards   *leaderboard.Boards
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

// NewMux builds an http.Handler exposing the journey REST API and WebSocket
// stream. Routes, under the prefix:
//   - GET    /healthz
//   - GET    /catalog?include_hidden=true
//   - POST   /points/calculate
//   - POST   /users/{user}/sessions/{session}/activities
//   - GET    /users/{user}/sessions/{session}
//   - DELETE /users/{user}/sessions/{session}
//   - GET    /users/{user}/sessions/{session}/badges/unseen
//   - POST   /users/{user}/sessions/{session}/badges/seen
//   - GET    /users/{user}/sessions/{session}/celebrations
//   - POST   /users/{user}/sessions/{session}/celebrations/dismiss
//   - DELETE /users/{user}/sessions/{session}/celebrations
//   - GET    /sessions/{session}/leaderboard?limit=N
//   - WS     /ws?user=ID
func NewMux(svc *engine.Service, hub *realtime.Hub, opts Options) http.Handler {
	a := &api{
		svc:      svc,
		boards:   opts.Leaderboards,
		validate: newValidator(),
		log:      opts.Logger,
		now:      opts.Now,
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)
	if opts.AllowCORSOrigin != "" {
		r.Use(withCORS(opts.AllowCORSOrigin))
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		r.Use(withRateLimit(opts.RateLimitRPM, opts.RateLimitBurst))
	}
	if len(opts.APIKeys) > 0 {
		r.Use(withAPIKeyAuth(opts.APIKeys))
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	routes := func(r chi.Router) {
		r.Get("/healthz", a.healthCheck)
		r.Get("/catalog", a.catalog)
		r.Post("/points/calculate", a.calculate)
		r.Route("/users/{user}/sessions/{session}", func(r chi.Router) {
			r.Get("/", a.state)
			r.Delete("/", a.endSession)
			r.Post("/activities", a.recordActivity)
			r.Get("/badges/unseen", a.unseen)
			r.Post("/badges/seen", a.markSeen)
			r.Get("/celebrations", a.celebrations)
			r.Post("/celebrations/dismiss", a.dismiss)
			r.Delete("/celebrations", a.clearCelebrations)
		})
		if a.boards != nil {
			r.Get("/sessions/{session}/leaderboard", a.leaderboard)
		}
		if hub != nil {
			r.Handle("/ws", wsadapter.Handler(hub))
		}
	}
	prefix := strings.TrimSuffix(opts.PathPrefix, "/")
	if prefix == "" {
		routes(r)
	} else {
		r.Route(prefix, routes)
	}
	return r
}

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names in validation details
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// healthCheck verifies the storage backend answers.
func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	_, err := a.svc.State(r.Context(), "healthcheck_probe", "healthcheck")

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}
	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	}
	writeJSONStatus(w, code, status)
}

func (a *api) catalog(w http.ResponseWriter, r *http.Request) {
	hidden, _ := strconv.ParseBool(r.URL.Query().Get("include_hidden"))
	writeJSON(w, map[string]any{"badges": a.svc.Catalog(hidden)})
}

type calculateRequest struct {
	Activity    core.ActivityType `json:"activity_type" validate:"required"`
	BasePoints  *int              `json:"base_points" validate:"omitempty,gte=0"`
	Streak      int               `json:"streak"`
	HasCombo    bool              `json:"has_combo"`
	IsEarlyBird bool              `json:"is_early_bird"`
}

func (a *api) calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if !a.decode(w, r, &req) {
		return
	}
	in := points.Input{
		Activity:    req.Activity,
		Streak:      req.Streak,
		HasCombo:    req.HasCombo,
		IsEarlyBird: req.IsEarlyBird,
	}
	if req.BasePoints != nil {
		in.BasePoints = *req.BasePoints
	} else {
		in.BasePoints = a.svc.Economy().Base[req.Activity]
	}
	res, err := a.svc.Calculate(in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// activityRequest is the snapshot body of a completed activity. The user
// and session come from the path.
type activityRequest struct {
	core.BadgeCheckContext
	HasCombo    bool   `json:"has_combo"`
	IsEarlyBird bool   `json:"is_early_bird"`
	Reference   string `json:"reference" validate:"max=256"`
}

func (a *api) recordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !a.decode(w, r, &req) {
		return
	}
	snap := req.BadgeCheckContext
	snap.UserID = core.UserID(chi.URLParam(r, "user"))
	snap.SessionID = core.SessionID(chi.URLParam(r, "session"))
	if snap.Timestamp.IsZero() {
		snap.Timestamp = a.now()
	}
	out, err := a.svc.RecordActivity(r.Context(), engine.ActivityRequest{
		Context:     snap,
		HasCombo:    req.HasCombo,
		IsEarlyBird: req.IsEarlyBird,
		Reference:   req.Reference,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, out)
}

func (a *api) state(w http.ResponseWriter, r *http.Request) {
	user, session := pathIDs(r)
	st, err := a.svc.State(r.Context(), user, session)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, st)
}

func (a *api) endSession(w http.ResponseWriter, r *http.Request) {
	user, session := pathIDs(r)
	ended, err := a.svc.EndSession(user, session)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ended": ended})
}

func (a *api) unseen(w http.ResponseWriter, r *http.Request) {
	user, session := pathIDs(r)
	badges, err := a.svc.Unseen(r.Context(), user, session)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"badges": badges})
}

type markSeenRequest struct {
	// Badges lists the keys to acknowledge; empty means all.
	Badges []core.BadgeKey `json:"badges" validate:"max=100,dive,required"`
}

func (a *api) markSeen(w http.ResponseWriter, r *http.Request) {
	var req markSeenRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, session := pathIDs(r)
	n, err := a.svc.MarkSeen(r.Context(), user, session, req.Badges)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"updated": n})
}

func (a *api) celebrations(w http.ResponseWriter, r *http.Request) {
	user, session := pathIDs(r)
	view, err := a.svc.Celebrations(user, session)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, view)
}

func (a *api) dismiss(w http.ResponseWriter, r *http.Request) {
	user, session := pathIDs(r)
	ev, ok, err := a.svc.Dismiss(user, session)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	view, _ := a.svc.Celebrations(user, session)
	resp := map[string]any{"dismissed": nil, "current": view.Current, "pending": view.Pending}
	if ok {
		resp["dismissed"] = ev
	}
	writeJSON(w, resp)
}

func (a *api) clearCelebrations(w http.ResponseWriter, r *http.Request) {
	user, session := pathIDs(r)
	if err := a.svc.ClearCelebrations(user, session); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request) {
	session, err := core.NormalizeSessionID(core.SessionID(chi.URLParam(r, "session")))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	limit := defaultLeaderboardN
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLeaderboardN {
			writeError(w, http.StatusBadRequest, "invalid_limit", fmt.Sprintf("limit must be between 1 and %d", maxLeaderboardN), nil)
			return
		}
		limit = n
	}
	writeJSON(w, map[string]any{"session_id": session, "entries": a.boards.Top(session, limit)})
}

// Helpers

func pathIDs(r *http.Request) (core.UserID, core.SessionID) {
	return core.UserID(chi.URLParam(r, "user")), core.SessionID(chi.URLParam(r, "session"))
}

// decode reads a JSON body into dst and validates it, writing the error
// response itself when it fails.
func (a *api) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]map[string]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, map[string]string{"field": fe.Field(), "rule": fe.Tag()})
			}
			writeError(w, http.StatusBadRequest, "invalid_request", "request validation failed", details)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return false
	}
	return true
}

func (a *api) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *core.InputError
	if errors.As(err, &ie) {
		details := map[string]any{"field": ie.Field}
		if ie.Value != "" {
			details["value"] = ie.Value
		}
		if ie.Badge != "" {
			details["badge"] = ie.Badge
		}
		writeError(w, http.StatusBadRequest, "invalid_input", ie.Error(), details)
		return
	}
	a.log.Error("request failed", "request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}
