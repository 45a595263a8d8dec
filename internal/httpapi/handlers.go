package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storozh.org/internal/auth"
	"storozh.org/internal/moderation"
	"storozh.org/internal/obs"
)

const serviceName = "storozh"

// Moderator is the part of moderation.Service the API drives.
type Moderator interface {
	Dispatch(ctx context.Context, cmd moderation.Command) (moderation.Result, error)
	Logs(ctx context.Context, chatID, actorID, targetID int64) (moderation.Result, error)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe checks the persistent store. A nil Ping means always ready.
type ReadyProbe struct {
	Ping func(ctx context.Context) error
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Ping == nil {
		return nil
	}
	return rp.Ping(ctx)
}

// API is the HTTP surface: command ingress from the gateway and log reads.
type API struct {
	mux        *http.ServeMux
	mod        Moderator
	readyProbe readinessChecker
	signer     *auth.Signer
	version    string

	rateBurst  int
	ratePerSec int
	maxBody    int64
}

// New wires the routes. With a nil signer the API runs unauthenticated,
// which is only meant for local development.
func New(mod Moderator, rp readinessChecker, signer *auth.Signer, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		mod:        mod,
		readyProbe: rp,
		signer:     signer,
		version:    version,
		rateBurst:  40,
		ratePerSec: 20,
		maxBody:    64 << 10,
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/commands", a.Command)
	a.mux.HandleFunc("GET /v1/chats/{chat}/logs/{user}", a.ChatLogs)

	return a
}

// Handler returns the fully wrapped handler for the HTTP server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// Command runs one chat command delivered by the platform gateway.
func (a *API) Command(w http.ResponseWriter, r *http.Request) {
	if !a.requireScope(w, r, auth.ScopeGateway) {
		return
	}
	var cmd moderation.Command
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid command body")
		return
	}
	res, err := a.mod.Dispatch(r.Context(), cmd)
	if err != nil {
		a.writeModerationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ChatLogs returns a user's audit entries for one chat. The actor is taken
// from a user token, or from ?actor= when the token belongs to a service.
func (a *API) ChatLogs(w http.ResponseWriter, r *http.Request) {
	if !a.requireScope(w, r, auth.ScopeLogs) {
		return
	}
	chatID, err1 := strconv.ParseInt(r.PathValue("chat"), 10, 64)
	userID, err2 := strconv.ParseInt(r.PathValue("user"), 10, 64)
	if err1 != nil || err2 != nil || chatID == 0 || userID == 0 {
		respondError(w, r, http.StatusBadRequest, "chat and user must be non-zero integers")
		return
	}
	actorID, ok := a.logsActor(w, r)
	if !ok {
		return
	}
	res, err := a.mod.Logs(r.Context(), chatID, actorID, userID)
	if err != nil {
		a.writeModerationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) logsActor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var fromToken int64
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		fromToken, _ = claims.UserID()
	}
	raw := r.URL.Query().Get("actor")
	if raw == "" {
		if fromToken == 0 {
			respondError(w, r, http.StatusBadRequest, "actor is required")
			return 0, false
		}
		return fromToken, true
	}
	actor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || actor == 0 {
		respondError(w, r, http.StatusBadRequest, "actor must be a non-zero integer")
		return 0, false
	}
	if fromToken != 0 && fromToken != actor {
		respondError(w, r, http.StatusForbidden, "token does not belong to actor")
		return 0, false
	}
	return actor, true
}

func (a *API) writeModerationError(w http.ResponseWriter, r *http.Request, err error) {
	var de *moderation.DeniedError
	switch {
	case errors.As(err, &de):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":      de.Message(),
			"reason":     de.Decision.Reason,
			"request_id": requestIDFrom(r.Context()),
		})
	case errors.Is(err, moderation.ErrUserInput):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, moderation.ErrPlatform):
		obs.Warn("platform call failed", map[string]any{"error": err, "request_id": requestIDFrom(r.Context())})
		respondError(w, r, http.StatusBadGateway, "chat platform is unavailable, try again later")
	default:
		obs.Error("command failed", map[string]any{"error": err, "request_id": requestIDFrom(r.Context())})
		respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{"error": msg}
	if rid := requestIDFrom(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, code, body)
}
