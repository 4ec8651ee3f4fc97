package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"palaver/internal/auth"
	"palaver/internal/content"
	"palaver/internal/models"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type Authenticator interface {
	GetUserID(token string) (string, error)
	Logoff(token string) error
}

type Store interface {
	GetUser(id string) (models.User, error)
	SetLastSeenEnabled(userID string, enabled bool) error
	ListConversation(a, b string, limit int) ([]models.Message, error)
	ListNotifications(userID string, limit int) ([]models.Notification, error)
	UpsertPushSubscription(sub models.PushSubscription) error
}

type Presence interface {
	DisplayedStatus(userID string) (models.DisplayedStatus, error)
	SetPreference(userID string, pref models.PresencePreference) error
}

type API struct {
	auth     Authenticator
	store    Store
	presence Presence
	log      *zap.Logger
}

func New(auth Authenticator, store Store, presence Presence, log *zap.Logger) *API {
	return &API{auth: auth, store: store, presence: presence, log: log}
}

type ctxKey struct{}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequireAuth rejects requests without a valid token and passes the
// caller's user id down in the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.GetUserID(auth.TokenFromRequest(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	}
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		_ = a.auth.Logoff(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	writeJSON(w, a.log, http.StatusOK, models.APIResponse{Success: true})
}

type MeResponse struct {
	User   models.User            `json:"user"`
	Status models.DisplayedStatus `json:"status"`
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	user, err := a.store.GetUser(userID)
	if err != nil {
		a.storeError(w, err, "User not found")
		return
	}
	status, err := a.presence.DisplayedStatus(userID)
	if err != nil {
		a.storeError(w, err, "User not found")
		return
	}
	writeJSON(w, a.log, http.StatusOK, MeResponse{User: user, Status: status})
}

type PresenceRequest struct {
	Preference models.PresencePreference `json:"preference"`
}

func (a *API) SetPresenceHandler(w http.ResponseWriter, r *http.Request) {
	var req PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Preference.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid presence preference")
		return
	}

	if err := a.presence.SetPreference(userIDFrom(r.Context()), req.Preference); err != nil {
		a.storeError(w, err, "User not found")
		return
	}
	writeJSON(w, a.log, http.StatusOK, models.APIResponse{Success: true})
}

type LastSeenRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *API) SetLastSeenHandler(w http.ResponseWriter, r *http.Request) {
	var req LastSeenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := a.store.SetLastSeenEnabled(userIDFrom(r.Context()), req.Enabled); err != nil {
		a.storeError(w, err, "User not found")
		return
	}
	writeJSON(w, a.log, http.StatusOK, models.APIResponse{Success: true})
}

type StatusResponse struct {
	UserID     string                 `json:"userId"`
	Status     models.DisplayedStatus `json:"status"`
	LastSeenAt *time.Time             `json:"lastSeenAt,omitempty"`
}

// UserStatusHandler shows a friend's displayed status. Last seen is only
// shared when both sides have it enabled.
func (a *API) UserStatusHandler(w http.ResponseWriter, r *http.Request) {
	me, ok := a.friendOf(w, userIDFrom(r.Context()), r.PathValue("id"))
	if !ok {
		return
	}
	other, err := a.store.GetUser(r.PathValue("id"))
	if err != nil {
		a.storeError(w, err, "User not found")
		return
	}

	status, err := a.presence.DisplayedStatus(other.ID)
	if err != nil {
		a.storeError(w, err, "User not found")
		return
	}

	resp := StatusResponse{UserID: other.ID, Status: status}
	if me.LastSeenEnabled && other.LastSeenEnabled {
		resp.LastSeenAt = other.LastSeenAt
	}
	writeJSON(w, a.log, http.StatusOK, resp)
}

func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	friendID := r.PathValue("friendId")
	if _, ok := a.friendOf(w, userID, friendID); !ok {
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	messages, err := a.store.ListConversation(userID, friendID, limit)
	if err != nil {
		a.storeError(w, err, "Conversation not found")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	writeJSON(w, a.log, http.StatusOK, messages)
}

func (a *API) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	notifications, err := a.store.ListNotifications(userIDFrom(r.Context()), limit)
	if err != nil {
		a.storeError(w, err, "User not found")
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSON(w, a.log, http.StatusOK, notifications)
}

// PushSubscriptionRequest mirrors the browser's PushSubscription JSON.
type PushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req PushSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if content.ValidateMediaURL(req.Endpoint) != nil || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "Invalid push subscription")
		return
	}

	err := a.store.UpsertPushSubscription(models.PushSubscription{
		UserID:   userIDFrom(r.Context()),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		a.storeError(w, err, "User not found")
		return
	}
	writeJSON(w, a.log, http.StatusCreated, models.APIResponse{Success: true})
}

// friendOf loads the caller and checks that otherID is the caller itself
// or one of their friends. It writes the error response itself.
func (a *API) friendOf(w http.ResponseWriter, userID, otherID string) (models.User, bool) {
	me, err := a.store.GetUser(userID)
	if err != nil {
		a.storeError(w, err, "User not found")
		return models.User{}, false
	}
	if otherID != userID && !me.IsFriend(otherID) {
		writeError(w, http.StatusForbidden, "You can only view your friends")
		return models.User{}, false
	}
	return me, true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return 0, false
	}
	return min(limit, maxHistoryLimit), true
}

func (a *API) storeError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	a.log.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Server error")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIResponse{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", zap.Error(err))
	}
}
