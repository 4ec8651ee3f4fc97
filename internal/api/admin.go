package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"palaver/internal/content"
	"palaver/internal/models"
	"palaver/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdminStore interface {
	CreateUser(user models.User) error
	GetUser(id string) (models.User, error)
	AddFriendship(a, b string) error
	Block(blocker, blocked string) error
}

type TokenIssuer interface {
	IssueToken(userID string) (string, time.Time, error)
}

type Disconnector interface {
	ForceDisconnect(userID string) bool
}

// AdminHandler manages users and relations. It is served on the admin
// listener only.
type AdminHandler struct {
	store  AdminStore
	tokens TokenIssuer
	hub    Disconnector
	log    *zap.Logger
	now    func() time.Time
}

func NewAdminHandler(store AdminStore, tokens TokenIssuer, hub Disconnector, log *zap.Logger) *AdminHandler {
	return &AdminHandler{store: store, tokens: tokens, hub: hub, log: log, now: time.Now}
}

type AddUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

type TokenResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := content.ValidateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	user := models.User{
		ID:              uuid.NewString(),
		UserName:        req.Username,
		DisplayName:     content.Clean(displayName),
		Presence:        models.PreferenceOnline,
		LastSeenEnabled: true,
		CreatedAt:       h.now(),
	}
	if err := h.store.CreateUser(user); err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "Username is already taken")
			return
		}
		h.log.Error("failed to create user", zap.String("username", req.Username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create user: %v", err))
		return
	}
	h.log.Info("user created", zap.String("user_id", user.ID), zap.String("username", user.UserName))

	h.writeToken(w, user)
}

// TokenHandler issues a fresh session token for an existing user.
func (h *AdminHandler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.PathValue("id"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.writeToken(w, user)
}

func (h *AdminHandler) writeToken(w http.ResponseWriter, user models.User) {
	token, expiresAt, err := h.tokens.IssueToken(user.ID)
	if err != nil {
		h.log.Error("failed to issue token", zap.String("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeJSON(w, h.log, http.StatusOK, TokenResponse{
		Success:   true,
		UserID:    user.ID,
		Username:  user.UserName,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

type FriendRequest struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
}

func (h *AdminHandler) AddFriendHandler(w http.ResponseWriter, r *http.Request) {
	var req FriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.FriendID == "" || req.UserID == req.FriendID {
		writeError(w, http.StatusBadRequest, "Two different user IDs are required")
		return
	}

	if err := h.store.AddFriendship(req.UserID, req.FriendID); err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("Users %s and %s are now friends", req.UserID, req.FriendID),
	})
}

type BlockRequest struct {
	UserID    string `json:"userId"`
	BlockedID string `json:"blockedId"`
}

func (h *AdminHandler) BlockHandler(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.BlockedID == "" || req.UserID == req.BlockedID {
		writeError(w, http.StatusBadRequest, "Two different user IDs are required")
		return
	}

	if err := h.store.Block(req.UserID, req.BlockedID); err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("User %s blocked %s", req.UserID, req.BlockedID),
	})
}

func (h *AdminHandler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if !h.hub.ForceDisconnect(userID) {
		writeError(w, http.StatusNotFound, "User is not connected")
		return
	}
	writeJSON(w, h.log, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("User %s disconnected", userID),
	})
}

func (h *AdminHandler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	h.log.Error("admin request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Server error")
}
