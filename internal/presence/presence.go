package presence

import (
	"fmt"

	"palaver/internal/models"

	"go.uber.org/zap"
)

type UserStore interface {
	GetUser(id string) (models.User, error)
	SetPresence(userID string, pref models.PresencePreference) error
}

type Connections interface {
	IsOnline(userID string) bool
}

type Emitter interface {
	Emit(userID string, evt models.ServerEvent) bool
}

// Status derives what others see from connection state and preference.
func Status(connected bool, pref models.PresencePreference) models.DisplayedStatus {
	switch {
	case !connected:
		return models.StatusOffline
	case pref == models.PreferenceOffline:
		return models.StatusOffline
	case pref == models.PreferenceDoNotDisturb:
		return models.StatusDoNotDisturb
	default:
		return models.StatusOnline
	}
}

// Resolver computes displayed status on demand and pushes changes to
// online friends. Nothing is cached: the preference is read from the
// store on every call.
type Resolver struct {
	conns Connections
	users UserStore
	emit  Emitter
	log   *zap.Logger
}

func NewResolver(conns Connections, users UserStore, emit Emitter, log *zap.Logger) *Resolver {
	return &Resolver{conns: conns, users: users, emit: emit, log: log}
}

func (r *Resolver) DisplayedStatus(userID string) (models.DisplayedStatus, error) {
	if !r.conns.IsOnline(userID) {
		return models.StatusOffline, nil
	}
	user, err := r.users.GetUser(userID)
	if err != nil {
		return models.StatusOffline, err
	}
	return Status(r.conns.IsOnline(userID), user.Presence), nil
}

// Broadcast sends the current displayed status of userID to each friend
// that is online. Offline friends pick it up on their next fetch.
func (r *Resolver) Broadcast(userID string) error {
	user, err := r.users.GetUser(userID)
	if err != nil {
		return fmt.Errorf("load user for presence broadcast: %w", err)
	}
	status := Status(r.conns.IsOnline(userID), user.Presence)

	evt := models.ServerEvent{
		Type: models.ServerUserStatusChanged,
		Data: models.UserStatusChanged{UserID: userID, Status: status},
	}
	sent := 0
	for _, friendID := range user.Friends {
		if r.emit.Emit(friendID, evt) {
			sent++
		}
	}
	r.log.Debug("presence broadcast",
		zap.String("user_id", userID),
		zap.String("status", string(status)),
		zap.Int("friends_notified", sent))
	return nil
}

// SetPreference persists the preference and, if the user is connected,
// broadcasts the resulting status.
func (r *Resolver) SetPreference(userID string, pref models.PresencePreference) error {
	if !pref.Valid() {
		return fmt.Errorf("invalid presence preference %q", pref)
	}
	if err := r.users.SetPresence(userID, pref); err != nil {
		return err
	}
	if !r.conns.IsOnline(userID) {
		return nil
	}
	return r.Broadcast(userID)
}
