package tracker

import (
	"github.com/c-pro/geche"
)

// ActiveChats records which counterpart each connected user has open.
type ActiveChats struct {
	viewing geche.Geche[string, string]
}

func NewActiveChats() *ActiveChats {
	return &ActiveChats{viewing: geche.NewMapCache[string, string]()}
}

// Enter replaces whatever chat userID had open.
func (a *ActiveChats) Enter(userID, counterpartID string) {
	a.viewing.Set(userID, counterpartID)
}

// Leave closes the chat view of userID and returns the counterpart it was viewing.
func (a *ActiveChats) Leave(userID string) (string, bool) {
	counterpart, err := a.viewing.Get(userID)
	if err != nil {
		return "", false
	}
	_ = a.viewing.Del(userID)
	return counterpart, true
}

func (a *ActiveChats) Viewing(userID string) (string, bool) {
	counterpart, err := a.viewing.Get(userID)
	return counterpart, err == nil
}

func (a *ActiveChats) IsViewing(userID, counterpartID string) bool {
	counterpart, ok := a.Viewing(userID)
	return ok && counterpart == counterpartID
}
