package models

import "time"

// User presence states persisted in the users table.
const (
	StatusOnline  = "online"
	StatusInGame  = "ingame"
	StatusOffline = "offline"
)

// User is the account row resolved at login. Provider/Identifier mirror what
// the client expects inside the loggedIn payload.
type User struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Avatar     string    `json:"avatar"`
	Email      string    `json:"email"`
	FriendCode string    `json:"friend_code"`
	Experience int       `json:"experience"`
	Level      int       `json:"level"`
	Coins      int       `json:"coins"`
	Gems       int       `json:"gems"`
	Status     string    `json:"status"`
	Updated    time.Time `json:"updated"`
	Created    time.Time `json:"created"`

	Provider   string `json:"provider"`
	Identifier string `json:"identifier"`
}
