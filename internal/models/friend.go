package models

import "time"

// FriendInfo is the public projection of a friend the client renders in the
// social list. Name intentionally mirrors the friend code; accounts expose
// their code, not their display name, to friends.
type FriendInfo struct {
	ID         int64     `json:"id"`
	FriendCode string    `json:"friend_code"`
	Name       string    `json:"name"`
	Avatar     string    `json:"avatar"`
	Updated    time.Time `json:"updated"`
	Status     string    `json:"status"`
}

// FriendRequestInfo is a pending inbound request as shown to the receiver.
type FriendRequestInfo struct {
	FriendCode string    `json:"friend_code"`
	Name       string    `json:"name"`
	Avatar     string    `json:"avatar"`
	Sent       time.Time `json:"sent"`
}
