// internal/handlers/lobby_events.go
package handlers

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/zrps/gateway/internal/auth"
	"github.com/zrps/gateway/internal/lobby"
	"github.com/zrps/gateway/internal/metrics"
	"github.com/zrps/gateway/internal/wire"
)

// decodeString extracts a non-empty string payload. The second return is
// false on missing, empty or wrongly-typed values.
func decodeString(data json.RawMessage) (string, bool) {
	if data == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// decodeBool extracts a boolean payload.
func decodeBool(data json.RawMessage) (bool, bool) {
	if data == nil {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return false, false
	}
	return b, true
}

// alive reports whether the session still exists in the registry. Every
// continuation after a store call re-checks this: the result of a query that
// outlived its session is discarded.
func (s *LobbyServer) alive(sess *lobby.Session) bool {
	_, ok := s.Registry.Get(sess.ID)
	return ok
}

// dispatch routes one decoded event. The returned flag tells the read loop
// to close the connection (strict type/shape guard at the protocol boundary).
func (s *LobbyServer) dispatch(ctx context.Context, sess *lobby.Session, remoteAddr string, f wire.Frame, log *logrus.Entry) bool {
	switch f.Name {
	case "setPlatform":
		v, ok := decodeString(f.Data)
		if !ok {
			return true
		}
		sess.SetPlatform(v)
	case "setVersion":
		v, ok := decodeString(f.Data)
		if !ok {
			return true
		}
		sess.SetVersion(v)
	case "setName":
		v, ok := decodeString(f.Data)
		if !ok {
			return true
		}
		sess.SetName(v)

	case "setStatus":
		return s.handleSetStatus(ctx, sess, f.Data)
	case "login":
		return s.handleLogin(ctx, sess, f.Data, log)
	case "logout":
		s.handleLogout(ctx, sess)

	case "sendFriendRequest":
		return s.handleSendFriendRequest(ctx, sess, f.Data)
	case "acceptFriendRequest":
		return s.handleAcceptFriendRequest(ctx, sess, f.Data)
	case "rejectFriendRequest":
		return s.handleRejectFriendRequest(ctx, sess, f.Data)
	case "deleteFriend":
		return s.handleDeleteFriend(ctx, sess, f.Data)

	case "createParty":
		s.handleCreateParty(ctx, sess, remoteAddr)
	case "setPartyVersion":
		return s.handlePartySetting(sess, f.Data, "partyVersionUpdated", func(p *lobby.Party, v string) { p.Version = v })
	case "setPartyGameMode":
		return s.handlePartySetting(sess, f.Data, "partyGameModeUpdated", func(p *lobby.Party, v string) { p.GameMode = v })
	case "setPartyRegion":
		return s.handlePartySetting(sess, f.Data, "partyRegionUpdated", func(p *lobby.Party, v string) { p.Region = v })
	case "setPartyAutofill":
		return s.handlePartyAutofill(sess, f.Data)
	case "setIsInRound":
		s.handleSetIsInRound(ctx, sess, f.Data)
	case "setReady":
		s.handleSetReady(ctx, sess, f.Data)
	case "restartPartyMatchmaking":
		if sess.Ready() {
			s.runMatchmakingPulse(ctx, sess)
		}
	case "leaveParty":
		s.handleLeaveParty(sess)

	default:
		log.Debugf("unknown event %q ignored", f.Name)
	}
	return false
}

func (s *LobbyServer) handleSetStatus(ctx context.Context, sess *lobby.Session, data json.RawMessage) bool {
	status, ok := decodeString(data)
	if !ok {
		return true
	}
	if sess.State() != lobby.Authenticated {
		return false
	}
	if status != "online" && status != "ingame" {
		return false
	}
	user := sess.User()
	if user == nil {
		return false
	}
	if err := s.Store.SetUserStatus(ctx, user.ID, status); err != nil {
		s.Logger.Warnf("failed to persist status for user %d: %v", user.ID, err)
		return false
	}
	if !s.alive(sess) {
		return false
	}
	s.fanOutStatus(ctx, user.FriendCode, user.ID)
	return false
}

func (s *LobbyServer) handleLogin(ctx context.Context, sess *lobby.Session, data json.RawMessage, log *logrus.Entry) bool {
	token, ok := decodeString(data)
	if !ok {
		return true
	}
	// A second login while one is in flight closes the connection: this is
	// the anti-replay guard against login spam from a single socket.
	if !sess.BeginLogin() {
		return true
	}

	user, err := s.Store.GetUserBySessionKey(ctx, token)
	if !s.alive(sess) {
		return false
	}
	if err != nil || user == nil {
		sess.FailLogin()
		return false
	}

	user.Provider = "zrps"
	user.Identifier = strconv.FormatInt(user.ID, 10)
	sess.CompleteLogin(user)
	log.WithField("user", user.ID).Info("logged in")

	s.emit(sess, "loggedIn", map[string]any{"userData": user})
	s.emit(sess, "clansData", []any{})

	reqs, err := s.Store.ListPendingRequests(ctx, user.ID)
	if err != nil {
		s.Logger.Warnf("pending request lookup failed for user %d: %v", user.ID, err)
		reqs = nil
	}
	if !s.alive(sess) {
		return false
	}
	s.emit(sess, "friendRequests", reqs)

	friends, err := s.Store.ListFriends(ctx, user.ID)
	if err != nil {
		s.Logger.Warnf("friend list lookup failed for user %d: %v", user.ID, err)
		friends = nil
	}
	if !s.alive(sess) {
		return false
	}
	s.emit(sess, "friendsData", friends)
	return false
}

func (s *LobbyServer) handleLogout(ctx context.Context, sess *lobby.Session) {
	if sess.State() != lobby.Authenticated {
		return
	}
	s.clearUserStatus(ctx, sess)
	sess.Logout()
}

func (s *LobbyServer) handleSendFriendRequest(ctx context.Context, sess *lobby.Session, data json.RawMessage) bool {
	if data == nil {
		// Missing code is tolerated here; only a wrongly-typed one is a
		// protocol violation.
		return false
	}
	code, ok := decodeString(data)
	if !ok {
		return true
	}
	if sess.State() != lobby.Authenticated {
		return false
	}
	user := sess.User()
	if user == nil {
		return false
	}

	req, receiverID, err := s.Store.InsertFriendRequest(ctx, user.ID, code)
	if err != nil {
		// Duplicate requests, unknown codes and self-targeting all land
		// here; none of them is an error the client hears about.
		s.Logger.Debugf("friend request from %d to %q not stored: %v", user.ID, code, err)
		return false
	}
	if !s.alive(sess) {
		return false
	}
	if peer := s.Registry.FindByUserID(receiverID); peer != nil {
		s.emit(peer, "friendRequestReceived", req)
	}
	return false
}

func (s *LobbyServer) handleAcceptFriendRequest(ctx context.Context, sess *lobby.Session, data json.RawMessage) bool {
	code, ok := decodeString(data)
	if !ok {
		return true
	}
	if sess.State() != lobby.Authenticated {
		return false
	}
	user := sess.User()
	if user == nil {
		return false
	}

	mine, theirs, err := s.Store.AcceptFriendRequest(ctx, user.ID, code)
	if err != nil {
		// Zero affected rows rolls the transaction back; no edge exists
		// and no notification is sent.
		s.Logger.Debugf("accept of %q by user %d did not apply: %v", code, user.ID, err)
		return false
	}
	if !s.alive(sess) {
		return false
	}
	s.emit(sess, "friendUpdated", mine)
	if peer := s.Registry.FindByUserID(mine.ID); peer != nil {
		s.emit(peer, "friendUpdated", theirs)
	}
	return false
}

func (s *LobbyServer) handleRejectFriendRequest(ctx context.Context, sess *lobby.Session, data json.RawMessage) bool {
	code, ok := decodeString(data)
	if !ok {
		return true
	}
	if sess.State() != lobby.Authenticated {
		return false
	}
	user := sess.User()
	if user == nil {
		return false
	}

	removed, err := s.Store.RejectFriendRequest(ctx, user.ID, code)
	if err != nil || !removed {
		return false
	}
	if !s.alive(sess) {
		return false
	}
	s.emit(sess, "friendRequestRejected", map[string]any{"friend_code": code})
	return false
}

func (s *LobbyServer) handleDeleteFriend(ctx context.Context, sess *lobby.Session, data json.RawMessage) bool {
	raw, ok := decodeString(data)
	if !ok {
		return true
	}
	friendID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	if sess.State() != lobby.Authenticated {
		return false
	}
	user := sess.User()
	if user == nil {
		return false
	}

	otherID, removed, err := s.Store.DeleteFriend(ctx, user.ID, friendID)
	if err != nil || !removed {
		return false
	}
	if !s.alive(sess) {
		return false
	}
	s.emit(sess, "friendDeleted", map[string]any{"id": friendID})
	if peer := s.Registry.FindByUserID(otherID); peer != nil {
		s.emit(peer, "friendDeleted", map[string]any{"id": user.ID})
	}
	return false
}

func (s *LobbyServer) handleCreateParty(ctx context.Context, sess *lobby.Session, remoteAddr string) {
	if sess.PartyKey() != "" {
		return
	}
	p := s.Parties.Create(lobby.PartyMember{
		ID:       sess.ID,
		Name:     sess.Name(),
		AddrHash: lobby.HashAddr(remoteAddr),
		IsMobile: sess.IsMobile(),
	})
	sess.SetPartyKey(p.Key)
	if snap, ok := s.Parties.Snapshot(p.Key); ok {
		s.emit(sess, "partyData", snap)
	}
	_ = metrics.Publish(ctx, metrics.EventRecord{
		Kind:      "party_created",
		SessionID: sess.ID,
		UserID:    sess.UserID(),
		Payload:   map[string]any{"party": p.Key},
	})
}

// handlePartySetting applies a leader-gated shared setting and echoes the new
// value back to the caller.
//
// TODO: broadcast the update to every member once the client handles
// unsolicited party setting events; today it only expects the echo.
func (s *LobbyServer) handlePartySetting(sess *lobby.Session, data json.RawMessage, event string, apply func(*lobby.Party, string)) bool {
	v, ok := decodeString(data)
	if !ok {
		return true
	}
	key := sess.PartyKey()
	if key == "" {
		return false
	}
	if s.Parties.UpdateSetting(key, sess.ID, func(p *lobby.Party) { apply(p, v) }) {
		s.emit(sess, event, v)
	}
	return false
}

func (s *LobbyServer) handlePartyAutofill(sess *lobby.Session, data json.RawMessage) bool {
	v, ok := decodeBool(data)
	if !ok {
		return true
	}
	key := sess.PartyKey()
	if key == "" {
		return false
	}
	if s.Parties.UpdateSetting(key, sess.ID, func(p *lobby.Party) { p.Autofill = v }) {
		s.emit(sess, "partyAutofillUpdated", v)
	}
	return false
}

func (s *LobbyServer) handleSetIsInRound(ctx context.Context, sess *lobby.Session, data json.RawMessage) {
	v, ok := decodeBool(data)
	if !ok {
		return
	}
	key := sess.PartyKey()
	if key == "" {
		return
	}
	sess.SetInRound(v)
	member, ok, pulse := s.Parties.UpdateMember(key, sess.ID, s.InRoundPolicy, func(m *lobby.PartyMember) {
		m.InRound = v
	})
	if !ok {
		return
	}
	s.emit(sess, "partyPlayerUpdated", member)
	if pulse {
		s.runMatchmakingPulse(ctx, sess)
	}
}

func (s *LobbyServer) handleSetReady(ctx context.Context, sess *lobby.Session, data json.RawMessage) {
	v, ok := decodeBool(data)
	if !ok {
		return
	}
	key := sess.PartyKey()
	if key == "" {
		return
	}
	sess.SetReady(v)
	member, ok, pulse := s.Parties.UpdateMember(key, sess.ID, s.ReadyPolicy, func(m *lobby.PartyMember) {
		m.Ready = v
	})
	if !ok {
		return
	}
	s.emit(sess, "partyPlayerUpdated", member)
	if pulse {
		s.runMatchmakingPulse(ctx, sess)
	}
}

// runMatchmakingPulse walks the caller through the matchmaking cycle and
// hands over the game server descriptor. One-shot: the party ends up waiting
// again immediately.
func (s *LobbyServer) runMatchmakingPulse(ctx context.Context, sess *lobby.Session) {
	key := sess.PartyKey()
	if key == "" {
		return
	}

	handoff := s.Handoff
	descriptor := map[string]any{
		"version":  handoff.Version,
		"mode":     handoff.Mode,
		"status":   handoff.Status,
		"players":  handoff.Players,
		"ipv4":     handoff.IPv4,
		"hostname": handoff.Hostname,
		"endpoint": handoff.Endpoint,
		"enabled":  handoff.Enabled,
	}
	if ticket, err := auth.CreateHandoffTicket(sess.ID, handoff.Endpoint); err == nil {
		descriptor["ticket"] = ticket
	} else {
		s.Logger.Warnf("handoff ticket signing failed: %v", err)
	}

	s.emit(sess, "partyStateUpdated", lobby.PartyMatchmaking)
	s.emit(sess, "partyJoinServer", descriptor)
	s.emit(sess, "partyStateUpdated", lobby.PartyInGame)
	s.emit(sess, "partyStateUpdated", lobby.PartyWaiting)
	s.Parties.CycleState(key)

	_ = metrics.Publish(ctx, metrics.EventRecord{
		Kind:      "match_handoff",
		SessionID: sess.ID,
		UserID:    sess.UserID(),
		Payload:   map[string]any{"party": key, "endpoint": handoff.Endpoint},
	})
}

func (s *LobbyServer) handleLeaveParty(sess *lobby.Session) {
	key := sess.PartyKey()
	if key == "" {
		return
	}
	removed, _ := s.Parties.Leave(key, sess.ID)
	if removed {
		sess.SetPartyKey("")
		s.emit(sess, "partyLeft")
	}
}
