// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zrps/gateway/internal/config"
	"github.com/zrps/gateway/internal/lobby"
	"github.com/zrps/gateway/internal/wire"
)

// lobbyPath is the only path the lobby gateway upgrades on; the query must
// also declare the expected protocol version and transport.
const lobbyPath = "/gateway/"

// LobbyServer wires the lobby gateway's dependencies together. One instance
// serves every connection.
type LobbyServer struct {
	Logger   *logrus.Logger
	Registry *lobby.Registry
	Parties  *lobby.PartyStore
	Store    Store
	Cfg      config.Lobby
	Handoff  config.HandoffServer
	// ReadyPolicy and InRoundPolicy decide when a membership flag write
	// starts the matchmaking pulse. Both default to the shipped behavior.
	ReadyPolicy   lobby.ReadyPolicy
	InRoundPolicy lobby.ReadyPolicy
	Limiter       *rate.Limiter
}

// NewLobbyServer builds a LobbyServer with the observed ready policy and a
// rate limiter sized from config.
func NewLobbyServer(logger *logrus.Logger, store Store, cfg config.Lobby, handoff config.HandoffServer) *LobbyServer {
	return &LobbyServer{
		Logger:        logger,
		Registry:      lobby.NewRegistry(),
		Parties:       lobby.NewPartyStore(),
		Store:         store,
		Cfg:           cfg,
		Handoff:       handoff,
		ReadyPolicy:   lobby.ReadyPolicyObserved,
		InRoundPolicy: lobby.InRoundPolicyObserved,
		Limiter:       rate.NewLimiter(rate.Limit(cfg.UpgradeRate), cfg.UpgradeBurst),
	}
}

// Handler is the upgrade endpoint. Requests that do not match the expected
// path, protocol version and transport are refused before any handshake.
func (s *LobbyServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != lobbyPath || q.Get("EIO") != "4" || q.Get("transport") != "websocket" {
			http.Error(w, "bad gateway request", http.StatusBadRequest)
			return
		}
		if !s.Limiter.Allow() {
			http.Error(w, "too many connections", http.StatusTooManyRequests)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		sid, err := wire.NewSessionID()
		if err != nil {
			s.Logger.Errorf("session id generation failed: %v", err)
			c.Close(websocket.StatusInternalError, "session id unavailable")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		sess := lobby.NewSession(sid, cancel)
		s.Registry.Add(sess)

		log := s.Logger.WithFields(logrus.Fields{
			"sid":    sid,
			"remote": r.RemoteAddr,
		})
		log.Info("lobby client connected")

		go s.writePump(ctx, c, sess)

		// Handshake frame then the bare connect acknowledgement, in order.
		handshake, err := wire.EncodeHandshake(sid, s.Cfg.PingInterval, s.Cfg.PingTimeout)
		if err != nil {
			log.Errorf("handshake encode failed: %v", err)
			s.teardown(ctx, sess)
			return
		}
		sess.Send(handshake)
		sess.Send(wire.ConnectAck)

		s.readLoop(ctx, c, sess, r.RemoteAddr, log)

		// Transport errors and graceful closes share this cleanup path.
		s.teardown(context.WithoutCancel(ctx), sess)
		log.Info("lobby client disconnected")
	}
}

// readLoop processes inbound frames strictly in arrival order until the
// connection dies.
func (s *LobbyServer) readLoop(ctx context.Context, c *websocket.Conn, sess *lobby.Session, remoteAddr string, log *logrus.Entry) {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				strings.Contains(err.Error(), "context canceled") {
				return
			}
			log.Debugf("read error: %v", err)
			return
		}
		if typ != websocket.MessageText {
			log.Debug("non-text frame ignored")
			continue
		}

		f := wire.DecodeFrame(string(msg))
		switch f.Kind {
		case wire.KindPing:
			sess.Send(wire.Pong)
		case wire.KindEvent:
			if closeConn := s.dispatch(ctx, sess, remoteAddr, f, log); closeConn {
				c.Close(websocket.StatusPolicyViolation, "protocol violation")
				return
			}
		default:
			// Lenient parsing: log the violation, keep the connection.
			log.Debugf("invalid frame ignored: %.64q", string(msg))
		}
	}
}

// writePump serializes outbound frames onto the websocket.
func (s *LobbyServer) writePump(ctx context.Context, c *websocket.Conn, sess *lobby.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sess.OutChan:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Write(writeCtx, websocket.MessageText, []byte(msg))
			cancel()
			if err != nil {
				s.Logger.Debugf("write failed for session %s: %v", sess.ID, err)
				return
			}
		}
	}
}

// teardown runs the shared disconnect path: party leave, presence offline
// with friend fan-out, registry eviction, goroutine cancellation.
func (s *LobbyServer) teardown(ctx context.Context, sess *lobby.Session) {
	if key := sess.PartyKey(); key != "" {
		s.Parties.Leave(key, sess.ID)
		sess.SetPartyKey("")
	}

	if sess.State() == lobby.Authenticated {
		s.clearUserStatus(ctx, sess)
	}

	s.Registry.Remove(sess.ID)
	sess.Cancel()
}

// clearUserStatus marks the user offline and notifies connected friends.
func (s *LobbyServer) clearUserStatus(ctx context.Context, sess *lobby.Session) {
	user := sess.User()
	if user == nil {
		return
	}
	if err := s.Store.SetUserStatus(ctx, user.ID, "offline"); err != nil {
		s.Logger.Warnf("failed to clear status for user %d: %v", user.ID, err)
		return
	}
	s.fanOutStatus(ctx, user.FriendCode, user.ID)
}

// fanOutStatus pushes the user's refreshed friend view to every connected
// friend. Best-effort, fire-and-forget: offline friends see fresh data from
// the store on their next login.
func (s *LobbyServer) fanOutStatus(ctx context.Context, friendCode string, userID int64) {
	friendIDs, err := s.Store.ListFriendIDs(ctx, userID)
	if err != nil {
		s.Logger.Warnf("friend id lookup failed for user %d: %v", userID, err)
		return
	}
	view, err := s.Store.GetFriendViewByCode(ctx, friendCode, userID)
	if err != nil || view == nil {
		return
	}
	for _, id := range friendIDs {
		if peer := s.Registry.FindByUserID(id); peer != nil {
			s.emit(peer, "friendUpdated", view)
		}
	}
}

// emit encodes an event frame and queues it on the session.
func (s *LobbyServer) emit(sess *lobby.Session, name string, args ...any) {
	frame, err := wire.EncodeEvent(name, args...)
	if err != nil {
		s.Logger.Warnf("failed to encode %s event: %v", name, err)
		return
	}
	sess.Send(frame)
}
