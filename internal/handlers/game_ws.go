// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zrps/gateway/internal/config"
	"github.com/zrps/gateway/internal/game"
	"github.com/zrps/gateway/internal/protocol"
)

// gamePathPrefix is the upgrade path; the suffix is the per-connection
// endpoint/shard tag fed into proof-of-work validation.
const gamePathPrefix = "/"

// GameServer wires the game gateway's dependencies together.
type GameServer struct {
	Logger     *logrus.Logger
	Codec      protocol.Codec
	Cfg        config.Game
	Dispatcher *game.Dispatcher
	Limiter    *rate.Limiter
}

// NewGameServer builds a GameServer with the observed fire guard.
func NewGameServer(logger *logrus.Logger, codec protocol.Codec, cfg config.Game) *GameServer {
	return &GameServer{
		Logger:     logger,
		Codec:      codec,
		Cfg:        cfg,
		Dispatcher: game.NewDispatcher(game.FireGuardObserved),
		Limiter:    rate.NewLimiter(rate.Limit(50), 100),
	}
}

// Handler upgrades a game connection and runs its read loop until the
// connection dies or violates the protocol.
func (s *GameServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.Limiter.Allow() {
			http.Error(w, "too many connections", http.StatusTooManyRequests)
			return
		}
		endpointTag := strings.TrimPrefix(r.URL.Path, gamePathPrefix)

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.Logger.Warnf("game websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		log := s.Logger.WithFields(logrus.Fields{
			"endpoint": endpointTag,
			"remote":   r.RemoteAddr,
		})
		log.Info("game client connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		send := func(sendCtx context.Context, payload []byte) error {
			writeCtx, writeCancel := context.WithTimeout(sendCtx, 5*time.Second)
			defer writeCancel()
			return c.Write(writeCtx, websocket.MessageBinary, payload)
		}
		conn := game.NewConn(endpointTag, s.Codec, s.Cfg, s.Dispatcher, log, send)
		defer conn.Close()

		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				status := websocket.CloseStatus(err)
				if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
					log.Debugf("read error: %v", err)
				}
				return
			}
			if typ != websocket.MessageBinary {
				log.Debug("non-binary frame ignored")
				continue
			}
			if err := conn.HandleMessage(ctx, data); err != nil {
				if errors.Is(err, game.ErrBadProof) {
					log.Warn("proof-of-work validation failed")
				} else {
					log.Debugf("terminal connection error: %v", err)
				}
				c.Close(websocket.StatusPolicyViolation, "handshake rejected")
				return
			}
		}
	}
}
