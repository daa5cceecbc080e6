// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/zrps/gateway/internal/auth"
	"github.com/zrps/gateway/internal/config"
	"github.com/zrps/gateway/internal/database"
	"github.com/zrps/gateway/internal/handlers"
	"github.com/zrps/gateway/internal/metrics"
	"github.com/zrps/gateway/internal/middleware"
	"github.com/zrps/gateway/internal/protocol"
)

func main() {
	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := auth.Init(); err != nil {
		log.Fatalf("auth init failed: %v", err)
	}
	database.ConnectDB()
	if err := metrics.ConnectRedis(); err != nil {
		// The event queue is best-effort; the gateways run without it.
		logger.Warnf("redis unavailable, event queue disabled: %v", err)
	}

	lobbyCfg := config.LoadLobby()
	gameCfg := config.LoadGame()
	handoff := config.LoadHandoffServer()

	lobbySrv := handlers.NewLobbyServer(logger, handlers.PGStore{}, lobbyCfg, handoff)
	gameSrv := handlers.NewGameServer(logger, loadCodec(), gameCfg)

	lobbyMux := http.NewServeMux()
	lobbyMux.Handle("/gateway/", middleware.LogMiddleware(logger, "lobby")(lobbySrv.Handler()))

	gameMux := http.NewServeMux()
	gameMux.Handle("/", middleware.LogMiddleware(logger, "game")(gameSrv.Handler()))

	errc := make(chan error, 2)
	go func() {
		logger.Infof("[%s] lobby gateway listening on %s", lobbyCfg.ServerName, lobbyCfg.Addr)
		errc <- http.ListenAndServe(lobbyCfg.Addr, lobbyMux)
	}()
	go func() {
		logger.Infof("[%s] game gateway listening on %s", lobbyCfg.ServerName, gameCfg.Addr)
		errc <- http.ListenAndServe(gameCfg.Addr, gameMux)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("gateway exited: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}
}

// loadCodec resolves the external codec component. The gateway consumes the
// codec through its interface; the concrete implementation is linked in by
// the build that ships the attribute schema.
func loadCodec() protocol.Codec {
	return protocol.DefaultCodec()
}
