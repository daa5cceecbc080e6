// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Lobby holds the lobby gateway settings, read once at startup.
type Lobby struct {
	Addr         string
	ServerName   string
	PingInterval time.Duration
	PingTimeout  time.Duration

	// UpgradeRate / UpgradeBurst bound how fast new websocket upgrades are
	// accepted across the whole gateway.
	UpgradeRate  float64
	UpgradeBurst int
}

// Game holds the game gateway settings.
type Game struct {
	Addr     string
	TickRate int

	// DebugCommands enables the operator chat commands. Never set this in
	// production.
	DebugCommands bool

	WorldWidth  float64
	WorldHeight float64
}

// HandoffServer describes the game server endpoint handed to a party when
// matchmaking completes.
type HandoffServer struct {
	Version  int    `json:"version"`
	Mode     string `json:"mode"`
	Status   string `json:"status"`
	Players  int    `json:"players"`
	IPv4     string `json:"ipv4"`
	Hostname string `json:"hostname"`
	Endpoint string `json:"endpoint"`
	Enabled  bool   `json:"enabled"`
}

// LoadLobby reads lobby gateway config from the environment.
func LoadLobby() Lobby {
	return Lobby{
		Addr:         getEnv("LOBBY_ADDR", "127.0.0.1:3002"),
		ServerName:   getEnv("SERVER_NAME", "ZRPS"),
		PingInterval: time.Duration(getEnvInt("LOBBY_PING_INTERVAL_MS", 55000)) * time.Millisecond,
		PingTimeout:  time.Duration(getEnvInt("LOBBY_PING_TIMEOUT_MS", 120000)) * time.Millisecond,
		UpgradeRate:  float64(getEnvInt("LOBBY_UPGRADE_RATE", 50)),
		UpgradeBurst: getEnvInt("LOBBY_UPGRADE_BURST", 100),
	}
}

// LoadGame reads game gateway config from the environment.
func LoadGame() Game {
	return Game{
		Addr:          getEnv("GAME_ADDR", "127.0.0.1:3003"),
		TickRate:      getEnvInt("GAME_TICK_RATE", 64),
		DebugCommands: getEnv("GATEWAY_DEBUG_COMMANDS", "") == "true",
		WorldWidth:    float64(getEnvInt("GAME_WORLD_WIDTH", 16384)),
		WorldHeight:   float64(getEnvInt("GAME_WORLD_HEIGHT", 16384)),
	}
}

// LoadHandoffServer reads the matchmaking handoff descriptor from the
// environment. The lobby gateway hands this verbatim to ready parties.
func LoadHandoffServer() HandoffServer {
	return HandoffServer{
		Version:  getEnvInt("GAME_SERVER_VERSION", 736),
		Mode:     getEnv("GAME_SERVER_MODE", "Solo"),
		Status:   getEnv("GAME_SERVER_STATUS", "Lobby"),
		Players:  getEnvInt("GAME_SERVER_PLAYERS", 1),
		IPv4:     getEnv("GAME_SERVER_IPV4", "127.0.0.1:3003"),
		Hostname: getEnv("GAME_SERVER_HOSTNAME", "localhost:3003"),
		Endpoint: getEnv("GAME_SERVER_ENDPOINT", ""),
		Enabled:  true,
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
