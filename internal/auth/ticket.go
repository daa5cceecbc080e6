// internal/auth/ticket.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// privateKey and publicKey sign and verify matchmaking handoff tickets. The
// lobby gateway signs a ticket when a party is handed to the game server; the
// game gateway can verify it to tie the entrant back to a lobby session.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
)

// Init generates a fresh ed25519 key pair at runtime. Both gateways run in
// one process, so in-memory keys are enough; split deployments would load
// them from disk instead.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return nil
}

// CreateHandoffTicket signs a short-lived ticket binding the lobby session to
// the game endpoint it was told to join.
func CreateHandoffTicket(sessionID, endpoint string) (string, error) {
	claims := jwt.MapClaims{
		"sub": sessionID,
		"aud": endpoint,
		"exp": time.Now().Add(2 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifyHandoffTicket checks the ticket signature and returns the lobby
// session id it was issued to.
func VerifyHandoffTicket(ticket string) (string, error) {
	t, err := jwt.Parse(ticket, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("ticket parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid ticket")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid ticket claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in ticket")
	}
	return sub, nil
}
