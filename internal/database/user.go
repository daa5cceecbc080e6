package database

import (
	"context"

	"github.com/zrps/gateway/internal/models"
)

// GetUserBySessionKey resolves an active session token to its user row.
// Returns pgx.ErrNoRows when the token maps to no session.
func GetUserBySessionKey(ctx context.Context, key string) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, name, avatar, email, friend_code, experience, level, coins, gems, status, updated, created
	FROM users
	WHERE id = (SELECT user_id FROM sessions WHERE key = $1)
	`
	err := DB.QueryRow(ctx, q, key).Scan(
		&u.ID, &u.Name, &u.Avatar, &u.Email, &u.FriendCode,
		&u.Experience, &u.Level, &u.Coins, &u.Gems,
		&u.Status, &u.Updated, &u.Created,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUserStatus persists a presence change for the given user.
func SetUserStatus(ctx context.Context, userID int64, status string) error {
	q := `UPDATE users SET status = $1, updated = NOW() WHERE id = $2`
	_, err := DB.Exec(ctx, q, status, userID)
	return err
}
