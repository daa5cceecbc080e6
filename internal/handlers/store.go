// internal/handlers/store.go
package handlers

import (
	"context"

	"github.com/zrps/gateway/internal/database"
	"github.com/zrps/gateway/internal/models"
)

// Store is the durable-store contract the lobby gateway depends on. The
// production implementation is the pgx-backed database package; tests
// substitute an in-memory fake.
type Store interface {
	GetUserBySessionKey(ctx context.Context, key string) (*models.User, error)
	SetUserStatus(ctx context.Context, userID int64, status string) error

	ListFriends(ctx context.Context, userID int64) ([]models.FriendInfo, error)
	ListFriendIDs(ctx context.Context, userID int64) ([]int64, error)
	ListPendingRequests(ctx context.Context, userID int64) ([]models.FriendRequestInfo, error)
	GetFriendViewByCode(ctx context.Context, code string, userID int64) (*models.FriendInfo, error)

	InsertFriendRequest(ctx context.Context, senderID int64, code string) (*models.FriendRequestInfo, int64, error)
	AcceptFriendRequest(ctx context.Context, receiverID int64, code string) (*models.FriendInfo, *models.FriendInfo, error)
	RejectFriendRequest(ctx context.Context, receiverID int64, code string) (bool, error)
	DeleteFriend(ctx context.Context, userID, friendID int64) (int64, bool, error)
}

// PGStore adapts the package-level pgx pool to the Store interface.
type PGStore struct{}

func (PGStore) GetUserBySessionKey(ctx context.Context, key string) (*models.User, error) {
	return database.GetUserBySessionKey(ctx, key)
}

func (PGStore) SetUserStatus(ctx context.Context, userID int64, status string) error {
	return database.SetUserStatus(ctx, userID, status)
}

func (PGStore) ListFriends(ctx context.Context, userID int64) ([]models.FriendInfo, error) {
	return database.ListFriends(ctx, userID)
}

func (PGStore) ListFriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	return database.ListFriendIDs(ctx, userID)
}

func (PGStore) ListPendingRequests(ctx context.Context, userID int64) ([]models.FriendRequestInfo, error) {
	return database.ListPendingRequests(ctx, userID)
}

func (PGStore) GetFriendViewByCode(ctx context.Context, code string, userID int64) (*models.FriendInfo, error) {
	return database.GetFriendViewByCode(ctx, code, userID)
}

func (PGStore) InsertFriendRequest(ctx context.Context, senderID int64, code string) (*models.FriendRequestInfo, int64, error) {
	return database.InsertFriendRequest(ctx, senderID, code)
}

func (PGStore) AcceptFriendRequest(ctx context.Context, receiverID int64, code string) (*models.FriendInfo, *models.FriendInfo, error) {
	return database.AcceptFriendRequest(ctx, receiverID, code)
}

func (PGStore) RejectFriendRequest(ctx context.Context, receiverID int64, code string) (bool, error) {
	return database.RejectFriendRequest(ctx, receiverID, code)
}

func (PGStore) DeleteFriend(ctx context.Context, userID, friendID int64) (int64, bool, error) {
	return database.DeleteFriend(ctx, userID, friendID)
}
