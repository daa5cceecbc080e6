package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/zrps/gateway/internal/models"
)

// ErrNoRowsAffected signals that a mutation matched nothing. Callers treat it
// as a silent no-op; inside AcceptFriendRequest it aborts the transaction.
var ErrNoRowsAffected = errors.New("no rows affected")

// ListFriends returns the caller's accepted friends as client-facing views.
func ListFriends(ctx context.Context, userID int64) ([]models.FriendInfo, error) {
	q := `
	SELECT u.id, u.friend_code, u.friend_code AS name, u.avatar, u.updated, u.status
	FROM friends f
	JOIN users u ON (f.user_id = u.id AND f.friend_id = $1) OR (f.friend_id = u.id AND f.user_id = $1)
	WHERE f.user_id = $1 OR f.friend_id = $1
	`
	rows, err := DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fs []models.FriendInfo
	for rows.Next() {
		var f models.FriendInfo
		if err := rows.Scan(&f.ID, &f.FriendCode, &f.Name, &f.Avatar, &f.Updated, &f.Status); err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	return fs, rows.Err()
}

// ListFriendIDs returns just the user ids of the caller's friends, used for
// presence fan-out.
func ListFriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	q := `
	SELECT u.id
	FROM friends f
	JOIN users u ON (f.user_id = u.id AND f.friend_id = $1) OR (f.friend_id = u.id AND f.user_id = $1)
	WHERE f.user_id = $1 OR f.friend_id = $1
	`
	rows, err := DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPendingRequests returns the inbound friend requests awaiting the user.
func ListPendingRequests(ctx context.Context, userID int64) ([]models.FriendRequestInfo, error) {
	q := `
	SELECT u.friend_code, u.friend_code AS name, u.avatar, f.created_at AS sent
	FROM friendreqs f
	JOIN users u ON f.sender_id = u.id
	WHERE f.receiver_id = $1
	`
	rows, err := DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.FriendRequestInfo
	for rows.Next() {
		var r models.FriendRequestInfo
		if err := rows.Scan(&r.FriendCode, &r.Name, &r.Avatar, &r.Sent); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// GetFriendViewByCode fetches the view of the friend identified by code, but
// only if an edge between that friend and userID exists. Used to build the
// payload for presence fan-out.
func GetFriendViewByCode(ctx context.Context, code string, userID int64) (*models.FriendInfo, error) {
	q := `
	SELECT u.id, u.friend_code, u.friend_code AS name, u.avatar, u.updated, u.status
	FROM friends f
	JOIN users u ON u.friend_code = $1
	WHERE f.user_id = $2 OR f.friend_id = $2
	LIMIT 1
	`
	var f models.FriendInfo
	err := DB.QueryRow(ctx, q, code, userID).Scan(&f.ID, &f.FriendCode, &f.Name, &f.Avatar, &f.Updated, &f.Status)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// InsertFriendRequest stores a pending request from senderID to the user
// owning code. Self-targeting is excluded by the insert itself. On success it
// returns the request view (sender's public profile) plus the receiver's id
// so the caller can push a live notification.
func InsertFriendRequest(ctx context.Context, senderID int64, code string) (*models.FriendRequestInfo, int64, error) {
	insert := `
	INSERT INTO friendreqs (sender_id, receiver_id)
	SELECT $1, id
	FROM users
	WHERE friend_code = $2 AND id != $1
	`
	if _, err := DB.Exec(ctx, insert, senderID, code); err != nil {
		return nil, 0, err
	}

	q := `
	SELECT f.receiver_id, u.friend_code, u.friend_code AS name, u.avatar, f.created_at AS sent
	FROM friendreqs f
	JOIN users u ON f.sender_id = u.id
	WHERE f.sender_id = $1 AND f.receiver_id = (SELECT id FROM users WHERE friend_code = $2)
	`
	var r models.FriendRequestInfo
	var receiverID int64
	err := DB.QueryRow(ctx, q, senderID, code).Scan(&receiverID, &r.FriendCode, &r.Name, &r.Avatar, &r.Sent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrNoRowsAffected
		}
		return nil, 0, err
	}
	return &r, receiverID, nil
}

// AcceptFriendRequest converts the pending request from the user owning code
// to receiverID into a friend edge. Edge insertion and request removal run in
// one transaction; if either statement matches nothing the whole transaction
// rolls back and ErrNoRowsAffected is returned, so a concurrent duplicate
// acceptance can never produce a second edge or a dangling request.
//
// On success it returns the receiver's refreshed view of the new friend and
// that friend's refreshed view of the receiver, for both live connections.
func AcceptFriendRequest(ctx context.Context, receiverID int64, code string) (mine *models.FriendInfo, theirs *models.FriendInfo, err error) {
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insert := `
		INSERT INTO friends (user_id, friend_id)
		SELECT u.id, fr.receiver_id
		FROM friendreqs fr
		INNER JOIN users u ON fr.sender_id = u.id
		WHERE fr.receiver_id = $1 AND fr.sender_id = (SELECT id FROM users WHERE friend_code = $2)
		`
		ct, err := tx.Exec(ctx, insert, receiverID, code)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNoRowsAffected
		}

		del := `
		DELETE FROM friendreqs fr
		USING users u
		WHERE fr.sender_id = u.id
		  AND fr.receiver_id = $1
		  AND u.friend_code = $2
		`
		ct, err = tx.Exec(ctx, del, receiverID, code)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNoRowsAffected
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	mine, err = GetFriendViewByCode(ctx, code, receiverID)
	if err != nil {
		return nil, nil, err
	}

	q := `
	SELECT u.id, u.friend_code, u.friend_code AS name, u.avatar, u.updated, u.status
	FROM friends f
	JOIN users u ON u.id = $1
	WHERE f.user_id = $2 OR f.friend_id = $2
	LIMIT 1
	`
	var t models.FriendInfo
	if err := DB.QueryRow(ctx, q, receiverID, mine.ID).Scan(&t.ID, &t.FriendCode, &t.Name, &t.Avatar, &t.Updated, &t.Status); err != nil {
		return nil, nil, err
	}
	return mine, &t, nil
}

// RejectFriendRequest removes a pending request addressed to receiverID from
// the user owning code. Reports whether a row was actually removed.
func RejectFriendRequest(ctx context.Context, receiverID int64, code string) (bool, error) {
	q := `
	DELETE FROM friendreqs
	WHERE receiver_id = $1 AND sender_id = (SELECT id FROM users WHERE friend_code = $2)
	`
	ct, err := DB.Exec(ctx, q, receiverID, code)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// DeleteFriend removes the undirected edge between userID and friendID and
// returns the counterpart's id for the mirrored notification.
func DeleteFriend(ctx context.Context, userID, friendID int64) (int64, bool, error) {
	var edgeID, u1, u2 int64
	lookup := `
	SELECT id, user_id, friend_id FROM friends
	WHERE (user_id = $1 AND friend_id = $2) OR (friend_id = $1 AND user_id = $2)
	`
	err := DB.QueryRow(ctx, lookup, userID, friendID).Scan(&edgeID, &u1, &u2)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}

	otherID := u2
	if u2 == userID {
		otherID = u1
	}

	ct, err := DB.Exec(ctx, `DELETE FROM friends WHERE id = $1`, edgeID)
	if err != nil {
		return 0, false, err
	}
	return otherID, ct.RowsAffected() > 0, nil
}
