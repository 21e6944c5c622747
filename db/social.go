package db

import (
	"time"

	"github.com/aux-fm/auxio/models"
)

// ListFriends returns the users in userID's friends set.
func (db *DB) ListFriends(userID int64) ([]*models.User, error) {
	rows, err := db.Query(`
	SELECT `+userColumns+` FROM users
	WHERE id IN (SELECT friend_id FROM friends WHERE user_id = ?)
	ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []*models.User
	for rows.Next() {
		user := &models.User{}
		err := rows.Scan(
			&user.ID, &user.Subject, &user.Email, &user.Username,
			&user.MusicPlatform, &user.AccessToken, &user.RefreshToken,
			&user.TokenExpiry, &user.PushToken, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return nil, err
		}
		friends = append(friends, user)
	}

	return friends, rows.Err()
}

// AreFriends reports whether an edge from userID to otherID exists.
func (db *DB) AreFriends(userID, otherID int64) (bool, error) {
	var count int
	err := db.QueryRow(`
	SELECT COUNT(*) FROM friends WHERE user_id = ? AND friend_id = ?`,
		userID, otherID).Scan(&count)

	return count > 0, err
}

// AddFriendRequest records a pending request; re-adding is a no-op.
func (db *DB) AddFriendRequest(targetUserID int64, requesterUsername string) error {
	_, err := db.Exec(`
	INSERT OR IGNORE INTO friend_requests (user_id, requester_username, created_at)
	VALUES (?, ?, ?)`, targetUserID, requesterUsername, time.Now().UTC())

	return err
}

// HasFriendRequest reports whether requesterUsername is pending for userID.
func (db *DB) HasFriendRequest(userID int64, requesterUsername string) (bool, error) {
	var count int
	err := db.QueryRow(`
	SELECT COUNT(*) FROM friend_requests
	WHERE user_id = ? AND requester_username = ? COLLATE NOCASE`,
		userID, requesterUsername).Scan(&count)

	return count > 0, err
}

// RemoveFriendRequest clears a pending request.
func (db *DB) RemoveFriendRequest(userID int64, requesterUsername string) error {
	_, err := db.Exec(`
	DELETE FROM friend_requests
	WHERE user_id = ? AND requester_username = ? COLLATE NOCASE`,
		userID, requesterUsername)

	return err
}

// ListFriendRequests returns the pending requester usernames for a user.
func (db *DB) ListFriendRequests(userID int64) ([]string, error) {
	rows, err := db.Query(`
	SELECT requester_username FROM friend_requests
	WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usernames := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		usernames = append(usernames, u)
	}

	return usernames, rows.Err()
}

// AcceptFriendRequest inserts the symmetric friend edges and removes
// the pending request in one transaction, so a partial write cannot
// leave a one-directional edge behind.
func (db *DB) AcceptFriendRequest(userID, requesterID int64, requesterUsername string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	INSERT OR IGNORE INTO friends (user_id, friend_id) VALUES (?, ?)`, userID, requesterID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
	INSERT OR IGNORE INTO friends (user_id, friend_id) VALUES (?, ?)`, requesterID, userID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
	DELETE FROM friend_requests
	WHERE user_id = ? AND requester_username = ? COLLATE NOCASE`,
		userID, requesterUsername)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// AddFriendEdge inserts a single directed edge. Used by the repair
// pass; normal acceptance goes through AcceptFriendRequest.
func (db *DB) AddFriendEdge(userID, friendID int64) error {
	_, err := db.Exec(`
	INSERT OR IGNORE INTO friends (user_id, friend_id) VALUES (?, ?)`, userID, friendID)

	return err
}

// AsymmetricFriendEdges returns edges whose reverse direction is
// missing, as (user_id, friend_id) pairs.
func (db *DB) AsymmetricFriendEdges() ([][2]int64, error) {
	rows, err := db.Query(`
	SELECT f1.user_id, f1.friend_id
	FROM friends f1
	LEFT JOIN friends f2 ON f2.user_id = f1.friend_id AND f2.friend_id = f1.user_id
	WHERE f2.user_id IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges [][2]int64
	for rows.Next() {
		var e [2]int64
		if err := rows.Scan(&e[0], &e[1]); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}

	return edges, rows.Err()
}
