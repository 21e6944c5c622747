package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
)

const userColumns = `id, subject, email, username, music_platform, access_token, refresh_token, token_expiry, push_token, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Subject, &user.Email, &user.Username,
		&user.MusicPlatform, &user.AccessToken, &user.RefreshToken,
		&user.TokenExpiry, &user.PushToken, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// CreateUser adds a new user keyed by identity-provider subject.
func (db *DB) CreateUser(subject string, email *string) (int64, error) {
	now := time.Now().UTC()

	result, err := db.Exec(`
	INSERT INTO users (subject, email, created_at, updated_at)
	VALUES (?, ?, ?, ?)`, subject, email, now, now)

	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// GetUserByID retrieves a user by internal id.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserBySubject retrieves a user by identity-provider subject.
func (db *DB) GetUserBySubject(subject string) (*models.User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE subject = ?`, subject))
}

// GetUserByUsername retrieves a user by username (case-insensitive).
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE`, username))
}

// SetUsername sets a user's globally unique username.
func (db *DB) SetUsername(userID int64, username string) error {
	const op errs.Op = "db.SetUsername"

	username = strings.TrimSpace(username)
	if username == "" {
		return errs.E(op, errs.Invalid, "username must not be empty")
	}

	_, err := db.Exec(`
	UPDATE users SET username = ?, updated_at = ? WHERE id = ?`,
		username, time.Now().UTC(), userID)

	if isUniqueViolation(err) {
		return errs.E(op, errs.Invalid, "username is taken")
	}

	return err
}

// UpdateUserToken updates a user's music platform tokens. An empty
// refresh token leaves the stored one untouched, because refresh
// responses often omit it.
func (db *DB) UpdateUserToken(userID int64, accessToken, refreshToken string, expiry time.Time) error {
	now := time.Now().UTC()

	if refreshToken == "" {
		_, err := db.Exec(`
		UPDATE users
		SET access_token = ?, token_expiry = ?, updated_at = ?
		WHERE id = ?`,
			accessToken, expiry, now, userID)
		return err
	}

	_, err := db.Exec(`
	UPDATE users
	SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = ?
	WHERE id = ?`,
		accessToken, refreshToken, expiry, now, userID)

	return err
}

// LinkMusicPlatform records the platform linkage set during onboarding.
func (db *DB) LinkMusicPlatform(userID int64, platform, accessToken, refreshToken string, expiry time.Time) error {
	_, err := db.Exec(`
	UPDATE users
	SET music_platform = ?, access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = ?
	WHERE id = ?`,
		platform, accessToken, refreshToken, expiry, time.Now().UTC(), userID)

	return err
}

// UnlinkMusicPlatform clears the platform linkage and its credentials.
func (db *DB) UnlinkMusicPlatform(userID int64) error {
	_, err := db.Exec(`
	UPDATE users
	SET music_platform = NULL, access_token = NULL, refresh_token = NULL, token_expiry = NULL, updated_at = ?
	WHERE id = ?`,
		time.Now().UTC(), userID)

	return err
}

// SetPushToken stores the device push token used for notifications.
func (db *DB) SetPushToken(userID int64, token string) error {
	_, err := db.Exec(`
	UPDATE users SET push_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC(), userID)

	return err
}

// GetPushTokens returns every registered push token, for reveal fan-out.
func (db *DB) GetPushTokens() ([]string, error) {
	rows, err := db.Query(`SELECT push_token FROM users WHERE push_token IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

// DeleteUser removes the user and best-effort cascades their
// submissions, comments, likes, friend edges and pending requests.
func (db *DB) DeleteUser(userID int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM likes WHERE user_id = ?1 OR submission_id IN (SELECT id FROM submissions WHERE user_id = ?1)`,
		`DELETE FROM comments WHERE user_id = ?1 OR submission_id IN (SELECT id FROM submissions WHERE user_id = ?1)`,
		`DELETE FROM submissions WHERE user_id = ?1`,
		`DELETE FROM friends WHERE user_id = ?1 OR friend_id = ?1`,
		`DELETE FROM friend_requests WHERE user_id = ?1 OR requester_username IN (SELECT username FROM users WHERE id = ?1 AND username IS NOT NULL)`,
		`DELETE FROM users WHERE id = ?1`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt, userID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
