package db

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is a wrapper around sql.DB
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err = db.Ping(); err != nil {
		return nil, err
	}

	// The submission uniqueness transaction relies on a single writer.
	db.SetMaxOpenConns(1)

	return &DB{db}, nil
}

// Initialize sets up the database tables and seeds the cycle singleton.
func (db *DB) Initialize() error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject TEXT NOT NULL UNIQUE,
		email TEXT,
		username TEXT UNIQUE,
		music_platform TEXT,
		access_token TEXT,
		refresh_token TEXT,
		token_expiry TIMESTAMP,
		push_token TEXT,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS friends (
		user_id INTEGER NOT NULL,
		friend_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, friend_id),
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (friend_id) REFERENCES users(id)
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS friend_requests (
		user_id INTEGER NOT NULL,
		requester_username TEXT NOT NULL,
		created_at TIMESTAMP,
		PRIMARY KEY (user_id, requester_username),
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`)
	if err != nil {
		return err
	}

	// Singleton row: exactly one cycle is live at a time.
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		number INTEGER NOT NULL,
		reveal_time TIMESTAMP NOT NULL,
		previous_reveal_time TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		song_name TEXT NOT NULL,
		song_artist TEXT NOT NULL,
		song_url TEXT NOT NULL,
		song_length_ms INTEGER NOT NULL,
		song_elapsed_ms INTEGER NOT NULL,
		song_timestamp TIMESTAMP NOT NULL,
		latitude REAL,
		longitude REAL,
		late BOOLEAN NOT NULL,
		late_seconds INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		caption TEXT NOT NULL DEFAULT '',
		audial TEXT NOT NULL DEFAULT '',
		UNIQUE (user_id, number),
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (submission_id) REFERENCES submissions(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS likes (
		submission_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (submission_id, user_id),
		FOREIGN KEY (submission_id) REFERENCES submissions(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`)
	if err != nil {
		return err
	}

	// Seed the cycle singleton so every read path sees a live cycle.
	now := time.Now().UTC()
	_, err = db.Exec(`
	INSERT OR IGNORE INTO cycles (id, number, reveal_time, previous_reveal_time, updated_at)
	VALUES (1, 0, ?, ?, ?)`, now, now, now)

	return err
}
