package db

import (
	"database/sql"
	"time"

	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
)

const submissionColumns = `s.id, s.user_id, s.number,
	s.song_name, s.song_artist, s.song_url, s.song_length_ms, s.song_elapsed_ms, s.song_timestamp,
	s.latitude, s.longitude, s.late, s.late_seconds, s.created_at, s.caption, s.audial`

func scanSubmission(row interface{ Scan(...any) error }) (*models.Submission, error) {
	sub := &models.Submission{}
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.Number,
		&sub.Song.Name, &sub.Song.Artist, &sub.Song.URL,
		&sub.Song.LengthMs, &sub.Song.ElapsedMs, &sub.Song.Timestamp,
		&sub.Latitude, &sub.Longitude, &sub.Late, &sub.LateSeconds,
		&sub.Time, &sub.Caption, &sub.Audial)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return sub, nil
}

// CreateSubmission persists a submission. The existence check and the
// insert run in one transaction, and the UNIQUE(user_id, number) index
// backs it up, so concurrent duplicate attempts for the same user and
// cycle can never both land.
func (db *DB) CreateSubmission(sub *models.Submission) error {
	const op errs.Op = "db.CreateSubmission"

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRow(`
	SELECT COUNT(*) FROM submissions WHERE user_id = ? AND number = ?`,
		sub.UserID, sub.Number).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return errs.E(op, errs.AlreadySubmitted)
	}

	_, err = tx.Exec(`
	INSERT INTO submissions (id, user_id, number,
		song_name, song_artist, song_url, song_length_ms, song_elapsed_ms, song_timestamp,
		latitude, longitude, late, late_seconds, created_at, caption, audial)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.Number,
		sub.Song.Name, sub.Song.Artist, sub.Song.URL,
		sub.Song.LengthMs, sub.Song.ElapsedMs, sub.Song.Timestamp,
		sub.Latitude, sub.Longitude, sub.Late, sub.LateSeconds,
		sub.Time, sub.Caption, sub.Audial)

	if isUniqueViolation(err) {
		return errs.E(op, errs.AlreadySubmitted)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetSubmission retrieves a submission by id, with comments and likes.
func (db *DB) GetSubmission(id string) (*models.Submission, error) {
	sub, err := scanSubmission(db.QueryRow(`
	SELECT `+submissionColumns+` FROM submissions s WHERE s.id = ?`, id))
	if err != nil || sub == nil {
		return sub, err
	}

	return db.attachDetail(sub)
}

// GetUserSubmission retrieves the submission for (userID, number), or
// nil when the user has not submitted this cycle.
func (db *DB) GetUserSubmission(userID, number int64) (*models.Submission, error) {
	sub, err := scanSubmission(db.QueryRow(`
	SELECT `+submissionColumns+` FROM submissions s
	WHERE s.user_id = ? AND s.number = ?`, userID, number))
	if err != nil || sub == nil {
		return sub, err
	}

	return db.attachDetail(sub)
}

func (db *DB) attachDetail(sub *models.Submission) (*models.Submission, error) {
	var username sql.NullString
	err := db.QueryRow(`SELECT username FROM users WHERE id = ?`, sub.UserID).Scan(&username)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	sub.Username = username.String

	comments, err := db.GetComments(sub.ID)
	if err != nil {
		return nil, err
	}
	sub.Comments = comments

	likes, err := db.GetLikes(sub.ID)
	if err != nil {
		return nil, err
	}
	sub.Likes = likes

	return sub, nil
}

// SetCaption updates only the caption of a submission.
func (db *DB) SetCaption(id, caption string) error {
	_, err := db.Exec(`UPDATE submissions SET caption = ? WHERE id = ?`, caption, id)
	return err
}

// SetAudial updates only the embedded mini-game attempt.
func (db *DB) SetAudial(id, audial string) error {
	_, err := db.Exec(`UPDATE submissions SET audial = ? WHERE id = ?`, audial, id)
	return err
}

// AddComment appends a comment to a submission.
func (db *DB) AddComment(submissionID string, comment *models.Comment) error {
	_, err := db.Exec(`
	INSERT INTO comments (id, submission_id, user_id, username, content, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		comment.ID, submissionID, comment.UserID, comment.Username,
		comment.Content, comment.CreatedAt)

	return err
}

// GetComment retrieves a single comment by id.
func (db *DB) GetComment(submissionID, commentID string) (*models.Comment, error) {
	comment := &models.Comment{}

	err := db.QueryRow(`
	SELECT id, user_id, username, content, created_at
	FROM comments WHERE submission_id = ? AND id = ?`,
		submissionID, commentID).Scan(
		&comment.ID, &comment.UserID, &comment.Username,
		&comment.Content, &comment.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return comment, nil
}

// DeleteComment removes a comment by id.
func (db *DB) DeleteComment(submissionID, commentID string) error {
	_, err := db.Exec(`
	DELETE FROM comments WHERE submission_id = ? AND id = ?`, submissionID, commentID)

	return err
}

// GetComments returns a submission's comments in append order.
func (db *DB) GetComments(submissionID string) ([]models.Comment, error) {
	rows, err := db.Query(`
	SELECT id, user_id, username, content, created_at
	FROM comments WHERE submission_id = ?
	ORDER BY rowid`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		err := rows.Scan(&c.ID, &c.UserID, &c.Username, &c.Content, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}

	return comments, rows.Err()
}

// CommenterIDs returns the distinct users who commented on a submission.
func (db *DB) CommenterIDs(submissionID string) ([]int64, error) {
	rows, err := db.Query(`
	SELECT DISTINCT user_id FROM comments WHERE submission_id = ?`, submissionID)
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

// AddLike records a like; re-liking is a no-op.
func (db *DB) AddLike(submissionID string, userID int64) error {
	_, err := db.Exec(`
	INSERT OR IGNORE INTO likes (submission_id, user_id, created_at)
	VALUES (?, ?, ?)`, submissionID, userID, time.Now().UTC())

	return err
}

// RemoveLike removes a like; unliking twice is a no-op.
func (db *DB) RemoveLike(submissionID string, userID int64) error {
	_, err := db.Exec(`
	DELETE FROM likes WHERE submission_id = ? AND user_id = ?`, submissionID, userID)

	return err
}

// GetLikes returns the ids of users who liked a submission.
func (db *DB) GetLikes(submissionID string) ([]int64, error) {
	rows, err := db.Query(`
	SELECT user_id FROM likes WHERE submission_id = ? ORDER BY rowid`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	likes := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		likes = append(likes, id)
	}

	return likes, rows.Err()
}

// SubmissionsInBox returns located submissions for a cycle whose
// coordinates fall inside the bounding box, joined with the owner's
// username. Exact radius refinement happens in the nearby service.
func (db *DB) SubmissionsInBox(number int64, minLat, maxLat, minLon, maxLon float64) ([]*models.Submission, error) {
	rows, err := db.Query(`
	SELECT `+submissionColumns+`, u.username
	FROM submissions s
	JOIN users u ON u.id = s.user_id
	WHERE s.number = ?
	  AND s.latitude IS NOT NULL AND s.longitude IS NOT NULL
	  AND s.latitude BETWEEN ? AND ?
	  AND s.longitude BETWEEN ? AND ?`,
		number, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		sub := &models.Submission{}
		var username sql.NullString
		err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.Number,
			&sub.Song.Name, &sub.Song.Artist, &sub.Song.URL,
			&sub.Song.LengthMs, &sub.Song.ElapsedMs, &sub.Song.Timestamp,
			&sub.Latitude, &sub.Longitude, &sub.Late, &sub.LateSeconds,
			&sub.Time, &sub.Caption, &sub.Audial, &username)
		if err != nil {
			return nil, err
		}
		sub.Username = username.String
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}
