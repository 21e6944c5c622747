package models

import "time"

// Submission is one user's check-in for one cycle. At most one exists
// per (UserID, Number) pair. Only Caption, Audial, Comments and Likes
// change after creation.
type Submission struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId"`
	Username    string    `json:"username,omitempty"`
	Number      int64     `json:"number"`
	Song        Song      `json:"song"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Late        bool      `json:"late"`
	LateSeconds int64     `json:"lateSeconds"`
	Time        time.Time `json:"time"`
	Caption     string    `json:"caption,omitempty"`
	Audial      string    `json:"audial,omitempty"` // opaque mini-game attempt
	Comments    []Comment `json:"comments"`
	Likes       []int64   `json:"likes"`
}

// Comment is owned by exactly one submission and append-ordered.
type Comment struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NearbySubmission is the privacy-stripped projection returned by
// proximity queries: no comments, no like detail.
type NearbySubmission struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Song       Song    `json:"song"`
	Audial     string  `json:"audial,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distanceKm"`
}
