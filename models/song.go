package models

import "time"

// Song is the normalized now-playing snapshot stored on a submission.
// Both the currently-playing and recently-played upstream shapes are
// flattened into this one form.
type Song struct {
	Name      string    `json:"name"`
	Artist    string    `json:"artist"`
	URL       string    `json:"url"`
	LengthMs  int64     `json:"lengthMs"`
	ElapsedMs int64     `json:"elapsedMs"`
	Timestamp time.Time `json:"timestamp"`
}
