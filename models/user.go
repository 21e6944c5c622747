package models

import "time"

// User represents an aux account.
type User struct {
	ID            int64
	Subject       string     // identity-provider subject id
	Email         *string    // Use pointer for nullable fields
	Username      *string    // globally unique once set
	MusicPlatform *string    // "spotify"
	AccessToken   *string    // music platform access token
	RefreshToken  *string    // music platform refresh token
	TokenExpiry   *time.Time // music platform token expiry
	PushToken     *string    // device push token, if registered
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PublicProfile is the subset of a user shared with other users.
type PublicProfile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Public returns the shareable projection of the user.
func (u *User) Public() PublicProfile {
	p := PublicProfile{ID: u.ID}
	if u.Username != nil {
		p.Username = *u.Username
	}
	return p
}
