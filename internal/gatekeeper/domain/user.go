package domain

import "time"

// User is the identity-store record. Email is the stable subject.
type User struct {
	ID           string
	Email        string
	PasswordHash string // argon2id encoded
	Roles        []string
	GoogleID     *string
	SpotifyID    *string
	AppleID      *string
	SoundCloudID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
