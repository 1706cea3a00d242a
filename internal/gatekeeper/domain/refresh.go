package domain

import "time"

// RefreshCredential is the single live refresh secret of a subject. Only the
// fingerprint of the secret is persisted; Secret is populated on the value
// handed back to the caller at issue and rotation time.
type RefreshCredential struct {
	ID         string
	Subject    string
	Secret     string
	SecretHash string // base64url SHA-256 of Secret
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the credential is no longer usable at now.
func (c RefreshCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
