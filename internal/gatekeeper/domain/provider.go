package domain

import (
	"fmt"
	"strings"
)

// Provider is a closed set of external identity providers.
type Provider string

const (
	ProviderGoogle     Provider = "GOOGLE"
	ProviderSpotify    Provider = "SPOTIFY"
	ProviderApple      Provider = "APPLE"
	ProviderSoundCloud Provider = "SOUNDCLOUD"
)

var providerColumns = map[Provider]string{
	ProviderGoogle:     "google_id",
	ProviderSpotify:    "spotify_id",
	ProviderApple:      "apple_id",
	ProviderSoundCloud: "soundcloud_id",
}

// ParseProvider accepts any casing of a known provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := providerColumns[p]; !ok {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// Column is the users column that stores this provider's subject id.
func (p Provider) Column() string {
	return providerColumns[p]
}

// Field returns the pointer inside u that holds this provider's id, or nil
// for an unknown provider.
func (p Provider) Field(u *User) **string {
	switch p {
	case ProviderGoogle:
		return &u.GoogleID
	case ProviderSpotify:
		return &u.SpotifyID
	case ProviderApple:
		return &u.AppleID
	case ProviderSoundCloud:
		return &u.SoundCloudID
	}
	return nil
}
