package domain

import "time"

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Credentials  Credentials
	CreatedAt    time.Time
}

// Credentials is the per-user OAuth state against the video platform.
// Expiry is always UTC. An empty RefreshToken means the user cannot be
// auto-refreshed and must go through the consent flow again.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Fresh reports whether the access token can still be used without a refresh.
func (c Credentials) Fresh(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.Expiry)
}

// Merge applies a provider response on top of stored credentials. Access token
// and expiry always come from the response; the refresh token is fill-if-
// missing, because providers commonly omit it when they do not rotate.
func (c Credentials) Merge(fresh Credentials) Credentials {
	merged := Credentials{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		Expiry:       fresh.Expiry,
	}
	if merged.RefreshToken == "" {
		merged.RefreshToken = c.RefreshToken
	}
	return merged
}
