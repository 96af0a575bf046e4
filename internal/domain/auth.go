package domain

import "time"

// AuthResult is the outcome of an OAuth callback exchange. It is a closed
// union: callers must switch on the concrete type, so forgetting to handle the
// reauth case does not compile.
type AuthResult interface {
	authResult()
}

// Authorized carries a freshly minted session token.
type Authorized struct {
	Token     string
	ExpiresAt time.Time
}

// NeedsReauth tells the caller to send the user back through consent.
type NeedsReauth struct {
	ConsentURL string
}

func (Authorized) authResult()  {}
func (NeedsReauth) authResult() {}
