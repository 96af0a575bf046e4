package port

import (
	"context"

	"github.com/bnema/tunecast/internal/domain"
)

type TokenExchanger interface {
	// Refresh exchanges a refresh token for fresh credentials. A revoked token
	// surfaces as *domain.ReauthRequiredError.
	Refresh(ctx context.Context, refreshToken string) (domain.Credentials, error)
	// Exchange trades an authorization code from the consent callback.
	Exchange(ctx context.Context, code string) (domain.Credentials, error)
	// ConsentURL builds the URL that restarts the consent flow.
	ConsentURL(state string) string
}
