package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/infrastructure/logger"
	"github.com/bnema/tunecast/internal/port"
)

// CredentialRefresher guarantees a non-expired access token before any
// platform call is made on a user's behalf.
type CredentialRefresher struct {
	users port.UserStore
	oauth port.TokenExchanger
	now   func() time.Time
}

func NewCredentialRefresher(users port.UserStore, oauth port.TokenExchanger) *CredentialRefresher {
	return &CredentialRefresher{
		users: users,
		oauth: oauth,
		now:   time.Now,
	}
}

// EnsureValid returns fresh credentials for the user, hitting the token
// endpoint only when the stored access token has expired. The refreshed pair
// is persisted and mirrored onto the passed user.
func (r *CredentialRefresher) EnsureValid(ctx context.Context, user *domain.User) (domain.Credentials, error) {
	now := r.now().UTC()
	if user.Credentials.Fresh(now) {
		return user.Credentials, nil
	}

	// Without a refresh token there is nothing to exchange; the user has to
	// walk through consent again.
	if user.Credentials.RefreshToken == "" {
		return domain.Credentials{}, &domain.ReauthRequiredError{
			UserID:     user.ID,
			ConsentURL: r.oauth.ConsentURL(""),
		}
	}

	fresh, err := r.oauth.Refresh(ctx, user.Credentials.RefreshToken)
	if err != nil {
		var reauth *domain.ReauthRequiredError
		if errors.As(err, &reauth) {
			reauth.UserID = user.ID
			return domain.Credentials{}, reauth
		}
		return domain.Credentials{}, fmt.Errorf("refresh credentials for user %d: %w", user.ID, err)
	}

	merged := user.Credentials.Merge(fresh)
	if err := r.users.UpdateCredentials(ctx, user.ID, merged); err != nil {
		return domain.Credentials{}, fmt.Errorf("persist credentials for user %d: %w", user.ID, err)
	}
	user.Credentials = merged

	logger.Info.Printf("refreshed access token for user %d, valid until %s", user.ID, merged.Expiry.Format(time.RFC3339))
	return merged, nil
}
