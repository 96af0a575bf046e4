package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/infrastructure/logger"
)

const (
	CookieName     = "auth_token"
	CookieMaxAge   = 7 * 24 * 60 * 60
	CookiePath     = "/"
	CookieSameSite = http.SameSiteStrictMode
)

type AuthService interface {
	Login(ctx context.Context, username, password string) (*domain.Authorized, error)
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
	ConsentURL(userID int64) string
	HandleOAuthCallback(ctx context.Context, user *domain.User, code string) (domain.AuthResult, error)
}

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext returns the authenticated user placed by AuthMiddleware.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userContextKey).(*domain.User)
	return u, ok
}

func AuthMiddleware(authSvc AuthService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		user, err := authSvc.ValidateToken(r.Context(), cookie.Value)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

func LoginHandler(authSvc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		session, err := authSvc.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    session.Token,
			MaxAge:   CookieMaxAge,
			Path:     CookiePath,
			Secure:   true,
			HttpOnly: true,
			SameSite: CookieSameSite,
		})
		writeJSON(w, http.StatusOK, map[string]any{"expires_at": session.ExpiresAt})
	}
}

func LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			MaxAge:   -1,
			Path:     CookiePath,
			Secure:   true,
			HttpOnly: true,
			SameSite: CookieSameSite,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// GoogleURLHandler hands the frontend the consent URL for the logged-in user.
func GoogleURLHandler(authSvc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"consent_url": authSvc.ConsentURL(user.ID)})
	}
}

func GoogleCallbackHandler(authSvc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, "missing authorization code")
			return
		}

		result, err := authSvc.HandleOAuthCallback(r.Context(), user, code)
		if err != nil {
			logger.Error.Printf("oauth callback for user %d: %v", user.ID, err)
			writeError(w, http.StatusBadGateway, "authorization exchange failed")
			return
		}

		switch v := result.(type) {
		case domain.Authorized:
			writeJSON(w, http.StatusOK, map[string]any{"authorized": true, "expires_at": v.ExpiresAt})
		case domain.NeedsReauth:
			writeJSON(w, http.StatusOK, map[string]any{"authorized": false, "consent_url": v.ConsentURL})
		}
	}
}
