// Package google talks to the Google OAuth token endpoint for the YouTube
// upload scope.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/port"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
)

type Client struct {
	clientID     string
	clientSecret string
	redirectURL  string
	scope        string
	tokenURL     string
	authURL      string
	httpClient   *http.Client
	now          func() time.Time
}

func NewClient(clientID, clientSecret, redirectURL, scope string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		scope:        scope,
		tokenURL:     defaultTokenURL,
		authURL:      defaultAuthURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.Credentials, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	return c.postToken(ctx, form)
}

func (c *Client) Exchange(ctx context.Context, code string) (domain.Credentials, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"redirect_uri":  {c.redirectURL},
		"grant_type":    {"authorization_code"},
	}
	return c.postToken(ctx, form)
}

func (c *Client) postToken(ctx context.Context, form url.Values) (domain.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("token endpoint: read response: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return domain.Credentials{}, fmt.Errorf("token endpoint: status %d: unparsable body", resp.StatusCode)
	}

	// invalid_grant means the refresh token was revoked. The caller fills in
	// the user id before propagating.
	if tok.Error == "invalid_grant" {
		return domain.Credentials{}, &domain.ReauthRequiredError{ConsentURL: c.ConsentURL("")}
	}
	if resp.StatusCode != http.StatusOK || tok.Error != "" {
		return domain.Credentials{}, fmt.Errorf("token endpoint: status %d: %s %s", resp.StatusCode, tok.Error, tok.ErrorDescription)
	}
	if tok.AccessToken == "" {
		return domain.Credentials{}, fmt.Errorf("token endpoint: response missing access_token")
	}

	return domain.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       c.now().UTC().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}, nil
}

// ConsentURL builds the offline-access consent URL. prompt=consent forces
// Google to issue a new refresh token even for previously consented users.
func (c *Client) ConsentURL(state string) string {
	q := url.Values{
		"client_id":     {c.clientID},
		"redirect_uri":  {c.redirectURL},
		"response_type": {"code"},
		"scope":         {c.scope},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
	}
	if state != "" {
		q.Set("state", state)
	}
	return c.authURL + "?" + q.Encode()
}

var _ port.TokenExchanger = (*Client)(nil)
