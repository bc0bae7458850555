package member

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Google OAuth2 endpoints. Overridable for tests.
const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Profile is the subset of the Google userinfo payload the service needs.
type Profile struct {
	GoogleID  string
	Email     string
	Name      string
	AvatarURL *string
}

// IdentityProvider resolves an external login code into a verified profile.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	ResolveCode(ctx context.Context, code string) (Profile, error)
}

// GoogleConfig holds the OAuth client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Endpoint overrides for tests; blank means the real Google endpoints.
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// GoogleProvider exchanges authorization codes against Google and fetches the
// userinfo profile. The token is used once and discarded; UniDash keeps no
// provider credentials.
type GoogleProvider struct {
	cfg        GoogleConfig
	httpClient *http.Client
}

// GoogleOption configures the provider.
type GoogleOption func(*GoogleProvider)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		if p == nil || c == nil {
			return
		}
		p.httpClient = c
	}
}

// NewGoogleProvider constructs a GoogleProvider.
func NewGoogleProvider(cfg GoogleConfig, opts ...GoogleOption) (*GoogleProvider, error) {
	const op = "member.NewGoogleProvider"

	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.RedirectURI) == "" {
		return nil, invalid(op, "client id and redirect uri are required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = googleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = googleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}

	p := &GoogleProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	return p, nil
}

// AuthCodeURL builds the consent-screen redirect URL.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.RedirectURI)
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	q.Set("prompt", "consent")
	return p.cfg.AuthURL + "?" + q.Encode()
}

// ResolveCode exchanges the callback code for an access token and fetches the
// userinfo profile.
func (p *GoogleProvider) ResolveCode(ctx context.Context, code string) (Profile, error) {
	const op = "member.ResolveCode"

	code = strings.TrimSpace(code)
	if code == "" {
		return Profile{}, invalid(op, "missing code")
	}

	accessToken, err := p.exchangeCode(ctx, code)
	if err != nil {
		return Profile{}, err
	}
	return p.fetchProfile(ctx, accessToken)
}

func (p *GoogleProvider) exchangeCode(ctx context.Context, code string) (string, error) {
	const op = "member.ResolveCode"

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURI)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", OpError{Op: op, Kind: ErrProvider, Msg: "token exchange failed"}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", OpError{Op: op, Kind: ErrProvider, Msg: "token exchange rejected"}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", OpError{Op: op, Kind: ErrProvider, Msg: "malformed token response"}
	}
	if payload.AccessToken == "" {
		return "", OpError{Op: op, Kind: ErrProvider, Msg: "missing access token"}
	}
	return payload.AccessToken, nil
}

func (p *GoogleProvider) fetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	const op = "member.ResolveCode"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Profile{}, OpError{Op: op, Kind: ErrProvider, Msg: "userinfo request failed"}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, OpError{Op: op, Kind: ErrProvider, Msg: "userinfo request rejected"}
	}

	var payload struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Profile{}, OpError{Op: op, Kind: ErrProvider, Msg: "malformed userinfo response"}
	}
	if payload.Sub == "" || payload.Email == "" {
		return Profile{}, OpError{Op: op, Kind: ErrProvider, Msg: "incomplete userinfo payload"}
	}

	out := Profile{
		GoogleID: payload.Sub,
		Email:    payload.Email,
		Name:     payload.Name,
	}
	if out.Name == "" {
		out.Name = payload.Email
	}
	if payload.Picture != "" {
		pic := payload.Picture
		out.AvatarURL = &pic
	}
	return out, nil
}
