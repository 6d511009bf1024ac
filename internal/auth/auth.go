// Package auth obtains and caches Salesforce OAuth access tokens.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
	"github.com/sunyxi/salesforce-flow-cli/internal/logging"
)

// Login hosts.
const (
	ProductionLoginURL = "https://login.salesforce.com"
	SandboxLoginURL    = "https://test.salesforce.com"

	tokenPath = "/services/oauth2/token"

	// TokenLifetime is how long a token is reused before a new one is requested.
	TokenLifetime = 55 * time.Minute

	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 64 << 10
)

// Errors.
var (
	ErrAuthFailed        = errors.New("authentication failed")
	ErrUnsupportedMethod = errors.New("unsupported authentication method")
	ErrPrivateKey        = errors.New("failed to read private key")
)

// Token is an access token bound to a Salesforce instance.
type Token struct {
	AccessToken string
	InstanceURL string
	Expiry      time.Time
}

// Valid reports whether the token can still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && t.InstanceURL != "" && now.Before(t.Expiry)
}

// TokenSource supplies access tokens.
type TokenSource interface {
	// Token returns a cached token or obtains a new one.
	Token(ctx context.Context) (Token, error)

	// Invalidate drops the cached token so the next Token call re-authenticates.
	Invalidate()
}

// LoginURL returns the login host for an org type.
func LoginURL(sandbox bool) string {
	if sandbox {
		return SandboxLoginURL
	}
	return ProductionLoginURL
}

// New builds the TokenSource selected by cfg.Method.
func New(cfg config.AuthConfig, client *http.Client) (TokenSource, error) {
	login := cfg.LoginURL
	if login == "" {
		login = LoginURL(cfg.Sandbox)
	}

	switch cfg.Method {
	case config.AuthMethodJWT, "":
		key := cfg.PrivateKey
		if key == "" {
			key = cfg.PrivateKeyPath
		}
		return NewJWTBearer(JWTConfig{
			ClientID:   cfg.ClientID,
			Username:   cfg.Username,
			PrivateKey: key,
			LoginURL:   login,
		}, client), nil
	case config.AuthMethodOAuth:
		return NewPasswordFlow(PasswordConfig{
			ClientID:      cfg.ClientID,
			ClientSecret:  cfg.ClientSecret,
			Username:      cfg.Username,
			Password:      cfg.Password,
			SecurityToken: cfg.SecurityToken,
			LoginURL:      login,
		}, client), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, cfg.Method)
	}
}

// tokenCache holds the current token for a source. fetch is called under the lock
// so concurrent callers share one login round trip.
type tokenCache struct {
	mu    sync.Mutex
	token Token
	now   func() time.Time
	fetch func(ctx context.Context) (Token, error)
}

func (c *tokenCache) Token(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid(c.now()) {
		return c.token, nil
	}

	tok, err := c.fetch(ctx)
	if err != nil {
		return Token{}, err
	}
	tok.Expiry = c.now().Add(TokenLifetime)
	c.token = tok
	return tok, nil
}

func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	c.token = Token{}
	c.mu.Unlock()
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	InstanceURL      string `json:"instance_url"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// requestToken posts form to the token endpoint under loginURL.
func requestToken(ctx context.Context, client *http.Client, loginURL, method string, form url.Values) (Token, error) {
	endpoint := strings.TrimRight(loginURL, "/") + tokenPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("%s authentication failed: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	log := logging.FromContext(ctx)
	log.Debug().Ctx(ctx).Str("component", "auth").Str("method", method).Str("endpoint", endpoint).Msg("requesting access token")

	resp, err := client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%s authentication failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return Token{}, fmt.Errorf("%s authentication failed: reading response: %w", method, err)
	}

	var tr tokenResponse
	_ = json.Unmarshal(body, &tr)

	if resp.StatusCode != http.StatusOK || tr.AccessToken == "" {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = tr.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return Token{}, fmt.Errorf("%w: %s authentication failed: %s", ErrAuthFailed, method, msg)
	}

	log.Debug().Ctx(ctx).Str("component", "auth").Str("instance_url", tr.InstanceURL).Msg("access token obtained")
	return Token{AccessToken: tr.AccessToken, InstanceURL: tr.InstanceURL}, nil
}

func httpClientOrDefault(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}
