package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// PasswordConfig configures the OAuth username-password flow.
type PasswordConfig struct {
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	SecurityToken string
	LoginURL      string
}

// PasswordFlow authenticates with the OAuth 2.0 username-password grant.
type PasswordFlow struct {
	tokenCache
	cfg    PasswordConfig
	client *http.Client
}

// NewPasswordFlow creates a username-password token source.
func NewPasswordFlow(cfg PasswordConfig, client *http.Client) *PasswordFlow {
	p := &PasswordFlow{cfg: cfg, client: httpClientOrDefault(client)}
	p.now = time.Now
	p.fetch = p.login
	return p
}

func (p *PasswordFlow) login(ctx context.Context) (Token, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"username":      {p.cfg.Username},
		"password":      {p.cfg.Password + p.cfg.SecurityToken},
	}
	return requestToken(ctx, p.client, p.cfg.LoginURL, "OAuth", form)
}
