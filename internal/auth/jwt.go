package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	jwtGrantType      = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime = 2 * time.Minute
	pemPrefix         = "-----BEGIN"
)

// JWTConfig configures the JWT bearer flow.
type JWTConfig struct {
	ClientID string
	Username string

	// PrivateKey is either PEM contents or a path to a PEM file.
	PrivateKey string

	// LoginURL is the token audience and endpoint host.
	LoginURL string
}

// JWTBearer authenticates with a signed RS256 assertion.
type JWTBearer struct {
	tokenCache
	cfg    JWTConfig
	client *http.Client
}

// NewJWTBearer creates a JWT bearer token source.
func NewJWTBearer(cfg JWTConfig, client *http.Client) *JWTBearer {
	b := &JWTBearer{cfg: cfg, client: httpClientOrDefault(client)}
	b.now = time.Now
	b.fetch = b.login
	return b
}

func (b *JWTBearer) login(ctx context.Context) (Token, error) {
	key, err := loadPrivateKey(b.cfg.PrivateKey)
	if err != nil {
		return Token{}, err
	}

	assertion, err := b.assertion(key, b.now())
	if err != nil {
		return Token{}, fmt.Errorf("JWT authentication failed: signing assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtGrantType},
		"assertion":  {assertion},
	}
	return requestToken(ctx, b.client, b.cfg.LoginURL, "JWT", form)
}

// assertion builds the signed JWT presented to the token endpoint.
func (b *JWTBearer) assertion(key *rsa.PrivateKey, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    b.cfg.ClientID,
		Subject:   b.cfg.Username,
		Audience:  jwt.ClaimStrings{strings.TrimRight(b.cfg.LoginURL, "/")},
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

func loadPrivateKey(keyOrPath string) (*rsa.PrivateKey, error) {
	if keyOrPath == "" {
		return nil, fmt.Errorf("%w: no private key configured", ErrPrivateKey)
	}

	pemData := []byte(keyOrPath)
	if !strings.HasPrefix(strings.TrimSpace(keyOrPath), pemPrefix) {
		data, err := os.ReadFile(filepath.Clean(keyOrPath))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPrivateKey, err)
		}
		pemData = data
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrivateKey, err)
	}
	return key, nil
}
