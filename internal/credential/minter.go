package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"dream-push-backend/config"
	"dream-push-backend/internal/pusherr"
)

var mon = monkit.Package()

const (
	// GrantType is the OAuth2 grant used to exchange a signed assertion.
	GrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	// AssertionLifetime is the validity window of an assertion and the upper
	// bound of any token minted from it.
	AssertionLifetime = time.Hour

	maxResponseBody = 1 << 20
)

// Source hands out gateway access tokens.
type Source interface {
	Token(ctx context.Context) (AccessToken, error)
}

// Minter exchanges RS256 assertions signed with the service account key for
// bearer access tokens.
type Minter struct {
	account  *ServiceAccount
	tokenURI string
	scope    string
	client   *http.Client
	now      func() time.Time
	log      *zap.Logger
}

// Option customises a Minter.
type Option func(*Minter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Minter) { m.now = now }
}

// WithHTTPClient replaces the default bounded client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Minter) { m.client = c }
}

// NewMinter creates a minter for the account. The key is only checked when an
// assertion is built, so a bad key surfaces on the first pass.
func NewMinter(account *ServiceAccount, cfg config.FirebaseConfig, log *zap.Logger, opts ...Option) *Minter {
	tokenURI := cfg.TokenURI
	if tokenURI == "" {
		tokenURI = account.TokenURI
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	m := &Minter{
		account:  account,
		tokenURI: tokenURI,
		scope:    cfg.Scope,
		client:   &http.Client{Timeout: timeout},
		now:      time.Now,
		log:      log.Named("credential"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Account returns the service account the minter signs for.
func (m *Minter) Account() *ServiceAccount {
	return m.account
}

// Assertion builds the signed JWT presented to the token endpoint.
func (m *Minter) Assertion(now time.Time) (string, error) {
	if err := m.account.Validate(); err != nil {
		return "", err
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(m.account.PrivateKey))
	if err != nil {
		return "", pusherr.Configuration.Wrap(fmt.Errorf("parse service account private key: %w", err))
	}

	claims := jwt.MapClaims{
		"iss":   m.account.ClientEmail,
		"scope": m.scope,
		"aud":   m.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(AssertionLifetime).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", pusherr.Configuration.Wrap(fmt.Errorf("sign assertion: %w", err))
	}
	return signed, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token mints a fresh access token.
func (m *Minter) Token(ctx context.Context) (_ AccessToken, err error) {
	defer mon.Task()(&ctx)(&err)

	now := m.now()
	assertion, err := m.Assertion(now)
	if err != nil {
		return AccessToken{}, err
	}

	form := url.Values{
		"grant_type": {GrantType},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, pusherr.Configuration.Wrap(fmt.Errorf("build token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return AccessToken{}, pusherr.CredentialExchange.Wrap(fmt.Errorf("token request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return AccessToken{}, pusherr.CredentialExchange.Wrap(fmt.Errorf("read token response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AccessToken{}, pusherr.CredentialExchange.New("token endpoint returned %d: %s", resp.StatusCode, snippet(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return AccessToken{}, pusherr.CredentialExchange.Wrap(fmt.Errorf("decode token response: %w", err))
	}
	if tr.AccessToken == "" {
		return AccessToken{}, pusherr.CredentialExchange.New("token endpoint returned no access_token")
	}

	expiry := now.Add(AssertionLifetime)
	if tr.ExpiresIn > 0 {
		if e := now.Add(time.Duration(tr.ExpiresIn) * time.Second); e.Before(expiry) {
			expiry = e
		}
	}

	m.log.Debug("minted access token",
		zap.String("client_email", m.account.ClientEmail),
		zap.Time("expiry", expiry))

	return AccessToken{Value: tr.AccessToken, Expiry: expiry, MintedAt: now}, nil
}

func snippet(b []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
