package credential

import (
	"context"
	"sync"
	"time"
)

// AccessToken is a bearer token and its expiry.
type AccessToken struct {
	Value    string    `json:"value"`
	Expiry   time.Time `json:"expiry"`
	MintedAt time.Time `json:"minted_at"`
}

// Valid reports whether the token may still be presented at now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.Expiry)
}

// Bearer returns the token to present on a gateway call.
type Bearer interface {
	Bearer(ctx context.Context) (string, error)
}

// PassToken is the token minted at the start of a processing pass. It is
// re-minted from its source once expired, so a long pass never presents a
// stale token.
type PassToken struct {
	mu     sync.Mutex
	source Source
	token  AccessToken
	now    func() time.Time
}

// NewPassToken mints the pass token. An error here aborts the pass.
func NewPassToken(ctx context.Context, source Source, now func() time.Time) (*PassToken, error) {
	if now == nil {
		now = time.Now
	}
	tok, err := source.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &PassToken{source: source, token: tok, now: now}, nil
}

// Bearer returns the current token, minting a new one when it has expired.
func (p *PassToken) Bearer(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token.Valid(p.now()) {
		return p.token.Value, nil
	}
	tok, err := p.source.Token(ctx)
	if err != nil {
		return "", err
	}
	p.token = tok
	return tok.Value, nil
}

// Current returns the token held right now.
func (p *PassToken) Current() AccessToken {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}
