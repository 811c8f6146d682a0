// Package authx owns the process-wide token cache and the login flows that
// mint into it.
package authx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"adqa/internal/domain"
	"adqa/internal/observability"
)

// Flow is a pluggable login state machine for one mode.
type Flow interface {
	Mode() domain.LoginMode
	Login(ctx context.Context) (*domain.Token, error)
}

// Cache is the one piece of process-wide mutable state in the harness: at
// most one valid token per mode, with concurrent first callers blocking on
// the same mint.
type Cache struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tokens  map[domain.LoginMode]*domain.Token
	minting map[domain.LoginMode]bool
	flows   map[domain.LoginMode]Flow

	// Default selects the mode used when the cache acts as the client's
	// token source.
	Default domain.LoginMode
	Log     *slog.Logger
}

func NewCache(defaultMode domain.LoginMode, flows ...Flow) *Cache {
	c := &Cache{
		tokens:  map[domain.LoginMode]*domain.Token{},
		minting: map[domain.LoginMode]bool{},
		flows:   map[domain.LoginMode]Flow{},
		Default: defaultMode,
		Log:     slog.Default(),
	}
	c.cond = sync.NewCond(&c.mu)
	for _, f := range flows {
		c.flows[f.Mode()] = f
	}
	return c
}

// GetOrMint returns the cached token for mode when present and unexpired,
// otherwise runs the mode's login flow. Concurrent callers observe a single
// mint: whoever arrives second waits for the first round-trip to finish.
func (c *Cache) GetOrMint(ctx context.Context, mode domain.LoginMode) (*domain.Token, error) {
	c.mu.Lock()
	for {
		if tok := c.tokens[mode]; tok.Valid(time.Now()) {
			c.mu.Unlock()
			return tok, nil
		}
		if !c.minting[mode] {
			break
		}
		c.cond.Wait()
	}

	flow, ok := c.flows[mode]
	if !ok {
		c.mu.Unlock()
		return nil, &domain.ConfigError{Field: "login flow for mode " + string(mode)}
	}
	c.minting[mode] = true
	c.mu.Unlock()

	tok, err := flow.Login(ctx)

	c.mu.Lock()
	c.minting[mode] = false
	if err == nil {
		tok.Mode = mode
		c.tokens[mode] = tok
		observability.TokenMints.WithLabelValues(string(mode)).Inc()
		c.Log.Info("token minted", "mode", mode, "expires_at", tok.ExpiresAt)
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Invalidate clears the slot for one mode (explicit logout).
func (c *Cache) Invalidate(mode domain.LoginMode) {
	c.mu.Lock()
	delete(c.tokens, mode)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// InvalidateAll clears every slot.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.tokens = map[domain.LoginMode]*domain.Token{}
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Token implements the HTTP client's token source using the default mode.
func (c *Cache) Token(ctx context.Context) (string, string, error) {
	tok, err := c.GetOrMint(ctx, c.Default)
	if err != nil {
		return "", "", err
	}
	typ := tok.Type
	if typ == "" {
		typ = "Bearer"
	}
	return tok.Value, typ, nil
}
