// Package auth supplies bearer tokens to the remote client.
//
// The engine never runs a login flow. Tokens are produced elsewhere (a
// browser extension, an OAuth helper, an ops script) and handed to this
// process either directly or through a file that an external refresher
// rewrites. This package only reports what it has.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// TokenProvider supplies a bearer token for remote calls.
type TokenProvider interface {
	// Token returns the current token, or "" when none is available.
	Token(ctx context.Context) (string, error)

	// Refresh attempts to obtain a fresh token. Providers that cannot
	// refresh return an error; the caller maps that to a needs-auth
	// condition rather than retrying.
	Refresh(ctx context.Context) (string, error)

	// HasRequiredScopes reports whether the token grants the scopes the
	// sheet backend needs.
	HasRequiredScopes() bool
}

// StaticProvider holds a fixed token. Used in tests and for one-shot CLI
// invocations where the token arrives via flag or environment.
type StaticProvider struct {
	mu     sync.Mutex
	token  string
	scopes bool
}

// NewStaticProvider creates a provider returning the given token.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token, scopes: token != ""}
}

// Token implements TokenProvider.
func (p *StaticProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, nil
}

// Refresh implements TokenProvider. A static token cannot be refreshed.
func (p *StaticProvider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" {
		return "", fmt.Errorf("static provider has no token to refresh")
	}
	return p.token, nil
}

// HasRequiredScopes implements TokenProvider.
func (p *StaticProvider) HasRequiredScopes() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scopes
}

// SetToken replaces the held token. Tests use this to simulate an external
// re-auth completing.
func (p *StaticProvider) SetToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
	p.scopes = token != ""
}

// FileProvider reads the token from a file that an external refresher
// keeps up to date. Every Token call re-reads the file, so a refresh
// lands without process coordination; Refresh is just a forced re-read.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider backed by the given file path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Token implements TokenProvider. A missing file means no token, not an
// error: the caller treats "" as the auth-required condition.
func (p *FileProvider) Token(ctx context.Context) (string, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file %s: %w", p.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Refresh implements TokenProvider.
func (p *FileProvider) Refresh(ctx context.Context) (string, error) {
	token, err := p.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("token file %s is empty or missing", p.path)
	}
	return token, nil
}

// HasRequiredScopes implements TokenProvider. The file carries a bare
// token with no scope metadata, so presence is the best signal available.
func (p *FileProvider) HasRequiredScopes() bool {
	token, err := p.Token(context.Background())
	return err == nil && token != ""
}

// Path returns the watched file path.
func (p *FileProvider) Path() string {
	return p.path
}
