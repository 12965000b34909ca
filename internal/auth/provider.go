// Package auth obtains and caches the bearer credential the commit
// call rides on. The session service is an external collaborator; this
// package's only contract is "return a non-expired token or a typed
// unavailable error".
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnavailable is wrapped by every failure to produce a usable
// credential, so callers can classify with errors.Is.
var ErrUnavailable = errors.New("session credential unavailable")

// defaultLeeway is how close to expiry a cached token may get before it
// is refreshed instead of reused.
const defaultLeeway = 30 * time.Second

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Provider fetches bearer tokens from the session service and caches
// them until they near expiry.
type Provider struct {
	http    HTTPDoer
	baseURL string
	logger  *slog.Logger
	leeway  time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time

	// now is swapped in tests.
	now func() time.Time
}

// NewProvider creates a credential provider rooted at the session
// service's base URL.
func NewProvider(doer HTTPDoer, baseURL string, logger *slog.Logger) *Provider {
	return &Provider{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		leeway:  defaultLeeway,
		now:     time.Now,
	}
}

// tokenResponse is the session service's reply. ExpiresAt is optional
// when the token itself is a JWT carrying an exp claim.
type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// FreshCredential returns a bearer token guaranteed not to expire
// within the refresh leeway. A cached token is reused while fresh;
// otherwise a new one is fetched.
func (p *Provider) FreshCredential(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Add(p.leeway).Before(p.expires) {
		return p.token, nil
	}

	token, expires, err := p.fetch(ctx)
	if err != nil {
		// A stale cached token is never returned as a fallback: the
		// remote commit would fail with a 401 after the network round
		// trip instead of failing fast here.
		p.token = ""
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	p.token = token
	p.expires = expires
	p.logger.DebugContext(ctx, "session credential refreshed",
		slog.Time("expires_at", expires),
	)
	return token, nil
}

// Invalidate drops the cached token, forcing the next FreshCredential
// to hit the session service.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expires = time.Time{}
}

// fetch requests a new token. Caller holds p.mu.
func (p *Provider) fetch(ctx context.Context) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/sessions/token", http.NoBody)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create token request: %w", err)
	}

	resp, err := p.http.Do(ctx, req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("call session service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", time.Time{}, fmt.Errorf("session service returned status %d", resp.StatusCode)
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", time.Time{}, errors.New("session service returned an empty token")
	}

	expires := parsed.ExpiresAt
	if exp, ok := jwtExpiry(parsed.AccessToken); ok {
		// The exp claim is authoritative over the envelope field.
		expires = exp
	}
	if expires.IsZero() {
		return "", time.Time{}, errors.New("token carries no expiry")
	}
	if !p.now().Add(p.leeway).Before(expires) {
		return "", time.Time{}, fmt.Errorf("token already expired or expiring at %s", expires.Format(time.RFC3339))
	}

	return parsed.AccessToken, expires, nil
}

// jwtExpiry extracts the exp claim from a JWT without verifying its
// signature. Verification is the commit service's job; locally the
// claim is only used to schedule refreshes.
func jwtExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
