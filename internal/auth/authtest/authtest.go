// Package authtest provides an in-process stand-in for the identity provider:
// RSA signing keys, a JWKS endpoint and token minting.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	JWKSPath   = "/auth/.well-known/jwks.json"
	IssuerPath = "/auth/issuer"
)

// Key is an RSA signing key with its key id.
type Key struct {
	Kid     string
	Private *rsa.PrivateKey
}

// NewKey generates a 2048-bit key.
func NewKey(t testing.TB, kid string) Key {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return Key{Kid: kid, Private: priv}
}

// JWK renders the public half as a JWKS entry.
func (k Key) JWK() map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": k.Kid,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(k.Private.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.Private.PublicKey.E)).Bytes()),
	}
}

// Claims mirrors the token layout issued by HMPPS Auth.
type Claims struct {
	ClientID    string   `json:"client_id,omitempty"`
	UserName    string   `json:"user_name,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	Scope       []string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Sign produces a compact RS256 token with the key id in its header.
func (k Key) Sign(t testing.TB, claims jwt.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = k.Kid
	signed, err := tok.SignedString(k.Private)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// Provider serves a JWKS document over HTTP and mints tokens for its issuer.
type Provider struct {
	Server *httptest.Server

	mu       sync.RWMutex
	keys     []Key
	requests atomic.Int64
	status   atomic.Int64
	gate     chan struct{}
}

// NewProvider starts a JWKS server publishing the given keys. With no keys a
// single key "test-key" is generated.
func NewProvider(t testing.TB, keys ...Key) *Provider {
	t.Helper()
	if len(keys) == 0 {
		keys = []Key{NewKey(t, "test-key")}
	}
	p := &Provider{keys: keys}
	p.status.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc(JWKSPath, p.serveJWKS)
	mux.HandleFunc("/auth/health/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func (p *Provider) serveJWKS(w http.ResponseWriter, r *http.Request) {
	p.requests.Add(1)

	p.mu.RLock()
	gate := p.gate
	p.mu.RUnlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if code := int(p.status.Load()); code != http.StatusOK {
		http.Error(w, "unavailable", code)
		return
	}

	p.mu.RLock()
	entries := make([]map[string]string, 0, len(p.keys))
	for _, k := range p.keys {
		entries = append(entries, k.JWK())
	}
	p.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": entries})
}

// URL is the provider's base URL (what HMPPS_AUTH_URL would hold).
func (p *Provider) URL() string { return p.Server.URL }

// JWKSURL is the key set location.
func (p *Provider) JWKSURL() string { return p.Server.URL + JWKSPath }

// Issuer is the iss value of minted tokens.
func (p *Provider) Issuer() string { return p.Server.URL + IssuerPath }

// Requests counts JWKS fetches served so far.
func (p *Provider) Requests() int { return int(p.requests.Load()) }

// SetKeys replaces the published key set (simulates rotation).
func (p *Provider) SetKeys(keys ...Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = keys
}

// Key returns the first published key.
func (p *Provider) Key() Key {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.keys[0]
}

// SetStatus makes the JWKS endpoint answer with code (200 restores normal service).
func (p *Provider) SetStatus(code int) { p.status.Store(int64(code)) }

// Hold blocks JWKS responses until the returned release function is called.
func (p *Provider) Hold() (release func()) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.gate = ch
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.gate = nil
			p.mu.Unlock()
			close(ch)
		})
	}
}

// TokenOption adjusts minted claims.
type TokenOption func(*Claims)

// WithRoles sets the authorities claim.
func WithRoles(roles ...string) TokenOption {
	return func(c *Claims) { c.Authorities = roles }
}

// WithScopes sets the scope claim.
func WithScopes(scopes ...string) TokenOption {
	return func(c *Claims) { c.Scope = scopes }
}

// WithClientID sets client_id.
func WithClientID(id string) TokenOption {
	return func(c *Claims) { c.ClientID = id }
}

// WithUserName sets user_name.
func WithUserName(name string) TokenOption {
	return func(c *Claims) { c.UserName = name }
}

// WithExpiry sets exp.
func WithExpiry(exp time.Time) TokenOption {
	return func(c *Claims) { c.ExpiresAt = jwt.NewNumericDate(exp) }
}

// WithIssuer overrides iss.
func WithIssuer(iss string) TokenOption {
	return func(c *Claims) { c.Issuer = iss }
}

// Token mints a token signed by the provider's first key. Defaults: client
// "test-client", no roles, one hour lifetime.
func (p *Provider) Token(t testing.TB, opts ...TokenOption) string {
	t.Helper()
	return p.TokenWithKey(t, p.Key(), opts...)
}

// TokenWithKey mints a token signed by key, which need not be published.
func (p *Provider) TokenWithKey(t testing.TB, key Key, opts ...TokenOption) string {
	t.Helper()
	now := time.Now()
	claims := &Claims{
		ClientID: "test-client",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer(),
			Subject:   "test-client",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	for _, opt := range opts {
		opt(claims)
	}
	return key.Sign(t, claims)
}

// Bearer prefixes a token with the Bearer scheme.
func Bearer(token string) string { return "Bearer " + token }
