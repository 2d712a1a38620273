package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"complexityofneed.org/internal/obs"
)

const (
	// DefaultKeyTTL matches how long the identity provider's keys are trusted between fetches.
	DefaultKeyTTL = 24 * time.Hour
	// DefaultMinRefreshInterval bounds refetches triggered by unknown key ids.
	DefaultMinRefreshInterval = time.Minute

	maxJWKSBytes = 1 << 20
)

const tracerName = "complexityofneed.org/internal/auth"

// KeySource resolves a token's key id to the public key that signed it.
type KeySource interface {
	GetVerificationKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// keySnapshot is never mutated after it is published.
type keySnapshot struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// JWKSKeySource fetches and caches the identity provider's JWKS document.
// Readers load the current snapshot without locking; a refresh builds a new
// snapshot and swaps it in whole.
type JWKSKeySource struct {
	url        string
	client     *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time
	logger     *slog.Logger
	tracer     trace.Tracer

	snapshot atomic.Pointer[keySnapshot]
	group    singleflight.Group
}

// JWKSOption configures a JWKSKeySource.
type JWKSOption func(*JWKSKeySource)

// WithHTTPClient sets the client used to fetch the key set.
func WithHTTPClient(c *http.Client) JWKSOption {
	return func(s *JWKSKeySource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithKeyTTL sets how long a fetched key set stays valid.
func WithKeyTTL(ttl time.Duration) JWKSOption {
	return func(s *JWKSKeySource) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMinRefreshInterval sets the minimum age of a snapshot before an unknown
// key id may trigger another fetch. Zero allows a fetch on every miss.
func WithMinRefreshInterval(d time.Duration) JWKSOption {
	return func(s *JWKSKeySource) {
		if d >= 0 {
			s.minRefresh = d
		}
	}
}

// WithKeyClock overrides the time source.
func WithKeyClock(now func() time.Time) JWKSOption {
	return func(s *JWKSKeySource) {
		if now != nil {
			s.now = now
		}
	}
}

// WithKeyLogger sets the logger used for fetch failures.
func WithKeyLogger(l *slog.Logger) JWKSOption {
	return func(s *JWKSKeySource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeyTracerProvider sets the provider for jwks.fetch spans. The global
// provider is used otherwise.
func WithKeyTracerProvider(tp trace.TracerProvider) JWKSOption {
	return func(s *JWKSKeySource) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewJWKSKeySource creates a key source for the JWKS document at url.
func NewJWKSKeySource(url string, opts ...JWKSOption) *JWKSKeySource {
	s := &JWKSKeySource{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		ttl:        DefaultKeyTTL,
		minRefresh: DefaultMinRefreshInterval,
		now:        time.Now,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetVerificationKey returns the RSA key for kid, fetching the key set when the
// cache is empty, expired, or does not know kid yet.
func (s *JWKSKeySource) GetVerificationKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, ErrKeyNotFound
	}

	if snap := s.snapshot.Load(); snap != nil {
		age := s.now().Sub(snap.fetchedAt)
		if age < s.ttl {
			if key, ok := snap.keys[kid]; ok {
				return key, nil
			}
			if age < s.minRefresh {
				return nil, ErrKeyNotFound
			}
		}
	}

	snap, err := s.refresh(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := snap.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

// Refresh forces a fetch of the key set.
func (s *JWKSKeySource) Refresh(ctx context.Context) error {
	_, err := s.refresh(ctx)
	return err
}

// refresh collapses concurrent callers into a single fetch. Each caller still
// honours its own context while waiting.
func (s *JWKSKeySource) refresh(ctx context.Context) (*keySnapshot, error) {
	ch := s.group.DoChan("jwks", func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keySnapshot), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrKeySourceUnavailable, ctx.Err())
	}
}

func (s *JWKSKeySource) fetch(ctx context.Context) (snap *keySnapshot, err error) {
	ctx, span := s.tracer.Start(ctx, "jwks.fetch")
	span.SetAttributes(attribute.String("jwks.url", s.url))
	defer func() {
		if err != nil {
			obs.ObserveJWKSRefresh("error")
			span.RecordError(err)
			span.SetStatus(codes.Error, "jwks fetch failed")
			s.logger.ErrorContext(ctx, "jwks fetch failed",
				slog.String("url", s.url),
				slog.String("error", err.Error()),
			)
		} else {
			obs.ObserveJWKSRefresh("ok")
			span.SetAttributes(attribute.Int("jwks.keys", len(snap.keys)))
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrKeySourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeySourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJWKSBytes))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrKeySourceUnavailable, resp.StatusCode)
	}

	keys, err := decodeJWKS(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeySourceUnavailable, err)
	}

	snap = &keySnapshot{keys: keys, fetchedAt: s.now()}
	s.snapshot.Store(snap)
	return snap, nil
}

type jwksDocument struct {
	Keys []jsonWebKey `json:"keys"`
}

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// decodeJWKS returns the usable RSA keys in a JWKS document. Entries without a
// kid, of another key type, or with undecodable parameters are skipped.
func decodeJWKS(r io.Reader) (map[string]*rsa.PublicKey, error) {
	var doc jwksDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" || (k.Kty != "" && k.Kty != "RSA") || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable RSA keys")
	}
	return keys, nil
}

// parseRSAPublicKey builds a key from base64url, unsigned big-endian modulus and exponent.
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := decodeSegment(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := decodeSegment(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, errors.New("empty modulus or exponent")
	}
	exp := new(big.Int).SetBytes(eBytes)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(exp.Int64()),
	}, nil
}

// decodeSegment tolerates padded input, which some providers emit.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
