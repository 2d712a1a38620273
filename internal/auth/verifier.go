package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const bearerScheme = "Bearer"

var (
	errMissingHeader = errors.New("authorization header missing")
	errWrongScheme   = errors.New("authorization scheme is not Bearer")
	errEmptyToken    = errors.New("bearer token is empty")
	errMissingKid    = errors.New("token header has no kid")
	errMissingExpiry = errors.New("token has no exp claim")
)

// Verifier turns an Authorization header value into a VerifiedToken.
// Tokens must be RS256, signed by a key published by the identity provider,
// issued by the configured issuer and not yet expired.
type Verifier struct {
	keys   KeySource
	issuer string
	now    func() time.Time
	tracer trace.Tracer
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithTracerProvider sets the provider for token.verify spans.
func WithTracerProvider(tp trace.TracerProvider) VerifierOption {
	return func(v *Verifier) {
		if tp != nil {
			v.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewVerifier builds a Verifier that resolves signing keys through keys.
func NewVerifier(keys KeySource, issuer string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keys:   keys,
		issuer: issuer,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates the raw header value ("Bearer <token>").
// Rejections are *TokenError; key set fetch failures are ErrKeySourceUnavailable.
func (v *Verifier) Verify(ctx context.Context, header string) (*VerifiedToken, error) {
	ctx, span := v.tracer.Start(ctx, "token.verify")
	defer span.End()

	tok, err := v.verify(ctx, header)
	if err != nil {
		if kind, ok := TokenErrorKindOf(err); ok {
			span.SetAttributes(attribute.String("auth.rejection", kind.String()))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "token verification failed")
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.client_id", tok.ClientID))
	return tok, nil
}

func (v *Verifier) verify(ctx context.Context, header string) (*VerifiedToken, error) {
	raw, err := ExtractBearer(header)
	if err != nil {
		return nil, tokenError(MissingOrMalformed, err)
	}

	// Expiry is decided before the signature so that a stale token is always
	// reported as expired.
	var unverified tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &unverified); err != nil {
		return nil, tokenError(MissingOrMalformed, err)
	}
	if unverified.ExpiresAt == nil {
		return nil, tokenError(Expired, errMissingExpiry)
	}
	if !v.now().Before(unverified.ExpiresAt.Time) {
		return nil, tokenError(Expired, jwt.ErrTokenExpired)
	}

	var keyErr error
	claims := &tokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	_, err = parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			keyErr = errMissingKid
			return nil, keyErr
		}
		key, err := v.keys.GetVerificationKey(ctx, kid)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return key, nil
	})
	if err != nil {
		return nil, classify(err, keyErr)
	}
	return claims.verified(), nil
}

func classify(err, keyErr error) error {
	switch {
	case keyErr != nil && errors.Is(keyErr, ErrKeySourceUnavailable):
		return keyErr
	case keyErr != nil:
		return tokenError(UnknownKey, keyErr)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return tokenError(MissingOrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return tokenError(InvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return tokenError(InvalidIssuer, err)
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return tokenError(Expired, err)
	default:
		return tokenError(MissingOrMalformed, err)
	}
}

// ExtractBearer returns the token part of a "Bearer <token>" header value.
// The scheme is matched case-insensitively.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok {
		if strings.EqualFold(header, bearerScheme) {
			return "", errEmptyToken
		}
		return "", errWrongScheme
	}
	if !strings.EqualFold(scheme, bearerScheme) {
		return "", errWrongScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyToken
	}
	return token, nil
}
