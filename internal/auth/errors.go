package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by a KeySource when no key carries the requested id.
	ErrKeyNotFound = errors.New("auth: verification key not found")
	// ErrKeySourceUnavailable means the identity provider's key set could not be fetched.
	// It signals a deployment or network fault, not a bad caller.
	ErrKeySourceUnavailable = errors.New("auth: key source unavailable")
)

// TokenErrorKind classifies why a bearer token was rejected.
type TokenErrorKind int

const (
	MissingOrMalformed TokenErrorKind = iota + 1
	UnknownKey
	InvalidSignature
	InvalidIssuer
	Expired
)

func (k TokenErrorKind) String() string {
	switch k {
	case MissingOrMalformed:
		return "missing_or_malformed"
	case UnknownKey:
		return "unknown_key"
	case InvalidSignature:
		return "invalid_signature"
	case InvalidIssuer:
		return "invalid_issuer"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("token_error(%d)", int(k))
	}
}

// TokenError is returned by Verifier for every unauthenticated outcome.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return "auth: token rejected: " + e.Kind.String()
	}
	return "auth: token rejected: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *TokenError) Unwrap() error { return e.Err }

// Is matches another *TokenError of the same kind, so callers can write
// errors.Is(err, &auth.TokenError{Kind: auth.Expired}).
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	if !ok {
		return false
	}
	return t.Kind == 0 || t.Kind == e.Kind
}

// ErrInvalidToken matches any TokenError via errors.Is.
var ErrInvalidToken = &TokenError{}

// TokenErrorKindOf reports the kind of a TokenError anywhere in err's chain.
func TokenErrorKindOf(err error) (TokenErrorKind, bool) {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

func tokenError(kind TokenErrorKind, err error) error {
	return &TokenError{Kind: kind, Err: err}
}
