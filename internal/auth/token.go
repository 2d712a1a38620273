package auth

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Set is an immutable-by-convention collection of role or scope names.
type Set map[string]struct{}

// NewSet builds a Set, skipping blank entries.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		s[v] = struct{}{}
	}
	return s
}

// Has reports membership. A nil Set contains nothing.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// VerifiedToken is the request-scoped view of an accepted bearer token.
type VerifiedToken struct {
	ClientID string
	Subject  string
	UserName string
	Roles    Set
	Scopes   Set
	Expiry   time.Time
}

// HasRole reports whether the token grants role.
func (t *VerifiedToken) HasRole(role string) bool {
	return t != nil && t.Roles.Has(role)
}

// HasScope reports whether the token carries scope.
func (t *VerifiedToken) HasScope(scope string) bool {
	return t != nil && t.Scopes.Has(scope)
}

// tokenClaims is the claim layout issued by HMPPS Auth.
type tokenClaims struct {
	ClientID    string     `json:"client_id"`
	UserName    string     `json:"user_name,omitempty"`
	Authorities stringList `json:"authorities,omitempty"`
	Scope       stringList `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

func (c *tokenClaims) verified() *VerifiedToken {
	tok := &VerifiedToken{
		ClientID: c.ClientID,
		Subject:  c.Subject,
		UserName: c.UserName,
		Roles:    NewSet(c.Authorities...),
		Scopes:   NewSet(c.Scope...),
	}
	if c.ExpiresAt != nil {
		tok.Expiry = c.ExpiresAt.Time
	}
	return tok
}

// stringList accepts either a JSON array of strings or a single
// space-delimited string (RFC 8693 style scope).
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = strings.Fields(single)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}
