package auth

import (
	"fmt"

	"complexityofneed.org/internal/config"
)

// Capability is an abstract permission required by an operation.
type Capability int

const (
	Read Capability = iota + 1
	Write
	AuditRead
)

func (c Capability) String() string {
	switch c {
	case Read:
		return "read"
	case Write:
		return "write"
	case AuditRead:
		return "audit_read"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// DenyReason says why a Decision is negative.
type DenyReason int

const (
	// MissingToken: no verified token reached the gate.
	MissingToken DenyReason = iota + 1
	// InsufficientGrant: the token lacks the role (or scope) the capability needs.
	InsufficientGrant
)

// Decision is the outcome of Policy.Authorize.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	// Required names the role that would have granted access.
	Required string
	// Message is safe to return to the caller.
	Message string
}

func allow() Decision { return Decision{Allowed: true} }

func denyMissingToken() Decision {
	return Decision{Reason: MissingToken, Message: "Missing or invalid access token"}
}

func denyRole(role string) Decision {
	return Decision{
		Reason:   InsufficientGrant,
		Required: role,
		Message:  fmt.Sprintf("You need the role '%s' to use this endpoint", role),
	}
}

// Policy maps a verified token and a capability to a decision. Implementations
// are pure: no I/O and no state.
type Policy interface {
	Authorize(token *VerifiedToken, c Capability) Decision
}

// RoleMap fixes the role each capability requires.
type RoleMap map[Capability]string

// RolePolicy grants a capability to tokens holding its role or the admin role.
// Scopes are ignored.
type RolePolicy struct {
	Roles     RoleMap
	AdminRole string
}

// Authorize implements Policy.
func (p RolePolicy) Authorize(token *VerifiedToken, c Capability) Decision {
	if token == nil {
		return denyMissingToken()
	}
	required := p.Roles[c]
	if p.isAdmin(token) {
		return allow()
	}
	if required != "" && token.HasRole(required) {
		return allow()
	}
	return denyRole(required)
}

func (p RolePolicy) isAdmin(token *VerifiedToken) bool {
	return p.AdminRole != "" && token.HasRole(p.AdminRole)
}

// Legacy OAuth scopes checked by ScopePolicy.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// ScopePolicy is the earlier deployment generation's rule set: reads need the
// "read" scope, writes need the "write" scope together with the write role,
// audit reads need their role. The admin role overrides all three.
type ScopePolicy struct {
	Roles     RoleMap
	AdminRole string
}

// Authorize implements Policy.
func (p ScopePolicy) Authorize(token *VerifiedToken, c Capability) Decision {
	if token == nil {
		return denyMissingToken()
	}
	if p.AdminRole != "" && token.HasRole(p.AdminRole) {
		return allow()
	}
	required := p.Roles[c]
	switch c {
	case Read:
		if token.HasScope(ScopeRead) {
			return allow()
		}
		return Decision{
			Reason:   InsufficientGrant,
			Required: ScopeRead,
			Message:  fmt.Sprintf("You need the scope '%s' to use this endpoint", ScopeRead),
		}
	case Write:
		if token.HasScope(ScopeWrite) && required != "" && token.HasRole(required) {
			return allow()
		}
		return Decision{
			Reason:   InsufficientGrant,
			Required: required,
			Message:  fmt.Sprintf("You need the role '%s' with scope '%s' to use this endpoint", required, ScopeWrite),
		}
	default:
		if required != "" && token.HasRole(required) {
			return allow()
		}
		return denyRole(required)
	}
}

// NewPolicy selects the deployment's policy from configuration.
func NewPolicy(cfg config.AuthConfig) (Policy, error) {
	roles := RoleMap{
		Read:      cfg.ReadRole,
		Write:     cfg.WriteRole,
		AuditRead: cfg.AuditRole,
	}
	switch cfg.Policy {
	case config.PolicyRoles, "":
		return RolePolicy{Roles: roles, AdminRole: cfg.AdminRole}, nil
	case config.PolicyScopes:
		return ScopePolicy{Roles: roles, AdminRole: cfg.AdminRole}, nil
	default:
		return nil, fmt.Errorf("auth: unknown policy %q", cfg.Policy)
	}
}
