package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"complexityofneed.org/internal/audit"
	"complexityofneed.org/internal/auth"
	"complexityofneed.org/internal/obs"
)

const authHeader = "Authorization"

// requireCapability verifies the bearer token and asks the policy whether it
// grants c. Rejected requests never reach next.
func (a *API) requireCapability(c auth.Capability, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rid := audit.RequestIDFromContext(ctx)

		token, err := a.verifier.Verify(ctx, r.Header.Get(authHeader))
		if err != nil {
			var tokenErr *auth.TokenError
			if errors.As(err, &tokenErr) {
				obs.ObserveAuthDecision(c.String(), "unauthenticated")
				a.log.InfoContext(ctx, "token rejected",
					slog.String("request_id", rid),
					slog.String("kind", tokenErr.Kind.String()),
					slog.String("capability", c.String()),
				)
				writeMessage(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}
			// Key source failures are a deployment problem, not a bad caller.
			obs.ObserveAuthDecision(c.String(), "unavailable")
			a.log.ErrorContext(ctx, "token verification unavailable",
				slog.String("request_id", rid),
				slog.Any("error", err),
			)
			writeMessage(w, http.StatusServiceUnavailable, msgAuthUnavailable)
			return
		}

		d := a.policy.Authorize(token, c)
		if !d.Allowed {
			obs.ObserveAuthDecision(c.String(), "denied")
			if d.Reason == auth.MissingToken {
				writeMessage(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}
			a.log.InfoContext(ctx, "access denied",
				slog.String("request_id", rid),
				slog.String("client_id", token.ClientID),
				slog.String("capability", c.String()),
				slog.String("required", d.Required),
			)
			writeMessage(w, http.StatusForbidden, d.Message)
			return
		}

		obs.ObserveAuthDecision(c.String(), "allowed")
		next(w, r.WithContext(auth.ContextWithToken(ctx, token)))
	})
}
