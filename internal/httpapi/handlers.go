package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"complexityofneed.org/internal/audit"
	"complexityofneed.org/internal/auth"
	"complexityofneed.org/internal/complexity"
	"complexityofneed.org/internal/config"
	"complexityofneed.org/internal/obs"
)

// TokenVerifier turns an Authorization header into a verified token.
type TokenVerifier interface {
	Verify(ctx context.Context, header string) (*auth.VerifiedToken, error)
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Verifier TokenVerifier
	Policy   auth.Policy
	Resolver *complexity.Resolver
	Exporter *complexity.Exporter
	Service  *complexity.Service
	Audit    *audit.Logger
	Log      *slog.Logger
	Checks   []HealthCheck
	Build    config.BuildConfig
	Server   config.ServerConfig
}

// API is the REST boundary.
type API struct {
	mux      *http.ServeMux
	verifier TokenVerifier
	policy   auth.Policy
	resolver *complexity.Resolver
	exporter *complexity.Exporter
	service  *complexity.Service
	audit    *audit.Logger
	log      *slog.Logger
	checks   []HealthCheck
	build    config.BuildConfig
	server   config.ServerConfig
	started  time.Time
	now      func() time.Time
}

// New registers all routes.
func New(d Deps) *API {
	log := d.Log
	if log == nil {
		log = obs.Discard()
	}
	auditLog := d.Audit
	if auditLog == nil {
		auditLog = audit.New(log)
	}
	a := &API{
		mux:      http.NewServeMux(),
		verifier: d.Verifier,
		policy:   d.Policy,
		resolver: d.Resolver,
		exporter: d.Exporter,
		service:  d.Service,
		audit:    auditLog,
		log:      log,
		checks:   d.Checks,
		build:    d.Build,
		server:   d.Server,
		started:  time.Now(),
		now:      time.Now,
	}

	const single = "/v1/complexity-of-need/offender-no/{offenderNo}"
	a.mux.Handle("GET "+single, a.requireCapability(auth.Read, a.getCurrent))
	a.mux.Handle("POST "+single, a.requireCapability(auth.Write, a.createLevel))
	a.mux.Handle("GET "+single+"/history", a.requireCapability(auth.Read, a.getHistory))
	a.mux.Handle("PUT "+single+"/inactivate", a.requireCapability(auth.Write, a.inactivate))
	a.mux.Handle("POST /v1/complexity-of-need/multiple/offender-no", a.requireCapability(auth.Read, a.getMultiple))
	a.mux.Handle("GET /subject-access-request", a.requireCapability(auth.AuditRead, a.subjectAccess))

	a.mux.HandleFunc("GET /health", a.health)
	a.mux.HandleFunc("GET /health/ping", a.ping)
	a.mux.HandleFunc("GET /info", a.info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found")
	})

	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	return Chain(
		Recovery(a.log),
		RequestID,
		RealIP(a.server.TrustProxy),
		Logging(a.log),
		SecurityHeaders,
		obs.Instrument,
		RateLimit(a.server.RateBurst, a.server.RatePerSecond),
		MaxBodyBytes(a.server.MaxBodyBytes),
	)(a.mux)
}
