package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	jwksRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jwks_refresh_total",
			Help: "Identity provider key set fetches by result.",
		},
		[]string{"result"},
	)

	authDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_decisions_total",
			Help: "Authorization decisions by capability and result.",
		},
		[]string{"capability", "result"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events handed to the topic publisher by result.",
		},
		[]string{"result"},
	)
)

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			jwksRefreshTotal, authDecisionsTotal, eventsPublishedTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count, latency and in-flight gauge.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := canonicalMethod(r.Method)

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// ObserveJWKSRefresh counts a key set fetch ("ok" or "error").
func ObserveJWKSRefresh(result string) {
	jwksRefreshTotal.WithLabelValues(result).Inc()
}

// ObserveAuthDecision counts an allow/deny outcome for a capability.
func ObserveAuthDecision(capability, result string) {
	authDecisionsTotal.WithLabelValues(capability, result).Inc()
}

// ObserveEventPublish counts a domain event publish attempt.
func ObserveEventPublish(result string) {
	eventsPublishedTotal.WithLabelValues(result).Inc()
}

const (
	offenderPrefix = "/v1/complexity-of-need/offender-no/"
	// otherPath labels every request that matches no route.
	otherPath = "other"
	// otherMethod labels verbs the API never serves.
	otherMethod = "OTHER"
)

var staticPaths = map[string]bool{
	"/":                                          true,
	"/v1/complexity-of-need/multiple/offender-no": true,
	"/subject-access-request":                     true,
	"/health":                                     true,
	"/health/ping":                                true,
	"/info":                                       true,
	"/metrics":                                    true,
}

// CanonicalPath maps a request path onto its route template. Offender numbers
// collapse to :offenderNo and anything outside the route table becomes
// "other", so label cardinality is fixed regardless of what callers send.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if staticPaths[p] {
		return p
	}
	if !strings.HasPrefix(p, offenderPrefix) {
		return otherPath
	}
	rest := strings.Split(strings.TrimPrefix(p, offenderPrefix), "/")
	switch {
	case len(rest) == 1 && rest[0] != "":
		return offenderPrefix + ":offenderNo"
	case len(rest) == 2 && rest[0] != "" && (rest[1] == "history" || rest[1] == "inactivate"):
		return offenderPrefix + ":offenderNo/" + rest[1]
	default:
		return otherPath
	}
}

func canonicalMethod(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return m
	default:
		return otherMethod
	}
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
