package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"complexityofneed.org/internal/audit"
	"complexityofneed.org/internal/auth"
	"complexityofneed.org/internal/auth/authtest"
	"complexityofneed.org/internal/complexity"
	"complexityofneed.org/internal/config"
)

const (
	readRole  = "ROLE_COMPLEXITY_OF_NEED"
	writeRole = "ROLE_UPDATE_COMPLEXITY_OF_NEED"
	sarRole   = "ROLE_SAR_DATA_ACCESS"
	adminRole = "ROLE_CNL_ADMIN"
)

type apiClient struct {
	baseURL  string
	client   *http.Client
	t        *testing.T
	provider *authtest.Provider
	store    *complexity.MemStore
	logs     *syncBuffer

	mu       sync.Mutex
	notified []complexity.Record
}

type testOptions struct {
	policy string
	server config.ServerConfig
	checks func(p *authtest.Provider, s *complexity.MemStore) []HealthCheck
}

type testOption func(*testOptions)

func withPolicy(p string) testOption { return func(o *testOptions) { o.policy = p } }

func withServer(s config.ServerConfig) testOption { return func(o *testOptions) { o.server = s } }

func withChecks(f func(p *authtest.Provider, s *complexity.MemStore) []HealthCheck) testOption {
	return func(o *testOptions) { o.checks = f }
}

func newTestAPI(t *testing.T, opts ...testOption) *apiClient {
	t.Helper()

	o := testOptions{policy: config.PolicyRoles}
	for _, opt := range opts {
		opt(&o)
	}

	provider := authtest.NewProvider(t)
	keys := auth.NewJWKSKeySource(provider.JWKSURL(), auth.WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	policy, err := auth.NewPolicy(config.AuthConfig{
		Policy:    o.policy,
		ReadRole:  readRole,
		WriteRole: writeRole,
		AuditRole: sarRole,
		AdminRole: adminRole,
	})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}

	c := &apiClient{t: t, provider: provider, store: complexity.NewMemStore(), logs: &syncBuffer{}}
	log := slog.New(slog.NewJSONHandler(c.logs, nil))

	var checks []HealthCheck
	if o.checks != nil {
		checks = o.checks(provider, c.store)
	}

	api := New(Deps{
		Verifier: auth.NewVerifier(keys, provider.Issuer()),
		Policy:   policy,
		Resolver: complexity.NewResolver(c.store),
		Exporter: complexity.NewExporter(c.store),
		Service: complexity.NewService(c.store, complexity.WithNotifier(complexity.NotifierFunc(
			func(_ context.Context, r complexity.Record) {
				c.mu.Lock()
				defer c.mu.Unlock()
				c.notified = append(c.notified, r)
			}))),
		Audit:  audit.New(log),
		Log:    log,
		Checks: checks,
		Build:  config.BuildConfig{Number: "2024-01-02.3.abc", GitRef: "abc123", GitBranch: "main", ProductID: "DPS123"},
		Server: o.server,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	c.baseURL = srv.URL
	c.client = srv.Client()
	return c
}

// token mints a bearer header value with the given roles.
func (c *apiClient) token(roles ...string) string {
	c.t.Helper()
	return authtest.Bearer(c.provider.Token(c.t, authtest.WithRoles(roles...), authtest.WithClientID("manage-pom-cases")))
}

func (c *apiClient) do(method, path string, body any, authz string) *http.Response {
	c.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, authz string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, authz)
}

func (c *apiClient) post(path string, body any, authz string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, authz)
}

func (c *apiClient) seed(subject string, at time.Time, level complexity.Level, active bool) complexity.Record {
	c.t.Helper()
	rec, err := c.store.Insert(context.Background(), complexity.Record{
		SubjectID:    subject,
		Level:        level,
		SourceSystem: "seed-client",
		CreatedAt:    at,
		Active:       active,
	})
	if err != nil {
		c.t.Fatalf("seed: %v", err)
	}
	return rec
}

func (c *apiClient) notifications() []complexity.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]complexity.Record(nil), c.notified...)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, r *http.Response, want int) {
	t.Helper()
	if r.StatusCode != want {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		t.Fatalf("status = %d, want %d (body %s)", r.StatusCode, want, body)
	}
}

func expectMessage(t *testing.T, r *http.Response, status int, msg string) {
	t.Helper()
	expectStatus(t, r, status)
	body := decode[map[string]any](t, r)
	if body["message"] != msg {
		t.Fatalf("message = %v, want %q", body["message"], msg)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
