package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"complexityofneed.org/internal/config"
)

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/health/ping", nil, "")
	resp.Body.Close()
	generated := resp.Header.Get(requestIDHeader)
	if len(generated) != 26 {
		t.Fatalf("generated request id %q is not a ULID", generated)
	}

	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/health/ping", nil)
	req.Header.Set(requestIDHeader, "req-abc-123")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(requestIDHeader); got != "req-abc-123" {
		t.Fatalf("propagated request id = %q", got)
	}
}

func TestLoggingEmitsRequestComplete(t *testing.T) {
	c := newTestAPI(t)
	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/health/ping", nil)
	req.Header.Set(requestIDHeader, "log-check-1")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(c.logs.String()), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			continue
		}
		if m["msg"] == "request_complete" && m["request_id"] == "log-check-1" {
			entry = m
		}
	}
	if entry == nil {
		t.Fatalf("no request_complete entry in %s", c.logs.String())
	}
	for _, k := range []string{"method", "path", "status", "duration_ms", "remote_ip"} {
		if _, ok := entry[k]; !ok {
			t.Fatalf("request_complete missing %q: %v", k, entry)
		}
	}
	if entry["path"] != "/health/ping" || entry["status"] != float64(200) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestSecurityHeaders(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/health/ping", nil, "")
	resp.Body.Close()
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" || resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("security headers missing: %v", resp.Header)
	}
}

func TestRateLimit(t *testing.T) {
	c := newTestAPI(t, withServer(config.ServerConfig{RateBurst: 2, RatePerSecond: 1}))

	for i := 0; i < 2; i++ {
		resp := c.get("/health/ping", nil, "")
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
	resp := c.get("/health/ping", nil, "")
	expectMessage(t, resp, http.StatusTooManyRequests, "Too many requests")
	if resp.Header.Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}
}

func rateLimited(trustProxy bool) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(clientIP(r)))
	})
	return Chain(RealIP(trustProxy), RateLimit(2, 1))(ok)
}

func requestFrom(remote string, xff ...string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/health/ping", nil)
	req.RemoteAddr = remote
	for _, v := range xff {
		req.Header.Add("X-Forwarded-For", v)
	}
	return req
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	h := rateLimited(false)
	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("203.0.113.7:5000", fmt.Sprintf("10.0.0.%d", i)))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusOK && rec.Body.String() != "203.0.113.7" {
			t.Fatalf("client ip = %q, want socket peer", rec.Body.String())
		}
	}
	if codes[2] != http.StatusTooManyRequests || codes[4] != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For bypassed the limit: %v", codes)
	}
}

func TestRateLimitBehindProxyKeysOnLastHop(t *testing.T) {
	h := rateLimited(true)
	const proxy = "10.1.0.5:443"

	// A caller prepending random entries still lands in its own bucket.
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom(proxy, fmt.Sprintf("198.51.100.%d, 203.0.113.7", i)))
		if rec.Code != http.StatusOK || rec.Body.String() != "203.0.113.7" {
			t.Fatalf("request %d: code=%d ip=%q", i, rec.Code, rec.Body.String())
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom(proxy, "198.51.100.99", "203.0.113.7"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request from same last hop: code=%d", rec.Code)
	}

	// A different client behind the same proxy has its own bucket.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom(proxy, "203.0.113.8"))
	if rec.Code != http.StatusOK {
		t.Fatalf("other client: code=%d", rec.Code)
	}
}

func TestRealIPFallsBackToPeer(t *testing.T) {
	cases := []struct {
		name  string
		trust bool
		xff   []string
		want  string
	}{
		{"untrusted header", false, []string{"1.2.3.4"}, "192.0.2.1"},
		{"trusted without header", true, nil, "192.0.2.1"},
		{"trusted garbage hop", true, []string{"1.2.3.4, not-an-ip"}, "192.0.2.1"},
		{"trusted ipv6 hop", true, []string{"2001:db8::1"}, "2001:db8::1"},
	}
	for _, tc := range cases {
		var got string
		h := RealIP(tc.trust)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = clientIP(r)
		}))
		h.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1:1234", tc.xff...))
		if got != tc.want {
			t.Fatalf("%s: clientIP = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestRateLimitDisabledByZeroConfig(t *testing.T) {
	c := newTestAPI(t)
	for i := 0; i < 50; i++ {
		resp := c.get("/health/ping", nil, "")
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
}

func TestMaxBodyBytes(t *testing.T) {
	c := newTestAPI(t, withServer(config.ServerConfig{MaxBodyBytes: 32}))
	body := `{"level":"low","notes":"` + strings.Repeat("x", 64) + `"}`
	resp := c.post(currentPath, body, c.token(writeRole))
	expectMessage(t, resp, http.StatusRequestEntityTooLarge, msgTooLarge)
}

func TestRecoveryReturns500(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Chain(Recovery(log), RequestID)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body messageBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Message != msgInternal {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"), mw("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b,c,handler" {
		t.Fatalf("order = %v", order)
	}
}
