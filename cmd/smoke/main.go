package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"complexityofneed.org/internal/audit"
	"complexityofneed.org/internal/grpcapi"
	"complexityofneed.org/internal/ids"
)

// smoke checks a freshly deployed instance: the gRPC health service reports
// SERVING and the HTTP ping and health endpoints answer.
func main() {
	grpcAddr := envOr("COMPLEXITY_GRPC_ADDR", "localhost:9090")
	baseURL := strings.TrimRight(envOr("COMPLEXITY_BASE_URL", "http://localhost:8080"), "/")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx = audit.WithRequestID(ctx, ids.NewRequestID())

	client, err := grpcapi.Dial(grpcAddr)
	if err != nil {
		log.Fatalf("dial %s: %v", grpcAddr, err)
	}
	defer client.Close()

	st, err := client.Status(ctx, grpcapi.ServiceName)
	if err != nil {
		log.Fatalf("grpc health: %v", err)
	}
	if st != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("grpc health status %v", st)
	}

	httpClient := &http.Client{Timeout: 5 * time.Second}
	body, code, err := get(ctx, httpClient, baseURL+"/health/ping")
	if err != nil {
		log.Fatalf("ping: %v", err)
	}
	if code != http.StatusOK || body != "pong" {
		log.Fatalf("ping: status %d body %q", code, body)
	}
	if _, code, err = get(ctx, httpClient, baseURL+"/health"); err != nil || code != http.StatusOK {
		log.Fatalf("health: status %d err %v", code, err)
	}

	fmt.Printf("smoke test passed: grpc=%s http=%s\n", grpcAddr, baseURL)
}

func get(ctx context.Context, c *http.Client, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("X-Request-Id", audit.RequestIDFromContext(ctx))
	resp, err := c.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	return strings.TrimSpace(string(b)), resp.StatusCode, err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
