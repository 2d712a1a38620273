package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"complexityofneed.org/internal/obs"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck is one named dependency probed by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Pinger is implemented by the history stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DBCheck probes the history store.
func DBCheck(p Pinger) HealthCheck {
	return HealthCheck{Name: "db", Check: p.Ping}
}

// PingCheck expects url to answer 200 with body "pong".
func PingCheck(name, url string, client *http.Client) HealthCheck {
	if client == nil {
		client = http.DefaultClient
	}
	return HealthCheck{Name: name, Check: func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if strings.TrimSpace(string(body)) != "pong" {
			return fmt.Errorf("unexpected body %q", body)
		}
		return nil
	}}
}

type componentStatus struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
	Uptime     int64                      `json:"uptime"`
	Build      map[string]string          `json:"build"`
	Version    string                     `json:"version"`
}

const (
	statusUp   = "UP"
	statusDown = "DOWN"
)

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     statusUp,
		Components: make(map[string]componentStatus, len(a.checks)),
		Uptime:     int64(a.now().Sub(a.started).Seconds()),
		Build:      map[string]string{"buildNumber": a.build.Number, "gitRef": a.build.GitRef},
		Version:    a.build.Number,
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, hc := range a.checks {
		wg.Add(1)
		go func(hc HealthCheck) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			st := componentStatus{Status: statusUp}
			if err := hc.Check(ctx); err != nil {
				st = componentStatus{Status: statusDown, Details: map[string]any{"error": err.Error()}}
			}
			mu.Lock()
			resp.Components[hc.Name] = st
			if st.Status == statusDown {
				resp.Status = statusDown
			}
			mu.Unlock()
		}(hc)
	}
	wg.Wait()

	code := http.StatusOK
	if resp.Status != statusUp {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (a *API) ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "pong")
}

func (a *API) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"git": map[string]string{"branch": a.build.GitBranch},
		"build": map[string]string{
			"artifact": obs.ServiceName,
			"version":  a.build.Number,
			"name":     obs.ServiceName,
		},
		"productId": a.build.ProductID,
	})
}
