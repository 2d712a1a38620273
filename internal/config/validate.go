package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded configuration for contradictions.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Backend {
	case BackendPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			errs = append(errs, errors.New("database: DATABASE_URL is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("database: unknown backend %q", c.Database.Backend))
	}

	if u, err := url.Parse(c.Auth.Host); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("auth: HMPPS_AUTH_URL must be an absolute URL, got %q", c.Auth.Host))
	}
	if c.Auth.JWKSCacheTTL <= 0 {
		errs = append(errs, errors.New("auth: jwks cache ttl must be positive"))
	}
	switch c.Auth.Policy {
	case PolicyRoles, PolicyScopes:
	default:
		errs = append(errs, fmt.Errorf("auth: unknown policy %q", c.Auth.Policy))
	}
	if c.Auth.ReadRole == "" || c.Auth.WriteRole == "" || c.Auth.AuditRole == "" {
		errs = append(errs, errors.New("auth: read, write and audit roles are required"))
	}

	if c.Events.BufferSize <= 0 {
		errs = append(errs, errors.New("events: buffer size must be positive"))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}

	switch c.Tracing.Exporter {
	case "", TraceExporterNone, TraceExporterStdout:
	case TraceExporterOTLP:
		if strings.TrimSpace(c.Tracing.OTLPEndpoint) == "" {
			errs = append(errs, errors.New("tracing: OTEL_EXPORTER_OTLP_ENDPOINT is required for the otlp exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracing: unknown exporter %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing: sample ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio))
	}

	if c.Server.RateBurst <= 0 || c.Server.RatePerSecond <= 0 {
		errs = append(errs, errors.New("server: rate limit burst and rate must be positive"))
	}

	return errors.Join(errs...)
}
