package config

import (
	"strings"
	"time"
)

// Config is the root service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Build    BuildConfig    `yaml:"build"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8080"`
	GRPCAddr        string        `yaml:"grpc_addr"        env:"GRPC_ADDR"               env-default:":9090"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"   env:"SERVER_MAX_BODY_BYTES"   env-default:"1048576"`
	RateBurst       int           `yaml:"rate_burst"       env:"SERVER_RATE_BURST"       env-default:"200"`
	RatePerSecond   int           `yaml:"rate_per_second"  env:"SERVER_RATE_PER_SECOND"  env-default:"100"`
	// TrustProxy keys rate limiting and access logs on the X-Forwarded-For hop
	// appended by the ingress instead of the socket peer.
	TrustProxy bool `yaml:"trust_proxy" env:"SERVER_TRUST_PROXY" env-default:"false"`
}

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DatabaseConfig holds history store settings.
type DatabaseConfig struct {
	Backend         string        `yaml:"backend"           env:"STORE_BACKEND"              env-default:"postgres"`
	DSN             string        `yaml:"dsn"               env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns"    env:"DATABASE_MAX_OPEN_CONNS"    env-default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns"    env:"DATABASE_MAX_IDLE_CONNS"    env-default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME" env-default:"15m"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"DATABASE_CONN_MAX_IDLE_TIME" env-default:"5m"`
}

// Authorization policies.
const (
	PolicyRoles  = "roles"
	PolicyScopes = "scopes"
)

// AuthConfig describes the identity provider and the authorization policy.
type AuthConfig struct {
	Host         string        `yaml:"host"          env:"HMPPS_AUTH_URL"      env-default:"http://localhost:8090"`
	JWKSPath     string        `yaml:"jwks_path"     env:"AUTH_JWKS_PATH"      env-default:"/auth/.well-known/jwks.json"`
	IssuerPath   string        `yaml:"issuer_path"   env:"AUTH_ISSUER_PATH"    env-default:"/auth/issuer"`
	PingPath     string        `yaml:"ping_path"     env:"AUTH_PING_PATH"      env-default:"/auth/health/ping"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl" env:"AUTH_JWKS_CACHE_TTL" env-default:"24h"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"AUTH_FETCH_TIMEOUT"  env-default:"10s"`
	Policy       string        `yaml:"policy"        env:"AUTH_POLICY"         env-default:"roles"`
	ReadRole     string        `yaml:"read_role"     env:"AUTH_READ_ROLE"      env-default:"ROLE_COMPLEXITY_OF_NEED"`
	WriteRole    string        `yaml:"write_role"    env:"AUTH_WRITE_ROLE"     env-default:"ROLE_UPDATE_COMPLEXITY_OF_NEED"`
	AuditRole    string        `yaml:"audit_role"    env:"AUTH_AUDIT_ROLE"     env-default:"ROLE_SAR_DATA_ACCESS"`
	AdminRole    string        `yaml:"admin_role"    env:"AUTH_ADMIN_ROLE"     env-default:"ROLE_CNL_ADMIN"`
}

// JWKSURL is the identity provider's published key set location.
func (c AuthConfig) JWKSURL() string { return joinURL(c.Host, c.JWKSPath) }

// Issuer is the expected iss claim of inbound tokens.
func (c AuthConfig) Issuer() string { return joinURL(c.Host, c.IssuerPath) }

// PingURL is probed by the health endpoint.
func (c AuthConfig) PingURL() string { return joinURL(c.Host, c.PingPath) }

// EventsConfig holds domain event publishing settings.
type EventsConfig struct {
	TopicARN       string        `yaml:"topic_arn"       env:"DOMAIN_EVENTS_TOPIC_ARN"`
	Region         string        `yaml:"region"          env:"AWS_REGION"              env-default:"eu-west-2"`
	Endpoint       string        `yaml:"endpoint"        env:"AWS_ENDPOINT_URL"`
	ServiceBaseURL string        `yaml:"service_base_url" env:"SERVICE_BASE_URL"       env-default:"http://localhost:8080"`
	BufferSize     int           `yaml:"buffer_size"     env:"EVENTS_BUFFER_SIZE"      env-default:"256"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"EVENTS_PUBLISH_TIMEOUT"  env-default:"5s"`
}

// Enabled reports whether events are sent to a real topic.
func (c EventsConfig) Enabled() bool { return strings.TrimSpace(c.TopicARN) != "" }

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// Trace exporters.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
	TraceExporterOTLP   = "otlp"
)

// TracingConfig selects where spans are sent.
type TracingConfig struct {
	Exporter     string  `yaml:"exporter"      env:"TRACING_EXPORTER"            env-default:"none"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRatio  float64 `yaml:"sample_ratio"  env:"TRACING_SAMPLE_RATIO"        env-default:"1"`
}

// Enabled reports whether spans leave the process.
func (c TracingConfig) Enabled() bool { return c.Exporter != "" && c.Exporter != TraceExporterNone }

// BuildConfig carries deployment metadata exposed by /health and /info.
type BuildConfig struct {
	Number    string `yaml:"number"     env:"BUILD_NUMBER"`
	GitRef    string `yaml:"git_ref"    env:"GIT_REF"`
	GitBranch string `yaml:"git_branch" env:"GIT_BRANCH"`
	ProductID string `yaml:"product_id" env:"PRODUCT_ID"`
}

func joinURL(host, path string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if path == "" {
		return host
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return host + path
}
