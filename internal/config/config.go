package config

import (
	"context"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the conversation service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode a bearer token that is not a valid JWT is taken as the user id.
	Mode string

	// Datastore backend type: "postgres", "mongo" or "sqlite".
	DatastoreType string
	DBURL         string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend type: "none", "local" or "redis".
	CacheType     string
	RedisURL      string
	CacheTTL      time.Duration
	CacheMaxItems int64

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string // Internal URL for OIDC discovery (when issuer URL is not reachable)

	// JWTSecret verifies HS256 tokens issued by the account service.
	JWTSecret string
	// JWTIssuer, when set, must match the token's iss claim.
	JWTIssuer string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for /health, /ready and /metrics.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Realtime relay
	SocketEnabled    bool
	SocketSendBuffer int
	// SocketRecordMessages updates the latest message and unread counters
	// for every relayed new-message event.
	SocketRecordMessages bool

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		CacheTTL:                10 * time.Minute,
		CacheMaxItems:           100_000,
		MetricsLabels:           "service=conversation-service",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		SocketEnabled:        true,
		SocketSendBuffer:     64,
		SocketRecordMessages: true,
		MaxBodySize:          1024 * 1024,
		DrainTimeout:         30,
	}
}
