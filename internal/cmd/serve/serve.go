package serve

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/config"
	registrycache "github.com/chirino/conversation-service/internal/registry/cache"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/conversation-service/internal/plugin/cache/local"
	_ "github.com/chirino/conversation-service/internal/plugin/cache/redis"
	_ "github.com/chirino/conversation-service/internal/plugin/route/system"
	_ "github.com/chirino/conversation-service/internal/plugin/store/mongo"
	_ "github.com/chirino/conversation-service/internal/plugin/store/postgres"
	_ "github.com/chirino/conversation-service/internal/plugin/store/sqlite"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	readHeaderTimeoutSecs := 5
	logLevel := "info"
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the conversation service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs, &logLevel),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			log.SetLevel(level)
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			if err := validate(&cfg); err != nil {
				return err
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int, logLevel *string) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Security mode (prod|testing); testing accepts the raw token as the user id",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_LOG_LEVEL"),
			Destination: logLevel,
			Value:       *logLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; a self-signed certificate is generated when unset",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight requests on shutdown",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2 on the same port",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL (file path for sqlite)",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Profile cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Category:    "Cache:",
			Destination: &cfg.CacheTTL,
			Value:       cfg.CacheTTL,
			Usage:       "How long resolved user profiles stay cached (also CONVERSATION_SERVICE_CACHE_TTL, which accepts PT10M)",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},

		// ── Realtime ──────────────────────────────────────────────
		&cli.BoolFlag{
			Name:        "socket",
			Category:    "Realtime:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_SOCKET"),
			Destination: &cfg.SocketEnabled,
			Value:       cfg.SocketEnabled,
			Usage:       "Serve the realtime relay on /socket",
		},

		&cli.BoolFlag{
			Name:        "socket-record-messages",
			Category:    "Realtime:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_SOCKET_RECORD_MESSAGES"),
			Destination: &cfg.SocketRecordMessages,
			Value:       cfg.SocketRecordMessages,
			Usage:       "Store the latest message and bump unread counts for relayed messages",
		},
		&cli.IntFlag{
			Name:        "socket-send-buffer",
			Category:    "Realtime:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_SOCKET_SEND_BUFFER"),
			Destination: &cfg.SocketSendBuffer,
			Value:       cfg.SocketSendBuffer,
			Usage:       "Outbound frames queued per connection before it is dropped as slow",
		},

		// ── CORS ──────────────────────────────────────────────────
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "CORS:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Answer browser CORS requests",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "CORS:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed origins; empty or * allows any",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL (enables OIDC auth)",
		},
		&cli.StringFlag{
			Name:        "oidc-discovery-url",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_OIDC_DISCOVERY_URL"),
			Destination: &cfg.OIDCDiscoveryURL,
			Usage:       "OIDC discovery URL (internal URL when issuer is not directly reachable)",
		},
		&cli.StringFlag{
			Name:        "jwt-secret",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_JWT_SECRET"),
			Destination: &cfg.JWTSecret,
			Usage:       "Shared HS256 secret of the account service (falls back to JWT_SECRET)",
		},
		&cli.StringFlag{
			Name:        "jwt-issuer",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_JWT_ISSUER"),
			Destination: &cfg.JWTIssuer,
			Usage:       "Required iss claim of shared-secret tokens",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("CONVERSATION_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

// validate rejects configurations the server could only fail on later.
func validate(cfg *config.Config) error {
	if _, err := registrystore.Select(cfg.DatastoreType); err != nil {
		return fmt.Errorf("--db-kind: %w", err)
	}
	if cfg.DatastoreType != "sqlite" && strings.TrimSpace(cfg.DBURL) == "" {
		return fmt.Errorf("--db-url is required for --db-kind=%s", cfg.DatastoreType)
	}
	if _, err := registrycache.Select(cfg.CacheType); err != nil {
		return fmt.Errorf("--cache-kind: %w", err)
	}
	if cfg.CacheType == "redis" && strings.TrimSpace(cfg.RedisURL) == "" {
		return fmt.Errorf("--redis-url is required for --cache-kind=redis")
	}
	if cfg.SocketEnabled && cfg.SocketSendBuffer < 1 {
		return fmt.Errorf("--socket-send-buffer must be at least 1")
	}
	if !cfg.Listener.EnablePlainText && !cfg.Listener.EnableTLS {
		return fmt.Errorf("at least one of --plain-text or --tls must be enabled")
	}
	if cfg.Mode != config.ModeProd && cfg.Mode != config.ModeTesting {
		return fmt.Errorf("--mode must be %s or %s", config.ModeProd, config.ModeTesting)
	}
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodySize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		}
		c.Next()
	}
}
