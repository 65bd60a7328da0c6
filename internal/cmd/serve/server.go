package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/plugin/route/conversations"
	"github.com/chirino/conversation-service/internal/plugin/route/socket"
	routesystem "github.com/chirino/conversation-service/internal/plugin/route/system"
	storemetrics "github.com/chirino/conversation-service/internal/plugin/store/metrics"
	"github.com/chirino/conversation-service/internal/realtime"
	registrycache "github.com/chirino/conversation-service/internal/registry/cache"
	registrymigrate "github.com/chirino/conversation-service/internal/registry/migrate"
	registryroute "github.com/chirino/conversation-service/internal/registry/route"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/chirino/conversation-service/internal/security"
	"github.com/chirino/conversation-service/internal/service"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config     *config.Config
	Store      registrystore.ConversationStore
	Service    *service.ConversationService
	Hub        *realtime.Hub
	Router     *gin.Engine
	Running    *Listener
	Management *Listener
}

// Shutdown fails readiness, disconnects sockets and drains both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	routesystem.MarkDraining()
	if s.Hub != nil {
		routesystem.SetDetail("sockets", nil)
		s.Hub.Close()
	}
	if s.Management != nil {
		_ = s.Management.Close(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer initializes all subsystems and starts the HTTP listener.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting conversation service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"mode", cfg.Mode,
	)

	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// The profile cache is optional; a failure only costs store round trips.
	var userCache registrycache.UserCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if userCache, err = cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache; continuing without it", "cache", cfg.CacheType, "err", err)
		userCache = nil
	}

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)
	svc := service.NewConversationService(store, userCache, cfg.CacheTTL)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(security.ParseOriginPolicy(cfg.CORSOrigins)))
	}

	if err := registryroute.Mount(router, registryroute.TypeMain); err != nil {
		return nil, err
	}

	auth := security.AuthMiddleware(security.NewTokenResolver(cfg))
	conversations.MountRoutes(router, svc, auth)

	var hub *realtime.Hub
	if cfg.SocketEnabled {
		opts := realtime.HubOptions{SendBuffer: cfg.SocketSendBuffer}
		if cfg.SocketRecordMessages {
			opts.Recorder = svc
		}
		hub = realtime.NewHub(opts)
		socket.MountRoutes(router, hub, auth, cfg)
		routesystem.SetDetail("sockets", func() any {
			users, conns := hub.Stats()
			return gin.H{"users": users, "connections": conns}
		})
	}

	// Management routes get their own listener when --management-port is set,
	// otherwise they share the main router.
	var management *Listener
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		if err := registryroute.Mount(mgmtRouter, registryroute.TypeManagement); err != nil {
			return nil, err
		}
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		if !mgmtCfg.EnablePlainText && !mgmtCfg.EnableTLS {
			mgmtCfg.EnablePlainText = true
		}
		management, err = startListener("management", mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
		log.Info("Management server listening", "addr", management.Addr)
	} else if err := registryroute.Mount(router, registryroute.TypeManagement); err != nil {
		return nil, err
	}

	running, err := startListener("main", cfg.Listener, router)
	if err != nil {
		if management != nil {
			_ = management.Close(ctx)
		}
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
		"socket", cfg.SocketEnabled,
	)

	routesystem.MarkReady()
	return &Server{
		Config:     cfg,
		Store:      store,
		Service:    svc,
		Hub:        hub,
		Router:     router,
		Running:    running,
		Management: management,
	}, nil
}
