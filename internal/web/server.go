// internal/web/server.go
package web

import (
    "context"
    "net/http"
    "sync"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/sirupsen/logrus"
    "lanwatch/internal/config"
    "lanwatch/internal/database"
    "lanwatch/internal/metrics"
    "lanwatch/internal/scan"
)

type Server struct {
    config      *config.Config
    store       database.Store
    coordinator *scan.Coordinator
    scheduler   *scan.Scheduler
    metrics     *metrics.Collector
    router      *gin.Engine
    server      *http.Server

    wsMu      sync.Mutex
    wsClients map[*WSClient]bool
}

func NewServer(cfg *config.Config, store database.Store, coordinator *scan.Coordinator, scheduler *scan.Scheduler, metricsCollector *metrics.Collector) *Server {
    if cfg.Logging.Level != "debug" {
        gin.SetMode(gin.ReleaseMode)
    }

    router := gin.New()
    router.Use(gin.Logger())
    router.Use(gin.Recovery())
    router.Use(corsMiddleware())

    server := &Server{
        config:      cfg,
        store:       store,
        coordinator: coordinator,
        scheduler:   scheduler,
        metrics:     metricsCollector,
        router:      router,
        wsClients:   make(map[*WSClient]bool),
    }

    server.setupRoutes()
    return server
}

func (s *Server) Start(ctx context.Context) error {
    s.server = &http.Server{
        Addr:         s.config.Server.Port,
        Handler:      s.router,
        ReadTimeout:  s.config.Server.ReadTimeout,
        WriteTimeout: s.config.Server.WriteTimeout,
    }

    logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

    go s.updateMetricsRoutine(ctx)

    go func() {
        if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            logrus.WithError(err).Fatal("Failed to start server")
        }
    }()

    return nil
}

func (s *Server) Stop(ctx context.Context) error {
    if s.server != nil {
        return s.server.Shutdown(ctx)
    }
    return nil
}

func (s *Server) setupRoutes() {
    s.router.GET("/", s.serveIndex)

    api := s.router.Group("/api")
    {
        api.GET("/devices", s.getDevices)
        api.GET("/devices/:mac", s.getDevice)
        api.POST("/devices", s.createDevice)
        api.PUT("/devices/:mac", s.updateDevice)
        api.DELETE("/devices/:mac", s.deleteDevice)

        api.GET("/devices/:mac/history", s.getDeviceHistory)
        api.GET("/devices/:mac/ports", s.getDevicePorts)
        api.POST("/devices/:mac/ports/scan", s.scanDevicePorts)
        api.POST("/devices/:mac/check", s.checkDevice)
        api.POST("/devices/:mac/wake", s.wakeDevice)
        api.POST("/wake", s.wakeDevices)

        api.POST("/scan/now", s.triggerScan)
        api.GET("/scan/status", s.getScanStatus)
        api.GET("/scan/summary", s.getScanSummary)

        api.GET("/alerts", s.getAlerts)

        api.GET("/settings", s.getSettings)
        api.PUT("/settings", s.updateSettings)

        api.GET("/stats", s.getStats)
        api.GET("/health", s.healthCheck)
    }

    s.router.GET("/ws", s.handleWebSocket)

    if s.config.Prometheus.Enabled {
        s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
    }
}

// serveIndex points API consumers at the right paths. There is no bundled
// UI; the service is API-only.
func (s *Server) serveIndex(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "service":   "lanwatch",
        "api":       "/api",
        "websocket": "/ws",
        "health":    "/api/health",
    })
}

func (s *Server) healthCheck(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "status":    "healthy",
        "timestamp": time.Now(),
        "version":   "1.0.0",
    })
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
    ticker := time.NewTicker(30 * time.Second)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if err := s.metrics.UpdateSystemMetrics(ctx); err != nil {
                logrus.WithError(err).Error("Failed to update system metrics")
            }
        }
    }
}

func corsMiddleware() gin.HandlerFunc {
    return func(c *gin.Context) {
        c.Header("Access-Control-Allow-Origin", "*")
        c.Header("Access-Control-Allow-Credentials", "true")
        c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
        c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

        if c.Request.Method == "OPTIONS" {
            c.AbortWithStatus(204)
            return
        }

        c.Next()
    }
}
