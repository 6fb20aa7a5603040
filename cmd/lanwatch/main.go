package main

import (
    "context"
    "flag"
    "fmt"
    "os"
    "os/signal"
    "path/filepath"
    "strconv"
    "syscall"
    "time"

    "github.com/sirupsen/logrus"
    "lanwatch/internal/config"
    "lanwatch/internal/database"
    "lanwatch/internal/metrics"
    "lanwatch/internal/notifications"
    "lanwatch/internal/oui"
    "lanwatch/internal/scan"
    "lanwatch/internal/web"
)

func main() {
    configFile := flag.String("config", "config.yaml", "Configuration file path")
    version := flag.Bool("version", false, "Show version information")
    flag.Parse()

    if *version {
        fmt.Printf("lanwatch v1.0.0\nBuild: %s\n", getBuildInfo())
        os.Exit(0)
    }

    // Load configuration
    cfg, err := config.Load(*configFile)
    if err != nil {
        logrus.Fatalf("Failed to load config: %v", err)
    }

    // Setup logging
    setupLogging(cfg.Logging)

    logrus.WithFields(logrus.Fields{
        "config_file": *configFile,
        "port":        cfg.Server.Port,
        "range":       cfg.Scanning.Range,
    }).Info("Starting lanwatch")

    // Initialize database
    store, err := database.NewBoltStore(cfg.Database.Path)
    if err != nil {
        logrus.Fatalf("Failed to initialize database: %v", err)
    }
    defer store.Close()

    // Settings saved through the API override the config file
    applyStoredSettings(store, cfg)

    // Initialize metrics
    metricsCollector := metrics.NewCollector(store)

    // Vendor lookups share a cache file next to the database
    vendors := oui.NewResolver(filepath.Join(filepath.Dir(cfg.Database.Path), "oui-cache.json"), true)

    // Scan pipeline
    engine := scan.NewEngine(store, vendors, cfg.Scanning.OfflineThreshold)

    prober := scan.NewPingProber(cfg.Scanning.HostnameTimeout)
    portScanner := scan.NewPortScanner(cfg.Scanning.PortScan.Workers, cfg.Scanning.PortScan.PerPortTimeout)

    coordinator := scan.NewCoordinator(prober, portScanner, engine, store, metricsCollector)
    coordinator.Workers = cfg.Scanning.Workers
    coordinator.ProbeTimeout = cfg.Scanning.ProbeTimeout
    coordinator.SweepDeadline = cfg.Scanning.SweepDeadline
    coordinator.PortScanSweep = cfg.Scanning.PortScan.Enabled

    scheduler := scan.NewScheduler(coordinator, store)
    scheduler.Configure(
        cfg.Scanning.Range,
        cfg.Scanning.Interval,
        cfg.Scanning.StatusInterval,
        cfg.Database.HistoryRetention,
        cfg.Database.CleanupInterval,
        cfg.Database.CompactInterval,
        cfg.Scanning.AutoScan,
    )

    // Alert delivery
    dispatcher := notifications.NewDispatcher(&cfg.Alerts, store)
    coordinator.SetPublisher(dispatcher)

    // Web server; its WebSocket hub receives every alert event
    webServer := web.NewServer(cfg, store, coordinator, scheduler, metricsCollector)
    dispatcher.Broadcast = webServer.BroadcastEvent

    // Start services
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    scheduler.Start(ctx)

    if err := webServer.Start(ctx); err != nil {
        logrus.Fatalf("Failed to start web server: %v", err)
    }

    // Wait for shutdown signal
    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

    sig := <-sigChan
    logrus.WithField("signal", sig).Info("Received shutdown signal")

    // Graceful shutdown
    cancel()

    shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer shutdownCancel()
    if err := webServer.Stop(shutdownCtx); err != nil {
        logrus.WithError(err).Warn("Web server shutdown failed")
    }

    logrus.Info("Shutdown complete")
}

// applyStoredSettings overlays settings persisted through the API onto the
// loaded config before any component reads it.
func applyStoredSettings(store database.Store, cfg *config.Config) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    if v, err := store.GetSetting(ctx, web.SettingScanRange); err == nil && v != "" {
        cfg.Scanning.Range = v
    }
    if v, err := store.GetSetting(ctx, web.SettingScanInterval); err == nil && v != "" {
        if secs, err := strconv.Atoi(v); err == nil && secs >= 60 && secs <= 3600 {
            cfg.Scanning.Interval = time.Duration(secs) * time.Second
        }
    }
    if v, err := store.GetSetting(ctx, web.SettingAutoScan); err == nil && v != "" {
        if enabled, err := strconv.ParseBool(v); err == nil {
            cfg.Scanning.AutoScan = enabled
        }
    }
    if v, err := store.GetSetting(ctx, web.SettingRetentionDays); err == nil && v != "" {
        if days, err := strconv.Atoi(v); err == nil && days >= 1 {
            cfg.Database.HistoryRetention = time.Duration(days) * 24 * time.Hour
        }
    }
}

func setupLogging(cfg config.LoggingConfig) {
    level, err := logrus.ParseLevel(cfg.Level)
    if err != nil {
        level = logrus.InfoLevel
    }
    logrus.SetLevel(level)

    if cfg.Format == "json" {
        logrus.SetFormatter(&logrus.JSONFormatter{})
    } else {
        logrus.SetFormatter(&logrus.TextFormatter{
            FullTimestamp: true,
        })
    }
}

func getBuildInfo() string {
    return "dev-build"
}
