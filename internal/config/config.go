// internal/config/config.go
package config

import (
    "fmt"
    "net"
    "os"
    "time"

    "gopkg.in/yaml.v3"
)

type Config struct {
    Server     ServerConfig     `yaml:"server"`
    Database   DatabaseConfig   `yaml:"database"`
    Scanning   ScanningConfig   `yaml:"scanning"`
    Prometheus PrometheusConfig `yaml:"prometheus"`
    Logging    LoggingConfig    `yaml:"logging"`
    Alerts     AlertsConfig     `yaml:"alerts"`
}

type ServerConfig struct {
    Port         string        `yaml:"port"`
    ReadTimeout  time.Duration `yaml:"read_timeout"`
    WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
    Path             string        `yaml:"path"`
    HistoryRetention time.Duration `yaml:"history_retention"`
    CleanupInterval  time.Duration `yaml:"cleanup_interval"`
    CompactInterval  time.Duration `yaml:"compact_interval"`
}

type ScanningConfig struct {
    Range            string        `yaml:"range"`
    Interval         time.Duration `yaml:"interval"`
    AutoScan         bool          `yaml:"auto_scan"`
    Workers          int           `yaml:"workers"`
    ProbeTimeout     time.Duration `yaml:"probe_timeout"`
    HostnameTimeout  time.Duration `yaml:"hostname_timeout"`
    SweepDeadline    time.Duration `yaml:"sweep_deadline"`
    StatusInterval   time.Duration `yaml:"status_interval"`
    OfflineThreshold int           `yaml:"offline_threshold"`

    PortScan PortScanConfig `yaml:"port_scan"`
}

type PortScanConfig struct {
    Enabled        bool          `yaml:"enabled"`
    Workers        int           `yaml:"workers"`
    PerPortTimeout time.Duration `yaml:"per_port_timeout"`
}

type PrometheusConfig struct {
    Enabled     bool   `yaml:"enabled"`
    MetricsPath string `yaml:"metrics_path"`
}

type LoggingConfig struct {
    Level  string `yaml:"level"`
    Format string `yaml:"format"`
}

type AlertsConfig struct {
    Enabled     bool           `yaml:"enabled"`
    OnlyOnTypes []string       `yaml:"only_on_types"`
    Webhook     WebhookConfig  `yaml:"webhook"`
    Email       EmailConfig    `yaml:"email"`
    Throttle    ThrottleConfig `yaml:"throttle"`
}

type WebhookConfig struct {
    Enabled bool          `yaml:"enabled"`
    URL     string        `yaml:"url"`
    Timeout time.Duration `yaml:"timeout"`
}

type EmailConfig struct {
    Enabled  bool     `yaml:"enabled"`
    SMTPHost string   `yaml:"smtp_host"`
    SMTPPort int      `yaml:"smtp_port"`
    Username string   `yaml:"username"`
    Password string   `yaml:"password"`
    From     string   `yaml:"from"`
    To       []string `yaml:"to"`
}

type ThrottleConfig struct {
    Enabled      bool          `yaml:"enabled"`
    Window       time.Duration `yaml:"window"`
    MaxPerDevice int           `yaml:"max_per_device"`
    MaxTotal     int           `yaml:"max_total"`
}

func Load(filename string) (*Config, error) {
    data, err := os.ReadFile(filename)
    if err != nil {
        return nil, fmt.Errorf("failed to read config file: %w", err)
    }

    var config Config
    if err := yaml.Unmarshal(data, &config); err != nil {
        return nil, fmt.Errorf("failed to parse YAML: %w", err)
    }

    setDefaults(&config)

    if err := validate(&config); err != nil {
        return nil, fmt.Errorf("invalid configuration: %w", err)
    }

    return &config, nil
}

func setDefaults(cfg *Config) {
    // Server defaults
    if cfg.Server.Port == "" {
        cfg.Server.Port = ":8080"
    }
    if cfg.Server.ReadTimeout == 0 {
        cfg.Server.ReadTimeout = 30 * time.Second
    }
    if cfg.Server.WriteTimeout == 0 {
        cfg.Server.WriteTimeout = 30 * time.Second
    }

    // Database defaults
    if cfg.Database.Path == "" {
        cfg.Database.Path = "./data/lanwatch.db"
    }
    if cfg.Database.HistoryRetention == 0 {
        cfg.Database.HistoryRetention = 30 * 24 * time.Hour
    }
    if cfg.Database.CleanupInterval == 0 {
        cfg.Database.CleanupInterval = 24 * time.Hour
    }
    if cfg.Database.CompactInterval == 0 {
        cfg.Database.CompactInterval = 7 * 24 * time.Hour
    }

    // Scanning defaults
    if cfg.Scanning.Range == "" {
        cfg.Scanning.Range = "192.168.1.0/24"
    }
    if cfg.Scanning.Interval == 0 {
        cfg.Scanning.Interval = 5 * time.Minute
    }
    if cfg.Scanning.Workers == 0 {
        cfg.Scanning.Workers = 50
    }
    if cfg.Scanning.ProbeTimeout == 0 {
        cfg.Scanning.ProbeTimeout = 2 * time.Second
    }
    if cfg.Scanning.HostnameTimeout == 0 {
        cfg.Scanning.HostnameTimeout = 1 * time.Second
    }
    if cfg.Scanning.SweepDeadline == 0 {
        cfg.Scanning.SweepDeadline = 2 * time.Minute
    }
    if cfg.Scanning.StatusInterval == 0 {
        cfg.Scanning.StatusInterval = 2 * time.Minute
    }
    if cfg.Scanning.OfflineThreshold == 0 {
        cfg.Scanning.OfflineThreshold = 1
    }
    if cfg.Scanning.PortScan.Workers == 0 {
        cfg.Scanning.PortScan.Workers = 50
    }
    if cfg.Scanning.PortScan.PerPortTimeout == 0 {
        cfg.Scanning.PortScan.PerPortTimeout = 1 * time.Second
    }

    // Prometheus defaults
    if cfg.Prometheus.MetricsPath == "" {
        cfg.Prometheus.MetricsPath = "/metrics"
    }

    // Logging defaults
    if cfg.Logging.Level == "" {
        cfg.Logging.Level = "info"
    }
    if cfg.Logging.Format == "" {
        cfg.Logging.Format = "text"
    }

    // Alert defaults
    if cfg.Alerts.Webhook.Timeout == 0 {
        cfg.Alerts.Webhook.Timeout = 10 * time.Second
    }
    if cfg.Alerts.Email.SMTPPort == 0 {
        cfg.Alerts.Email.SMTPPort = 587
    }
    if cfg.Alerts.Throttle.Window == 0 {
        cfg.Alerts.Throttle.Window = 15 * time.Minute
    }
    if cfg.Alerts.Throttle.MaxPerDevice == 0 {
        cfg.Alerts.Throttle.MaxPerDevice = 5
    }
    if cfg.Alerts.Throttle.MaxTotal == 0 {
        cfg.Alerts.Throttle.MaxTotal = 20
    }
}

func validate(cfg *Config) error {
    if _, _, err := net.ParseCIDR(cfg.Scanning.Range); err != nil {
        return fmt.Errorf("scanning.range is not a valid CIDR: %w", err)
    }
    if cfg.Scanning.Interval < 60*time.Second || cfg.Scanning.Interval > 3600*time.Second {
        return fmt.Errorf("scanning.interval must be between 60s and 3600s")
    }
    if cfg.Scanning.Workers < 1 {
        return fmt.Errorf("scanning.workers must be at least 1")
    }
    if cfg.Scanning.ProbeTimeout <= 0 {
        return fmt.Errorf("scanning.probe_timeout must be positive")
    }
    if cfg.Scanning.HostnameTimeout <= 0 {
        return fmt.Errorf("scanning.hostname_timeout must be positive")
    }
    if cfg.Scanning.SweepDeadline <= 0 {
        return fmt.Errorf("scanning.sweep_deadline must be positive")
    }
    if cfg.Scanning.OfflineThreshold < 1 {
        return fmt.Errorf("scanning.offline_threshold must be at least 1")
    }
    if cfg.Scanning.PortScan.PerPortTimeout <= 0 {
        return fmt.Errorf("scanning.port_scan.per_port_timeout must be positive")
    }
    if cfg.Scanning.PortScan.Workers < 1 || cfg.Scanning.PortScan.Workers > 200 {
        return fmt.Errorf("scanning.port_scan.workers must be between 1 and 200")
    }

    if cfg.Alerts.Enabled && cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL == "" {
        return fmt.Errorf("alerts.webhook.url is required when the webhook channel is enabled")
    }
    if cfg.Alerts.Enabled && cfg.Alerts.Email.Enabled {
        if cfg.Alerts.Email.SMTPHost == "" {
            return fmt.Errorf("alerts.email.smtp_host is required when the email channel is enabled")
        }
        if cfg.Alerts.Email.From == "" || len(cfg.Alerts.Email.To) == 0 {
            return fmt.Errorf("alerts.email.from and alerts.email.to are required when the email channel is enabled")
        }
    }

    return nil
}
