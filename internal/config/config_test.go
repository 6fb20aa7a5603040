package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
    t.Helper()
    path := filepath.Join(t.TempDir(), "config.yaml")
    require.NoError(t, os.WriteFile(path, []byte(content), 0644))
    return path
}

func TestLoadAppliesDefaults(t *testing.T) {
    cfg, err := Load(writeConfig(t, `
scanning:
  range: 192.168.1.0/24
`))
    require.NoError(t, err)

    assert.Equal(t, ":8080", cfg.Server.Port)
    assert.Equal(t, "./data/lanwatch.db", cfg.Database.Path)
    assert.Equal(t, 5*time.Minute, cfg.Scanning.Interval)
    assert.Equal(t, 50, cfg.Scanning.Workers)
    assert.Equal(t, 2*time.Second, cfg.Scanning.ProbeTimeout)
    assert.Equal(t, 1, cfg.Scanning.OfflineThreshold)
    assert.Equal(t, 30*24*time.Hour, cfg.Database.HistoryRetention)
    assert.Equal(t, 7*24*time.Hour, cfg.Database.CompactInterval)
    assert.Equal(t, "/metrics", cfg.Prometheus.MetricsPath)
    assert.Equal(t, "info", cfg.Logging.Level)
    assert.Equal(t, 15*time.Minute, cfg.Alerts.Throttle.Window)
}

func TestLoadFullConfig(t *testing.T) {
    cfg, err := Load(writeConfig(t, `
server:
  port: ":9090"
scanning:
  range: 10.0.0.0/16
  interval: 10m
  workers: 100
  offline_threshold: 3
  port_scan:
    enabled: true
    workers: 20
alerts:
  enabled: true
  only_on_types: [new_device, status_change]
  webhook:
    enabled: true
    url: https://hooks.example.com/lanwatch
`))
    require.NoError(t, err)

    assert.Equal(t, ":9090", cfg.Server.Port)
    assert.Equal(t, "10.0.0.0/16", cfg.Scanning.Range)
    assert.Equal(t, 10*time.Minute, cfg.Scanning.Interval)
    assert.Equal(t, 3, cfg.Scanning.OfflineThreshold)
    assert.True(t, cfg.Scanning.PortScan.Enabled)
    assert.Equal(t, []string{"new_device", "status_change"}, cfg.Alerts.OnlyOnTypes)
}

func TestLoadRejectsInvalidRange(t *testing.T) {
    _, err := Load(writeConfig(t, `
scanning:
  range: not-a-cidr
`))
    require.Error(t, err)
    assert.Contains(t, err.Error(), "scanning.range")
}

func TestLoadRejectsIntervalOutOfBounds(t *testing.T) {
    _, err := Load(writeConfig(t, `
scanning:
  range: 192.168.1.0/24
  interval: 30s
`))
    require.Error(t, err)
    assert.Contains(t, err.Error(), "scanning.interval")

    _, err = Load(writeConfig(t, `
scanning:
  range: 192.168.1.0/24
  interval: 2h
`))
    require.Error(t, err)
}

func TestLoadRejectsNonPositiveProbeTimeout(t *testing.T) {
    _, err := Load(writeConfig(t, `
scanning:
  range: 192.168.1.0/24
  probe_timeout: -1s
`))
    require.Error(t, err)
    assert.Contains(t, err.Error(), "probe_timeout")
}

func TestLoadRejectsWebhookWithoutURL(t *testing.T) {
    _, err := Load(writeConfig(t, `
scanning:
  range: 192.168.1.0/24
alerts:
  enabled: true
  webhook:
    enabled: true
`))
    require.Error(t, err)
    assert.Contains(t, err.Error(), "webhook.url")
}

func TestLoadRejectsEmailWithoutRecipients(t *testing.T) {
    _, err := Load(writeConfig(t, `
scanning:
  range: 192.168.1.0/24
alerts:
  enabled: true
  email:
    enabled: true
    smtp_host: mail.example.com
`))
    require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
    _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
    assert.Error(t, err)
}
