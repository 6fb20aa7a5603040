// internal/database/store.go
package database

import (
    "context"
    "errors"
    "time"
)

// ErrDeviceNotFound is returned by lookups and deletes for an unknown
// hardware address.
var ErrDeviceNotFound = errors.New("device not found")

// Store defines the interface for registry persistence. The reconciliation
// engine depends only on this abstraction, never on a concrete storage
// engine. Implementations must guarantee atomic per-device upserts.
type Store interface {
    // Device operations (keyed by normalized MAC)
    GetDevices(ctx context.Context, filters DeviceFilters) ([]Device, error)
    FindByHardwareAddress(ctx context.Context, mac string) (*Device, error)
    UpsertDevice(ctx context.Context, device *Device) error
    DeleteDevice(ctx context.Context, mac string) error

    // Status history (append-only)
    AppendStatusEvent(ctx context.Context, event *StatusEvent) error
    GetStatusEvents(ctx context.Context, filters StatusEventFilters) ([]StatusEvent, error)
    DeleteStatusEventsBefore(ctx context.Context, cutoff time.Time) (int, error)

    // Observed ports (superseded on each rescan)
    GetPorts(ctx context.Context, mac string) ([]OpenPort, error)
    ReplacePorts(ctx context.Context, mac string, ports []OpenPort) error

    // Alert log
    AppendAlert(ctx context.Context, alert *AlertRecord) error
    GetAlerts(ctx context.Context, filters AlertFilters) ([]AlertRecord, error)

    // Sweep summary (only the most recent is kept)
    SaveScanSummary(ctx context.Context, summary *ScanSummary) error
    GetScanSummary(ctx context.Context) (*ScanSummary, error)

    // Settings (key/value, applied live by the settings API)
    GetSetting(ctx context.Context, key string) (string, error)
    SetSetting(ctx context.Context, key, value string) error

    Close() error
}

// MaintenanceStore is implemented by stores that support housekeeping
// beyond the core contract.
type MaintenanceStore interface {
    Store

    GetDatabaseStats(ctx context.Context) (*DatabaseStats, error)
    CompactDatabase(ctx context.Context) error
}

type DatabaseStats struct {
    DeviceCount      int       `json:"device_count"`
    StatusEventCount int       `json:"status_event_count"`
    AlertCount       int       `json:"alert_count"`
    DatabaseSize     int64     `json:"database_size_bytes"`
    LastCompaction   time.Time `json:"last_compaction,omitempty"`
}
