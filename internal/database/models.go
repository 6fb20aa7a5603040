// internal/database/models.go
package database

import (
    "time"
)

// Device status values
const (
    StatusOnline  = "online"
    StatusOffline = "offline"
    StatusUnknown = "unknown"
)

// Device represents a physical network endpoint tracked over time.
// The hardware (MAC) address is the only stable identity key; IP addresses
// move between devices as DHCP leases churn.
type Device struct {
    MAC        string `json:"mac"`
    IP         string `json:"ip,omitempty"`
    Hostname   string `json:"hostname,omitempty"`
    Vendor     string `json:"vendor,omitempty"`
    Status     string `json:"status"`
    DeviceType string `json:"device_type,omitempty"`

    // User-assigned attributes, owned by the CRUD layer
    Nickname   string `json:"nickname,omitempty"`
    Group      string `json:"group,omitempty"`
    Icon       string `json:"icon,omitempty"`
    IsFavorite bool   `json:"is_favorite"`
    IsManual   bool   `json:"is_manual"`

    // Consecutive unreachable probes since the device was last online,
    // used for the offline debounce threshold.
    MissCount int `json:"miss_count,omitempty"`

    LastSeen  *time.Time `json:"last_seen,omitempty"`
    CreatedAt time.Time  `json:"created_at"`
    UpdatedAt time.Time  `json:"updated_at"`
}

// OpenPort is an observed port on a device at a point in time.
type OpenPort struct {
    Port       int       `json:"port"`
    Protocol   string    `json:"protocol"`
    Service    string    `json:"service,omitempty"`
    State      string    `json:"state"`
    ObservedAt time.Time `json:"observed_at"`
}

// StatusEvent is one entry in a device's append-only status history.
type StatusEvent struct {
    ID        string    `json:"id"`
    MAC       string    `json:"mac"`
    Status    string    `json:"status"`
    Timestamp time.Time `json:"timestamp"`
}

// AlertRecord is a persisted alert event.
type AlertRecord struct {
    ID        string                 `json:"id"`
    MAC       string                 `json:"mac"`
    Type      string                 `json:"type"`
    Severity  string                 `json:"severity"`
    Message   string                 `json:"message"`
    Metadata  map[string]interface{} `json:"metadata,omitempty"`
    Timestamp time.Time              `json:"timestamp"`
}

// ScanSummary records the outcome of the most recent sweep.
type ScanSummary struct {
    RangeSpec      string    `json:"range_spec"`
    StartedAt      time.Time `json:"started_at"`
    CompletedAt    time.Time `json:"completed_at"`
    AddressesTotal int       `json:"addresses_total"`
    DevicesFound   int       `json:"devices_found"`
    DevicesDelta   int       `json:"devices_delta"`
    Failed         bool      `json:"failed"`
}

type DeviceFilters struct {
    Group    string
    Status   string
    Favorite *bool
}

type StatusEventFilters struct {
    MAC   string
    Since *time.Time
    Limit int
}

type AlertFilters struct {
    MAC      string
    Severity string
    Since    *time.Time
    Limit    int
}
