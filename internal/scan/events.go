// internal/scan/events.go - domain events emitted by reconciliation
package scan

import (
    "fmt"
    "strings"
    "time"

    "lanwatch/internal/database"
)

// Alert event types
const (
    EventNewDevice     = "new_device"
    EventStatusChanged = "status_change"
    EventPortsChanged  = "port_change"
)

// Alert severities
const (
    SeverityInfo     = "info"
    SeverityWarning  = "warning"
    SeverityCritical = "critical"
)

// AlertEvent is a domain event produced by the reconciliation engine and
// consumed by the notification dispatcher. The engine makes no assumption
// about delivery.
type AlertEvent struct {
    Type      string
    Severity  string
    Device    *database.Device
    OldStatus string
    NewStatus string
    Opened    []database.OpenPort
    Closed    []database.OpenPort
    Timestamp time.Time
}

// Message renders a human-readable one-liner for logs and notifications.
func (e *AlertEvent) Message() string {
    name := e.Device.Nickname
    if name == "" {
        name = e.Device.Hostname
    }
    if name == "" {
        name = e.Device.MAC
    }

    switch e.Type {
    case EventNewDevice:
        return fmt.Sprintf("New device discovered: %s (%s)", name, e.Device.IP)
    case EventStatusChanged:
        return fmt.Sprintf("Device %s went %s (was %s)", name, e.NewStatus, e.OldStatus)
    case EventPortsChanged:
        var parts []string
        if len(e.Opened) > 0 {
            parts = append(parts, fmt.Sprintf("opened %s", formatPorts(e.Opened)))
        }
        if len(e.Closed) > 0 {
            parts = append(parts, fmt.Sprintf("closed %s", formatPorts(e.Closed)))
        }
        return fmt.Sprintf("Ports changed on %s: %s", name, strings.Join(parts, ", "))
    }
    return fmt.Sprintf("Event %s on %s", e.Type, name)
}

func formatPorts(ports []database.OpenPort) string {
    nums := make([]string, len(ports))
    for i, p := range ports {
        nums[i] = fmt.Sprintf("%d/%s", p.Port, p.Protocol)
    }
    return strings.Join(nums, " ")
}

// severityFor applies the default severity policy: discoveries are
// informational, a device dropping offline and a previously-scanned device
// growing a new open port are worth a warning.
func severityFor(eventType, newStatus string, opened []database.OpenPort) string {
    switch eventType {
    case EventNewDevice:
        return SeverityInfo
    case EventStatusChanged:
        if newStatus == database.StatusOffline {
            return SeverityWarning
        }
        return SeverityInfo
    case EventPortsChanged:
        if len(opened) > 0 {
            return SeverityWarning
        }
        return SeverityInfo
    }
    return SeverityInfo
}
