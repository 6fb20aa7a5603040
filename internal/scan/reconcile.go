// internal/scan/reconcile.go - merges sweep results into the device registry
package scan

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/sirupsen/logrus"
    "lanwatch/internal/database"
)

// VendorLookup resolves a hardware address to a vendor name. Lookups are
// best-effort; "" means unknown.
type VendorLookup interface {
    Lookup(mac string) string
}

// PartialApplyError reports the devices whose registry writes failed during
// reconciliation. Events for the devices that did persist are still
// returned alongside this error.
type PartialApplyError struct {
    Failed map[string]error
}

func (e *PartialApplyError) Error() string {
    macs := make([]string, 0, len(e.Failed))
    for mac := range e.Failed {
        macs = append(macs, mac)
    }
    sort.Strings(macs)
    return fmt.Sprintf("reconciliation failed for %d device(s): %s", len(macs), strings.Join(macs, ", "))
}

// Engine merges probe results into the persisted registry and computes the
// resulting state transitions. It is driven by the coordinator, which
// guarantees at most one reconciliation pass runs at a time.
type Engine struct {
    store   database.Store
    vendors VendorLookup

    // OfflineThreshold is the number of consecutive unreachable probes
    // required before a device flips online -> offline. 1 means a single
    // sweep is enough.
    OfflineThreshold int
}

func NewEngine(store database.Store, vendors VendorLookup, offlineThreshold int) *Engine {
    if offlineThreshold < 1 {
        offlineThreshold = 1
    }
    return &Engine{
        store:            store,
        vendors:          vendors,
        OfflineThreshold: offlineThreshold,
    }
}

// Apply reconciles one sweep's results against the registry and returns the
// alert events the transitions produced. portResults, keyed by normalized
// MAC, is optional. A write failure for one device does not abandon the
// batch: the rest is applied and a *PartialApplyError names the casualties.
func (e *Engine) Apply(ctx context.Context, results []ProbeResult, portResults map[string][]database.OpenPort) ([]AlertEvent, error) {
    devices, err := e.store.GetDevices(ctx, database.DeviceFilters{})
    if err != nil {
        return nil, fmt.Errorf("failed to load registry: %w", err)
    }

    byMAC := make(map[string]*database.Device, len(devices))
    byIP := make(map[string]*database.Device, len(devices))
    for i := range devices {
        d := &devices[i]
        byMAC[d.MAC] = d
        if d.IP != "" {
            byIP[d.IP] = d
        }
    }

    var events []AlertEvent
    failed := make(map[string]error)
    now := time.Now()

    // Reachable results first so DHCP-reassigned addresses are claimed by
    // their new owner before the unreachable pass looks at stale IPs.
    for _, result := range results {
        if !result.Reachable {
            continue
        }
        mac := NormalizeMAC(result.MAC)
        if mac == "" {
            // Reachable but the neighbor table gave us nothing; without a
            // hardware address there is no identity to reconcile against.
            logrus.WithField("ip", result.IP).Debug("Skipping reachable host without hardware address")
            continue
        }

        events = append(events, e.applyReachable(ctx, byMAC, byIP, mac, result, now, failed)...)
    }

    for _, result := range results {
        if result.Reachable {
            continue
        }
        device, ok := byIP[result.IP]
        if !ok {
            continue // nothing known at this address
        }
        events = append(events, e.applyUnreachable(ctx, device, now, failed)...)
    }

    // Port observations
    for mac, observed := range portResults {
        device, ok := byMAC[NormalizeMAC(mac)]
        if !ok {
            continue
        }
        if event, err := e.applyPorts(ctx, device, observed, now); err != nil {
            failed[device.MAC] = err
        } else if event != nil {
            events = append(events, *event)
        }
    }

    if len(failed) > 0 {
        return events, &PartialApplyError{Failed: failed}
    }
    return events, nil
}

func (e *Engine) applyReachable(ctx context.Context, byMAC, byIP map[string]*database.Device, mac string, result ProbeResult, now time.Time, failed map[string]error) []AlertEvent {
    var events []AlertEvent

    // If another device still claims this IP, the DHCP lease moved on.
    // Identity follows the hardware address, so the old owner loses the IP
    // and becomes unknown until it is observed again.
    if prev, ok := byIP[result.IP]; ok && prev.MAC != mac {
        oldStatus := prev.Status
        prev.IP = ""
        prev.Status = database.StatusUnknown
        if err := e.store.UpsertDevice(ctx, prev); err != nil {
            failed[prev.MAC] = err
        } else {
            delete(byIP, result.IP)
            if oldStatus == database.StatusOnline {
                if err := e.recordTransition(ctx, prev, oldStatus, now); err != nil {
                    failed[prev.MAC] = err
                } else {
                    events = append(events, statusEvent(prev, oldStatus, now))
                }
            }
        }
    }

    device, known := byMAC[mac]
    if !known {
        device = &database.Device{
            MAC:      mac,
            IP:       result.IP,
            Hostname: result.Hostname,
            Status:   database.StatusOnline,
            LastSeen: &now,
        }
        if e.vendors != nil {
            device.Vendor = e.vendors.Lookup(mac)
        }

        if err := e.store.UpsertDevice(ctx, device); err != nil {
            failed[mac] = err
            return events
        }
        byMAC[mac] = device
        byIP[result.IP] = device

        if err := e.appendStatus(ctx, mac, database.StatusOnline, now); err != nil {
            failed[mac] = err
            return events
        }

        events = append(events, AlertEvent{
            Type:      EventNewDevice,
            Severity:  severityFor(EventNewDevice, "", nil),
            Device:    device,
            NewStatus: database.StatusOnline,
            Timestamp: now,
        })
        return events
    }

    oldStatus := device.Status
    device.IP = result.IP
    if result.Hostname != "" {
        device.Hostname = result.Hostname
    }
    if device.Vendor == "" && e.vendors != nil {
        device.Vendor = e.vendors.Lookup(mac)
    }
    device.LastSeen = &now
    device.MissCount = 0
    device.Status = database.StatusOnline
    byIP[result.IP] = device

    if err := e.store.UpsertDevice(ctx, device); err != nil {
        failed[mac] = err
        return events
    }

    if oldStatus != database.StatusOnline {
        if err := e.appendStatus(ctx, mac, database.StatusOnline, now); err != nil {
            failed[mac] = err
            return events
        }
        events = append(events, AlertEvent{
            Type:      EventStatusChanged,
            Severity:  severityFor(EventStatusChanged, database.StatusOnline, nil),
            Device:    device,
            OldStatus: oldStatus,
            NewStatus: database.StatusOnline,
            Timestamp: now,
        })
    }

    return events
}

func (e *Engine) applyUnreachable(ctx context.Context, device *database.Device, now time.Time, failed map[string]error) []AlertEvent {
    if device.Status == database.StatusOffline {
        return nil // already there, nothing to record
    }

    device.MissCount++
    if device.MissCount < e.OfflineThreshold {
        // Not confirmed yet; remember the miss but keep the status.
        if err := e.store.UpsertDevice(ctx, device); err != nil {
            failed[device.MAC] = err
        }
        return nil
    }

    oldStatus := device.Status
    device.Status = database.StatusOffline
    device.MissCount = 0

    if err := e.store.UpsertDevice(ctx, device); err != nil {
        failed[device.MAC] = err
        return nil
    }
    if err := e.recordTransition(ctx, device, oldStatus, now); err != nil {
        failed[device.MAC] = err
        return nil
    }

    return []AlertEvent{{
        Type:      EventStatusChanged,
        Severity:  severityFor(EventStatusChanged, database.StatusOffline, nil),
        Device:    device,
        OldStatus: oldStatus,
        NewStatus: database.StatusOffline,
        Timestamp: now,
    }}
}

// applyPorts diffs the observed open set against the persisted one, then
// supersedes it. Ports present in one set and absent from the other are
// surfaced in a single PortsChanged event.
func (e *Engine) applyPorts(ctx context.Context, device *database.Device, observed []database.OpenPort, now time.Time) (*AlertEvent, error) {
    previous, err := e.store.GetPorts(ctx, device.MAC)
    if err != nil {
        return nil, fmt.Errorf("failed to load ports: %w", err)
    }

    opened, closed := DiffPorts(previous, observed)

    if err := e.store.ReplacePorts(ctx, device.MAC, observed); err != nil {
        return nil, fmt.Errorf("failed to replace ports: %w", err)
    }

    if label := InferDeviceType(observed); label != "unknown" && label != device.DeviceType {
        device.DeviceType = label
        if err := e.store.UpsertDevice(ctx, device); err != nil {
            return nil, fmt.Errorf("failed to update device type: %w", err)
        }
    }

    if len(opened) == 0 && len(closed) == 0 {
        return nil, nil
    }

    // First observation of a device's ports is inventory, not a change.
    if len(previous) == 0 && len(closed) == 0 {
        return nil, nil
    }

    return &AlertEvent{
        Type:      EventPortsChanged,
        Severity:  severityFor(EventPortsChanged, "", opened),
        Device:    device,
        Opened:    opened,
        Closed:    closed,
        Timestamp: now,
    }, nil
}

// DiffPorts computes the symmetric difference of two open-port sets, keyed
// by port number and protocol.
func DiffPorts(previous, observed []database.OpenPort) (opened, closed []database.OpenPort) {
    key := func(p database.OpenPort) string {
        return fmt.Sprintf("%d/%s", p.Port, p.Protocol)
    }

    prevSet := make(map[string]database.OpenPort, len(previous))
    for _, p := range previous {
        prevSet[key(p)] = p
    }
    obsSet := make(map[string]database.OpenPort, len(observed))
    for _, p := range observed {
        obsSet[key(p)] = p
    }

    for k, p := range obsSet {
        if _, ok := prevSet[k]; !ok {
            opened = append(opened, p)
        }
    }
    for k, p := range prevSet {
        if _, ok := obsSet[k]; !ok {
            closed = append(closed, p)
        }
    }

    sort.Slice(opened, func(i, j int) bool { return opened[i].Port < opened[j].Port })
    sort.Slice(closed, func(i, j int) bool { return closed[i].Port < closed[j].Port })
    return opened, closed
}

// CheckResult applies a single on-demand probe of a known device, outside
// of any sweep.
func (e *Engine) CheckResult(ctx context.Context, result ProbeResult) ([]AlertEvent, error) {
    return e.Apply(ctx, []ProbeResult{result}, nil)
}

func (e *Engine) appendStatus(ctx context.Context, mac, status string, now time.Time) error {
    return e.store.AppendStatusEvent(ctx, &database.StatusEvent{
        MAC:       mac,
        Status:    status,
        Timestamp: now,
    })
}

func (e *Engine) recordTransition(ctx context.Context, device *database.Device, oldStatus string, now time.Time) error {
    if device.Status == oldStatus {
        return errors.New("no transition to record")
    }
    return e.appendStatus(ctx, device.MAC, device.Status, now)
}

func statusEvent(device *database.Device, oldStatus string, now time.Time) AlertEvent {
    return AlertEvent{
        Type:      EventStatusChanged,
        Severity:  severityFor(EventStatusChanged, device.Status, nil),
        Device:    device,
        OldStatus: oldStatus,
        NewStatus: device.Status,
        Timestamp: now,
    }
}
