package database

import (
    "context"
    "fmt"
    "path/filepath"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
    t.Helper()
    store, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
    require.NoError(t, err)
    t.Cleanup(func() { store.Close() })
    return store
}

func TestDeviceRoundTrip(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    device := &Device{
        MAC:      "AA:BB:CC:DD:EE:FF",
        IP:       "192.168.1.10",
        Hostname: "nas.lan",
        Status:   StatusOnline,
        Nickname: "Basement NAS",
    }
    require.NoError(t, store.UpsertDevice(ctx, device))
    assert.False(t, device.CreatedAt.IsZero())
    assert.False(t, device.UpdatedAt.IsZero())

    found, err := store.FindByHardwareAddress(ctx, "AA:BB:CC:DD:EE:FF")
    require.NoError(t, err)
    assert.Equal(t, "192.168.1.10", found.IP)
    assert.Equal(t, "Basement NAS", found.Nickname)

    // Upsert preserves CreatedAt
    created := found.CreatedAt
    found.IP = "192.168.1.11"
    require.NoError(t, store.UpsertDevice(ctx, found))
    again, err := store.FindByHardwareAddress(ctx, "AA:BB:CC:DD:EE:FF")
    require.NoError(t, err)
    assert.Equal(t, "192.168.1.11", again.IP)
    assert.Equal(t, created.Unix(), again.CreatedAt.Unix())
}

func TestFindByHardwareAddressNotFound(t *testing.T) {
    store := newTestStore(t)

    _, err := store.FindByHardwareAddress(context.Background(), "00:00:00:00:00:01")
    assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestGetDevicesFilters(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    fav := true
    require.NoError(t, store.UpsertDevice(ctx, &Device{MAC: "AA:00:00:00:00:01", Status: StatusOnline, Group: "lab", IsFavorite: true}))
    require.NoError(t, store.UpsertDevice(ctx, &Device{MAC: "AA:00:00:00:00:02", Status: StatusOffline, Group: "lab"}))
    require.NoError(t, store.UpsertDevice(ctx, &Device{MAC: "AA:00:00:00:00:03", Status: StatusOnline, Group: "office"}))

    all, err := store.GetDevices(ctx, DeviceFilters{})
    require.NoError(t, err)
    assert.Len(t, all, 3)

    lab, err := store.GetDevices(ctx, DeviceFilters{Group: "lab"})
    require.NoError(t, err)
    assert.Len(t, lab, 2)

    online, err := store.GetDevices(ctx, DeviceFilters{Status: StatusOnline})
    require.NoError(t, err)
    assert.Len(t, online, 2)

    favorites, err := store.GetDevices(ctx, DeviceFilters{Favorite: &fav})
    require.NoError(t, err)
    require.Len(t, favorites, 1)
    assert.Equal(t, "AA:00:00:00:00:01", favorites[0].MAC)
}

func TestDeleteDeviceDropsPorts(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    require.NoError(t, store.UpsertDevice(ctx, &Device{MAC: "AA:00:00:00:00:04", Status: StatusOnline}))
    require.NoError(t, store.ReplacePorts(ctx, "AA:00:00:00:00:04", []OpenPort{{Port: 22, Protocol: "tcp", State: "open"}}))

    require.NoError(t, store.DeleteDevice(ctx, "AA:00:00:00:00:04"))

    _, err := store.FindByHardwareAddress(ctx, "AA:00:00:00:00:04")
    assert.ErrorIs(t, err, ErrDeviceNotFound)

    ports, err := store.GetPorts(ctx, "AA:00:00:00:00:04")
    require.NoError(t, err)
    assert.Empty(t, ports)
}

func TestDeleteDeviceNotFound(t *testing.T) {
    store := newTestStore(t)

    err := store.DeleteDevice(context.Background(), "00:00:00:00:00:99")
    assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestStatusEventsNewestFirst(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    base := time.Now().Add(-time.Hour)
    for i, status := range []string{StatusOnline, StatusOffline, StatusOnline} {
        require.NoError(t, store.AppendStatusEvent(ctx, &StatusEvent{
            MAC:       "AA:00:00:00:00:05",
            Status:    status,
            Timestamp: base.Add(time.Duration(i) * time.Minute),
        }))
    }

    events, err := store.GetStatusEvents(ctx, StatusEventFilters{MAC: "AA:00:00:00:00:05"})
    require.NoError(t, err)
    require.Len(t, events, 3)
    assert.Equal(t, StatusOnline, events[0].Status)
    assert.Equal(t, StatusOffline, events[1].Status)
    assert.True(t, events[0].Timestamp.After(events[1].Timestamp))

    limited, err := store.GetStatusEvents(ctx, StatusEventFilters{MAC: "AA:00:00:00:00:05", Limit: 1})
    require.NoError(t, err)
    assert.Len(t, limited, 1)

    since := base.Add(90 * time.Second)
    recent, err := store.GetStatusEvents(ctx, StatusEventFilters{MAC: "AA:00:00:00:00:05", Since: &since})
    require.NoError(t, err)
    assert.Len(t, recent, 1)
}

func TestDeleteStatusEventsBefore(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    old := time.Now().Add(-48 * time.Hour)
    recent := time.Now().Add(-time.Hour)
    require.NoError(t, store.AppendStatusEvent(ctx, &StatusEvent{MAC: "AA:00:00:00:00:06", Status: StatusOnline, Timestamp: old}))
    require.NoError(t, store.AppendStatusEvent(ctx, &StatusEvent{MAC: "AA:00:00:00:00:06", Status: StatusOffline, Timestamp: recent}))

    deleted, err := store.DeleteStatusEventsBefore(ctx, time.Now().Add(-24*time.Hour))
    require.NoError(t, err)
    assert.Equal(t, 1, deleted)

    events, err := store.GetStatusEvents(ctx, StatusEventFilters{MAC: "AA:00:00:00:00:06"})
    require.NoError(t, err)
    require.Len(t, events, 1)
    assert.Equal(t, StatusOffline, events[0].Status)
}

func TestReplacePortsSupersedes(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()
    mac := "AA:00:00:00:00:07"

    require.NoError(t, store.ReplacePorts(ctx, mac, []OpenPort{
        {Port: 22, Protocol: "tcp", State: "open"},
        {Port: 80, Protocol: "tcp", State: "open"},
    }))

    require.NoError(t, store.ReplacePorts(ctx, mac, []OpenPort{
        {Port: 443, Protocol: "tcp", State: "open"},
    }))

    ports, err := store.GetPorts(ctx, mac)
    require.NoError(t, err)
    require.Len(t, ports, 1)
    assert.Equal(t, 443, ports[0].Port)

    // Empty set clears the record entirely
    require.NoError(t, store.ReplacePorts(ctx, mac, nil))
    ports, err = store.GetPorts(ctx, mac)
    require.NoError(t, err)
    assert.Empty(t, ports)
}

func TestAlertsFilters(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    base := time.Now().Add(-time.Hour)
    require.NoError(t, store.AppendAlert(ctx, &AlertRecord{MAC: "AA:00:00:00:00:08", Type: "status_change", Severity: "warning", Timestamp: base}))
    require.NoError(t, store.AppendAlert(ctx, &AlertRecord{MAC: "AA:00:00:00:00:09", Type: "new_device", Severity: "info", Timestamp: base.Add(time.Minute)}))

    all, err := store.GetAlerts(ctx, AlertFilters{})
    require.NoError(t, err)
    require.Len(t, all, 2)
    assert.Equal(t, "new_device", all[0].Type, "newest first")
    assert.NotEmpty(t, all[0].ID)

    warnings, err := store.GetAlerts(ctx, AlertFilters{Severity: "warning"})
    require.NoError(t, err)
    require.Len(t, warnings, 1)
    assert.Equal(t, "AA:00:00:00:00:08", warnings[0].MAC)

    byMAC, err := store.GetAlerts(ctx, AlertFilters{MAC: "AA:00:00:00:00:09"})
    require.NoError(t, err)
    assert.Len(t, byMAC, 1)
}

func TestScanSummaryRoundTrip(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    none, err := store.GetScanSummary(ctx)
    require.NoError(t, err)
    assert.Nil(t, none)

    summary := &ScanSummary{
        RangeSpec:      "192.168.1.0/24",
        StartedAt:      time.Now().Add(-time.Minute),
        CompletedAt:    time.Now(),
        AddressesTotal: 254,
        DevicesFound:   12,
        DevicesDelta:   2,
    }
    require.NoError(t, store.SaveScanSummary(ctx, summary))

    loaded, err := store.GetScanSummary(ctx)
    require.NoError(t, err)
    require.NotNil(t, loaded)
    assert.Equal(t, 12, loaded.DevicesFound)
    assert.Equal(t, 2, loaded.DevicesDelta)
}

func TestSettingsRoundTrip(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    missing, err := store.GetSetting(ctx, "nope")
    require.NoError(t, err)
    assert.Empty(t, missing)

    require.NoError(t, store.SetSetting(ctx, "scan_range", "10.0.0.0/24"))
    value, err := store.GetSetting(ctx, "scan_range")
    require.NoError(t, err)
    assert.Equal(t, "10.0.0.0/24", value)

    require.NoError(t, store.SetSetting(ctx, "scan_range", "10.0.1.0/24"))
    value, err = store.GetSetting(ctx, "scan_range")
    require.NoError(t, err)
    assert.Equal(t, "10.0.1.0/24", value)
}

func TestDatabaseStats(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    require.NoError(t, store.UpsertDevice(ctx, &Device{MAC: "AA:00:00:00:00:10", Status: StatusOnline}))
    require.NoError(t, store.AppendStatusEvent(ctx, &StatusEvent{MAC: "AA:00:00:00:00:10", Status: StatusOnline}))

    stats, err := store.GetDatabaseStats(ctx)
    require.NoError(t, err)
    assert.Equal(t, 1, stats.DeviceCount)
    assert.Equal(t, 1, stats.StatusEventCount)
    assert.Greater(t, stats.DatabaseSize, int64(0))
    assert.True(t, stats.LastCompaction.IsZero())
}

func TestCompactDatabasePreservesData(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    require.NoError(t, store.UpsertDevice(ctx, &Device{MAC: "AA:00:00:00:00:20", IP: "192.168.1.20", Status: StatusOnline}))
    require.NoError(t, store.ReplacePorts(ctx, "AA:00:00:00:00:20", []OpenPort{{Port: 22, Protocol: "tcp", State: "open"}}))
    require.NoError(t, store.AppendStatusEvent(ctx, &StatusEvent{MAC: "AA:00:00:00:00:20", Status: StatusOnline}))
    require.NoError(t, store.SetSetting(ctx, "scan_range", "10.0.0.0/24"))

    require.NoError(t, store.CompactDatabase(ctx))

    device, err := store.FindByHardwareAddress(ctx, "AA:00:00:00:00:20")
    require.NoError(t, err)
    assert.Equal(t, "192.168.1.20", device.IP)

    ports, err := store.GetPorts(ctx, "AA:00:00:00:00:20")
    require.NoError(t, err)
    require.Len(t, ports, 1)
    assert.Equal(t, 22, ports[0].Port)

    events, err := store.GetStatusEvents(ctx, StatusEventFilters{MAC: "AA:00:00:00:00:20"})
    require.NoError(t, err)
    assert.Len(t, events, 1)

    value, err := store.GetSetting(ctx, "scan_range")
    require.NoError(t, err)
    assert.Equal(t, "10.0.0.0/24", value)

    // The swapped-in handle accepts writes
    require.NoError(t, store.UpsertDevice(ctx, &Device{MAC: "AA:00:00:00:00:21", Status: StatusOnline}))

    stats, err := store.GetDatabaseStats(ctx)
    require.NoError(t, err)
    assert.False(t, stats.LastCompaction.IsZero())
}

func TestCompactDatabaseConcurrentAccess(t *testing.T) {
    store := newTestStore(t)
    ctx := context.Background()

    for i := 0; i < 20; i++ {
        require.NoError(t, store.UpsertDevice(ctx, &Device{MAC: fmt.Sprintf("AA:00:00:00:01:%02X", i), Status: StatusOnline}))
    }

    done := make(chan struct{})
    var wg sync.WaitGroup
    for i := 0; i < 4; i++ {
        wg.Add(1)
        go func(n int) {
            defer wg.Done()
            for {
                select {
                case <-done:
                    return
                default:
                }
                if _, err := store.GetDevices(ctx, DeviceFilters{}); err != nil {
                    t.Error(err)
                    return
                }
                if err := store.UpsertDevice(ctx, &Device{MAC: fmt.Sprintf("BB:00:00:00:00:%02X", n), Status: StatusOnline}); err != nil {
                    t.Error(err)
                    return
                }
            }
        }(i)
    }

    for i := 0; i < 3; i++ {
        require.NoError(t, store.CompactDatabase(ctx))
    }
    close(done)
    wg.Wait()

    devices, err := store.GetDevices(ctx, DeviceFilters{})
    require.NoError(t, err)
    assert.GreaterOrEqual(t, len(devices), 20)
}
