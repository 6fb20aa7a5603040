package scan

import (
    "context"
    "errors"
    "fmt"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "lanwatch/internal/database"
)

type staticVendors struct{}

func (staticVendors) Lookup(mac string) string { return "Acme Devices Inc" }

func newTestStore(t *testing.T) *database.BoltStore {
    t.Helper()
    store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
    require.NoError(t, err)
    t.Cleanup(func() { store.Close() })
    return store
}

func newTestEngine(t *testing.T, threshold int) (*Engine, *database.BoltStore) {
    store := newTestStore(t)
    return NewEngine(store, staticVendors{}, threshold), store
}

func TestApplyNewDevice(t *testing.T) {
    engine, store := newTestEngine(t, 1)
    ctx := context.Background()

    results := []ProbeResult{
        {IP: "192.168.1.10", Reachable: true, MAC: "aa:bb:cc:dd:ee:ff", Hostname: "printer.lan"},
    }

    events, err := engine.Apply(ctx, results, nil)
    require.NoError(t, err)
    require.Len(t, events, 1)
    assert.Equal(t, EventNewDevice, events[0].Type)
    assert.Equal(t, SeverityInfo, events[0].Severity)

    device, err := store.FindByHardwareAddress(ctx, "AA:BB:CC:DD:EE:FF")
    require.NoError(t, err)
    assert.Equal(t, "192.168.1.10", device.IP)
    assert.Equal(t, "printer.lan", device.Hostname)
    assert.Equal(t, database.StatusOnline, device.Status)
    assert.Equal(t, "Acme Devices Inc", device.Vendor)
    require.NotNil(t, device.LastSeen)

    history, err := store.GetStatusEvents(ctx, database.StatusEventFilters{MAC: "AA:BB:CC:DD:EE:FF"})
    require.NoError(t, err)
    require.Len(t, history, 1)
    assert.Equal(t, database.StatusOnline, history[0].Status)
}

func TestApplyIdempotent(t *testing.T) {
    engine, _ := newTestEngine(t, 1)
    ctx := context.Background()

    results := []ProbeResult{
        {IP: "192.168.1.10", Reachable: true, MAC: "aa:bb:cc:dd:ee:ff"},
        {IP: "192.168.1.11", Reachable: false},
    }
    ports := map[string][]database.OpenPort{
        "AA:BB:CC:DD:EE:FF": openPorts(22, 80),
    }

    first, err := engine.Apply(ctx, results, ports)
    require.NoError(t, err)
    assert.NotEmpty(t, first)

    second, err := engine.Apply(ctx, results, ports)
    require.NoError(t, err)
    assert.Empty(t, second, "re-applying identical results must produce no events")
}

func TestApplyOfflineTransition(t *testing.T) {
    engine, store := newTestEngine(t, 1)
    ctx := context.Background()

    _, err := engine.Apply(ctx, []ProbeResult{
        {IP: "192.168.1.20", Reachable: true, MAC: "11:22:33:44:55:66"},
    }, nil)
    require.NoError(t, err)

    events, err := engine.Apply(ctx, []ProbeResult{{IP: "192.168.1.20", Reachable: false}}, nil)
    require.NoError(t, err)
    require.Len(t, events, 1)
    assert.Equal(t, EventStatusChanged, events[0].Type)
    assert.Equal(t, database.StatusOnline, events[0].OldStatus)
    assert.Equal(t, database.StatusOffline, events[0].NewStatus)
    assert.Equal(t, SeverityWarning, events[0].Severity)

    device, err := store.FindByHardwareAddress(ctx, "11:22:33:44:55:66")
    require.NoError(t, err)
    assert.Equal(t, database.StatusOffline, device.Status)
    // LastSeen is preserved from when the device was reachable
    assert.NotNil(t, device.LastSeen)

    // A further unreachable probe is not another transition
    events, err = engine.Apply(ctx, []ProbeResult{{IP: "192.168.1.20", Reachable: false}}, nil)
    require.NoError(t, err)
    assert.Empty(t, events)
}

func TestApplyOfflineDebounce(t *testing.T) {
    engine, store := newTestEngine(t, 2)
    ctx := context.Background()

    _, err := engine.Apply(ctx, []ProbeResult{
        {IP: "192.168.1.30", Reachable: true, MAC: "aa:aa:aa:aa:aa:01"},
    }, nil)
    require.NoError(t, err)

    // First miss: counted but not yet offline
    events, err := engine.Apply(ctx, []ProbeResult{{IP: "192.168.1.30", Reachable: false}}, nil)
    require.NoError(t, err)
    assert.Empty(t, events)

    device, err := store.FindByHardwareAddress(ctx, "AA:AA:AA:AA:AA:01")
    require.NoError(t, err)
    assert.Equal(t, database.StatusOnline, device.Status)
    assert.Equal(t, 1, device.MissCount)

    // Second consecutive miss confirms the transition
    events, err = engine.Apply(ctx, []ProbeResult{{IP: "192.168.1.30", Reachable: false}}, nil)
    require.NoError(t, err)
    require.Len(t, events, 1)
    assert.Equal(t, database.StatusOffline, events[0].NewStatus)

    // A reachable probe resets the counter
    _, err = engine.Apply(ctx, []ProbeResult{
        {IP: "192.168.1.30", Reachable: true, MAC: "aa:aa:aa:aa:aa:01"},
    }, nil)
    require.NoError(t, err)
    device, err = store.FindByHardwareAddress(ctx, "AA:AA:AA:AA:AA:01")
    require.NoError(t, err)
    assert.Equal(t, 0, device.MissCount)
    assert.Equal(t, database.StatusOnline, device.Status)
}

func TestApplyNoOfflineByOmission(t *testing.T) {
    engine, store := newTestEngine(t, 1)
    ctx := context.Background()

    _, err := engine.Apply(ctx, []ProbeResult{
        {IP: "192.168.1.40", Reachable: true, MAC: "aa:aa:aa:aa:aa:02"},
    }, nil)
    require.NoError(t, err)

    // A sweep of a different range says nothing about this device
    events, err := engine.Apply(ctx, []ProbeResult{
        {IP: "10.0.0.5", Reachable: false},
    }, nil)
    require.NoError(t, err)
    assert.Empty(t, events)

    device, err := store.FindByHardwareAddress(ctx, "AA:AA:AA:AA:AA:02")
    require.NoError(t, err)
    assert.Equal(t, database.StatusOnline, device.Status)
}

func TestApplyDHCPReassignment(t *testing.T) {
    engine, store := newTestEngine(t, 1)
    ctx := context.Background()

    _, err := engine.Apply(ctx, []ProbeResult{
        {IP: "192.168.1.50", Reachable: true, MAC: "aa:aa:aa:aa:aa:03"},
    }, nil)
    require.NoError(t, err)

    // A different hardware address shows up on the same IP
    events, err := engine.Apply(ctx, []ProbeResult{
        {IP: "192.168.1.50", Reachable: true, MAC: "bb:bb:bb:bb:bb:03"},
    }, nil)
    require.NoError(t, err)

    old, err := store.FindByHardwareAddress(ctx, "AA:AA:AA:AA:AA:03")
    require.NoError(t, err)
    assert.Empty(t, old.IP, "stale owner loses the address")
    assert.Equal(t, database.StatusUnknown, old.Status)

    newcomer, err := store.FindByHardwareAddress(ctx, "BB:BB:BB:BB:BB:03")
    require.NoError(t, err)
    assert.Equal(t, "192.168.1.50", newcomer.IP)
    assert.Equal(t, database.StatusOnline, newcomer.Status)

    types := make(map[string]int)
    for _, e := range events {
        types[e.Type]++
    }
    assert.Equal(t, 1, types[EventNewDevice])
    assert.Equal(t, 1, types[EventStatusChanged], "old owner's online -> unknown transition")
}

func TestApplySkipsReachableWithoutMAC(t *testing.T) {
    engine, store := newTestEngine(t, 1)
    ctx := context.Background()

    events, err := engine.Apply(ctx, []ProbeResult{
        {IP: "192.168.1.60", Reachable: true}, // no neighbor entry
    }, nil)
    require.NoError(t, err)
    assert.Empty(t, events)

    devices, err := store.GetDevices(ctx, database.DeviceFilters{})
    require.NoError(t, err)
    assert.Empty(t, devices)
}

func TestDiffPorts(t *testing.T) {
    previous := openPorts(22, 80)
    observed := openPorts(80, 443)

    opened, closed := DiffPorts(previous, observed)
    require.Len(t, opened, 1)
    require.Len(t, closed, 1)
    assert.Equal(t, 443, opened[0].Port)
    assert.Equal(t, 22, closed[0].Port)

    opened, closed = DiffPorts(observed, observed)
    assert.Empty(t, opened)
    assert.Empty(t, closed)
}

func TestApplyPortsFirstObservationIsSilent(t *testing.T) {
    engine, store := newTestEngine(t, 1)
    ctx := context.Background()

    results := []ProbeResult{{IP: "192.168.1.70", Reachable: true, MAC: "aa:aa:aa:aa:aa:04"}}
    ports := map[string][]database.OpenPort{"AA:AA:AA:AA:AA:04": openPorts(22, 80)}

    events, err := engine.Apply(ctx, results, ports)
    require.NoError(t, err)

    for _, e := range events {
        assert.NotEqual(t, EventPortsChanged, e.Type, "first port observation is inventory, not a change")
    }

    saved, err := store.GetPorts(ctx, "AA:AA:AA:AA:AA:04")
    require.NoError(t, err)
    assert.Len(t, saved, 2)
}

func TestApplyPortsChange(t *testing.T) {
    engine, store := newTestEngine(t, 1)
    ctx := context.Background()

    results := []ProbeResult{{IP: "192.168.1.71", Reachable: true, MAC: "aa:aa:aa:aa:aa:05"}}
    _, err := engine.Apply(ctx, results, map[string][]database.OpenPort{
        "AA:AA:AA:AA:AA:05": openPorts(22, 80),
    })
    require.NoError(t, err)

    events, err := engine.Apply(ctx, results, map[string][]database.OpenPort{
        "AA:AA:AA:AA:AA:05": openPorts(80, 443),
    })
    require.NoError(t, err)

    var portEvent *AlertEvent
    for i := range events {
        if events[i].Type == EventPortsChanged {
            portEvent = &events[i]
        }
    }
    require.NotNil(t, portEvent)
    require.Len(t, portEvent.Opened, 1)
    require.Len(t, portEvent.Closed, 1)
    assert.Equal(t, 443, portEvent.Opened[0].Port)
    assert.Equal(t, 22, portEvent.Closed[0].Port)
    assert.Equal(t, SeverityWarning, portEvent.Severity)

    // Observed set supersedes, it is not merged
    saved, err := store.GetPorts(ctx, "AA:AA:AA:AA:AA:05")
    require.NoError(t, err)
    require.Len(t, saved, 2)
    assert.Equal(t, 80, saved[0].Port)
    assert.Equal(t, 443, saved[1].Port)
}

func TestApplyInfersDeviceTypeFromPorts(t *testing.T) {
    engine, store := newTestEngine(t, 1)
    ctx := context.Background()

    results := []ProbeResult{{IP: "192.168.1.72", Reachable: true, MAC: "aa:aa:aa:aa:aa:06"}}
    _, err := engine.Apply(ctx, results, map[string][]database.OpenPort{
        "AA:AA:AA:AA:AA:06": openPorts(80, 631, 9100),
    })
    require.NoError(t, err)

    device, err := store.FindByHardwareAddress(ctx, "AA:AA:AA:AA:AA:06")
    require.NoError(t, err)
    assert.Equal(t, "printer", device.DeviceType)
}

// failingStore wraps a real store and fails upserts for one hardware
// address.
type failingStore struct {
    database.Store
    failMAC string
}

func (f *failingStore) UpsertDevice(ctx context.Context, device *database.Device) error {
    if device.MAC == f.failMAC {
        return fmt.Errorf("disk full")
    }
    return f.Store.UpsertDevice(ctx, device)
}

func TestApplyPartialFailure(t *testing.T) {
    inner := newTestStore(t)
    store := &failingStore{Store: inner, failMAC: "BB:BB:BB:BB:BB:FF"}
    engine := NewEngine(store, staticVendors{}, 1)
    ctx := context.Background()

    events, err := engine.Apply(ctx, []ProbeResult{
        {IP: "192.168.1.80", Reachable: true, MAC: "aa:aa:aa:aa:aa:fe"},
        {IP: "192.168.1.81", Reachable: true, MAC: "bb:bb:bb:bb:bb:ff"},
    }, nil)

    var partial *PartialApplyError
    require.True(t, errors.As(err, &partial))
    assert.Contains(t, partial.Failed, "BB:BB:BB:BB:BB:FF")
    assert.Len(t, partial.Failed, 1)

    // The healthy device still went through and produced its event
    require.Len(t, events, 1)
    assert.Equal(t, "AA:AA:AA:AA:AA:FE", events[0].Device.MAC)

    _, err = inner.FindByHardwareAddress(ctx, "AA:AA:AA:AA:AA:FE")
    assert.NoError(t, err)
}
