package scan

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "lanwatch/internal/database"
    "lanwatch/internal/metrics"
)

func newTestScheduler(t *testing.T) (*Scheduler, *database.BoltStore) {
    store := newTestStore(t)
    engine := NewEngine(store, nil, 1)
    coordinator := NewCoordinator(&fakeProber{}, nil, engine, store, metrics.NewCollector(store))
    scheduler := NewScheduler(coordinator, store)
    scheduler.Configure("192.168.77.0/30", 5*time.Minute, 2*time.Minute, 30*24*time.Hour, 24*time.Hour, 7*24*time.Hour, true)
    return scheduler, store
}

func TestSchedulerConfigure(t *testing.T) {
    scheduler, _ := newTestScheduler(t)

    assert.Equal(t, "192.168.77.0/30", scheduler.RangeSpec())
    assert.Equal(t, 5*time.Minute, scheduler.ScanInterval())
    assert.Equal(t, 30*24*time.Hour, scheduler.Retention())
    assert.True(t, scheduler.AutoScanEnabled())
}

func TestSchedulerRuntimeUpdates(t *testing.T) {
    scheduler, _ := newTestScheduler(t)

    scheduler.UpdateScanInterval(10 * time.Minute)
    assert.Equal(t, 10*time.Minute, scheduler.ScanInterval())

    scheduler.UpdateRange("10.0.0.0/24")
    assert.Equal(t, "10.0.0.0/24", scheduler.RangeSpec())

    scheduler.UpdateRetention(7 * 24 * time.Hour)
    assert.Equal(t, 7*24*time.Hour, scheduler.Retention())

    scheduler.SetAutoScan(false)
    assert.False(t, scheduler.AutoScanEnabled())
}

func TestSchedulerTrimHistory(t *testing.T) {
    scheduler, store := newTestScheduler(t)
    ctx := context.Background()

    scheduler.UpdateRetention(24 * time.Hour)

    require.NoError(t, store.AppendStatusEvent(ctx, &database.StatusEvent{
        MAC:       "AA:BB:CC:DD:EE:20",
        Status:    database.StatusOnline,
        Timestamp: time.Now().Add(-48 * time.Hour),
    }))
    require.NoError(t, store.AppendStatusEvent(ctx, &database.StatusEvent{
        MAC:       "AA:BB:CC:DD:EE:20",
        Status:    database.StatusOffline,
        Timestamp: time.Now().Add(-time.Hour),
    }))

    scheduler.trimHistory(ctx)

    events, err := store.GetStatusEvents(ctx, database.StatusEventFilters{MAC: "AA:BB:CC:DD:EE:20"})
    require.NoError(t, err)
    require.Len(t, events, 1)
    assert.Equal(t, database.StatusOffline, events[0].Status)
}

func TestSchedulerCompactStore(t *testing.T) {
    scheduler, store := newTestScheduler(t)
    ctx := context.Background()

    require.NoError(t, store.UpsertDevice(ctx, &database.Device{MAC: "AA:BB:CC:DD:EE:30", Status: database.StatusOnline}))

    scheduler.compactStore(ctx, store)

    device, err := store.FindByHardwareAddress(ctx, "AA:BB:CC:DD:EE:30")
    require.NoError(t, err)
    assert.Equal(t, database.StatusOnline, device.Status)

    stats, err := store.GetDatabaseStats(ctx)
    require.NoError(t, err)
    assert.False(t, stats.LastCompaction.IsZero())
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
    scheduler, _ := newTestScheduler(t)
    scheduler.SetAutoScan(false)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    scheduler.Start(ctx)
    scheduler.Start(ctx) // second call is a no-op
}
