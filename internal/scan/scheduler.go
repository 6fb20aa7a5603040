// internal/scan/scheduler.go - periodic sweep and housekeeping triggers
package scan

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
    "lanwatch/internal/database"
)

// Scheduler fires periodic sweeps, quick status checks of known devices,
// and daily history cleanup. A fire that lands while a sweep is still
// running is skipped, never queued; sweeps do not stack up.
type Scheduler struct {
    coordinator *Coordinator
    store       database.Store

    mu           sync.RWMutex
    rangeSpec    string
    scanInterval time.Duration
    autoScan     bool
    retention    time.Duration

    statusInterval  time.Duration
    cleanupInterval time.Duration
    compactInterval time.Duration

    reload  chan struct{}
    running bool
}

func NewScheduler(coordinator *Coordinator, store database.Store) *Scheduler {
    return &Scheduler{
        coordinator:     coordinator,
        store:           store,
        scanInterval:    5 * time.Minute,
        statusInterval:  2 * time.Minute,
        cleanupInterval: 24 * time.Hour,
        compactInterval: 7 * 24 * time.Hour,
        retention:       30 * 24 * time.Hour,
        autoScan:        true,
        reload:          make(chan struct{}, 1),
    }
}

// Configure sets the initial schedule. Call before Start; later changes go
// through the Update methods.
func (s *Scheduler) Configure(rangeSpec string, scanInterval, statusInterval, retention, cleanupInterval, compactInterval time.Duration, autoScan bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.rangeSpec = rangeSpec
    s.scanInterval = scanInterval
    s.statusInterval = statusInterval
    s.retention = retention
    s.cleanupInterval = cleanupInterval
    s.compactInterval = compactInterval
    s.autoScan = autoScan
}

func (s *Scheduler) Start(ctx context.Context) {
    s.mu.Lock()
    if s.running {
        s.mu.Unlock()
        return
    }
    s.running = true
    s.mu.Unlock()

    logrus.WithFields(logrus.Fields{
        "range":     s.RangeSpec(),
        "interval":  s.ScanInterval(),
        "auto_scan": s.AutoScanEnabled(),
    }).Info("Starting scheduler")

    go s.sweepLoop(ctx)
    go s.statusLoop(ctx)
    go s.cleanupLoop(ctx)
    go s.compactLoop(ctx)
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
    ticker := time.NewTicker(s.ScanInterval())
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return
        case <-s.reload:
            ticker.Reset(s.ScanInterval())
        case <-ticker.C:
            if !s.AutoScanEnabled() {
                continue
            }
            s.fireSweep(ctx)
        }
    }
}

func (s *Scheduler) fireSweep(ctx context.Context) {
    err := s.coordinator.RunSweep(ctx, s.RangeSpec())
    if errors.Is(err, ErrSweepInProgress) {
        logrus.Debug("Scheduled sweep skipped, another sweep is running")
        return
    }
    if err != nil {
        logrus.WithError(err).Error("Scheduled sweep failed")
    }
}

// statusLoop re-probes known devices at their last-seen addresses between
// full sweeps, so status flips are noticed sooner than the sweep interval.
func (s *Scheduler) statusLoop(ctx context.Context) {
    ticker := time.NewTicker(s.statusInterval)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if !s.AutoScanEnabled() {
                continue
            }
            s.checkKnownDevices(ctx)
        }
    }
}

func (s *Scheduler) checkKnownDevices(ctx context.Context) {
    if s.coordinator.Running() {
        logrus.Debug("Status check skipped, sweep is running")
        return
    }

    devices, err := s.store.GetDevices(ctx, database.DeviceFilters{})
    if err != nil {
        logrus.WithError(err).Error("Failed to load devices for status check")
        return
    }

    checked := 0
    for i := range devices {
        if devices[i].IP == "" {
            continue
        }
        if ctx.Err() != nil {
            return
        }
        if _, err := s.coordinator.CheckDevice(ctx, &devices[i]); err != nil {
            logrus.WithError(err).WithField("mac", devices[i].MAC).Warn("Device status check failed")
        }
        checked++
    }

    if checked > 0 {
        logrus.WithField("devices", checked).Debug("Status check completed")
    }
}

func (s *Scheduler) cleanupLoop(ctx context.Context) {
    ticker := time.NewTicker(s.cleanupInterval)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            s.trimHistory(ctx)
        }
    }
}

func (s *Scheduler) trimHistory(ctx context.Context) {
    s.mu.RLock()
    retention := s.retention
    s.mu.RUnlock()

    cutoff := time.Now().Add(-retention)
    deleted, err := s.store.DeleteStatusEventsBefore(ctx, cutoff)
    if err != nil {
        logrus.WithError(err).Error("History cleanup failed")
        return
    }
    if deleted > 0 {
        logrus.WithFields(logrus.Fields{
            "deleted": deleted,
            "cutoff":  cutoff.Format(time.RFC3339),
        }).Info("Trimmed status history")
    }
}

// compactLoop reclaims database free pages on a slow cadence. Only runs
// when the store supports maintenance operations.
func (s *Scheduler) compactLoop(ctx context.Context) {
    maint, ok := s.store.(database.MaintenanceStore)
    if !ok {
        return
    }

    s.mu.RLock()
    interval := s.compactInterval
    s.mu.RUnlock()
    if interval <= 0 {
        return
    }

    ticker := time.NewTicker(interval)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            s.compactStore(ctx, maint)
        }
    }
}

func (s *Scheduler) compactStore(ctx context.Context, maint database.MaintenanceStore) {
    if err := maint.CompactDatabase(ctx); err != nil {
        logrus.WithError(err).Error("Database compaction failed")
    }
}

// UpdateScanInterval applies a new sweep interval immediately.
func (s *Scheduler) UpdateScanInterval(interval time.Duration) {
    s.mu.Lock()
    s.scanInterval = interval
    s.mu.Unlock()

    select {
    case s.reload <- struct{}{}:
    default:
    }
    logrus.WithField("interval", interval).Info("Scan interval updated")
}

func (s *Scheduler) UpdateRange(rangeSpec string) {
    s.mu.Lock()
    s.rangeSpec = rangeSpec
    s.mu.Unlock()
}

func (s *Scheduler) UpdateRetention(retention time.Duration) {
    s.mu.Lock()
    s.retention = retention
    s.mu.Unlock()
}

func (s *Scheduler) SetAutoScan(enabled bool) {
    s.mu.Lock()
    s.autoScan = enabled
    s.mu.Unlock()
    logrus.WithField("enabled", enabled).Info("Auto scan toggled")
}

func (s *Scheduler) RangeSpec() string {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.rangeSpec
}

func (s *Scheduler) ScanInterval() time.Duration {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.scanInterval
}

func (s *Scheduler) AutoScanEnabled() bool {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.autoScan
}

func (s *Scheduler) Retention() time.Duration {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.retention
}
