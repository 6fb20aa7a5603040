// internal/scan/coordinator.go - sweep lifecycle state machine
package scan

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"
    "time"

    "github.com/sirupsen/logrus"
    "lanwatch/internal/database"
    "lanwatch/internal/metrics"
)

// Sweep states
type State string

const (
    StateIdle      State = "idle"
    StateRunning   State = "running"
    StateCompleted State = "completed"
    StateFailed    State = "failed"
)

// ErrSweepInProgress is returned when a sweep is triggered while another is
// still running. Callers are rejected, never queued.
var ErrSweepInProgress = errors.New("sweep already in progress")

// SweepStatus is the cheap, non-blocking progress snapshot exposed to
// pollers.
type SweepStatus struct {
    State           State      `json:"state"`
    RangeSpec       string     `json:"range_spec,omitempty"`
    StartedAt       *time.Time `json:"started_at,omitempty"`
    CompletedAt     *time.Time `json:"completed_at,omitempty"`
    AddressesTotal  int        `json:"addresses_total"`
    AddressesProbed int        `json:"addresses_probed"`
    LastError       string     `json:"last_error,omitempty"`
}

// EventPublisher receives the alert events a reconciliation pass produced.
type EventPublisher interface {
    Publish(ctx context.Context, events []AlertEvent)
}

// Coordinator orchestrates sweeps: range expansion, bounded-concurrency
// probe dispatch, reconciliation hand-off, and the at-most-one-sweep
// guarantee. It is the sole point of serialization for the sweep lifecycle.
type Coordinator struct {
    prober      Prober
    portScanner *PortScanner
    engine      *Engine
    store       database.Store
    metrics     *metrics.Collector
    publisher   EventPublisher

    Workers       int
    ProbeTimeout  time.Duration
    SweepDeadline time.Duration
    PortScanSweep bool // run a quick port scan against reachable hosts during sweeps

    mu          sync.Mutex
    state       State
    rangeSpec   string
    startedAt   time.Time
    completedAt time.Time
    total       int
    lastError   string

    probed atomic.Int64
}

func NewCoordinator(prober Prober, portScanner *PortScanner, engine *Engine, store database.Store, collector *metrics.Collector) *Coordinator {
    return &Coordinator{
        prober:        prober,
        portScanner:   portScanner,
        engine:        engine,
        store:         store,
        metrics:       collector,
        Workers:       50,
        ProbeTimeout:  2 * time.Second,
        SweepDeadline: 2 * time.Minute,
        state:         StateIdle,
    }
}

// SetPublisher wires the consumer of alert events. Must be called before
// the first sweep.
func (c *Coordinator) SetPublisher(p EventPublisher) {
    c.publisher = p
}

// TriggerScan starts a sweep in the background. It fails fast with
// ErrSweepInProgress when another sweep holds the gate.
func (c *Coordinator) TriggerScan(ctx context.Context, rangeSpec string) error {
    if err := c.acquire(rangeSpec); err != nil {
        return err
    }

    go func() {
        if err := c.runLocked(context.Background(), rangeSpec); err != nil {
            logrus.WithError(err).WithField("range", rangeSpec).Error("Sweep failed")
        }
    }()

    return nil
}

// RunSweep executes a sweep synchronously. Used by the scheduler and by
// tests; the gate semantics are identical to TriggerScan.
func (c *Coordinator) RunSweep(ctx context.Context, rangeSpec string) error {
    if err := c.acquire(rangeSpec); err != nil {
        return err
    }
    return c.runLocked(ctx, rangeSpec)
}

// acquire performs the Idle->Running transition. Only one caller can win;
// everyone else gets ErrSweepInProgress immediately.
func (c *Coordinator) acquire(rangeSpec string) error {
    c.mu.Lock()
    defer c.mu.Unlock()

    if c.state == StateRunning {
        return ErrSweepInProgress
    }

    c.state = StateRunning
    c.rangeSpec = rangeSpec
    c.startedAt = time.Now()
    c.completedAt = time.Time{}
    c.total = 0
    c.lastError = ""
    c.probed.Store(0)
    return nil
}

func (c *Coordinator) runLocked(ctx context.Context, rangeSpec string) error {
    start := time.Now()

    addrs, err := ExpandRange(rangeSpec)
    if err != nil {
        c.finish(StateFailed, err)
        c.metrics.RecordSweep(time.Since(start), "failed")
        return err
    }

    c.mu.Lock()
    c.total = len(addrs)
    c.mu.Unlock()

    logrus.WithFields(logrus.Fields{
        "range":     rangeSpec,
        "addresses": len(addrs),
        "workers":   c.Workers,
    }).Info("Starting sweep")

    sweepCtx, cancel := context.WithTimeout(ctx, c.SweepDeadline)
    defer cancel()

    results := c.dispatchProbes(sweepCtx, addrs)

    var portResults map[string][]database.OpenPort
    if c.PortScanSweep && c.portScanner != nil {
        portResults = c.sweepPorts(sweepCtx, results)
    }

    events, applyErr := c.engine.Apply(ctx, results, portResults)

    c.recordEvents(ctx, events)

    reachable := 0
    for _, r := range results {
        if r.Reachable {
            reachable++
        }
    }

    c.saveSummary(ctx, rangeSpec, len(addrs), reachable)
    c.finish(StateCompleted, applyErr)
    c.metrics.RecordSweep(time.Since(start), "completed")

    logrus.WithFields(logrus.Fields{
        "range":     rangeSpec,
        "reachable": reachable,
        "events":    len(events),
        "duration":  time.Since(start).Round(time.Millisecond),
    }).Info("Sweep completed")

    return applyErr
}

// dispatchProbes fans the address list out over the worker pool. Probes
// abandoned by the sweep deadline report as unreachable rather than being
// awaited.
func (c *Coordinator) dispatchProbes(ctx context.Context, addrs []string) []ProbeResult {
    jobs := make(chan string, len(addrs))
    out := make(chan ProbeResult, len(addrs))

    var wg sync.WaitGroup
    workers := c.Workers
    if workers > len(addrs) {
        workers = len(addrs)
    }

    for i := 0; i < workers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for ip := range jobs {
                select {
                case <-ctx.Done():
                    out <- ProbeResult{IP: ip}
                default:
                    result := c.prober.Probe(ctx, ip, c.ProbeTimeout)
                    c.metrics.RecordProbe(result.Reachable)
                    out <- result
                }
                c.probed.Add(1)
            }
        }()
    }

    for _, ip := range addrs {
        jobs <- ip
    }
    close(jobs)
    wg.Wait()
    close(out)

    results := make([]ProbeResult, 0, len(addrs))
    for r := range out {
        results = append(results, r)
    }
    return results
}

// sweepPorts runs a quick port scan against every reachable host that
// yielded a hardware address.
func (c *Coordinator) sweepPorts(ctx context.Context, results []ProbeResult) map[string][]database.OpenPort {
    portResults := make(map[string][]database.OpenPort)
    for _, r := range results {
        if !r.Reachable || r.MAC == "" {
            continue
        }
        if ctx.Err() != nil {
            break
        }
        portResults[NormalizeMAC(r.MAC)] = c.portScanner.ScanPorts(ctx, r.IP, QuickScanPorts)
        c.metrics.RecordPortScan(ModeQuick)
    }
    return portResults
}

func (c *Coordinator) recordEvents(ctx context.Context, events []AlertEvent) {
    for _, event := range events {
        c.metrics.RecordAlert(event.Type, event.Severity)
    }
    if c.publisher != nil && len(events) > 0 {
        c.publisher.Publish(ctx, events)
    }
}

func (c *Coordinator) saveSummary(ctx context.Context, rangeSpec string, total, found int) {
    previous, err := c.store.GetScanSummary(ctx)
    delta := 0
    if err == nil && previous != nil {
        delta = found - previous.DevicesFound
    }

    summary := &database.ScanSummary{
        RangeSpec:      rangeSpec,
        StartedAt:      c.startedAt,
        CompletedAt:    time.Now(),
        AddressesTotal: total,
        DevicesFound:   found,
        DevicesDelta:   delta,
    }

    if err := c.store.SaveScanSummary(ctx, summary); err != nil {
        logrus.WithError(err).Warn("Failed to persist scan summary")
    }
}

func (c *Coordinator) finish(state State, err error) {
    c.mu.Lock()
    defer c.mu.Unlock()

    c.state = state
    c.completedAt = time.Now()
    if err != nil {
        c.lastError = err.Error()
        if state == StateFailed {
            c.saveFailedSummary()
        }
    }
}

func (c *Coordinator) saveFailedSummary() {
    summary := &database.ScanSummary{
        RangeSpec:   c.rangeSpec,
        StartedAt:   c.startedAt,
        CompletedAt: time.Now(),
        Failed:      true,
    }
    if err := c.store.SaveScanSummary(context.Background(), summary); err != nil {
        logrus.WithError(err).Warn("Failed to persist scan summary")
    }
}

// Status returns a progress snapshot. Safe to call at sub-second intervals.
func (c *Coordinator) Status() SweepStatus {
    c.mu.Lock()
    defer c.mu.Unlock()

    status := SweepStatus{
        State:           c.state,
        RangeSpec:       c.rangeSpec,
        AddressesTotal:  c.total,
        AddressesProbed: int(c.probed.Load()),
        LastError:       c.lastError,
    }
    if !c.startedAt.IsZero() {
        t := c.startedAt
        status.StartedAt = &t
    }
    if !c.completedAt.IsZero() {
        t := c.completedAt
        status.CompletedAt = &t
    }
    return status
}

// Running reports whether a sweep currently holds the gate.
func (c *Coordinator) Running() bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.state == StateRunning
}

// ScanDevicePorts runs a synchronous on-demand port scan for one device.
// It is independent of the sweep state machine and may run while a sweep
// is in flight.
func (c *Coordinator) ScanDevicePorts(ctx context.Context, device *database.Device, mode string) ([]database.OpenPort, error) {
    if device.IP == "" {
        return nil, fmt.Errorf("device %s has no current IP address", device.MAC)
    }

    observed := c.portScanner.ScanPorts(ctx, device.IP, PortsForMode(mode))
    c.metrics.RecordPortScan(mode)

    events := make([]AlertEvent, 0, 1)
    if event, err := c.engine.applyPorts(ctx, device, observed, time.Now()); err != nil {
        return observed, err
    } else if event != nil {
        events = append(events, *event)
    }
    c.recordEvents(ctx, events)

    return observed, nil
}

// CheckDevice probes a single known device immediately and reconciles the
// result, outside of any sweep.
func (c *Coordinator) CheckDevice(ctx context.Context, device *database.Device) (ProbeResult, error) {
    if device.IP == "" {
        return ProbeResult{}, fmt.Errorf("device %s has no current IP address", device.MAC)
    }

    result := c.prober.Probe(ctx, device.IP, c.ProbeTimeout)
    c.metrics.RecordProbe(result.Reachable)
    if result.MAC == "" {
        // Keep identity pinned to the device we were asked about.
        result.MAC = device.MAC
    }

    events, err := c.engine.CheckResult(ctx, result)
    c.recordEvents(ctx, events)
    return result, err
}
