// internal/metrics/prometheus.go
package metrics

import (
    "context"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
    "lanwatch/internal/database"
)

// Prometheus metrics
var (
    SweepDuration = promauto.NewHistogram(
        prometheus.HistogramOpts{
            Name:    "lanwatch_sweep_duration_seconds",
            Help:    "Time spent on full discovery sweeps",
            Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
        },
    )

    SweepsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "lanwatch_sweeps_total",
            Help: "Total discovery sweeps executed",
        },
        []string{"result"},
    )

    ProbesTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "lanwatch_probes_total",
            Help: "Total address probes executed",
        },
        []string{"outcome"},
    )

    PortScansTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "lanwatch_port_scans_total",
            Help: "Total per-device port scans executed",
        },
        []string{"mode"},
    )

    DevicesTotal = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "lanwatch_devices_total",
            Help: "Number of devices in the registry",
        },
    )

    DevicesOnline = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "lanwatch_devices_online",
            Help: "Number of devices currently online",
        },
    )

    AlertsEmitted = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "lanwatch_alerts_emitted_total",
            Help: "Alert events emitted by reconciliation",
        },
        []string{"type", "severity"},
    )

    DatabaseOperations = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "lanwatch_database_operations_total",
            Help: "Total database operations performed",
        },
        []string{"operation", "status"},
    )

    WebSocketConnections = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "lanwatch_websocket_connections_active",
            Help: "Number of active WebSocket connections",
        },
    )
)

type Collector struct {
    store database.Store
}

func NewCollector(store database.Store) *Collector {
    return &Collector{store: store}
}

func (c *Collector) RecordSweep(duration time.Duration, result string) {
    SweepDuration.Observe(duration.Seconds())
    SweepsTotal.WithLabelValues(result).Inc()
}

func (c *Collector) RecordProbe(reachable bool) {
    outcome := "unreachable"
    if reachable {
        outcome = "reachable"
    }
    ProbesTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordPortScan(mode string) {
    PortScansTotal.WithLabelValues(mode).Inc()
}

func (c *Collector) RecordAlert(eventType, severity string) {
    AlertsEmitted.WithLabelValues(eventType, severity).Inc()
}

func (c *Collector) RecordWebSocketConnection(delta int) {
    WebSocketConnections.Add(float64(delta))
}

// UpdateSystemMetrics refreshes the registry gauges from the store.
func (c *Collector) UpdateSystemMetrics(ctx context.Context) error {
    devices, err := c.store.GetDevices(ctx, database.DeviceFilters{})
    if err != nil {
        DatabaseOperations.WithLabelValues("get_devices", "error").Inc()
        return err
    }
    DatabaseOperations.WithLabelValues("get_devices", "success").Inc()

    online := 0
    for _, device := range devices {
        if device.Status == database.StatusOnline {
            online++
        }
    }

    DevicesTotal.Set(float64(len(devices)))
    DevicesOnline.Set(float64(online))

    return nil
}
