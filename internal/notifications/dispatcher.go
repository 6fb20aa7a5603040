// internal/notifications/dispatcher.go - alert delivery (webhook + email)
package notifications

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/smtp"
    "strings"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
    "lanwatch/internal/config"
    "lanwatch/internal/database"
    "lanwatch/internal/scan"
)

const userAgent = "lanwatch/1.0"

// Dispatcher consumes alert events from the reconciliation engine: it
// persists them, forwards them to a broadcast hook (the WebSocket hub), and
// delivers them over the enabled channels. Delivery failures are logged and
// never retried; the engine has already moved on.
type Dispatcher struct {
    config     *config.AlertsConfig
    store      database.Store
    httpClient *http.Client
    throttler  *Throttler

    // Broadcast is invoked for every event regardless of channel config,
    // so the UI stays live even with notifications disabled.
    Broadcast func(event scan.AlertEvent)
}

// Throttler rate-limits notifications with a sliding window, per device and
// in total.
type Throttler struct {
    config       *config.ThrottleConfig
    deviceCounts map[string][]time.Time
    totalCounts  []time.Time
    mu           sync.Mutex
}

// WebhookPayload is the JSON body POSTed to the configured webhook.
type WebhookPayload struct {
    Type      string                 `json:"type"`
    Severity  string                 `json:"severity"`
    Message   string                 `json:"message"`
    MAC       string                 `json:"mac"`
    IP        string                 `json:"ip,omitempty"`
    Hostname  string                 `json:"hostname,omitempty"`
    Nickname  string                 `json:"nickname,omitempty"`
    Metadata  map[string]interface{} `json:"metadata,omitempty"`
    Timestamp time.Time              `json:"timestamp"`
}

func NewDispatcher(cfg *config.AlertsConfig, store database.Store) *Dispatcher {
    d := &Dispatcher{
        config: cfg,
        store:  store,
        httpClient: &http.Client{
            Timeout: cfg.Webhook.Timeout,
        },
    }

    if cfg.Throttle.Enabled {
        d.throttler = NewThrottler(&cfg.Throttle)
    }

    logrus.WithFields(logrus.Fields{
        "alerts_enabled":  cfg.Enabled,
        "webhook_enabled": cfg.Webhook.Enabled,
        "email_enabled":   cfg.Email.Enabled,
    }).Info("Alert dispatcher initialized")

    return d
}

func NewThrottler(cfg *config.ThrottleConfig) *Throttler {
    return &Throttler{
        config:       cfg,
        deviceCounts: make(map[string][]time.Time),
    }
}

// Publish implements scan.EventPublisher.
func (d *Dispatcher) Publish(ctx context.Context, events []scan.AlertEvent) {
    for _, event := range events {
        d.persist(ctx, event)

        if d.Broadcast != nil {
            d.Broadcast(event)
        }

        if !d.config.Enabled || !d.typeEnabled(event.Type) {
            continue
        }
        if d.throttler != nil && d.throttler.IsThrottled(event.Device.MAC) {
            logrus.WithFields(logrus.Fields{
                "mac":  event.Device.MAC,
                "type": event.Type,
            }).Debug("Notification throttled")
            continue
        }

        delivered := false
        if d.config.Webhook.Enabled {
            if err := d.sendWebhook(ctx, event); err != nil {
                logrus.WithError(err).Error("Webhook delivery failed")
            } else {
                delivered = true
            }
        }
        if d.config.Email.Enabled {
            if err := d.sendEmail(event); err != nil {
                logrus.WithError(err).Error("Email delivery failed")
            } else {
                delivered = true
            }
        }

        if delivered && d.throttler != nil {
            d.throttler.Record(event.Device.MAC)
        }
    }
}

func (d *Dispatcher) persist(ctx context.Context, event scan.AlertEvent) {
    record := &database.AlertRecord{
        MAC:       event.Device.MAC,
        Type:      event.Type,
        Severity:  event.Severity,
        Message:   event.Message(),
        Metadata:  eventMetadata(event),
        Timestamp: event.Timestamp,
    }
    if err := d.store.AppendAlert(ctx, record); err != nil {
        logrus.WithError(err).Error("Failed to persist alert")
    }
}

func eventMetadata(event scan.AlertEvent) map[string]interface{} {
    meta := make(map[string]interface{})
    switch event.Type {
    case scan.EventStatusChanged:
        meta["old_status"] = event.OldStatus
        meta["new_status"] = event.NewStatus
    case scan.EventPortsChanged:
        meta["opened"] = portNumbers(event.Opened)
        meta["closed"] = portNumbers(event.Closed)
    }
    if len(meta) == 0 {
        return nil
    }
    return meta
}

func portNumbers(ports []database.OpenPort) []int {
    nums := make([]int, len(ports))
    for i, p := range ports {
        nums[i] = p.Port
    }
    return nums
}

func (d *Dispatcher) typeEnabled(eventType string) bool {
    if len(d.config.OnlyOnTypes) == 0 {
        return true
    }
    for _, t := range d.config.OnlyOnTypes {
        if t == eventType {
            return true
        }
    }
    return false
}

func (d *Dispatcher) sendWebhook(ctx context.Context, event scan.AlertEvent) error {
    payload := WebhookPayload{
        Type:      event.Type,
        Severity:  event.Severity,
        Message:   event.Message(),
        MAC:       event.Device.MAC,
        IP:        event.Device.IP,
        Hostname:  event.Device.Hostname,
        Nickname:  event.Device.Nickname,
        Metadata:  eventMetadata(event),
        Timestamp: event.Timestamp,
    }

    body, err := json.Marshal(payload)
    if err != nil {
        return fmt.Errorf("failed to marshal webhook payload: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.Webhook.URL, bytes.NewReader(body))
    if err != nil {
        return fmt.Errorf("failed to build webhook request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("User-Agent", userAgent)

    resp, err := d.httpClient.Do(req)
    if err != nil {
        return fmt.Errorf("webhook request failed: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return fmt.Errorf("webhook returned status %d", resp.StatusCode)
    }

    return nil
}

func (d *Dispatcher) sendEmail(event scan.AlertEvent) error {
    cfg := &d.config.Email

    subject := fmt.Sprintf("[lanwatch] %s: %s", strings.ToUpper(event.Severity), event.Type)
    var body strings.Builder
    fmt.Fprintf(&body, "From: %s\r\n", cfg.From)
    fmt.Fprintf(&body, "To: %s\r\n", strings.Join(cfg.To, ", "))
    fmt.Fprintf(&body, "Subject: %s\r\n", subject)
    body.WriteString("\r\n")
    fmt.Fprintf(&body, "%s\r\n\r\n", event.Message())
    fmt.Fprintf(&body, "Device:   %s\r\n", event.Device.MAC)
    if event.Device.IP != "" {
        fmt.Fprintf(&body, "IP:       %s\r\n", event.Device.IP)
    }
    if event.Device.Hostname != "" {
        fmt.Fprintf(&body, "Hostname: %s\r\n", event.Device.Hostname)
    }
    fmt.Fprintf(&body, "Time:     %s\r\n", event.Timestamp.Format(time.RFC1123))

    addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
    var auth smtp.Auth
    if cfg.Username != "" {
        auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
    }

    if err := smtp.SendMail(addr, auth, cfg.From, cfg.To, []byte(body.String())); err != nil {
        return fmt.Errorf("smtp send failed: %w", err)
    }

    return nil
}

// IsThrottled reports whether another notification for this device would
// exceed the window limits.
func (t *Throttler) IsThrottled(mac string) bool {
    t.mu.Lock()
    defer t.mu.Unlock()

    now := time.Now()
    t.prune(now)

    if len(t.totalCounts) >= t.config.MaxTotal {
        return true
    }
    return len(t.deviceCounts[mac]) >= t.config.MaxPerDevice
}

// Record notes a delivered notification for throttling purposes.
func (t *Throttler) Record(mac string) {
    t.mu.Lock()
    defer t.mu.Unlock()

    now := time.Now()
    t.deviceCounts[mac] = append(t.deviceCounts[mac], now)
    t.totalCounts = append(t.totalCounts, now)
}

func (t *Throttler) prune(now time.Time) {
    cutoff := now.Add(-t.config.Window)

    keep := t.totalCounts[:0]
    for _, ts := range t.totalCounts {
        if ts.After(cutoff) {
            keep = append(keep, ts)
        }
    }
    t.totalCounts = keep

    for mac, counts := range t.deviceCounts {
        kept := counts[:0]
        for _, ts := range counts {
            if ts.After(cutoff) {
                kept = append(kept, ts)
            }
        }
        if len(kept) == 0 {
            delete(t.deviceCounts, mac)
        } else {
            t.deviceCounts[mac] = kept
        }
    }
}
