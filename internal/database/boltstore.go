// internal/database/boltstore.go - BoltDB registry implementation
package database

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "sync"
    "time"

    "github.com/google/uuid"
    "go.etcd.io/bbolt"
)

var (
    DevicesBucket  = []byte("devices")
    HistoryBucket  = []byte("status_history")
    PortsBucket    = []byte("ports")
    AlertsBucket   = []byte("alerts")
    SettingsBucket = []byte("settings")
    MetaBucket     = []byte("meta")
)

var scanSummaryKey = []byte("last_scan_summary")

type BoltStore struct {
    // mu guards the db handle itself: compaction swaps the handle for a
    // fresh one, so every transaction holds the read side while the swap
    // holds the write side.
    mu   sync.RWMutex
    db   *bbolt.DB
    path string
}

func NewBoltStore(path string) (*BoltStore, error) {
    // Create directory if it doesn't exist
    if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
        return nil, fmt.Errorf("failed to create data directory: %w", err)
    }

    db, err := bbolt.Open(path, 0600, &bbolt.Options{
        Timeout: 1 * time.Second,
    })
    if err != nil {
        return nil, fmt.Errorf("failed to open BoltDB: %w", err)
    }

    store := &BoltStore{db: db, path: path}

    if err := store.initBuckets(); err != nil {
        db.Close()
        return nil, fmt.Errorf("failed to initialize buckets: %w", err)
    }

    return store, nil
}

// view and update wrap the bbolt transactions so compaction can take the
// write side of mu and swap the handle without racing in-flight calls.
func (s *BoltStore) view(fn func(tx *bbolt.Tx) error) error {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.db.View(fn)
}

func (s *BoltStore) update(fn func(tx *bbolt.Tx) error) error {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return s.db.Update(fn)
}

func (s *BoltStore) initBuckets() error {
    return s.update(func(tx *bbolt.Tx) error {
        buckets := [][]byte{DevicesBucket, HistoryBucket, PortsBucket, AlertsBucket, SettingsBucket, MetaBucket}
        for _, bucket := range buckets {
            if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
                return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
            }
        }
        return nil
    })
}

func (s *BoltStore) GetDevices(ctx context.Context, filters DeviceFilters) ([]Device, error) {
    var devices []Device

    err := s.view(func(tx *bbolt.Tx) error {
        b := tx.Bucket(DevicesBucket)
        return b.ForEach(func(k, v []byte) error {
            var device Device
            if err := json.Unmarshal(v, &device); err != nil {
                return fmt.Errorf("failed to unmarshal device %s: %w", k, err)
            }

            // Apply filters
            if filters.Group != "" && device.Group != filters.Group {
                return nil
            }
            if filters.Status != "" && device.Status != filters.Status {
                return nil
            }
            if filters.Favorite != nil && device.IsFavorite != *filters.Favorite {
                return nil
            }

            devices = append(devices, device)
            return nil
        })
    })

    return devices, err
}

func (s *BoltStore) FindByHardwareAddress(ctx context.Context, mac string) (*Device, error) {
    var device Device

    err := s.view(func(tx *bbolt.Tx) error {
        b := tx.Bucket(DevicesBucket)
        v := b.Get([]byte(mac))
        if v == nil {
            return ErrDeviceNotFound
        }
        return json.Unmarshal(v, &device)
    })

    if err != nil {
        return nil, err
    }
    return &device, nil
}

func (s *BoltStore) UpsertDevice(ctx context.Context, device *Device) error {
    now := time.Now()
    if device.CreatedAt.IsZero() {
        device.CreatedAt = now
    }
    device.UpdatedAt = now

    return s.update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(DevicesBucket)

        data, err := json.Marshal(device)
        if err != nil {
            return fmt.Errorf("failed to marshal device: %w", err)
        }

        return b.Put([]byte(device.MAC), data)
    })
}

func (s *BoltStore) DeleteDevice(ctx context.Context, mac string) error {
    return s.update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(DevicesBucket)
        if b.Get([]byte(mac)) == nil {
            return ErrDeviceNotFound
        }
        if err := b.Delete([]byte(mac)); err != nil {
            return err
        }
        // Ports are device-scoped, drop them with the device
        return tx.Bucket(PortsBucket).Delete([]byte(mac))
    })
}

func (s *BoltStore) AppendStatusEvent(ctx context.Context, event *StatusEvent) error {
    if event.ID == "" {
        event.ID = uuid.New().String()
    }
    if event.Timestamp.IsZero() {
        event.Timestamp = time.Now()
    }

    return s.update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(HistoryBucket)

        data, err := json.Marshal(event)
        if err != nil {
            return fmt.Errorf("failed to marshal status event: %w", err)
        }

        // Key by timestamp so history iterates in time order and
        // retention trimming can stop at the cutoff.
        key := fmt.Sprintf("%s|%s", event.Timestamp.UTC().Format(time.RFC3339Nano), event.ID)
        return b.Put([]byte(key), data)
    })
}

func (s *BoltStore) GetStatusEvents(ctx context.Context, filters StatusEventFilters) ([]StatusEvent, error) {
    var events []StatusEvent

    err := s.view(func(tx *bbolt.Tx) error {
        b := tx.Bucket(HistoryBucket)
        c := b.Cursor()

        // Walk newest first
        for k, v := c.Last(); k != nil; k, v = c.Prev() {
            var event StatusEvent
            if err := json.Unmarshal(v, &event); err != nil {
                continue // Skip malformed entries
            }

            if filters.MAC != "" && event.MAC != filters.MAC {
                continue
            }
            if filters.Since != nil && event.Timestamp.Before(*filters.Since) {
                break
            }

            events = append(events, event)

            if filters.Limit > 0 && len(events) >= filters.Limit {
                break
            }
        }
        return nil
    })

    return events, err
}

func (s *BoltStore) DeleteStatusEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
    deleted := 0

    err := s.update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(HistoryBucket)
        c := b.Cursor()

        var stale [][]byte
        max := []byte(cutoff.UTC().Format(time.RFC3339Nano))
        for k, _ := c.First(); k != nil && string(k) < string(max); k, _ = c.Next() {
            stale = append(stale, append([]byte(nil), k...))
        }

        for _, k := range stale {
            if err := b.Delete(k); err != nil {
                return err
            }
            deleted++
        }
        return nil
    })

    return deleted, err
}

func (s *BoltStore) GetPorts(ctx context.Context, mac string) ([]OpenPort, error) {
    var ports []OpenPort

    err := s.view(func(tx *bbolt.Tx) error {
        b := tx.Bucket(PortsBucket)
        v := b.Get([]byte(mac))
        if v == nil {
            return nil
        }
        return json.Unmarshal(v, &ports)
    })

    return ports, err
}

func (s *BoltStore) ReplacePorts(ctx context.Context, mac string, ports []OpenPort) error {
    return s.update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(PortsBucket)

        if len(ports) == 0 {
            return b.Delete([]byte(mac))
        }

        data, err := json.Marshal(ports)
        if err != nil {
            return fmt.Errorf("failed to marshal ports: %w", err)
        }

        return b.Put([]byte(mac), data)
    })
}

func (s *BoltStore) AppendAlert(ctx context.Context, alert *AlertRecord) error {
    if alert.ID == "" {
        alert.ID = uuid.New().String()
    }
    if alert.Timestamp.IsZero() {
        alert.Timestamp = time.Now()
    }

    return s.update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(AlertsBucket)

        data, err := json.Marshal(alert)
        if err != nil {
            return fmt.Errorf("failed to marshal alert: %w", err)
        }

        key := fmt.Sprintf("%s|%s", alert.Timestamp.UTC().Format(time.RFC3339Nano), alert.ID)
        return b.Put([]byte(key), data)
    })
}

func (s *BoltStore) GetAlerts(ctx context.Context, filters AlertFilters) ([]AlertRecord, error) {
    var alerts []AlertRecord

    err := s.view(func(tx *bbolt.Tx) error {
        b := tx.Bucket(AlertsBucket)
        c := b.Cursor()

        for k, v := c.Last(); k != nil; k, v = c.Prev() {
            var alert AlertRecord
            if err := json.Unmarshal(v, &alert); err != nil {
                continue
            }

            if filters.MAC != "" && alert.MAC != filters.MAC {
                continue
            }
            if filters.Severity != "" && alert.Severity != filters.Severity {
                continue
            }
            if filters.Since != nil && alert.Timestamp.Before(*filters.Since) {
                break
            }

            alerts = append(alerts, alert)

            if filters.Limit > 0 && len(alerts) >= filters.Limit {
                break
            }
        }
        return nil
    })

    return alerts, err
}

func (s *BoltStore) SaveScanSummary(ctx context.Context, summary *ScanSummary) error {
    return s.update(func(tx *bbolt.Tx) error {
        b := tx.Bucket(MetaBucket)

        data, err := json.Marshal(summary)
        if err != nil {
            return fmt.Errorf("failed to marshal scan summary: %w", err)
        }

        return b.Put(scanSummaryKey, data)
    })
}

func (s *BoltStore) GetScanSummary(ctx context.Context) (*ScanSummary, error) {
    var summary *ScanSummary

    err := s.view(func(tx *bbolt.Tx) error {
        b := tx.Bucket(MetaBucket)
        v := b.Get(scanSummaryKey)
        if v == nil {
            return nil
        }
        summary = &ScanSummary{}
        return json.Unmarshal(v, summary)
    })

    return summary, err
}

func (s *BoltStore) GetSetting(ctx context.Context, key string) (string, error) {
    var value string

    err := s.view(func(tx *bbolt.Tx) error {
        v := tx.Bucket(SettingsBucket).Get([]byte(key))
        if v != nil {
            value = string(v)
        }
        return nil
    })

    return value, err
}

func (s *BoltStore) SetSetting(ctx context.Context, key, value string) error {
    return s.update(func(tx *bbolt.Tx) error {
        return tx.Bucket(SettingsBucket).Put([]byte(key), []byte(value))
    })
}

func (s *BoltStore) Close() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.db.Close()
}
