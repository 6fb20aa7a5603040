// internal/database/boltstore_maintenance.go - housekeeping for the BoltDB store
package database

import (
    "context"
    "fmt"
    "os"
    "time"

    "github.com/sirupsen/logrus"
    "go.etcd.io/bbolt"
)

var lastCompactionKey = []byte("last_compaction")

func (s *BoltStore) GetDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
    stats := &DatabaseStats{}

    err := s.view(func(tx *bbolt.Tx) error {
        if b := tx.Bucket(DevicesBucket); b != nil {
            stats.DeviceCount = b.Stats().KeyN
        }
        if b := tx.Bucket(HistoryBucket); b != nil {
            stats.StatusEventCount = b.Stats().KeyN
        }
        if b := tx.Bucket(AlertsBucket); b != nil {
            stats.AlertCount = b.Stats().KeyN
        }
        if v := tx.Bucket(MetaBucket).Get(lastCompactionKey); v != nil {
            if t, err := time.Parse(time.RFC3339, string(v)); err == nil {
                stats.LastCompaction = t
            }
        }
        return nil
    })

    if err != nil {
        return nil, fmt.Errorf("failed to get database stats: %w", err)
    }

    if fileInfo, err := os.Stat(s.path); err == nil {
        stats.DatabaseSize = fileInfo.Size()
    }

    return stats, nil
}

// CompactDatabase rewrites the database file to reclaim free pages. BoltDB
// has no in-place compaction, so the data is copied into a fresh file which
// then replaces the original. Holds the write side of mu for the duration,
// so concurrent store calls block until the handle swap is done.
func (s *BoltStore) CompactDatabase(ctx context.Context) error {
    logrus.Info("Starting database compaction")

    s.mu.Lock()
    defer s.mu.Unlock()

    tmpPath := s.path + ".compact.tmp"

    newDB, err := bbolt.Open(tmpPath, 0600, &bbolt.Options{
        Timeout: 1 * time.Second,
    })
    if err != nil {
        return fmt.Errorf("failed to create compact database: %w", err)
    }

    cleanup := func() {
        newDB.Close()
        os.Remove(tmpPath)
    }

    buckets := [][]byte{DevicesBucket, HistoryBucket, PortsBucket, AlertsBucket, SettingsBucket, MetaBucket}

    err = newDB.Update(func(tx *bbolt.Tx) error {
        for _, bucket := range buckets {
            if _, err := tx.CreateBucket(bucket); err != nil {
                return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
            }
        }
        return nil
    })
    if err != nil {
        cleanup()
        return fmt.Errorf("failed to initialize compact database: %w", err)
    }

    err = s.db.View(func(oldTx *bbolt.Tx) error {
        return newDB.Update(func(newTx *bbolt.Tx) error {
            for _, bucketName := range buckets {
                oldBucket := oldTx.Bucket(bucketName)
                newBucket := newTx.Bucket(bucketName)

                if oldBucket == nil {
                    continue
                }

                cursor := oldBucket.Cursor()
                for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
                    if err := newBucket.Put(copyBytes(k), copyBytes(v)); err != nil {
                        return fmt.Errorf("failed to copy data: %w", err)
                    }
                }
            }

            return nil
        })
    })

    if err != nil {
        cleanup()
        return fmt.Errorf("failed to copy data to compact database: %w", err)
    }

    newDB.Close()
    s.db.Close()

    if err := os.Rename(tmpPath, s.path); err != nil {
        return fmt.Errorf("failed to replace database: %w", err)
    }

    s.db, err = bbolt.Open(s.path, 0600, &bbolt.Options{
        Timeout: 1 * time.Second,
    })
    if err != nil {
        return fmt.Errorf("failed to reopen compacted database: %w", err)
    }

    err = s.db.Update(func(tx *bbolt.Tx) error {
        return tx.Bucket(MetaBucket).Put(lastCompactionKey, []byte(time.Now().UTC().Format(time.RFC3339)))
    })
    if err != nil {
        logrus.WithError(err).Warn("Failed to record compaction timestamp")
    }

    logrus.Info("Database compaction completed")
    return nil
}

func copyBytes(b []byte) []byte {
    if b == nil {
        return nil
    }
    c := make([]byte, len(b))
    copy(c, b)
    return c
}
