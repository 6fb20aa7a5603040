// internal/web/settings_handlers.go
package web

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/sirupsen/logrus"
    "lanwatch/internal/scan"
)

// Setting keys persisted in the store. Values stored here override the
// config file on the next startup and are applied live on update.
const (
    SettingScanRange     = "scan_range"
    SettingScanInterval  = "scan_interval_seconds"
    SettingAutoScan      = "auto_scan"
    SettingRetentionDays = "history_retention_days"
)

func (s *Server) getSettings(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "data": gin.H{
            "scan_range":             s.scheduler.RangeSpec(),
            "scan_interval_seconds":  int(s.scheduler.ScanInterval().Seconds()),
            "auto_scan":              s.scheduler.AutoScanEnabled(),
            "history_retention_days": int(s.scheduler.Retention().Hours() / 24),
        },
    })
}

// updateSettings validates, applies live, and persists. Fields absent from
// the request are left alone.
func (s *Server) updateSettings(c *gin.Context) {
    var req struct {
        ScanRange     *string `json:"scan_range"`
        ScanInterval  *int    `json:"scan_interval_seconds"`
        AutoScan      *bool   `json:"auto_scan"`
        RetentionDays *int    `json:"history_retention_days"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    ctx := c.Request.Context()

    if req.ScanRange != nil {
        if _, err := scan.ExpandRange(*req.ScanRange); err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
            return
        }
        s.scheduler.UpdateRange(*req.ScanRange)
        s.persistSetting(ctx, SettingScanRange, *req.ScanRange)
    }

    if req.ScanInterval != nil {
        if *req.ScanInterval < 60 || *req.ScanInterval > 3600 {
            c.JSON(http.StatusBadRequest, gin.H{"error": "scan_interval_seconds must be between 60 and 3600"})
            return
        }
        s.scheduler.UpdateScanInterval(time.Duration(*req.ScanInterval) * time.Second)
        s.persistSetting(ctx, SettingScanInterval, strconv.Itoa(*req.ScanInterval))
    }

    if req.AutoScan != nil {
        s.scheduler.SetAutoScan(*req.AutoScan)
        s.persistSetting(ctx, SettingAutoScan, strconv.FormatBool(*req.AutoScan))
    }

    if req.RetentionDays != nil {
        if *req.RetentionDays < 1 {
            c.JSON(http.StatusBadRequest, gin.H{"error": "history_retention_days must be at least 1"})
            return
        }
        s.scheduler.UpdateRetention(time.Duration(*req.RetentionDays) * 24 * time.Hour)
        s.persistSetting(ctx, SettingRetentionDays, strconv.Itoa(*req.RetentionDays))
    }

    s.getSettings(c)
}

func (s *Server) persistSetting(ctx context.Context, key, value string) {
    if err := s.store.SetSetting(ctx, key, value); err != nil {
        logrus.WithError(err).WithField("key", key).Warn("Failed to persist setting")
    }
}
