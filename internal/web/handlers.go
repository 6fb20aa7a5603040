// internal/web/handlers.go
package web

import (
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/sirupsen/logrus"
    "lanwatch/internal/database"
    "lanwatch/internal/scan"
    "lanwatch/internal/wol"
)

func (s *Server) getDevices(c *gin.Context) {
    filters := database.DeviceFilters{
        Group:  c.Query("group"),
        Status: c.Query("status"),
    }
    if fav := c.Query("favorite"); fav != "" {
        val := fav == "true" || fav == "1"
        filters.Favorite = &val
    }

    devices, err := s.store.GetDevices(c.Request.Context(), filters)
    if err != nil {
        logrus.WithError(err).Error("Failed to get devices")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get devices"})
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  devices,
        "count": len(devices),
    })
}

func (s *Server) getDevice(c *gin.Context) {
    mac := scan.NormalizeMAC(c.Param("mac"))
    if mac == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hardware address"})
        return
    }

    device, err := s.store.FindByHardwareAddress(c.Request.Context(), mac)
    if err != nil {
        if errors.Is(err, database.ErrDeviceNotFound) {
            c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get device"})
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": device})
}

// createDevice registers a device by hand, ahead of any sweep seeing it.
// Manual devices participate in sweeps like discovered ones.
func (s *Server) createDevice(c *gin.Context) {
    var req database.Device
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    req.MAC = scan.NormalizeMAC(req.MAC)
    if req.MAC == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "A valid hardware address is required"})
        return
    }

    if _, err := s.store.FindByHardwareAddress(c.Request.Context(), req.MAC); err == nil {
        c.JSON(http.StatusConflict, gin.H{"error": "Device already exists"})
        return
    } else if !errors.Is(err, database.ErrDeviceNotFound) {
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create device"})
        return
    }

    req.IsManual = true
    if req.Status == "" {
        req.Status = database.StatusUnknown
    }

    if err := s.store.UpsertDevice(c.Request.Context(), &req); err != nil {
        logrus.WithError(err).Error("Failed to create device")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create device"})
        return
    }

    c.JSON(http.StatusCreated, gin.H{"data": req})
}

// updateDevice changes only the user-assigned attributes; discovered state
// (IP, status, vendor, last seen) stays owned by the scanner.
func (s *Server) updateDevice(c *gin.Context) {
    mac := scan.NormalizeMAC(c.Param("mac"))
    if mac == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hardware address"})
        return
    }

    device, err := s.store.FindByHardwareAddress(c.Request.Context(), mac)
    if err != nil {
        if errors.Is(err, database.ErrDeviceNotFound) {
            c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get device"})
        return
    }

    var req struct {
        Nickname   *string `json:"nickname"`
        Group      *string `json:"group"`
        Icon       *string `json:"icon"`
        IsFavorite *bool   `json:"is_favorite"`
        DeviceType *string `json:"device_type"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    if req.Nickname != nil {
        device.Nickname = *req.Nickname
    }
    if req.Group != nil {
        device.Group = *req.Group
    }
    if req.Icon != nil {
        device.Icon = *req.Icon
    }
    if req.IsFavorite != nil {
        device.IsFavorite = *req.IsFavorite
    }
    if req.DeviceType != nil {
        device.DeviceType = *req.DeviceType
    }

    if err := s.store.UpsertDevice(c.Request.Context(), device); err != nil {
        logrus.WithError(err).Error("Failed to update device")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update device"})
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": device})
}

func (s *Server) deleteDevice(c *gin.Context) {
    mac := scan.NormalizeMAC(c.Param("mac"))
    if mac == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hardware address"})
        return
    }

    if err := s.store.DeleteDevice(c.Request.Context(), mac); err != nil {
        if errors.Is(err, database.ErrDeviceNotFound) {
            c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
            return
        }
        logrus.WithError(err).Error("Failed to delete device")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete device"})
        return
    }

    c.JSON(http.StatusOK, gin.H{"message": "Device deleted"})
}

func (s *Server) getDeviceHistory(c *gin.Context) {
    mac := scan.NormalizeMAC(c.Param("mac"))
    if mac == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hardware address"})
        return
    }

    filters := database.StatusEventFilters{
        MAC:   mac,
        Limit: 100,
    }
    if limitStr := c.Query("limit"); limitStr != "" {
        if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
            filters.Limit = limit
        }
    }
    if sinceStr := c.Query("since"); sinceStr != "" {
        if since, err := time.Parse(time.RFC3339, sinceStr); err == nil {
            filters.Since = &since
        }
    }

    events, err := s.store.GetStatusEvents(c.Request.Context(), filters)
    if err != nil {
        logrus.WithError(err).Error("Failed to get status history")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status history"})
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  events,
        "count": len(events),
    })
}

func (s *Server) getDevicePorts(c *gin.Context) {
    mac := scan.NormalizeMAC(c.Param("mac"))
    if mac == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hardware address"})
        return
    }

    ports, err := s.store.GetPorts(c.Request.Context(), mac)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get ports"})
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  ports,
        "count": len(ports),
    })
}

func (s *Server) scanDevicePorts(c *gin.Context) {
    mac := scan.NormalizeMAC(c.Param("mac"))
    if mac == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hardware address"})
        return
    }

    var req struct {
        Mode string `json:"mode"`
    }
    _ = c.ShouldBindJSON(&req)
    if req.Mode == "" {
        req.Mode = c.Query("mode")
    }
    if req.Mode == "" {
        req.Mode = scan.ModeQuick
    }
    if req.Mode != scan.ModeQuick && req.Mode != scan.ModeFull {
        c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be quick or full"})
        return
    }

    device, err := s.store.FindByHardwareAddress(c.Request.Context(), mac)
    if err != nil {
        if errors.Is(err, database.ErrDeviceNotFound) {
            c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get device"})
        return
    }

    ports, err := s.coordinator.ScanDevicePorts(c.Request.Context(), device, req.Mode)
    if err != nil {
        logrus.WithError(err).WithField("mac", mac).Error("Port scan failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  ports,
        "count": len(ports),
        "mode":  req.Mode,
    })
}

func (s *Server) checkDevice(c *gin.Context) {
    mac := scan.NormalizeMAC(c.Param("mac"))
    if mac == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hardware address"})
        return
    }

    device, err := s.store.FindByHardwareAddress(c.Request.Context(), mac)
    if err != nil {
        if errors.Is(err, database.ErrDeviceNotFound) {
            c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
            return
        }
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get device"})
        return
    }

    result, err := s.coordinator.CheckDevice(c.Request.Context(), device)
    if err != nil {
        logrus.WithError(err).WithField("mac", mac).Error("Device check failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) wakeDevice(c *gin.Context) {
    mac := scan.NormalizeMAC(c.Param("mac"))
    if mac == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hardware address"})
        return
    }

    var req struct {
        Broadcast string `json:"broadcast"`
    }
    _ = c.ShouldBindJSON(&req)

    if err := wol.Wake(mac, req.Broadcast, wol.DefaultPort); err != nil {
        logrus.WithError(err).WithField("mac", mac).Error("Wake-on-LAN failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusOK, gin.H{"message": "Magic packet sent", "mac": mac})
}

func (s *Server) wakeDevices(c *gin.Context) {
    var req struct {
        MACs      []string `json:"macs"`
        Broadcast string   `json:"broadcast"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if len(req.MACs) == 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "macs is required"})
        return
    }

    results := wol.WakeAll(req.MACs, req.Broadcast)
    c.JSON(http.StatusOK, gin.H{"data": results})
}

// triggerScan starts a sweep in the background. A sweep already holding the
// gate yields 409; the caller retries later, nothing is queued.
func (s *Server) triggerScan(c *gin.Context) {
    var req struct {
        Range string `json:"range"`
    }
    _ = c.ShouldBindJSON(&req)
    if req.Range == "" {
        req.Range = s.scheduler.RangeSpec()
    }

    err := s.coordinator.TriggerScan(c.Request.Context(), req.Range)
    if errors.Is(err, scan.ErrSweepInProgress) {
        c.JSON(http.StatusConflict, gin.H{
            "accepted": false,
            "reason":   "already_running",
            "status":   s.coordinator.Status(),
        })
        return
    }
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusAccepted, gin.H{
        "accepted": true,
        "status":   s.coordinator.Status(),
    })
}

func (s *Server) getScanStatus(c *gin.Context) {
    response := gin.H{"data": s.coordinator.Status()}
    if summary, err := s.store.GetScanSummary(c.Request.Context()); err == nil && summary != nil {
        response["last_summary"] = summary
    }
    c.JSON(http.StatusOK, response)
}

func (s *Server) getScanSummary(c *gin.Context) {
    summary, err := s.store.GetScanSummary(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get scan summary"})
        return
    }
    if summary == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "No completed scans yet"})
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) getAlerts(c *gin.Context) {
    filters := database.AlertFilters{
        MAC:      scan.NormalizeMAC(c.Query("mac")),
        Severity: c.Query("severity"),
        Limit:    100,
    }
    if limitStr := c.Query("limit"); limitStr != "" {
        if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
            filters.Limit = limit
        }
    }
    if sinceStr := c.Query("since"); sinceStr != "" {
        if since, err := time.Parse(time.RFC3339, sinceStr); err == nil {
            filters.Since = &since
        }
    }

    alerts, err := s.store.GetAlerts(c.Request.Context(), filters)
    if err != nil {
        logrus.WithError(err).Error("Failed to get alerts")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alerts"})
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  alerts,
        "count": len(alerts),
    })
}

func (s *Server) getStats(c *gin.Context) {
    devices, err := s.store.GetDevices(c.Request.Context(), database.DeviceFilters{})
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get devices"})
        return
    }

    counts := map[string]int{
        database.StatusOnline:  0,
        database.StatusOffline: 0,
        database.StatusUnknown: 0,
    }
    favorites := 0
    for _, device := range devices {
        counts[device.Status]++
        if device.IsFavorite {
            favorites++
        }
    }

    stats := gin.H{
        "devices":   len(devices),
        "online":    counts[database.StatusOnline],
        "offline":   counts[database.StatusOffline],
        "unknown":   counts[database.StatusUnknown],
        "favorites": favorites,
    }

    if summary, err := s.store.GetScanSummary(c.Request.Context()); err == nil && summary != nil {
        stats["last_scan"] = summary
    }
    if ms, ok := s.store.(database.MaintenanceStore); ok {
        if dbStats, err := ms.GetDatabaseStats(c.Request.Context()); err == nil {
            stats["database"] = dbStats
        }
    }

    c.JSON(http.StatusOK, gin.H{"data": stats})
}
