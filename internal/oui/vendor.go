// internal/oui/vendor.go - MAC vendor resolution
package oui

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/sirupsen/logrus"
)

const defaultAPIBase = "https://api.macvendors.com"

// Resolver maps hardware-address OUI prefixes to vendor names. Results are
// cached in memory and in a JSON file so the public API is hit at most once
// per prefix. Every lookup is best-effort; "" means unknown.
type Resolver struct {
    apiBase   string
    cacheFile string
    client    *http.Client
    online    bool

    mu      sync.Mutex
    cache   map[string]string
    lastHit time.Time
}

// minAPIInterval keeps lookups under the public API's rate limit.
const minAPIInterval = 200 * time.Millisecond

func NewResolver(cacheFile string, online bool) *Resolver {
    r := &Resolver{
        apiBase:   defaultAPIBase,
        cacheFile: cacheFile,
        online:    online,
        client:    &http.Client{Timeout: 3 * time.Second},
        cache:     make(map[string]string),
    }
    r.loadCache()
    return r
}

// Lookup resolves the vendor for a normalized hardware address.
func (r *Resolver) Lookup(mac string) string {
    prefix := ouiPrefix(mac)
    if prefix == "" {
        return ""
    }

    r.mu.Lock()
    if vendor, ok := r.cache[prefix]; ok {
        r.mu.Unlock()
        return vendor
    }

    if !r.online {
        r.mu.Unlock()
        return ""
    }

    // Rate limit API calls. Reserve the next slot under the lock, then
    // release it before sleeping so cache hits are never blocked behind
    // the wait.
    wait := minAPIInterval - time.Since(r.lastHit)
    if wait < 0 {
        wait = 0
    }
    r.lastHit = time.Now().Add(wait)
    r.mu.Unlock()

    if wait > 0 {
        time.Sleep(wait)
    }

    vendor := r.fetchVendor(mac)

    r.mu.Lock()
    // Cache unknowns too, to avoid re-querying the same prefix
    r.cache[prefix] = vendor
    r.mu.Unlock()
    r.saveCache()

    return vendor
}

func (r *Resolver) fetchVendor(mac string) string {
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", r.apiBase, mac), nil)
    if err != nil {
        return ""
    }

    resp, err := r.client.Do(req)
    if err != nil {
        logrus.WithError(err).WithField("mac", mac).Debug("Vendor lookup failed")
        return ""
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        return ""
    }

    body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
    if err != nil {
        return ""
    }

    return strings.TrimSpace(string(body))
}

func (r *Resolver) loadCache() {
    if r.cacheFile == "" {
        return
    }

    data, err := os.ReadFile(r.cacheFile)
    if err != nil {
        return
    }

    r.mu.Lock()
    defer r.mu.Unlock()
    if err := json.Unmarshal(data, &r.cache); err != nil {
        logrus.WithError(err).Warn("Failed to load vendor cache, starting empty")
        r.cache = make(map[string]string)
    }
}

func (r *Resolver) saveCache() {
    if r.cacheFile == "" {
        return
    }

    r.mu.Lock()
    data, err := json.MarshalIndent(r.cache, "", "  ")
    r.mu.Unlock()
    if err != nil {
        return
    }

    if err := os.MkdirAll(filepath.Dir(r.cacheFile), 0755); err != nil {
        return
    }
    if err := os.WriteFile(r.cacheFile, data, 0644); err != nil {
        logrus.WithError(err).Warn("Failed to save vendor cache")
    }
}

func ouiPrefix(mac string) string {
    if len(mac) < 8 {
        return ""
    }
    return strings.ToUpper(mac[:8])
}
