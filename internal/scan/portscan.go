// internal/scan/portscan.go - TCP connect scanning
package scan

import (
    "context"
    "errors"
    "net"
    "sort"
    "strconv"
    "sync"
    "syscall"
    "time"

    "lanwatch/internal/database"
)

// Port scan modes
const (
    ModeQuick = "quick"
    ModeFull  = "full"
)

// Port states
const (
    PortOpen     = "open"
    PortClosed   = "closed"
    PortFiltered = "filtered"
)

// QuickScanPorts covers the most common services, FullScanPorts adds
// high-value service ports on top.
var (
    QuickScanPorts = []int{
        21, 22, 23, 25, 53, 80, 110, 143, 443, 445,
        631, 1883, 3306, 3389, 5432, 5900, 8080, 8443, 9100, 27017,
    }

    FullScanPorts = []int{
        20, 21, 22, 23, 25, 53, 80, 110, 135, 139, 143, 443, 445,
        548, 554, 631, 993, 995, 1433, 1883, 3306, 3389, 5000, 5432,
        5900, 6379, 8080, 8096, 8443, 8883, 9000, 9100, 27017, 32400,
    }
)

var serviceNames = map[int]string{
    20:    "ftp-data",
    21:    "ftp",
    22:    "ssh",
    23:    "telnet",
    25:    "smtp",
    53:    "dns",
    80:    "http",
    110:   "pop3",
    135:   "msrpc",
    139:   "netbios",
    143:   "imap",
    443:   "https",
    445:   "smb",
    548:   "afp",
    554:   "rtsp",
    631:   "ipp",
    993:   "imaps",
    995:   "pop3s",
    1433:  "mssql",
    1883:  "mqtt",
    3306:  "mysql",
    3389:  "rdp",
    5000:  "upnp",
    5432:  "postgresql",
    5900:  "vnc",
    6379:  "redis",
    8080:  "http-alt",
    8096:  "jellyfin",
    8443:  "https-alt",
    8883:  "mqtt-ssl",
    9000:  "sonarqube",
    9100:  "jetdirect",
    27017: "mongodb",
    32400: "plex",
}

// ServiceName returns the conventional service for a port, or "unknown".
func ServiceName(port int) string {
    if name, ok := serviceNames[port]; ok {
        return name
    }
    return "unknown"
}

// PortsForMode maps a scan mode to its fixed port list.
func PortsForMode(mode string) []int {
    if mode == ModeFull {
        return FullScanPorts
    }
    return QuickScanPorts
}

// PortScanner performs bounded-concurrency TCP connect scans.
type PortScanner struct {
    Workers int
    Timeout time.Duration
}

func NewPortScanner(workers int, perPortTimeout time.Duration) *PortScanner {
    if workers <= 0 {
        workers = 50
    }
    return &PortScanner{Workers: workers, Timeout: perPortTimeout}
}

// ScanPorts probes each port with a TCP connect and returns the open ones
// in ascending port order. Closed and filtered ports are dropped from the
// result; they matter only for classification, not for the registry.
func (s *PortScanner) ScanPorts(ctx context.Context, ip string, ports []int) []database.OpenPort {
    jobs := make(chan int, len(ports))
    results := make(chan database.OpenPort, len(ports))

    var wg sync.WaitGroup
    workers := s.Workers
    if workers > len(ports) {
        workers = len(ports)
    }

    for i := 0; i < workers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for port := range jobs {
                state := ProbePort(ctx, ip, port, s.Timeout)
                if state != PortOpen {
                    continue
                }
                results <- database.OpenPort{
                    Port:       port,
                    Protocol:   "tcp",
                    Service:    ServiceName(port),
                    State:      PortOpen,
                    ObservedAt: time.Now(),
                }
            }
        }()
    }

enqueue:
    for _, port := range ports {
        select {
        case <-ctx.Done():
            break enqueue
        case jobs <- port:
        }
    }
    close(jobs)
    wg.Wait()
    close(results)

    var open []database.OpenPort
    for port := range results {
        open = append(open, port)
    }

    sort.Slice(open, func(i, j int) bool { return open[i].Port < open[j].Port })
    return open
}

// ProbePort classifies a single port: open when the connect is accepted,
// closed when it is actively refused, filtered when nothing answers within
// the timeout.
func ProbePort(ctx context.Context, ip string, port int, timeout time.Duration) string {
    d := net.Dialer{Timeout: timeout}
    conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
    if err == nil {
        conn.Close()
        return PortOpen
    }

    if errors.Is(err, syscall.ECONNREFUSED) {
        return PortClosed
    }

    var netErr net.Error
    if errors.As(err, &netErr) && netErr.Timeout() {
        return PortFiltered
    }

    return PortFiltered
}
