// internal/scan/probe.go
package scan

import (
    "context"
    "net"
    "os/exec"
    "runtime"
    "strconv"
    "time"

    "github.com/sirupsen/logrus"
)

// ProbeResult is the outcome of one discovery probe. Absence of a response
// is a normal outcome, not an error: Reachable is false and the optional
// fields stay empty.
type ProbeResult struct {
    IP        string
    Reachable bool
    MAC       string
    Hostname  string
}

// Prober performs a discovery probe for one address.
type Prober interface {
    Probe(ctx context.Context, ip string, timeout time.Duration) ProbeResult
}

// PingProber checks reachability with the system ping command, then pulls
// the hardware address from the OS neighbor table and resolves the hostname
// best-effort with its own shorter timeout.
type PingProber struct {
    // HostnameTimeout caps reverse-DNS resolution so a slow resolver
    // cannot stall a sweep.
    HostnameTimeout time.Duration

    resolver *net.Resolver
}

func NewPingProber(hostnameTimeout time.Duration) *PingProber {
    return &PingProber{
        HostnameTimeout: hostnameTimeout,
        resolver:        net.DefaultResolver,
    }
}

func (p *PingProber) Probe(ctx context.Context, ip string, timeout time.Duration) ProbeResult {
    result := ProbeResult{IP: ip}

    if !pingHost(ctx, ip, timeout) {
        return result
    }
    result.Reachable = true

    // Ping populated the neighbor table; read the MAC out of it.
    result.MAC = LookupNeighbor(ctx, ip)

    result.Hostname = p.lookupHostname(ctx, ip)

    return result
}

// pingHost runs one ICMP echo via the system ping binary. Any failure,
// including the context deadline firing, reads as unreachable.
func pingHost(ctx context.Context, ip string, timeout time.Duration) bool {
    pingCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
    defer cancel()

    var cmd *exec.Cmd
    if runtime.GOOS == "windows" {
        ms := strconv.Itoa(int(timeout.Milliseconds()))
        cmd = exec.CommandContext(pingCtx, "ping", "-n", "1", "-w", ms, ip)
    } else {
        secs := int(timeout.Seconds())
        if secs < 1 {
            secs = 1
        }
        cmd = exec.CommandContext(pingCtx, "ping", "-c", "1", "-W", strconv.Itoa(secs), ip)
    }

    return cmd.Run() == nil
}

func (p *PingProber) lookupHostname(ctx context.Context, ip string) string {
    lookupCtx, cancel := context.WithTimeout(ctx, p.HostnameTimeout)
    defer cancel()

    names, err := p.resolver.LookupAddr(lookupCtx, ip)
    if err != nil || len(names) == 0 {
        logrus.WithField("ip", ip).Trace("Reverse lookup failed")
        return ""
    }

    name := names[0]
    // LookupAddr returns fully-qualified names with a trailing dot
    if len(name) > 0 && name[len(name)-1] == '.' {
        name = name[:len(name)-1]
    }
    if name == ip {
        return ""
    }
    return name
}
