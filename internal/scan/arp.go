// internal/scan/arp.go - neighbor table lookups
package scan

import (
    "context"
    "os"
    "os/exec"
    "regexp"
    "runtime"
    "strings"
    "time"
)

var macPattern = regexp.MustCompile(`([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}`)

const procArpPath = "/proc/net/arp"

// LookupNeighbor returns the hardware address the OS neighbor table holds
// for ip, or "" when no entry exists. A successful reachability probe must
// have populated the table first; ping itself never yields a MAC.
func LookupNeighbor(ctx context.Context, ip string) string {
    if runtime.GOOS == "linux" {
        if mac := lookupProcArp(ip); mac != "" {
            return mac
        }
    }
    return lookupArpCommand(ctx, ip)
}

// lookupProcArp reads /proc/net/arp directly, avoiding a subprocess per
// probed address.
func lookupProcArp(ip string) string {
    data, err := os.ReadFile(procArpPath)
    if err != nil {
        return ""
    }

    lines := strings.Split(string(data), "\n")
    for _, line := range lines[1:] { // skip header
        fields := strings.Fields(line)
        // IP address, HW type, Flags, HW address, Mask, Device
        if len(fields) < 4 || fields[0] != ip {
            continue
        }
        mac := NormalizeMAC(fields[3])
        if mac == "" || mac == "00:00:00:00:00:00" {
            return ""
        }
        return mac
    }
    return ""
}

func lookupArpCommand(ctx context.Context, ip string) string {
    cmdCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
    defer cancel()

    var cmd *exec.Cmd
    if runtime.GOOS == "windows" {
        cmd = exec.CommandContext(cmdCtx, "arp", "-a", ip)
    } else {
        cmd = exec.CommandContext(cmdCtx, "arp", "-n", ip)
    }

    output, err := cmd.Output()
    if err != nil {
        return ""
    }

    match := macPattern.FindString(string(output))
    if match == "" {
        return ""
    }

    mac := NormalizeMAC(match)
    if mac == "00:00:00:00:00:00" {
        return ""
    }
    return mac
}
