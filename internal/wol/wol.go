// internal/wol/wol.go - Wake-on-LAN magic packets
package wol

import (
    "encoding/hex"
    "fmt"
    "net"
    "strconv"
    "strings"

    "github.com/sirupsen/logrus"
)

const (
    DefaultBroadcast = "255.255.255.255"
    DefaultPort      = 9
    alternatePort    = 7
)

// BuildMagicPacket assembles the 102-byte Wake-on-LAN payload: six 0xFF
// bytes followed by sixteen repetitions of the target hardware address.
func BuildMagicPacket(mac string) ([]byte, error) {
    cleaned := strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
    if len(cleaned) != 12 {
        return nil, fmt.Errorf("invalid hardware address: %s", mac)
    }

    macBytes, err := hex.DecodeString(cleaned)
    if err != nil {
        return nil, fmt.Errorf("invalid hardware address %s: %w", mac, err)
    }

    packet := make([]byte, 0, 102)
    for i := 0; i < 6; i++ {
        packet = append(packet, 0xFF)
    }
    for i := 0; i < 16; i++ {
        packet = append(packet, macBytes...)
    }

    return packet, nil
}

// Wake broadcasts a magic packet for the given hardware address. The packet
// goes to the requested port and, for compatibility with picky firmware, to
// the alternate discard port as well.
func Wake(mac, broadcast string, port int) error {
    if broadcast == "" {
        broadcast = DefaultBroadcast
    }
    if port == 0 {
        port = DefaultPort
    }

    packet, err := BuildMagicPacket(mac)
    if err != nil {
        return err
    }

    conn, err := net.Dial("udp", net.JoinHostPort(broadcast, strconv.Itoa(port)))
    if err != nil {
        return fmt.Errorf("failed to open broadcast socket: %w", err)
    }
    defer conn.Close()

    if _, err := conn.Write(packet); err != nil {
        return fmt.Errorf("failed to send magic packet: %w", err)
    }

    if port != alternatePort {
        if alt, err := net.Dial("udp", net.JoinHostPort(broadcast, strconv.Itoa(alternatePort))); err == nil {
            alt.Write(packet)
            alt.Close()
        }
    }

    logrus.WithFields(logrus.Fields{
        "mac":       mac,
        "broadcast": broadcast,
        "port":      port,
    }).Info("Sent Wake-on-LAN packet")

    return nil
}

// WakeResult reports the outcome of one wake attempt in a bulk operation.
type WakeResult struct {
    MAC     string `json:"mac"`
    Success bool   `json:"success"`
    Error   string `json:"error,omitempty"`
}

// WakeAll sends magic packets to a list of devices and reports per-device
// outcomes.
func WakeAll(macs []string, broadcast string) []WakeResult {
    results := make([]WakeResult, 0, len(macs))
    for _, mac := range macs {
        result := WakeResult{MAC: mac, Success: true}
        if err := Wake(mac, broadcast, DefaultPort); err != nil {
            result.Success = false
            result.Error = err.Error()
        }
        results = append(results, result)
    }
    return results
}
