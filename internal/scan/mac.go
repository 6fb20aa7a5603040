// internal/scan/mac.go
package scan

import (
    "regexp"
    "strings"
)

var macHexPattern = regexp.MustCompile(`^[0-9A-Fa-f]{12}$`)

// NormalizeMAC canonicalizes a hardware address to AA:BB:CC:DD:EE:FF.
// Accepts colon, dash and bare-hex forms; returns "" when the input is not
// a valid 48-bit address.
func NormalizeMAC(mac string) string {
    cleaned := strings.Map(func(r rune) rune {
        switch {
        case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
            return r
        }
        return -1
    }, mac)

    if !macHexPattern.MatchString(cleaned) {
        return ""
    }

    cleaned = strings.ToUpper(cleaned)
    parts := make([]string, 6)
    for i := 0; i < 6; i++ {
        parts[i] = cleaned[i*2 : i*2+2]
    }
    return strings.Join(parts, ":")
}

// OUIPrefix returns the first three octets of a normalized MAC, the part
// registered to a hardware vendor.
func OUIPrefix(mac string) string {
    normalized := NormalizeMAC(mac)
    if normalized == "" {
        return ""
    }
    return normalized[:8]
}
