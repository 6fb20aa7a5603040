// internal/scan/devicetype.go - device type inference from open-port signatures
package scan

import (
    "lanwatch/internal/database"
)

// typeSignature matches when every one of its ports is open on the device.
type typeSignature struct {
    label string
    ports []int
}

// deviceTypeSignatures is evaluated top-down and the first match wins, so
// more specific signatures must come before the generic ones they overlap
// with. Extend the table, not the control flow.
var deviceTypeSignatures = []typeSignature{
    {"nas", []int{22, 80, 445, 548}},
    {"router", []int{53, 80, 443}},
    {"printer", []int{80, 631, 9100}},
    {"camera", []int{80, 554}},
    {"media_server", []int{32400}},
    {"media_server", []int{8096}},
    {"windows_pc", []int{135, 445, 3389}},
    {"windows_pc", []int{445, 3389}},
    {"database", []int{3306}},
    {"database", []int{5432}},
    {"database", []int{27017}},
    {"iot_device", []int{1883}},
    {"iot_device", []int{8883}},
    {"web_server", []int{80, 443}},
    {"ssh_server", []int{22}},
    {"web_server", []int{80}},
    {"web_server", []int{443}},
}

// InferDeviceType guesses a device-type label from the set of open ports.
// Returns "unknown" when no signature matches.
func InferDeviceType(open []database.OpenPort) string {
    if len(open) == 0 {
        return "unknown"
    }

    openSet := make(map[int]bool, len(open))
    for _, p := range open {
        if p.State == PortOpen {
            openSet[p.Port] = true
        }
    }

    for _, sig := range deviceTypeSignatures {
        matched := true
        for _, port := range sig.ports {
            if !openSet[port] {
                matched = false
                break
            }
        }
        if matched {
            return sig.label
        }
    }

    return "unknown"
}
