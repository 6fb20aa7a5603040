package scan

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "lanwatch/internal/database"
)

func openPorts(ports ...int) []database.OpenPort {
    result := make([]database.OpenPort, len(ports))
    for i, p := range ports {
        result[i] = database.OpenPort{Port: p, Protocol: "tcp", State: PortOpen}
    }
    return result
}

func TestInferDeviceType(t *testing.T) {
    tests := []struct {
        name  string
        ports []int
        want  string
    }{
        {"no ports", nil, "unknown"},
        {"bare ssh", []int{22}, "ssh_server"},
        {"web only", []int{80}, "web_server"},
        {"web pair", []int{80, 443}, "web_server"},
        {"router beats web", []int{53, 80, 443}, "router"},
        {"nas beats ssh", []int{22, 80, 445, 548}, "nas"},
        {"printer", []int{80, 631, 9100}, "printer"},
        {"camera", []int{80, 554}, "camera"},
        {"plex", []int{32400}, "media_server"},
        {"jellyfin", []int{8096}, "media_server"},
        {"windows", []int{445, 3389}, "windows_pc"},
        {"mysql", []int{3306}, "database"},
        {"mqtt", []int{1883}, "iot_device"},
        {"unmatched", []int{6000}, "unknown"},
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            assert.Equal(t, tt.want, InferDeviceType(openPorts(tt.ports...)))
        })
    }
}

func TestInferDeviceTypeIgnoresNonOpenStates(t *testing.T) {
    ports := []database.OpenPort{
        {Port: 22, Protocol: "tcp", State: PortFiltered},
    }
    assert.Equal(t, "unknown", InferDeviceType(ports))
}
