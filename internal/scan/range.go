// internal/scan/range.go
package scan

import (
    "encoding/binary"
    "fmt"
    "net"
)

// InvalidRangeError indicates a range specification that cannot be expanded
// into a target address list.
type InvalidRangeError struct {
    Spec   string
    Reason string
}

func (e *InvalidRangeError) Error() string {
    return fmt.Sprintf("invalid scan range %q: %s", e.Spec, e.Reason)
}

// ExpandRange turns an IPv4 CIDR specification into the ordered list of
// addresses to probe. Network and broadcast addresses are excluded for
// prefixes narrower than /31; /31 and /32 blocks have no such addresses and
// are returned whole. Addresses come back in ascending numeric order so
// repeated sweeps probe in a stable order.
func ExpandRange(spec string) ([]string, error) {
    _, ipnet, err := net.ParseCIDR(spec)
    if err != nil {
        return nil, &InvalidRangeError{Spec: spec, Reason: "not a parseable CIDR"}
    }

    base := ipnet.IP.To4()
    if base == nil {
        return nil, &InvalidRangeError{Spec: spec, Reason: "only IPv4 ranges are supported"}
    }

    ones, bits := ipnet.Mask.Size()
    if bits != 32 {
        return nil, &InvalidRangeError{Spec: spec, Reason: "only IPv4 ranges are supported"}
    }

    network := ipToUint32(base)
    broadcast := network | (1<<uint(32-ones) - 1)

    first, last := network, broadcast
    if ones < 31 {
        first = network + 1
        last = broadcast - 1
    }

    if first > last {
        return nil, &InvalidRangeError{Spec: spec, Reason: "range contains no usable addresses"}
    }

    addrs := make([]string, 0, last-first+1)
    for u := first; ; u++ {
        addrs = append(addrs, uint32ToIP(u).String())
        if u == last {
            break
        }
    }

    return addrs, nil
}

func ipToUint32(ip net.IP) uint32 {
    return binary.BigEndian.Uint32(ip.To4())
}

func uint32ToIP(u uint32) net.IP {
    ip := make(net.IP, 4)
    binary.BigEndian.PutUint32(ip, u)
    return ip
}
