// cmd/lanwatch-wake/main.go
package main

import (
    "flag"
    "fmt"
    "os"
    "strings"

    "lanwatch/internal/scan"
    "lanwatch/internal/wol"
)

func main() {
    broadcast := flag.String("broadcast", wol.DefaultBroadcast, "Broadcast address to send the packet to")
    port := flag.Int("port", wol.DefaultPort, "UDP port for the magic packet")
    flag.Usage = usage
    flag.Parse()

    macs := flag.Args()
    if len(macs) == 0 {
        usage()
        os.Exit(2)
    }

    exitCode := 0
    for _, raw := range macs {
        mac := scan.NormalizeMAC(raw)
        if mac == "" {
            fmt.Fprintf(os.Stderr, "%-20s invalid hardware address\n", raw)
            exitCode = 1
            continue
        }

        if err := wol.Wake(mac, *broadcast, *port); err != nil {
            fmt.Fprintf(os.Stderr, "%-20s %v\n", mac, err)
            exitCode = 1
            continue
        }
        fmt.Printf("%-20s magic packet sent\n", mac)
    }

    os.Exit(exitCode)
}

func usage() {
    prog := os.Args[0]
    if i := strings.LastIndexByte(prog, '/'); i >= 0 {
        prog = prog[i+1:]
    }
    fmt.Fprintf(os.Stderr, "Usage: %s [options] MAC [MAC...]\n\n", prog)
    fmt.Fprintf(os.Stderr, "Send Wake-on-LAN magic packets to one or more devices.\n\n")
    fmt.Fprintf(os.Stderr, "Options:\n")
    flag.PrintDefaults()
}
