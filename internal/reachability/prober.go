// Package reachability runs unprivileged ICMP echo probes against
// individual IPs, used by the discovery loop to double-check a device the
// ARP table has aged out before it is declared offline. A busy host can sit
// idle on the wire long enough for its neighbor-table entry to expire while
// it is still very much alive; one ping settles that ambiguity cheaply.
package reachability

import (
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// probeTimeout bounds a single echo request so one unreachable IP can never
// stall the discovery tick that triggered it.
const probeTimeout = 750 * time.Millisecond

// CheckFunc is a package-level var so tests can stub out the network call,
// matching the indirection the teacher's own monitor package uses for the
// same reason.
var CheckFunc = func(ip string) error {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return fmt.Errorf("building pinger: %w", err)
	}
	pinger.Count = 1
	pinger.Timeout = probeTimeout
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return fmt.Errorf("running probe: %w", err)
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("no reply from %s", ip)
	}
	return nil
}

// Reachable reports whether ip answered a single echo request within
// probeTimeout. An empty ip (a device with no recorded current address) is
// always unreachable.
func Reachable(ip string) bool {
	if ip == "" {
		return false
	}
	return CheckFunc(ip) == nil
}
