package discovery

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
)

// neighbor is one (ip, mac) pair read from the local ARP/neighbor table.
type neighbor struct {
	IP  string
	MAC string
}

// snapshotNeighborsFn is the scan source the discovery loop calls each
// tick. It is a package variable, not a direct call to snapshotNeighbors,
// so tests can substitute a fixed neighbor set without touching the real
// ARP table.
var snapshotNeighborsFn = snapshotNeighbors

// snapshotNeighbors reads the platform's ARP cache. It tries /proc/net/arp
// first and falls through to a shell-invocation parser if that file cannot
// be read, so the discovery loop still has something to work with on a
// kernel that doesn't expose /proc/net/arp the way Linux does.
func snapshotNeighbors() ([]neighbor, error) {
	if n, err := snapshotProcNetARP(); err == nil {
		return n, nil
	}
	return snapshotShellNeighbors()
}

// snapshotProcNetARP parses the Linux /proc/net/arp table:
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.1      0x1         0x2         00:11:22:33:44:55     *        eth0
func snapshotProcNetARP() ([]neighbor, error) {
	f, err := os.Open("/proc/net/arp")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []neighbor
	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		out = append(out, neighbor{IP: fields[0], MAC: fields[3]})
	}
	return out, scanner.Err()
}

// snapshotShellNeighbors falls back to invoking "ip neigh" and, if that
// binary isn't present, "arp -an". Both commands print one neighbor per
// line; the IP and MAC are picked out by position and keyword (the first
// field and the one after "lladdr" for ip neigh, the parenthesised address
// and the field after "at" for arp -an).
func snapshotShellNeighbors() ([]neighbor, error) {
	if out, err := exec.Command("ip", "neigh").Output(); err == nil {
		return parseIPNeigh(string(out)), nil
	}
	out, err := exec.Command("arp", "-an").Output()
	if err != nil {
		return nil, err
	}
	return parseArpAn(string(out)), nil
}

// parseIPNeigh parses lines like:
//
//	192.168.1.42 dev eth0 lladdr aa:bb:cc:dd:ee:ff REACHABLE
func parseIPNeigh(text string) []neighbor {
	var out []neighbor
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		ip := fields[0]
		for i, f := range fields {
			if f == "lladdr" && i+1 < len(fields) {
				out = append(out, neighbor{IP: ip, MAC: fields[i+1]})
				break
			}
		}
	}
	return out
}

// parseArpAn parses lines like:
//
//	? (192.168.1.42) at aa:bb:cc:dd:ee:ff [ether] on eth0
func parseArpAn(text string) []neighbor {
	var out []neighbor
	for _, line := range strings.Split(text, "\n") {
		start := strings.Index(line, "(")
		end := strings.Index(line, ")")
		if start < 0 || end < 0 || end <= start {
			continue
		}
		ip := line[start+1 : end]

		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "at" && i+1 < len(fields) {
				out = append(out, neighbor{IP: ip, MAC: fields[i+1]})
				break
			}
		}
	}
	return out
}
