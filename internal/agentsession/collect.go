package agentsession

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	netstat "github.com/shirou/gopsutil/v3/net"
)

// rawInterfaceCounters is one interface's cumulative byte counters at a
// point in time, before the delta against the previous report is computed.
type rawInterfaceCounters struct {
	Name      string
	BytesSent uint64
	BytesRecv uint64
}

// Collector gathers the metrics an agent report carries. It is an
// interface so client.go's refresh-cadence logic can be tested without
// depending on the host's actual hardware.
type Collector interface {
	CPUMemory() (cpuPercent float64, memUsed, memTotal int64, err error)
	DisksAndInterfaces() (disks []DiskUsage, interfaces []rawInterfaceCounters, err error)
	HostInfo() (hostname, osName, osVersion string, err error)
}

// gopsutilCollector is the real Collector, backed by gopsutil.
type gopsutilCollector struct{}

// NewCollector returns the gopsutil-backed Collector used outside tests.
func NewCollector() Collector { return gopsutilCollector{} }

func (gopsutilCollector) CPUMemory() (float64, int64, int64, error) {
	pcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, 0, 0, err
	}
	var cpuPct float64
	if len(pcts) > 0 {
		cpuPct = pcts[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return cpuPct, 0, 0, err
	}
	return cpuPct, int64(vm.Used), int64(vm.Total), nil
}

func (gopsutilCollector) DisksAndInterfaces() ([]DiskUsage, []rawInterfaceCounters, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return nil, nil, err
	}
	disks := make([]DiskUsage, 0, len(partitions))
	for _, p := range partitions {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		disks = append(disks, DiskUsage{
			Mountpoint:  p.Mountpoint,
			UsedBytes:   usage.Used,
			TotalBytes:  usage.Total,
			PercentUsed: usage.UsedPercent,
		})
	}

	counters, err := netstat.IOCounters(true)
	if err != nil {
		return disks, nil, err
	}
	ifaces := make([]rawInterfaceCounters, 0, len(counters))
	for _, c := range counters {
		ifaces = append(ifaces, rawInterfaceCounters{Name: c.Name, BytesSent: c.BytesSent, BytesRecv: c.BytesRecv})
	}
	return disks, ifaces, nil
}

func (gopsutilCollector) HostInfo() (string, string, string, error) {
	info, err := host.Info()
	if err != nil {
		return "", "", "", err
	}
	return info.Hostname, info.Platform, info.PlatformVersion, nil
}
