// Package mdns passively observes multicast DNS traffic on the LAN and
// feeds whatever service/TXT-record signals it hears into the enrichment
// engine. Unlike a router, Panoptikon has no other interface to reflect
// announcements onto, so this is a straight listen-and-attribute loop: no
// cross-interface forwarding, no firmware-upgrade socket handoff.
package mdns

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"panoptikon.dev/panoptikon/internal/config"
	"panoptikon.dev/panoptikon/internal/enrichment"
	"panoptikon.dev/panoptikon/internal/logging"
	"panoptikon.dev/panoptikon/internal/services"
	"panoptikon.dev/panoptikon/internal/store"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

const (
	// MDNSPort is the multicast DNS port.
	MDNSPort = 5353
	// MaxPacketSize is a safe upper bound well above the standard Ethernet MTU.
	MaxPacketSize = 4096
)

var mdnsIPv4Addr = net.ParseIP("224.0.0.251")

// Service is the passive mDNS listener.
type Service struct {
	mu      sync.Mutex
	store   *store.Store
	logger  *logging.Logger
	cfg     config.ScannerConfig
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// ifaces is resolved fresh on every Start, keyed by interface index so
	// the read loop can drop packets recv'd on an interface that was not
	// requested (e.g. a newly created VLAN iface sharing the machine).
	ifaces map[int]*net.Interface
}

// NewService constructs a passive mDNS listener bound to st, configured by
// cfg (the scanner section of the server configuration: mdns_enabled,
// mdns_interfaces).
func NewService(st *store.Store, cfg config.ScannerConfig) *Service {
	return &Service{
		store:  st,
		cfg:    cfg,
		logger: logging.Default().WithComponent("mdns"),
		ifaces: make(map[int]*net.Interface),
	}
}

func (s *Service) Name() string { return "mdns" }

func (s *Service) Status() services.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return services.ServiceStatus{Name: s.Name(), Running: s.running}
}

func (s *Service) Reload(cfg config.Server) (bool, error) {
	s.mu.Lock()
	wasRunning := s.running
	s.cfg = cfg.Scanner
	s.mu.Unlock()

	if !wasRunning {
		return false, nil
	}
	if err := s.Stop(context.Background()); err != nil {
		return false, err
	}
	if err := s.Start(context.Background()); err != nil {
		return false, err
	}
	return true, nil
}

// Start joins the mDNS multicast group on every configured interface and
// begins attributing overheard announcements to devices. A missing or
// non-multicast interface is logged and skipped rather than failing the
// whole service — a single misconfigured VLAN shouldn't take down
// enrichment from the rest of the LAN.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if !s.cfg.MDNSEnabled || len(s.cfg.MDNSInterfaces) == 0 {
		s.mu.Unlock()
		return nil
	}

	s.ifaces = make(map[int]*net.Interface)
	for _, name := range s.cfg.MDNSInterfaces {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			s.logger.Warn("interface not found", "iface", name, "error", err)
			continue
		}
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			s.logger.Warn("interface is not multicast-capable or not up", "iface", name)
			continue
		}
		s.ifaces[iface.Index] = iface
	}
	if len(s.ifaces) == 0 {
		s.logger.Warn("no usable mdns interfaces, not starting")
		s.mu.Unlock()
		return nil
	}

	var lc net.ListenConfig
	lc.Control = func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			if opErr != nil {
				return
			}
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return err
		}
		return opErr
	}

	runCtx, cancel := context.WithCancel(ctx)
	conn, err := lc.ListenPacket(runCtx, "udp4", ":5353")
	if err != nil {
		cancel()
		s.mu.Unlock()
		return err
	}
	pc := ipv4.NewPacketConn(conn)
	pc.SetMulticastLoopback(false)
	for _, iface := range s.ifaces {
		if err := pc.JoinGroup(iface, &net.UDPAddr{IP: mdnsIPv4Addr}); err != nil {
			s.logger.Warn("failed to join mdns group", "iface", iface.Name, "error", err)
			continue
		}
		if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
			s.logger.Warn("failed to enable interface control messages", "iface", iface.Name, "error", err)
		}
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.run(runCtx, pc)
	return nil
}

func (s *Service) run(ctx context.Context, pc *ipv4.PacketConn) {
	defer close(s.done)
	defer pc.Close()

	buf := make([]byte, MaxPacketSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			pc.SetReadDeadline(time.Now().Add(time.Second))
			n, cm, src, err := pc.ReadFrom(buf)
			if err != nil {
				if errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "closed network connection") {
					return
				}
				continue
			}
			if cm == nil {
				continue
			}
			s.mu.Lock()
			_, known := s.ifaces[cm.IfIndex]
			s.mu.Unlock()
			if !known {
				continue
			}

			var srcIP net.IP
			if udpAddr, ok := src.(*net.UDPAddr); ok {
				srcIP = udpAddr.IP
			}
			s.handlePacket(buf[:n], srcIP)
		}
	}
}

// handlePacket parses one mDNS packet and, if it carries any useful
// signal, attributes it to a device by source IP and runs enrichment.
func (s *Service) handlePacket(data []byte, srcIP net.IP) {
	if srcIP == nil {
		return
	}
	parsed, err := ParseMDNSPacket(data, srcIP, "")
	if err != nil {
		return
	}
	if parsed.Hostname == "" && len(parsed.Services) == 0 && len(parsed.TXTRecords) == 0 {
		return
	}

	deviceID, ok, err := s.store.DeviceIDForIP(parsed.SrcIP)
	if err != nil {
		s.logger.Error("looking up device for mdns packet", "src", parsed.SrcIP, "error", err)
		return
	}
	if !ok {
		return
	}

	if err := enrichment.Persist(s.store, deviceID, 0, parsed.Services, parsed.TXTRecords, "", ""); err != nil {
		s.logger.Error("persisting mdns enrichment", "device_id", deviceID, "error", err)
		return
	}

	s.persistProfile(deviceID, parsed)
}

// persistProfile runs the richer per-protocol TXT-record classifier and
// feeds its model/friendly-name guess into the Store as supplementary
// hints: a device_model fill-in-if-empty and a notes alias suggestion,
// never overriding whatever the precedence-ordered enrichment engine or a
// user already set.
func (s *Service) persistProfile(deviceID string, parsed *ParsedMDNS) {
	profile := AnalyzeDevice(parsed)
	if profile == nil || profile.Type == DeviceTypeUnknown {
		return
	}
	s.logger.Info("classified mdns device",
		"device_id", deviceID, "type", profile.Type,
		"friendly_name", profile.FriendlyName, "model", profile.Model)

	if profile.Model != "" && profile.Model != "Unknown Device" {
		if err := s.store.SetDeviceModelIfEmpty(deviceID, profile.Model); err != nil {
			s.logger.Error("persisting mdns device model", "device_id", deviceID, "error", err)
		}
	}
	if profile.FriendlyName != "" {
		if err := s.store.SetDeviceAliasIfEmpty(deviceID, profile.FriendlyName); err != nil {
			s.logger.Error("persisting mdns alias suggestion", "device_id", deviceID, "error", err)
		}
	}
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}
