// Command server runs the panoptikon daemon: it opens the Store, starts
// every background service (discovery, NetFlow, mDNS, DHCP sniffing,
// retention) and the Agent Session Hub's websocket endpoint, and serves
// until it receives a termination signal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"panoptikon.dev/panoptikon/internal/agentsession"
	"panoptikon.dev/panoptikon/internal/alerts"
	"panoptikon.dev/panoptikon/internal/auth"
	"panoptikon.dev/panoptikon/internal/clock"
	"panoptikon.dev/panoptikon/internal/config"
	"panoptikon.dev/panoptikon/internal/discovery"
	"panoptikon.dev/panoptikon/internal/enrichment"
	"panoptikon.dev/panoptikon/internal/logging"
	"panoptikon.dev/panoptikon/internal/netflow"
	"panoptikon.dev/panoptikon/internal/retention"
	"panoptikon.dev/panoptikon/internal/services"
	"panoptikon.dev/panoptikon/internal/services/dhcp"
	"panoptikon.dev/panoptikon/internal/services/mdns"
	"panoptikon.dev/panoptikon/internal/store"
	"panoptikon.dev/panoptikon/internal/uibus"
)

const agentWebsocketPath = "/api/v1/agent/ws"

func main() {
	listenFlag := flag.String("listen", "", "Listen address (overrides config, default 0.0.0.0:8080)")
	dbFlag := flag.String("db", "", "Database path (overrides config)")
	configFlag := flag.String("config", "", "Server config file path")
	flag.Parse()

	if err := run(*listenFlag, *dbFlag, *configFlag); err != nil {
		logging.Error("server exiting", "error", err)
		os.Exit(1)
	}
}

func run(listenFlag, dbFlag, configFlag string) error {
	cfg := config.DefaultServer()
	if configFlag != "" {
		loaded, err := config.LoadServer(configFlag)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if listenFlag != "" {
		cfg.Listen = listenFlag
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}

	logger := logging.Default().WithComponent("server")

	st, err := store.Open(store.Options{Path: cfg.DBPath})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	bus := uibus.New(&clock.RealClock{})

	authStore := auth.NewStore(st, cfg.Auth.SessionExpirySeconds)
	if !authStore.HasUsers() {
		logger.Warn("no admin credential configured yet; the UI login surface (external to this repository) must call auth.Store.CreateUser before anyone can sign in")
	}

	discoverySvc := discovery.NewService(st, bus, cfg.Scanner)
	netflowSvc := netflow.NewService(st, cfg.Scanner)
	mdnsSvc := mdns.NewService(st, cfg.Scanner)
	retentionSvc := retention.NewService(st, cfg.Retention)
	alertsEngine := alerts.NewEngine(st, bus)
	hub := agentsession.NewHub(st, bus)

	netflowSvc.SetSampleHook(alertsEngine.CheckTrafficSample)

	dhcpSniffer := dhcp.NewSniffer(dhcp.SnifferConfig{
		Enabled:    len(cfg.Scanner.DHCPSniffInterfaces) > 0,
		Interfaces: cfg.Scanner.DHCPSniffInterfaces,
	})
	dhcpSniffer.SetEventCallback(func(ev dhcp.SnifferEvent) {
		handleDHCPSighting(st, logger, ev)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcs := []services.Service{discoverySvc, netflowSvc, mdnsSvc, retentionSvc}
	for _, svc := range svcs {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("starting %s: %w", svc.Name(), err)
		}
	}
	go alertsEngine.Run(ctx)
	if err := dhcpSniffer.Start(ctx); err != nil {
		logger.Error("starting dhcp sniffer", "error", err)
	}

	mux := http.NewServeMux()
	mux.Handle(agentWebsocketPath, hub)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-serveErr:
			shutdown(httpServer, dhcpSniffer, svcs, cancel, logger)
			return err

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, reloading configuration")
				reloaded, err := config.LoadServer(configFlag)
				if err != nil {
					logger.Error("reloading configuration", "error", err)
					continue
				}
				for _, svc := range svcs {
					if restarted, err := svc.Reload(reloaded); err != nil {
						logger.Error("reloading service", "service", svc.Name(), "error", err)
					} else if restarted {
						logger.Info("service restarted on reload", "service", svc.Name())
					}
				}
			default:
				logger.Info("received shutdown signal", "signal", sig)
				shutdown(httpServer, dhcpSniffer, svcs, cancel, logger)
				return nil
			}
		}
	}
}

func shutdown(httpServer *http.Server, dhcpSniffer *dhcp.Sniffer, svcs []services.Service, cancel context.CancelFunc, logger *logging.Logger) {
	ctx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutting down http server", "error", err)
	}
	dhcpSniffer.Stop()
	for _, svc := range svcs {
		if err := svc.Stop(ctx); err != nil {
			logger.Error("stopping service", "service", svc.Name(), "error", err)
		}
	}
	cancel()
}

// handleDHCPSighting attributes a DHCP broadcast to a device by MAC and
// feeds its vendor class and hostname into the enrichment engine. Unlike
// the discovery loop and the mDNS listener, the sniffer only ever observes
// a MAC — the device may not have an IP (or a Store row) yet, in which
// case the observation is silently dropped.
func handleDHCPSighting(st *store.Store, logger *logging.Logger, ev dhcp.SnifferEvent) {
	deviceID, ok, err := st.DeviceIDForMAC(ev.ClientMAC)
	if err != nil {
		logger.Error("looking up device for dhcp sighting", "mac", ev.ClientMAC, "error", err)
		return
	}
	if !ok {
		return
	}
	if err := st.SetDeviceHostnameIfEmpty(deviceID, ev.Hostname); err != nil {
		logger.Error("recording dhcp hostname", "device_id", deviceID, "error", err)
	}
	fingerprintOS := dhcp.InferDeviceOS(ev.Fingerprint)
	if err := enrichment.Persist(st, deviceID, 0, nil, nil, ev.VendorClass, fingerprintOS); err != nil {
		logger.Error("persisting dhcp enrichment", "device_id", deviceID, "error", err)
	}
}
