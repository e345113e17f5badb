// Command agent runs the panoptikon agent: it collects local host metrics
// (CPU, memory, disk, interface counters) and reports them to a panoptikon
// server over the Agent Session Hub websocket protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"panoptikon.dev/panoptikon/internal/agentsession"
	"panoptikon.dev/panoptikon/internal/config"
	"panoptikon.dev/panoptikon/internal/logging"
)

func main() {
	configFlag := flag.String("config", "", "Agent config file path")
	once := flag.Bool("once", false, "Collect and send a single report, then exit")
	flag.Parse()

	if err := run(*configFlag, *once); err != nil {
		logging.Error("agent exiting", "error", err)
		os.Exit(1)
	}
}

func run(configFlag string, once bool) error {
	cfg, err := config.LoadAgent(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	statePath, err := counterStatePath()
	if err != nil {
		return fmt.Errorf("resolving counter state path: %w", err)
	}

	client := agentsession.NewClient(agentsession.ClientConfig{
		ServerURL:          cfg.ServerURL,
		AgentID:            cfg.AgentID,
		APIKey:             cfg.APIKey,
		ReportIntervalSecs: cfg.ReportIntervalSecs,
		CounterStatePath:   statePath,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if once {
		return client.RunOnce(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// counterStatePath returns the path of the interface counter state file,
// panoptikon-agent/net-counters.json under the per-user configuration
// directory reported by os.UserConfigDir. On Linux that is
// $XDG_CONFIG_HOME (or ~/.config); the XDG data directory is not used.
func counterStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "panoptikon-agent", "net-counters.json"), nil
}
