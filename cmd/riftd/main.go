// Command riftd is the per-workstation Daemon: it watches tracked project
// directories, debounces and syncs their edits to the Coordinator over
// WebSocket, and serves a loopback IPC surface for the rift CLI (spec §4.2).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/riftlab/rift/internal/config"
	"github.com/riftlab/rift/internal/daemon"
	"github.com/riftlab/rift/internal/logging"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to riftd config file")
	flag.Parse()

	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}
	if errs := config.ValidateDaemonConfig(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "config error:", e)
		}
		os.Exit(1)
	}

	log := logging.New("riftd", os.Stderr, cfg.LogLevel)
	daemon.Version = version

	d := daemon.New(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Int("ipc_port", cfg.IPCPort).Str("coordinator_url", cfg.CoordinatorURL).Str("version", version).Msg("riftd starting")
	if err := d.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("riftd exited")
	}
}
