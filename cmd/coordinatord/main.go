// Command coordinatord runs the Rift Coordinator: the authoritative
// server accepting Daemon WebSocket connections and serving the
// project/rift/checkpoint HTTP API (spec §4.1).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riftlab/rift/internal/blob"
	"github.com/riftlab/rift/internal/config"
	"github.com/riftlab/rift/internal/coordinator"
	"github.com/riftlab/rift/internal/logging"
	"github.com/riftlab/rift/internal/store"
	"github.com/riftlab/rift/internal/store/mem"
	"github.com/riftlab/rift/internal/store/pg"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to coordinatord config file")
	flag.Parse()

	cfg, err := config.LoadCoordinatorConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}
	if errs := config.ValidateCoordinatorConfig(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "config error:", e)
		}
		os.Exit(1)
	}

	log := logging.New("coordinatord", os.Stderr, cfg.LogLevel)

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("opening store")
	}

	blobDir := cfg.BlobDir
	if blobDir == "" {
		blobDir = "./rift-blobs"
	}
	blobs, err := blob.NewFSStore(blobDir)
	if err != nil {
		log.Fatal().Err(err).Msg("opening blob store")
	}

	auth := &coordinator.StaticChecker{Store: st}
	srv := coordinator.New(cfg, st, blobs, auth, log)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Str("version", version).Msg("coordinatord listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("coordinatord exited")
	}
}

func openStore(cfg *config.CoordinatorConfig) (store.Store, error) {
	if cfg.PostgresDSN == "" {
		return mem.New(), nil
	}
	return pg.Open(context.Background(), cfg.PostgresDSN)
}
