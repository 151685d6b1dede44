// Command coreinspect opens a storage engine and serves its admin/inspection
// HTTP surface, for interactive poking at the buffer pool, log manager, and
// lock manager while developing against this core. Grounded on
// cmd/server/main.go's flag-parsing-then-blocking-Start shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mnohosten/laura-core/pkg/adminserver"
	"github.com/mnohosten/laura-core/pkg/events"
	"github.com/mnohosten/laura-core/pkg/storage"
	"github.com/mnohosten/laura-core/pkg/txn"
)

func main() {
	host := flag.String("host", "localhost", "Admin server host address")
	port := flag.Int("port", 8080, "Admin server port")
	dataDir := flag.String("data-dir", "./data", "Data directory for database storage (persistent disk storage)")
	bufferSize := flag.Int("buffer-size", 1000, "Buffer pool size in pages (1 page = 4KB, default 1000 = ~4MB)")
	corsOrigin := flag.String("cors-origin", "*", "CORS allowed origin")
	strict2PL := flag.Bool("strict-2pl", false, "Enforce strict two-phase locking (locks held until commit/abort)")
	flag.Parse()

	bus := events.NewBus()

	storageCfg := storage.DefaultConfig(*dataDir)
	storageCfg.BufferPoolSize = *bufferSize
	storageCfg.Events = bus

	engine, err := storage.Open(storageCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coreinspect: failed to open storage engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	lockManager := txn.NewLockManager(*strict2PL, bus)

	adminCfg := adminserver.DefaultConfig()
	adminCfg.Host = *host
	adminCfg.Port = *port
	adminCfg.AllowedOrigins = []string{*corsOrigin}

	srv, err := adminserver.New(adminCfg, engine, lockManager)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coreinspect: failed to create admin server: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("coreinspect: serving admin console on http://%s:%d (data dir %s)\n", *host, *port, *dataDir)
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "coreinspect: server error: %v\n", err)
		os.Exit(1)
	}
}
