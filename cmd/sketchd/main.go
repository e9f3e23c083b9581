// Command sketchd serves a sketchkv store over HTTP and, optionally, NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcalabro/sketchkv"
	"github.com/jcalabro/sketchkv/internal/archive"
	"github.com/jcalabro/sketchkv/internal/command"
	"github.com/jcalabro/sketchkv/internal/config"
	"github.com/jcalabro/sketchkv/internal/natsrpc"
	"github.com/jcalabro/sketchkv/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

// run serves until a signal arrives or the HTTP listener fails. Errors are
// returned rather than fatal so that deferred cleanup always runs.
func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("invalid server.shutdown_timeout %q: %w", cfg.Server.ShutdownTimeout, err)
	}

	store, err := sketchkv.NewWithOptions(sketchkv.Options{
		ChunkSize:     cfg.Store.ChunkSize,
		DumpCacheSize: cfg.Store.DumpCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	dispatcher := command.New(store)

	var arch server.Archiver
	if cfg.Archive.Enabled {
		a, err := archive.Open(context.Background(), cfg.Archive.Path, store)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer a.Close()
		log.Printf("Using archive database: %s", cfg.Archive.Path)
		arch = a
	}

	if cfg.NATS.Enabled {
		responder, err := natsrpc.NewResponder(cfg.NATS, dispatcher)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer responder.Close()
		if err := responder.Start(); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", cfg.NATS.Subject, err)
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.NewRouter(store, dispatcher, arch),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("sketchd listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("could not listen on %s: %w", srv.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return err
	}
	log.Println("sketchd shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("sketchd exited.")
	return nil
}
