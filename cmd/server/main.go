package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/tempest/internal/server"
)

const shutdownTimeout = 15 * time.Second

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [options] [host] [port]\n\n", os.Args[0])
	fmt.Fprintln(out, "Arguments:")
	fmt.Fprintf(out, "  host: Interface to bind to (default: %s)\n", server.DefaultHost)
	fmt.Fprintln(out, "        Use '0.0.0.0' to accept connections from any IP")
	fmt.Fprintf(out, "  port: Port to listen on (default: %d)\n\n", server.DefaultPort)
	fmt.Fprintln(out, "Options:")
	flag.PrintDefaults()
}

func main() {
	// A missing .env file is fine; the environment and flags still apply.
	_ = godotenv.Load()

	httpAddr := flag.String("http", os.Getenv("TEMPEST_HTTP_ADDR"), "Admin API and WebSocket gateway listen address (disabled when empty)")
	debug := flag.Bool("debug", os.Getenv("TEMPEST_DEBUG") != "", "Enable debug logging")
	flag.Usage = usage
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := server.NewConfigFromEnv()
	cfg.HTTPAddr = *httpAddr
	if err := cfg.ApplyArgs(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	if cfg.Host == "0.0.0.0" {
		logger.Warn("server will accept connections from any IP address; make sure your firewall is configured")
	}

	srv := server.New(cfg, server.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan error, 1)
	go func() {
		err := srv.Run(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
		stopped <- err
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"tempest": func(shutCtx context.Context) error {
				logger.Info("shutting down")
				cancel()
				select {
				case err := <-stopped:
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				case <-shutCtx.Done():
					return shutCtx.Err()
				}
			},
		},
	)

	exitCode := <-wait
	logger.Info("server exited", "code", exitCode)
	os.Exit(exitCode)
}
