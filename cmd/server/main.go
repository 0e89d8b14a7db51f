package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"actionflow/internal/app"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	// .env is optional; real env vars win.
	_ = godotenv.Load()
	if p := os.Getenv("ACTIONFLOW_CONFIG"); p != "" && *cfgPath == "config.yaml" {
		*cfgPath = p
	}

	if err := run(*cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case err = <-a.Errors():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Stop(shutdownCtx)
	return err
}
