// Package main runs the companion server for desktop clients: REST for UI
// forms and a websocket that pushes sync events, on top of the scheduler.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/kimhsiao/taskin/backend/cmd/desktop/handlers"
	"github.com/kimhsiao/taskin/backend/internal/app"
	"github.com/kimhsiao/taskin/backend/internal/config"
	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default: ~/.taskin/config.yaml then ./.taskin/config.yaml)")
	addr := flag.String("addr", "", "listen address (default: desktop.addr)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logging.Init(os.Stderr, logging.LevelInfo)
		logging.Error("Failed to load config", err)
		os.Exit(1)
	}
	app.InitLogging(cfg, os.Stderr)
	if *addr == "" {
		*addr = cfg.Desktop.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, app.Options{})
	if err != nil {
		logging.ErrorWithCode("Failed to open app", apperrors.CodeOf(err), err)
		os.Exit(1)
	}
	defer a.Close()

	if err := handlers.Serve(ctx, a, *addr); err != nil {
		logging.Error("Companion server stopped", err)
		os.Exit(1)
	}
}
