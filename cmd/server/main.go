package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leonardcser/magnetite/internal/app"
	"github.com/leonardcser/magnetite/internal/config"
	"github.com/leonardcser/magnetite/internal/logger"
	"github.com/leonardcser/magnetite/internal/server"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file (default $MAGNETITE_CONFIG)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		logger.Errorf("%v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := app.InitLogger(cfg); err != nil {
		return err
	}
	defer logger.Close()

	logger.Infof("Starting magnetite feed server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, configFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("close cache: %v", err)
		}
	}()

	srv := server.New(a.Feeds, a.Store.Metrics)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr()); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Infof("Stopped")
	return nil
}
