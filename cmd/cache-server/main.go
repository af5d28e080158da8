package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leonardcser/magnetite/internal/app"
	"github.com/leonardcser/magnetite/internal/cache"
	"github.com/leonardcser/magnetite/internal/config"
	"github.com/leonardcser/magnetite/internal/logger"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := cfg.DaemonStoreConfig()
	if sc.Backend == cache.BackendRemote {
		return fmt.Errorf("daemon.backend cannot be %q", sc.Backend)
	}
	if sc.Backend == cache.BackendBolt {
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o755); err != nil {
			return err
		}
	}
	store, err := cache.Open(ctx, sc)
	if err != nil {
		return err
	}
	defer store.Close()

	l, err := listen(cfg.Cache.Address)
	if err != nil {
		return err
	}
	logger.Infof("Cache daemon serving %s store on %s", sc.Backend, cfg.Cache.Address)
	return cache.Serve(ctx, l, store)
}

// listen opens addr, replacing a stale unix socket left by a previous run.
func listen(addr string) (net.Listener, error) {
	network, address := cache.ParseAddress(addr)
	if network != "unix" {
		return net.Listen(network, address)
	}
	_ = os.MkdirAll(filepath.Dir(address), 0o755)
	_ = os.Remove(address)
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(address, 0o600)
	return l, nil
}
