package app

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/leonardcser/magnetite/internal/cache"
	"github.com/leonardcser/magnetite/internal/logger"
)

// DaemonBinary is the executable name of cmd/cache-server.
const DaemonBinary = "magnetite-cache"

const (
	daemonWait = 5 * time.Second
	daemonPoll = 200 * time.Millisecond
)

// openStore opens cfg and, for a remote store that cannot be reached, starts
// the cache daemon once and waits for it to accept connections.
func openStore(ctx context.Context, cfg cache.Config, autoStart bool, configPath string) (cache.CloseableStore, error) {
	s, err := cache.Open(ctx, cfg)
	if err == nil || cfg.Backend != cache.BackendRemote || !autoStart {
		return s, err
	}

	logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
	if startErr := startCacheDaemon(configPath); startErr != nil {
		logger.Errorf("Failed to start cache daemon: %v", startErr)
		return nil, err
	}
	logger.Infof("Cache daemon started")

	deadline := time.Now().Add(daemonWait)
	for time.Now().Before(deadline) {
		if s, err = cache.Open(ctx, cfg); err == nil {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(daemonPoll):
		}
	}
	return nil, err
}

// startCacheDaemon looks for the daemon next to this executable, then on
// PATH, then in the working directory.
func startCacheDaemon(configPath string) error {
	var candidates []string
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), DaemonBinary))
	}
	if path, err := exec.LookPath(DaemonBinary); err == nil {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, "."+string(filepath.Separator)+DaemonBinary)

	for _, bin := range candidates {
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin)
		cmd.Env = os.Environ()
		if configPath != "" {
			cmd.Env = append(cmd.Env, envConfigPath+"="+configPath)
		}
		if err := cmd.Start(); err != nil {
			return err
		}
		// Detached; reap it if it exits while we are still running.
		go func() { _ = cmd.Wait() }()
		return nil
	}
	return exec.ErrNotFound
}
