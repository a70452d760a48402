package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reel/internal/config"
	"reel/internal/daemon"
	"reel/internal/ipc"
	"reel/internal/logging"
	"reel/internal/rotation"
	"reel/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	catalog    *testsupport.FakeCatalog
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	cfg := testsupport.NewConfig(t)

	configPath := filepath.Join(homeDir, ".config", "reel", "config.toml")
	writeTestConfig(t, configPath, cfg)

	cat := testsupport.NewFakeCatalog()
	for _, id := range []string{"night", "metropolis", "nosferatu"} {
		cat.Add(id, 1024)
	}
	store := testsupport.MustOpenStore(t, cfg, cat, 5400)
	engine, err := rotation.New(cfg, store, logging.NewNop(),
		rotation.WithProber(testsupport.FixedDuration(5400)),
		rotation.WithInitBackoff(time.Millisecond, 5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("rotation.New: %v", err)
	}
	d, err := daemon.New(cfg, store, engine, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop())
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		catalog:    cat,
		daemon:     d,
		server:     srv,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func (env *cliTestEnv) startDaemon(t *testing.T) {
	t.Helper()
	if err := env.daemon.Start(context.Background()); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return env.daemon.Status(context.Background()).Rotation.State == rotation.StatePlaying
	})
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
