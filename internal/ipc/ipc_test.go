package ipc_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"reel/internal/daemon"
	"reel/internal/ipc"
	"reel/internal/logging"
	"reel/internal/rotation"
	"reel/internal/testsupport"
)

func startServer(t *testing.T) (*daemon.Daemon, *ipc.Client) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cat := testsupport.NewFakeCatalog()
	for _, id := range []string{"a", "b", "c"} {
		cat.Add(id, 1024)
	}
	store := testsupport.MustOpenStore(t, cfg, cat, 600)
	engine, err := rotation.New(cfg, store, logging.NewNop(),
		rotation.WithProber(testsupport.FixedDuration(600)),
		rotation.WithInitBackoff(time.Millisecond, 5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("rotation.New: %v", err)
	}
	d, err := daemon.New(cfg, store, engine, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return d, client
}

func TestIPCServerClient(t *testing.T) {
	d, client := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped before Start")
	}
	if status.Rotation.State != rotation.StateIdle {
		t.Fatalf("expected idle rotation, got %s", status.Rotation.State)
	}

	swapResp, err := client.Swap()
	if err != nil {
		t.Fatalf("Swap RPC failed: %v", err)
	}
	if swapResp.Accepted || !strings.Contains(swapResp.Message, "not ready") {
		t.Fatalf("expected swap to be refused while idle, got %+v", swapResp)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err = client.Status()
		if err != nil {
			t.Fatalf("Status RPC failed: %v", err)
		}
		if status.Rotation.State == rotation.StatePlaying {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for playback; status %+v", status.Rotation)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	playing := status.Rotation.NowPlaying.Identifier

	list, err := client.StoreList()
	if err != nil {
		t.Fatalf("StoreList RPC failed: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Identifier != playing {
		t.Fatalf("unexpected held list %+v", list.Items)
	}
	if list.Items[0].DownloadedAt.IsZero() || list.Items[0].ByteSize != 1024 {
		t.Fatalf("held item lost fields over the wire: %+v", list.Items[0])
	}

	stats, err := client.StoreStats()
	if err != nil {
		t.Fatalf("StoreStats RPC failed: %v", err)
	}
	if stats.Stats.HeldBytes != 1024 || stats.Stats.Limits.MaxStorageBudget != 10*1024 {
		t.Fatalf("unexpected stats %+v", stats.Stats)
	}

	if _, err := client.Evict(playing); err == nil {
		t.Fatal("expected evicting the playing item to fail")
	}

	reclaim, err := client.Reclaim()
	if err != nil {
		t.Fatalf("Reclaim RPC failed: %v", err)
	}
	if len(reclaim.Evicted) != 0 {
		t.Fatalf("expected nothing to reclaim within budget, got %v", reclaim.Evicted)
	}

	reconcile, err := client.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile RPC failed: %v", err)
	}
	if len(reconcile.Dropped) != 0 {
		t.Fatalf("unexpected dropped rows %v", reconcile.Dropped)
	}

	resume, err := client.Resume()
	if err != nil {
		t.Fatalf("Resume RPC failed: %v", err)
	}
	if !resume.Resumed {
		t.Fatalf("expected resume to succeed, got %+v", resume)
	}

	swapResp, err = client.Swap()
	if err != nil {
		t.Fatalf("Swap RPC failed: %v", err)
	}
	if !swapResp.Accepted {
		t.Fatalf("expected swap to be accepted while playing, got %+v", swapResp)
	}
}
