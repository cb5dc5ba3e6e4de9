package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ytdlhost/ytdlhost/internal/app/orchestrator"
	"github.com/ytdlhost/ytdlhost/internal/domain"
	"github.com/ytdlhost/ytdlhost/internal/infra/engine"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	home := t.TempDir()
	t.Setenv("YTDLHOST_HOME", home)
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	return cfg
}

func TestNewWithEngine_Wiring(t *testing.T) {
	cfg := testConfig(t)
	d, err := NewWithEngine(cfg, engine.NewMockEngine("A - B"))
	if err != nil {
		t.Fatalf("NewWithEngine() error: %v", err)
	}
	defer d.Close()

	if d.DB == nil || d.Orchestrator == nil || d.Server == nil || d.Health == nil {
		t.Fatal("daemon components not wired")
	}
	if info, err := os.Stat(cfg.DownloadDir()); err != nil || !info.IsDir() {
		t.Error("download dir should be created")
	}
	if got := d.Ledger.Stats().Limits.MaxTasks; got != 8 {
		t.Errorf("ledger MaxTasks = %d, want 8", got)
	}

	statuses := d.Health.RunOnce(context.Background())
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %s unhealthy: %s", s.Name, s.Error)
		}
	}
}

func TestNewWithEngine_RunsTask(t *testing.T) {
	cfg := testConfig(t)
	d, err := NewWithEngine(cfg, engine.NewMockEngine("Nirvana - Lithium"))
	if err != nil {
		t.Fatalf("NewWithEngine() error: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	d.DB.SaveCredential(ctx, domain.Credential{
		Name: "alice", SecretHash: "h", Permissions: []domain.Permission{domain.PermGetAudio},
	})

	id, err := d.Orchestrator.Submit(ctx, orchestrator.SubmitRequest{
		Type: domain.TaskAudio, URL: "https://example.com/x", KeyName: "alice",
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	d.Orchestrator.Wait()

	task, err := d.Orchestrator.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if task.Status != domain.TaskCompleted {
		t.Fatalf("Status = %q (%s)", task.Status, task.Error)
	}
	if filepath.Dir(filepath.Dir(task.ResultFile)) != cfg.DownloadDir() {
		t.Errorf("ResultFile = %q, want under %s", task.ResultFile, cfg.DownloadDir())
	}
}

func TestNewWithEngine_LogFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "ytdlhost.log")

	d, err := NewWithEngine(cfg, engine.NewMockEngine("x"))
	if err != nil {
		t.Fatalf("NewWithEngine() error: %v", err)
	}
	d.Close()

	if _, err := os.Stat(cfg.Logging.File); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestServe_RecoversAndStops(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Host = "127.0.0.1"
	d, err := NewWithEngine(cfg, engine.NewMockEngine("x"))
	if err != nil {
		t.Fatalf("NewWithEngine() error: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	d.DB.SaveTask(ctx, domain.Task{
		ID: "stale", Type: domain.TaskAudio, URL: "https://x", KeyName: "k",
		Status: domain.TaskProcessing, CreatedAt: time.Now(),
	})

	serveCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(serveCtx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, _ := d.DB.LoadTask(ctx, "stale")
		if task != nil && task.Status == domain.TaskError {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	task, _ := d.DB.LoadTask(ctx, "stale")
	if task == nil || task.Status != domain.TaskError {
		t.Errorf("stale task = %+v, want error", task)
	}
}
