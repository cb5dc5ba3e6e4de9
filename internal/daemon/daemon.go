package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ytdlhost/ytdlhost/internal/api"
	"github.com/ytdlhost/ytdlhost/internal/app/orchestrator"
	"github.com/ytdlhost/ytdlhost/internal/domain"
	"github.com/ytdlhost/ytdlhost/internal/health"
	"github.com/ytdlhost/ytdlhost/internal/infra/engine"
	"github.com/ytdlhost/ytdlhost/internal/infra/quota"
	"github.com/ytdlhost/ytdlhost/internal/infra/sqlite"
	"github.com/ytdlhost/ytdlhost/internal/infra/tagger"
	"github.com/ytdlhost/ytdlhost/internal/infra/taskdir"
)

// Daemon is the core ytdlhost runtime. It wires together all services.
type Daemon struct {
	Config       Config
	DB           *sqlite.DB
	Ledger       *quota.Ledger
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server
	Health       *health.Checker

	logFile *os.File
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon backed by the yt-dlp binary.
func NewWithConfig(cfg Config) (*Daemon, error) {
	binary, err := engine.FindBinary(cfg.Engine.Binary, ytdlhostHome())
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
		fmt.Fprintf(os.Stderr, "  Downloads will fail until yt-dlp is installed.\n")
		binary = cfg.Engine.Binary
	}
	return NewWithEngine(cfg, engine.NewYTDLP(binary))
}

// NewWithEngine creates a Daemon around an arbitrary download engine.
func NewWithEngine(cfg Config, eng domain.DownloadEngine) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logFile, err := setupLogging(cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	// Open SQLite
	db, err := sqlite.Open(cfg.DataDir())
	if err != nil {
		closeLog(logFile)
		return nil, fmt.Errorf("open database: %w", err)
	}

	downloadDir := cfg.DownloadDir()
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		db.Close()
		closeLog(logFile)
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	ledger := quota.NewLedger(cfg.QuotaLimits())
	orch := orchestrator.New(orchestrator.Deps{
		Store:       db,
		Credentials: db,
		Ledger:      ledger,
		Executor:    engine.NewExecutor(eng, cfg.ExecutorConfig()),
		Tagger:      tagger.New(),
		Layout:      taskdir.New(downloadDir),
	}, cfg.OrchestratorConfig())

	checker := health.NewChecker(db, downloadDir, func() (string, error) {
		if _, ok := eng.(*engine.YTDLP); !ok {
			return "in-process", nil
		}
		return engine.FindBinary(cfg.Engine.Binary, ytdlhostHome())
	})

	srv := api.NewServer(orch, db)
	srv.SetHealth(checker)
	srv.SetCORSOrigins(cfg.Server.CORSOrigins)

	// Enable Prometheus /metrics if configured
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:       cfg,
		DB:           db,
		Ledger:       ledger,
		Orchestrator: orch,
		Server:       srv,
		Health:       checker,
		logFile:      logFile,
	}, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Tasks left non-terminal by a previous process can never finish.
	if _, err := d.Orchestrator.Recover(ctx); err != nil {
		log.Printf("[daemon] recover tasks: %v", err)
	}

	go d.Health.Run(ctx)
	go d.Orchestrator.RunCleanup(ctx)

	addr := d.Config.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // large artifacts
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		if err := d.Orchestrator.Shutdown(shutdownCtx); err != nil {
			log.Printf("[daemon] workers did not stop: %v", err)
		}
		cancel()
	}()

	fmt.Printf("ytdlhost serving on http://%s\n", addr)
	fmt.Printf("  Downloads: %s\n", d.Config.DownloadDir())
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-done
		return err
	}
	<-done
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Orchestrator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = d.Orchestrator.Shutdown(ctx)
		cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	closeLog(d.logFile)
	d.logFile = nil
}

// setupLogging tees the standard logger into path when set.
func setupLogging(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

func closeLog(f *os.File) {
	if f == nil {
		return
	}
	log.SetOutput(os.Stderr)
	f.Close()
}
