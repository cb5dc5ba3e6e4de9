// Package orchestrator drives download tasks through
// waiting → processing → completed | error.
//
// Admission is decided synchronously in Submit against the quota ledger;
// a denied request never becomes a task. Every admitted task runs in its
// own goroutine, holds exactly one reservation, and releases it before its
// terminal status is written, on every exit path including panics.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytdlhost/ytdlhost/internal/domain"
	"github.com/ytdlhost/ytdlhost/internal/infra/engine"
	"github.com/ytdlhost/ytdlhost/internal/infra/metrics"
	"github.com/ytdlhost/ytdlhost/internal/infra/quota"
	"github.com/ytdlhost/ytdlhost/internal/infra/tagger"
	"github.com/ytdlhost/ytdlhost/internal/infra/taskdir"
)

// Executor runs one download. Implemented by *engine.Executor.
type Executor interface {
	Execute(ctx context.Context, url string, taskType domain.TaskType, format domain.FormatOptions, destDir string) (engine.Result, error)
}

// ErrClosed is returned by Submit once Shutdown has begun.
var ErrClosed = errors.New("orchestrator is shut down")

// Tagger rewrites audio metadata. Implemented by *tagger.Processor.
type Tagger interface {
	Rewrite(path, title string) tagger.Outcome
}

// Config controls admission estimates and retention.
type Config struct {
	AudioEstimate   int64         // bytes reserved per audio task
	VideoEstimate   int64         // bytes reserved per video task
	Retention       time.Duration // terminal tasks older than this are purged; 0 keeps forever
	CleanupInterval time.Duration
	SaveTimeout     time.Duration // budget for persisting a terminal state
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AudioEstimate:   64 << 20,
		VideoEstimate:   512 << 20,
		Retention:       24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
		SaveTimeout:     10 * time.Second,
	}
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Store       domain.TaskStore
	Credentials domain.CredentialStore
	Ledger      *quota.Ledger
	Executor    Executor
	Tagger      Tagger
	Layout      *taskdir.Layout
}

// SubmitRequest is a client's request for a new task.
type SubmitRequest struct {
	Type    domain.TaskType
	URL     string
	Format  domain.FormatOptions
	KeyName string
}

// Orchestrator owns the in-memory lifecycle of every task it admitted.
type Orchestrator struct {
	store  domain.TaskStore
	creds  domain.CredentialStore
	ledger *quota.Ledger
	exec   Executor
	tagger Tagger
	dirs   *taskdir.Layout
	cfg    Config

	mu     sync.RWMutex
	tasks  map[string]domain.Task // snapshots of tasks not yet persisted as terminal
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context // parent of every worker
	cancel context.CancelFunc

	now   func() time.Time
	newID func() string
}

// New wires an Orchestrator. Workers run under an internal context that
// Shutdown cancels.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:  deps.Store,
		creds:  deps.Credentials,
		ledger: deps.Ledger,
		exec:   deps.Executor,
		tagger: deps.Tagger,
		dirs:   deps.Layout,
		cfg:    cfg,
		tasks:  make(map[string]domain.Task),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// ─── Submit ─────────────────────────────────────────────────────────────────

// Submit admits a task and schedules it. It never waits for the download.
// Admission failures (invalid request, unknown key, missing permission,
// quota denial) return an error and leave no task behind.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if o.isClosed() {
		return "", ErrClosed
	}
	if err := validate(req); err != nil {
		return "", err
	}
	req.URL = strings.TrimSpace(req.URL)
	req.Format = req.Format.WithDefaults(req.Type)
	name, err := outputName(req.Format)
	if err != nil {
		return "", err
	}
	req.Format.OutputFilename = name

	cred, err := o.creds.LookupCredential(ctx, req.KeyName)
	if err != nil {
		return "", fmt.Errorf("lookup key: %w", err)
	}
	if cred == nil {
		return "", domain.ErrUnknownKey
	}
	if !cred.Allows(req.Type) {
		return "", domain.ErrPermissionDenied
	}

	id := o.newID()
	res, err := o.ledger.Reserve(req.KeyName, id, o.estimate(req.Type))
	if err != nil {
		var denied *quota.DeniedError
		if errors.As(err, &denied) {
			metrics.AdmissionDenied.WithLabelValues(string(denied.Reason)).Inc()
			log.Printf("[orchestrator] denied %s for %s: %v", req.Type, req.KeyName, err)
		}
		return "", err
	}
	o.observeQuota()

	dir, err := o.dirs.Ensure(id)
	if err != nil {
		o.release(res)
		return "", err
	}

	task := domain.Task{
		ID:        id,
		Type:      req.Type,
		URL:       req.URL,
		KeyName:   req.KeyName,
		Format:    req.Format,
		Status:    domain.TaskWaiting,
		CreatedAt: o.now(),
	}
	if err := o.store.SaveTask(ctx, task); err != nil {
		o.release(res)
		_ = o.dirs.Remove(id)
		return "", fmt.Errorf("persist task: %w", err)
	}

	// wg.Add must not race with Shutdown's wg.Wait.
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.release(res)
		_ = o.dirs.Remove(id)
		if err := task.Fail("service shutting down", o.now()); err == nil {
			_ = o.store.SaveTask(ctx, task)
		}
		return "", ErrClosed
	}
	o.tasks[id] = task
	o.wg.Add(1)
	o.mu.Unlock()

	metrics.TasksSubmitted.WithLabelValues(string(task.Type)).Inc()
	metrics.TasksActive.Inc()

	go o.run(task, dir, res)
	return id, nil
}

// outputName normalizes a custom file name so its extension is the
// requested output format, which is the name the engine will produce.
// A name with a different extension is rejected.
func outputName(f domain.FormatOptions) (string, error) {
	name := f.OutputFilename
	if name == "" {
		return "", nil
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if ext == "" {
		stem = name
	} else if !strings.EqualFold(ext[1:], f.OutputFormat) {
		return "", fmt.Errorf("%w: output_filename %q must end in .%s", domain.ErrInvalidRequest, name, f.OutputFormat)
	}
	if strings.TrimSpace(stem) == "" {
		return "", fmt.Errorf("%w: output_filename %q has no name before the extension", domain.ErrInvalidRequest, name)
	}
	name = stem + "." + f.OutputFormat
	if err := taskdir.ValidateFilename(name); err != nil {
		return "", err
	}
	return name, nil
}

func validate(req SubmitRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown task type %q", domain.ErrInvalidRequest, req.Type)
	}
	if req.KeyName == "" {
		return domain.ErrUnknownKey
	}
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return fmt.Errorf("%w: url is required", domain.ErrInvalidRequest)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) url", domain.ErrInvalidRequest)
	}
	if name := req.Format.OutputFilename; name != "" {
		if err := taskdir.ValidateFilename(name); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) estimate(t domain.TaskType) int64 {
	if t == domain.TaskVideo {
		return o.cfg.VideoEstimate
	}
	return o.cfg.AudioEstimate
}

// ─── Worker ─────────────────────────────────────────────────────────────────

// run is the per-task worker. The reservation is released exactly once,
// before the terminal status is written.
func (o *Orchestrator) run(task domain.Task, dir string, res *quota.Reservation) {
	defer o.wg.Done()

	var file string
	var fail *failure
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[orchestrator] task %s panicked: %v", task.ID, r)
				file, fail = "", internalFailure("%v", r)
			}
		}()
		file, fail = o.process(&task, dir)
	}()

	o.release(res)
	o.finish(&task, file, fail)
}

// failure is a task's error detail plus a short metrics label.
type failure struct {
	reason string
	detail string
}

func internalFailure(format string, args ...any) *failure {
	return &failure{reason: "internal", detail: "internal error: " + fmt.Sprintf(format, args...)}
}

// process moves the task to processing and runs download, resolution and
// tagging. It returns the result file, or why the task failed.
func (o *Orchestrator) process(task *domain.Task, dir string) (string, *failure) {
	if err := task.Start(o.now()); err != nil {
		return "", internalFailure("%v", err)
	}
	if err := o.store.SaveTask(o.ctx, *task); err != nil {
		return "", internalFailure("persist processing state: %v", err)
	}
	o.put(*task)
	log.Printf("[orchestrator] task %s processing %s", task.ID, task.URL)

	started := time.Now()
	result, err := o.exec.Execute(o.ctx, task.URL, task.Type, task.Format, dir)
	metrics.DownloadDuration.WithLabelValues(string(task.Type)).Observe(time.Since(started).Seconds())
	if err != nil {
		reason := string(engine.KindEngine)
		var execErr *engine.ExecutionError
		if errors.As(err, &execErr) {
			reason = string(execErr.Kind)
		}
		return "", &failure{reason: reason, detail: err.Error()}
	}
	task.Title = result.Title
	task.Duration = result.Duration
	if !result.Produced {
		return "", &failure{
			reason: "resolution",
			detail: fmt.Sprintf("%v: engine reported success but wrote nothing", domain.ErrProducedFileNotFound),
		}
	}

	path, err := taskdir.Resolve(dir, task.Format)
	if err != nil {
		return "", &failure{reason: "resolution", detail: err.Error()}
	}

	if task.Type == domain.TaskAudio && o.tagger != nil {
		out := o.tagger.Rewrite(path, result.Title)
		metrics.TagRewrites.WithLabelValues(string(out.State)).Inc()
		if out.State == tagger.Failed {
			log.Printf("[orchestrator] task %s: tag rewrite failed, keeping file: %v", task.ID, out.Err)
		}
	}
	return path, nil
}

// finish writes the terminal state. Once persisted, the snapshot is dropped
// and Status reads the store. If persistence fails it is logged and the
// in-memory snapshot stays authoritative.
func (o *Orchestrator) finish(task *domain.Task, file string, fail *failure) {
	now := o.now()
	var err error
	if fail == nil {
		err = task.Complete(file, now)
	} else {
		err = task.Fail(fail.detail, now)
	}
	if err != nil {
		log.Printf("[orchestrator] task %s: %v", task.ID, err)
		fail = internalFailure("%v", err)
		if !task.IsTerminal() {
			_ = task.Fail(fail.detail, now)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.SaveTimeout)
	defer cancel()
	if err := o.store.SaveTask(ctx, *task); err != nil {
		log.Printf("[orchestrator] task %s: persist %s state: %v", task.ID, task.Status, err)
		o.put(*task)
	} else {
		o.mu.Lock()
		delete(o.tasks, task.ID)
		o.mu.Unlock()
	}

	metrics.TasksActive.Dec()
	if task.Status == domain.TaskCompleted {
		metrics.TasksCompleted.WithLabelValues(string(task.Type)).Inc()
		log.Printf("[orchestrator] task %s completed: %s", task.ID, task.ResultFile)
	} else {
		reason := "internal"
		if fail != nil {
			reason = fail.reason
		}
		metrics.TasksFailed.WithLabelValues(string(task.Type), reason).Inc()
		log.Printf("[orchestrator] task %s failed: %s", task.ID, task.Error)
	}
}

func (o *Orchestrator) release(res *quota.Reservation) {
	if err := res.Release(); err != nil {
		log.Printf("[orchestrator] task %s: %v", res.TaskID, err)
	}
	o.observeQuota()
}

func (o *Orchestrator) observeQuota() {
	metrics.QuotaReservedBytes.Set(float64(o.ledger.Stats().UsedBytes))
}

func (o *Orchestrator) isClosed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}

func (o *Orchestrator) put(t domain.Task) {
	o.mu.Lock()
	o.tasks[t.ID] = t
	o.mu.Unlock()
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Status returns a snapshot of a task. It never waits on a running worker.
func (o *Orchestrator) Status(ctx context.Context, id string) (domain.Task, error) {
	o.mu.RLock()
	t, ok := o.tasks[id]
	o.mu.RUnlock()
	if ok {
		return t, nil
	}

	stored, err := o.store.LoadTask(ctx, id)
	if err != nil {
		return domain.Task{}, fmt.Errorf("load task: %w", err)
	}
	if stored == nil {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return *stored, nil
}

// QuotaStats exposes the ledger for diagnostics.
func (o *Orchestrator) QuotaStats() quota.Stats {
	return o.ledger.Stats()
}

// Layout returns the artifact layout.
func (o *Orchestrator) Layout() *taskdir.Layout {
	return o.dirs
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Recover fails every task a previous process left waiting or processing.
// Reservations live in memory only, so such tasks can never finish.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	active, err := o.store.ListActiveTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active tasks: %w", err)
	}

	n := 0
	for _, t := range active {
		o.mu.RLock()
		_, ours := o.tasks[t.ID]
		o.mu.RUnlock()
		if ours {
			continue
		}
		if err := t.Fail("interrupted by service restart", o.now()); err != nil {
			continue
		}
		if err := o.store.SaveTask(ctx, t); err != nil {
			return n, fmt.Errorf("fail task %s: %w", t.ID, err)
		}
		n++
	}
	if n > 0 {
		log.Printf("[orchestrator] marked %d interrupted task(s) as error", n)
	}
	return n, nil
}

// Cleanup purges terminal tasks that finished before now-Retention,
// including their directories.
func (o *Orchestrator) Cleanup(ctx context.Context) (int, error) {
	if o.cfg.Retention <= 0 {
		return 0, nil
	}
	expired, err := o.store.ListFinishedBefore(ctx, o.now().Add(-o.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("list expired tasks: %w", err)
	}

	n := 0
	for _, t := range expired {
		if err := o.dirs.Remove(t.ID); err != nil {
			log.Printf("[orchestrator] remove dir for %s: %v", t.ID, err)
			continue
		}
		if err := o.store.DeleteTask(ctx, t.ID); err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
			log.Printf("[orchestrator] delete task %s: %v", t.ID, err)
			continue
		}
		o.mu.Lock()
		delete(o.tasks, t.ID)
		o.mu.Unlock()
		n++
	}
	if n > 0 {
		metrics.TasksPurged.Add(float64(n))
		log.Printf("[orchestrator] purged %d expired task(s)", n)
	}
	return n, nil
}

// RunCleanup calls Cleanup every CleanupInterval until ctx is done.
func (o *Orchestrator) RunCleanup(ctx context.Context) {
	if o.cfg.Retention <= 0 || o.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(o.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Cleanup(ctx); err != nil {
				log.Printf("[orchestrator] cleanup: %v", err)
			}
		}
	}
}

// Wait blocks until every admitted task has reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels running downloads and waits for workers to record their
// terminal state, or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
