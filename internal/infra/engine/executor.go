package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ytdlhost/ytdlhost/internal/domain"
	"github.com/ytdlhost/ytdlhost/internal/infra/taskdir"
)

// ErrMalformedResponse marks engine output the executor cannot use.
var ErrMalformedResponse = errors.New("malformed engine response")

// ─── Execution Errors ───────────────────────────────────────────────────────

// ErrorKind classifies why a download failed.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindUnavailable ErrorKind = "unavailable"
	KindUnsupported ErrorKind = "unsupported"
	KindDisk        ErrorKind = "disk"
	KindMalformed   ErrorKind = "malformed"
	KindTimeout     ErrorKind = "timeout"
	KindCanceled    ErrorKind = "canceled"
	KindEngine      ErrorKind = "engine"
)

// ExecutionError is the only error type Execute returns.
type ExecutionError struct {
	Kind  ErrorKind
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// markers map engine stderr fragments to kinds. First match wins.
var markers = []struct {
	kind ErrorKind
	text string
}{
	{KindUnsupported, "unsupported url"},
	{KindUnsupported, "is not a valid url"},
	{KindUnavailable, "video unavailable"},
	{KindUnavailable, "private video"},
	{KindUnavailable, "http error 404"},
	{KindUnavailable, "requested format is not available"},
	{KindDisk, "no space left on device"},
	{KindDisk, "permission denied"},
	{KindDisk, "read-only file system"},
	{KindNetwork, "timed out"},
	{KindNetwork, "connection reset"},
	{KindNetwork, "connection refused"},
	{KindNetwork, "temporary failure in name resolution"},
	{KindNetwork, "network is unreachable"},
	{KindNetwork, "unable to download webpage"},
	{KindNetwork, "http error 5"},
}

// Classify maps an engine error onto an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	}
	msg := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(msg, m.text) {
			return m.kind
		}
	}
	return KindEngine
}

// ─── Executor ───────────────────────────────────────────────────────────────

// Config bounds a single execution.
type Config struct {
	Timeout      time.Duration // per attempt budget for the whole run; 0 = none
	Retries      int           // extra attempts for network failures
	RetryBackoff time.Duration
}

// DefaultConfig returns production executor defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Minute,
		Retries:      0,
		RetryBackoff: 2 * time.Second,
	}
}

// Result is what a successful execution reports.
type Result struct {
	Title    string
	Duration float64
	Produced bool // at least one finished file exists in destDir
}

// Executor runs a DownloadEngine under a deadline.
type Executor struct {
	engine domain.DownloadEngine
	cfg    Config
}

// NewExecutor wraps engine with cfg.
func NewExecutor(engine domain.DownloadEngine, cfg Config) *Executor {
	return &Executor{engine: engine, cfg: cfg}
}

// Execute downloads url into destDir. Errors are always *ExecutionError.
// Audio downloads must report a title; one without is KindMalformed.
func (e *Executor) Execute(ctx context.Context, url string, taskType domain.TaskType, format domain.FormatOptions, destDir string) (Result, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	var meta domain.Metadata
	var err error
	for attempt := 0; attempt <= e.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.cfg.RetryBackoff):
			case <-ctx.Done():
				return Result{}, &ExecutionError{Kind: Classify(ctx.Err()), Cause: ctx.Err()}
			}
			log.Printf("[engine] retrying %s, attempt %d", url, attempt+1)
		}

		meta, err = e.engine.Download(ctx, url, taskType, format, destDir)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
			break
		}
		if Classify(err) != KindNetwork {
			break
		}
		log.Printf("[engine] attempt %d for %s failed: %v", attempt+1, url, err)
	}
	if err != nil {
		return Result{}, &ExecutionError{Kind: Classify(err), Cause: err}
	}

	meta.Title = strings.TrimSpace(meta.Title)
	if taskType == domain.TaskAudio && meta.Title == "" {
		return Result{}, &ExecutionError{
			Kind:  KindMalformed,
			Cause: fmt.Errorf("%w: engine reported no title", ErrMalformedResponse),
		}
	}

	return Result{
		Title:    meta.Title,
		Duration: meta.Duration,
		Produced: taskdir.HasFiles(destDir),
	}, nil
}
