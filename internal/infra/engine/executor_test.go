package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ytdlhost/ytdlhost/internal/domain"
)

var audioFormat = domain.FormatOptions{}.WithDefaults(domain.TaskAudio)

// ─── Classification ─────────────────────────────────────────────────────────

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("run: %w", context.Canceled), KindCanceled},
		{fmt.Errorf("%w: no json", ErrMalformedResponse), KindMalformed},
		{errors.New("yt-dlp: exit status 1: ERROR: Unsupported URL: https://x"), KindUnsupported},
		{errors.New("ERROR: [youtube] abc: Video unavailable"), KindUnavailable},
		{errors.New("ERROR: Private video. Sign in"), KindUnavailable},
		{errors.New("OSError: [Errno 28] No space left on device"), KindDisk},
		{errors.New("ERROR: Unable to download webpage: <urlopen error timed out>"), KindNetwork},
		{errors.New("HTTP Error 503: Service Unavailable"), KindNetwork},
		{errors.New("something odd"), KindEngine},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ─── Execute ────────────────────────────────────────────────────────────────

func TestExecute_Success(t *testing.T) {
	dir := t.TempDir()
	mock := NewMockEngine("The Beatles - Hey Jude")
	mock.Duration = 431
	ex := NewExecutor(mock, DefaultConfig())

	res, err := ex.Execute(context.Background(), "https://example.com/v", domain.TaskAudio, audioFormat, dir)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.Title != "The Beatles - Hey Jude" || res.Duration != 431 {
		t.Errorf("Result = %+v", res)
	}
	if !res.Produced {
		t.Error("Produced should be true after the engine wrote a file")
	}
	if _, err := os.Stat(filepath.Join(dir, "The Beatles - Hey Jude.mp3")); err != nil {
		t.Errorf("expected file in task dir: %v", err)
	}
}

func TestExecute_NothingProduced(t *testing.T) {
	mock := NewMockEngine("Song")
	mock.NoFile = true
	ex := NewExecutor(mock, DefaultConfig())

	res, err := ex.Execute(context.Background(), "u", domain.TaskAudio, audioFormat, t.TempDir())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if res.Produced {
		t.Error("Produced should be false when no file was written")
	}
}

func TestExecute_EngineFailure(t *testing.T) {
	mock := NewMockEngine("Song")
	mock.Err = errors.New("ERROR: Unsupported URL: ftp://nope")
	ex := NewExecutor(mock, DefaultConfig())

	_, err := ex.Execute(context.Background(), "ftp://nope", domain.TaskAudio, audioFormat, t.TempDir())
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want *ExecutionError", err)
	}
	if execErr.Kind != KindUnsupported {
		t.Errorf("Kind = %q, want %q", execErr.Kind, KindUnsupported)
	}
}

func TestExecute_MissingTitleIsMalformed(t *testing.T) {
	mock := NewMockEngine("   ")
	ex := NewExecutor(mock, DefaultConfig())

	_, err := ex.Execute(context.Background(), "u", domain.TaskAudio, audioFormat, t.TempDir())
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Kind != KindMalformed {
		t.Fatalf("Execute() error = %v, want malformed", err)
	}
}

func TestExecute_VideoWithoutTitleIsFine(t *testing.T) {
	mock := NewMockEngine("")
	mock.NoFile = true
	ex := NewExecutor(mock, DefaultConfig())

	video := domain.FormatOptions{}.WithDefaults(domain.TaskVideo)
	if _, err := ex.Execute(context.Background(), "u", domain.TaskVideo, video, t.TempDir()); err != nil {
		t.Errorf("Execute() error: %v", err)
	}
}

func TestExecute_Timeout(t *testing.T) {
	mock := NewMockEngine("Slow")
	mock.Delay = 5 * time.Second
	ex := NewExecutor(mock, Config{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := ex.Execute(context.Background(), "u", domain.TaskAudio, audioFormat, t.TempDir())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Execute() took %v, timeout not enforced", elapsed)
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Kind != KindTimeout {
		t.Fatalf("Execute() error = %v, want timeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error should wrap context.DeadlineExceeded")
	}
}

func TestExecute_RetriesNetworkErrors(t *testing.T) {
	mock := NewMockEngine("Song")
	mock.Errs = []error{errors.New("connection reset by peer")}
	ex := NewExecutor(mock, Config{Retries: 2, RetryBackoff: time.Millisecond})

	if _, err := ex.Execute(context.Background(), "u", domain.TaskAudio, audioFormat, t.TempDir()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if n := len(mock.Calls()); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestExecute_NoRetryForPermanentErrors(t *testing.T) {
	mock := NewMockEngine("Song")
	mock.Err = errors.New("Video unavailable")
	ex := NewExecutor(mock, Config{Retries: 3, RetryBackoff: time.Millisecond})

	ex.Execute(context.Background(), "u", domain.TaskAudio, audioFormat, t.TempDir())
	if n := len(mock.Calls()); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

// ─── yt-dlp Arguments ───────────────────────────────────────────────────────

func TestOutputTemplate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"default", "", "%(title)s.%(ext)s"},
		{"custom", "my_song.mp3", "my_song.%(ext)s"},
		{"dotted stem", "live.at.wembley.mp3", "live.at.wembley.%(ext)s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OutputTemplate(domain.FormatOptions{OutputFilename: tt.in})
			if got != tt.want {
				t.Errorf("OutputTemplate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatSelector(t *testing.T) {
	if got := FormatSelector(domain.TaskAudio, audioFormat); got != "bestaudio" {
		t.Errorf("audio selector = %q, want bestaudio", got)
	}
	video := domain.FormatOptions{VideoFormat: "bestvideo[height<=720]", AudioFormat: "bestaudio"}
	if got := FormatSelector(domain.TaskVideo, video); got != "bestvideo[height<=720]+bestaudio" {
		t.Errorf("video selector = %q", got)
	}
}

func TestFindBinary_Configured(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "my-yt-dlp")
	os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755)

	got, err := FindBinary(bin, "")
	if err != nil {
		t.Fatalf("FindBinary() error: %v", err)
	}
	if got != bin {
		t.Errorf("FindBinary() = %q, want %q", got, bin)
	}

	if _, err := FindBinary(filepath.Join(dir, "missing"), ""); err == nil {
		t.Error("FindBinary() should fail for a missing configured path")
	}
}

func TestFindBinary_HomeBin(t *testing.T) {
	home := t.TempDir()
	os.MkdirAll(filepath.Join(home, "bin"), 0755)
	bin := filepath.Join(home, "bin", "yt-dlp")
	os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755)

	got, err := FindBinary("", home)
	if err != nil {
		t.Fatalf("FindBinary() error: %v", err)
	}
	if got != bin {
		t.Errorf("FindBinary() = %q, want %q", got, bin)
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine("WARNING: x\nERROR: boom\n\n"); got != "ERROR: boom" {
		t.Errorf("lastLine() = %q", got)
	}
	if got := lastLine(""); got != "" {
		t.Errorf("lastLine(\"\") = %q", got)
	}
}
