package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ytdlhost/ytdlhost/internal/domain"
)

// ─── Mock Engine (for testing without yt-dlp) ───────────────────────────────

// MockCall records one Download invocation.
type MockCall struct {
	URL     string
	Type    domain.TaskType
	Format  domain.FormatOptions
	DestDir string
}

// MockEngine implements domain.DownloadEngine. It writes a small MP3-shaped
// file named the way yt-dlp would name it, then reports Title/Duration.
type MockEngine struct {
	Title    string
	Duration float64
	Delay    time.Duration
	Err      error         // returned instead of downloading
	Errs     []error       // per-attempt errors, consumed in order before Err
	Panic    any           // panics with this value when non-nil
	NoFile   bool          // report success without writing anything
	Files    []string      // extra files to create in destDir
	Block    chan struct{} // when set, Download waits for close(Block)

	mu    sync.Mutex
	calls []MockCall
}

// NewMockEngine returns an engine that "downloads" title.
func NewMockEngine(title string) *MockEngine {
	return &MockEngine{Title: title, Duration: 180}
}

// Calls returns a copy of the recorded invocations.
func (m *MockEngine) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockEngine) Download(ctx context.Context, url string, taskType domain.TaskType, format domain.FormatOptions, destDir string) (domain.Metadata, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{URL: url, Type: taskType, Format: format, DestDir: destDir})
	var attemptErr error
	if len(m.Errs) > 0 {
		attemptErr = m.Errs[0]
		m.Errs = m.Errs[1:]
	}
	m.mu.Unlock()

	if m.Panic != nil {
		panic(m.Panic)
	}
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return domain.Metadata{}, ctx.Err()
		}
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return domain.Metadata{}, ctx.Err()
		}
	}
	if attemptErr != nil {
		return domain.Metadata{}, attemptErr
	}
	if m.Err != nil {
		return domain.Metadata{}, m.Err
	}

	if !m.NoFile {
		name := MockFileName(m.Title, format)
		if err := os.WriteFile(filepath.Join(destDir, name), MinimalMP3(), 0644); err != nil {
			return domain.Metadata{}, err
		}
	}
	for _, extra := range m.Files {
		if err := os.WriteFile(filepath.Join(destDir, extra), []byte("extra"), 0644); err != nil {
			return domain.Metadata{}, err
		}
	}
	return domain.Metadata{Title: m.Title, Duration: m.Duration}, nil
}

// MockFileName is the name yt-dlp would give the final file.
func MockFileName(title string, format domain.FormatOptions) string {
	if name := format.OutputFilename; name != "" {
		stem := name[:len(name)-len(filepath.Ext(name))]
		return stem + "." + format.OutputFormat
	}
	return title + "." + format.OutputFormat
}

// MinimalMP3 returns ten bare MPEG-1 Layer III frames with zeroed payloads.
func MinimalMP3() []byte {
	var buf bytes.Buffer
	for i := 0; i < 10; i++ {
		buf.Write([]byte{0xFF, 0xFB, 0x90, 0x00})
		buf.Write(make([]byte, 413))
	}
	return buf.Bytes()
}
