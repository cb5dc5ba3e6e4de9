// Package engine drives the external media download engine (yt-dlp) and
// wraps it in an Executor that bounds each run with a timeout and maps
// failures onto a small error taxonomy.
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytdlhost/ytdlhost/internal/domain"
)

// ─── yt-dlp Engine ──────────────────────────────────────────────────────────

// YTDLP implements domain.DownloadEngine by running the yt-dlp binary.
type YTDLP struct {
	binary string
}

// NewYTDLP returns an engine that runs binary. An empty binary means
// "yt-dlp" from PATH.
func NewYTDLP(binary string) *YTDLP {
	return &YTDLP{binary: binary}
}

// Binary returns the configured executable.
func (y *YTDLP) Binary() string { return y.binary }

// FindBinary locates yt-dlp: an explicit configured path first, then
// home/bin, then PATH.
func FindBinary(configured, home string) (string, error) {
	exe := "yt-dlp"
	if runtime.GOOS == "windows" {
		exe = "yt-dlp.exe"
	}

	if configured != "" && configured != exe && configured != "yt-dlp" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
		if path, err := exec.LookPath(configured); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("yt-dlp binary %q not found", configured)
	}

	if home != "" {
		binPath := filepath.Join(home, "bin", exe)
		if _, err := os.Stat(binPath); err == nil {
			return binPath, nil
		}
	}

	if path, err := exec.LookPath(exe); err == nil {
		return path, nil
	}

	return "", fmt.Errorf(`yt-dlp not found

ytdlhost needs yt-dlp to fetch media.

Install it:
  → pip install yt-dlp   (or download from https://github.com/yt-dlp/yt-dlp/releases)
  → place the binary in %s or anywhere in PATH
  → or set [engine] binary in config.toml
`, filepath.Join(home, "bin"))
}

// OutputTemplate is the yt-dlp output template for a request. A custom file
// name already ends in ".<output format>"; its stem is kept and post-processing
// converts to that container, so the final file is exactly OutputFilename.
func OutputTemplate(format domain.FormatOptions) string {
	if name := format.OutputFilename; name != "" {
		return strings.TrimSuffix(name, filepath.Ext(name)) + ".%(ext)s"
	}
	return "%(title)s.%(ext)s"
}

// FormatSelector is the -f argument for a request.
func FormatSelector(taskType domain.TaskType, format domain.FormatOptions) string {
	if taskType == domain.TaskVideo {
		return format.VideoFormat + "+" + format.AudioFormat
	}
	return format.AudioFormat
}

func (y *YTDLP) command(taskType domain.TaskType, format domain.FormatOptions, destDir string) *ytdlp.Command {
	dl := ytdlp.New().
		NoPlaylist().
		NoProgress().
		ForceOverwrites().
		PrintJSON().
		Format(FormatSelector(taskType, format)).
		Output(filepath.Join(destDir, OutputTemplate(format)))

	if y.binary != "" {
		dl.SetExecutable(y.binary)
	}

	if taskType == domain.TaskAudio {
		dl.ExtractAudio().AudioFormat(format.OutputFormat)
	} else if format.OutputFormat != "" {
		dl.MergeOutputFormat(format.OutputFormat)
	}
	return dl
}

// Download runs yt-dlp for url into destDir and reports title and duration.
func (y *YTDLP) Download(ctx context.Context, url string, taskType domain.TaskType, format domain.FormatOptions, destDir string) (domain.Metadata, error) {
	res, err := y.command(taskType, format, destDir).Run(ctx, url)
	if err != nil {
		if res != nil {
			if tail := lastLine(res.Stderr); tail != "" {
				return domain.Metadata{}, fmt.Errorf("yt-dlp: %w: %s", err, tail)
			}
		}
		return domain.Metadata{}, fmt.Errorf("yt-dlp: %w", err)
	}

	info, err := res.GetExtractedInfo()
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("%w: parse yt-dlp info: %v", ErrMalformedResponse, err)
	}
	if len(info) == 0 {
		return domain.Metadata{}, fmt.Errorf("%w: yt-dlp printed no info", ErrMalformedResponse)
	}

	var meta domain.Metadata
	if info[0].Title != nil {
		meta.Title = *info[0].Title
	}
	if info[0].Duration != nil {
		meta.Duration = *info[0].Duration
	}
	return meta, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
