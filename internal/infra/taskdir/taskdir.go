// Package taskdir owns the per-task artifact directories under the
// download root and decides which file in a directory is a task's result.
package taskdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ytdlhost/ytdlhost/internal/domain"
)

// partialExts are engine scratch files that are never a finished result.
var partialExts = map[string]bool{
	".part": true,
	".ytdl": true,
	".tmp":  true,
}

// Layout maps task IDs to directories: <root>/<task_id>/.
type Layout struct {
	Root string
}

// New returns a layout rooted at root.
func New(root string) *Layout {
	return &Layout{Root: root}
}

// Path returns the directory for a task. It does not touch the filesystem.
func (l *Layout) Path(taskID string) string {
	return filepath.Join(l.Root, taskID)
}

// Ensure creates the task directory if needed and returns its path.
func (l *Layout) Ensure(taskID string) (string, error) {
	if taskID == "" || strings.ContainsAny(taskID, `/\`) || taskID == "." || taskID == ".." {
		return "", fmt.Errorf("%w: bad task id %q", domain.ErrInvalidRequest, taskID)
	}
	dir := l.Path(taskID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create task dir: %w", err)
	}
	return dir, nil
}

// Remove deletes a task directory and everything in it.
func (l *Layout) Remove(taskID string) error {
	if taskID == "" {
		return nil
	}
	return os.RemoveAll(l.Path(taskID))
}

// FilePath returns the path of name inside a task directory, or an error if
// name would escape it.
func (l *Layout) FilePath(taskID, name string) (string, error) {
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	return filepath.Join(l.Path(taskID), name), nil
}

// ValidateFilename rejects names that are empty or could escape a task directory.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: bad file name %q", domain.ErrInvalidRequest, name)
	}
	return nil
}

// ─── Resolution ─────────────────────────────────────────────────────────────

// Resolve picks the produced file in dir.
//
// Precedence:
//  1. format.OutputFilename set: that exact file, or ErrProducedFileNotFound.
//  2. Otherwise the single regular file whose extension equals
//     format.OutputFormat. None is ErrProducedFileNotFound, more than one
//     is ErrAmbiguousOutput.
func Resolve(dir string, format domain.FormatOptions) (string, error) {
	if name := format.OutputFilename; name != "" {
		if err := ValidateFilename(name); err != nil {
			return "", err
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return "", fmt.Errorf("%w: %s", domain.ErrProducedFileNotFound, name)
		}
		return path, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProducedFileNotFound, err)
	}

	wantExt := "." + strings.ToLower(strings.TrimPrefix(format.OutputFormat, "."))
	var candidates []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if partialExts[ext] {
			continue
		}
		if format.OutputFormat == "" || ext == wantExt {
			candidates = append(candidates, entry.Name())
		}
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: no %s file in %s", domain.ErrProducedFileNotFound, wantExt, dir)
	case 1:
		return filepath.Join(dir, candidates[0]), nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrAmbiguousOutput, strings.Join(candidates, ", "))
	}
}

// HasFiles reports whether dir contains at least one finished regular file.
func HasFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && !partialExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			return true
		}
	}
	return false
}
