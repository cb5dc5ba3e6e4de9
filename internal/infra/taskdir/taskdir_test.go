package taskdir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ytdlhost/ytdlhost/internal/domain"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", name, err)
	}
}

// ─── Layout ─────────────────────────────────────────────────────────────────

func TestLayout_EnsureAndRemove(t *testing.T) {
	l := New(t.TempDir())

	dir, err := l.Ensure("task-1")
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if dir != l.Path("task-1") {
		t.Errorf("Ensure() = %q, want %q", dir, l.Path("task-1"))
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("task dir should exist: %v", err)
	}

	touch(t, dir, "a.mp3")
	if err := l.Remove("task-1"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("task dir should be gone after Remove()")
	}
}

func TestLayout_EnsureRejectsTraversal(t *testing.T) {
	l := New(t.TempDir())
	for _, id := range []string{"", "..", "../x", `a\b`} {
		if _, err := l.Ensure(id); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("Ensure(%q) error = %v, want ErrInvalidRequest", id, err)
		}
	}
}

func TestLayout_FilePath(t *testing.T) {
	l := New("/srv/dl")
	got, err := l.FilePath("t1", "song.mp3")
	if err != nil {
		t.Fatalf("FilePath() error: %v", err)
	}
	if got != filepath.Join("/srv/dl", "t1", "song.mp3") {
		t.Errorf("FilePath() = %q", got)
	}
	if _, err := l.FilePath("t1", "../../etc/passwd"); err == nil {
		t.Error("FilePath() should reject path traversal")
	}
}

// ─── Resolve ────────────────────────────────────────────────────────────────

func TestResolve_ExactName(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "custom.mp3")
	touch(t, dir, "other.mp3")

	got, err := Resolve(dir, domain.FormatOptions{OutputFormat: "mp3", OutputFilename: "custom.mp3"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if filepath.Base(got) != "custom.mp3" {
		t.Errorf("Resolve() = %q, want custom.mp3", got)
	}
}

func TestResolve_ExactNameMissing(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Some Title.mp3")

	_, err := Resolve(dir, domain.FormatOptions{OutputFormat: "mp3", OutputFilename: "custom.mp3"})
	if !errors.Is(err, domain.ErrProducedFileNotFound) {
		t.Errorf("Resolve() error = %v, want ErrProducedFileNotFound", err)
	}
}

func TestResolve_SingleByExtension(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Hey Jude.mp3")
	touch(t, dir, "Hey Jude.webm.part")
	touch(t, dir, "thumbnail.jpg")

	got, err := Resolve(dir, domain.FormatOptions{OutputFormat: "mp3"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if filepath.Base(got) != "Hey Jude.mp3" {
		t.Errorf("Resolve() = %q, want Hey Jude.mp3", got)
	}
}

func TestResolve_ExtensionCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "CLIP.MP4")

	if _, err := Resolve(dir, domain.FormatOptions{OutputFormat: "mp4"}); err != nil {
		t.Errorf("Resolve() error: %v", err)
	}
}

func TestResolve_NoCandidates(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "video.webm")

	_, err := Resolve(dir, domain.FormatOptions{OutputFormat: "mp4"})
	if !errors.Is(err, domain.ErrProducedFileNotFound) {
		t.Errorf("Resolve() error = %v, want ErrProducedFileNotFound", err)
	}
}

func TestResolve_MissingDir(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "nope"), domain.FormatOptions{OutputFormat: "mp3"})
	if !errors.Is(err, domain.ErrProducedFileNotFound) {
		t.Errorf("Resolve() error = %v, want ErrProducedFileNotFound", err)
	}
}

func TestResolve_MultipleCandidatesIsAmbiguous(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "part 1.mp3")
	touch(t, dir, "part 2.mp3")

	_, err := Resolve(dir, domain.FormatOptions{OutputFormat: "mp3"})
	if !errors.Is(err, domain.ErrAmbiguousOutput) {
		t.Errorf("Resolve() error = %v, want ErrAmbiguousOutput", err)
	}
}

func TestResolve_IgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "nested.mp3"), 0755)
	touch(t, dir, "real.mp3")

	got, err := Resolve(dir, domain.FormatOptions{OutputFormat: "mp3"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if filepath.Base(got) != "real.mp3" {
		t.Errorf("Resolve() = %q, want real.mp3", got)
	}
}

func TestHasFiles(t *testing.T) {
	dir := t.TempDir()
	if HasFiles(dir) {
		t.Error("empty dir should have no files")
	}
	touch(t, dir, "a.mp3.part")
	if HasFiles(dir) {
		t.Error("partial files should not count")
	}
	touch(t, dir, "a.mp3")
	if !HasFiles(dir) {
		t.Error("finished file should count")
	}
}

func TestValidateFilename(t *testing.T) {
	good := []string{"song.mp3", "My Song (Live).mp3", "..hidden"}
	for _, name := range good {
		if err := ValidateFilename(name); err != nil {
			t.Errorf("ValidateFilename(%q) error: %v", name, err)
		}
	}
	bad := []string{"", "  ", ".", "..", "a/b.mp3", `a\b.mp3`}
	for _, name := range bad {
		if err := ValidateFilename(name); err == nil {
			t.Errorf("ValidateFilename(%q) should fail", name)
		}
	}
}
