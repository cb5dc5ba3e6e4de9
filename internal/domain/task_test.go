package domain

import (
	"errors"
	"testing"
	"time"
)

// ─── Task Tests ─────────────────────────────────────────────────────────────

func TestTaskStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskWaiting, false},
		{TaskProcessing, false},
		{TaskCompleted, true},
		{TaskError, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestTaskType_Valid(t *testing.T) {
	if !TaskAudio.Valid() || !TaskVideo.Valid() {
		t.Error("get_audio and get_video should be valid")
	}
	if TaskType("get_playlist").Valid() {
		t.Error("unknown task type should be invalid")
	}
}

func TestFormatOptions_WithDefaults(t *testing.T) {
	audio := FormatOptions{}.WithDefaults(TaskAudio)
	if audio.AudioFormat != "bestaudio" {
		t.Errorf("AudioFormat = %q, want %q", audio.AudioFormat, "bestaudio")
	}
	if audio.OutputFormat != "mp3" {
		t.Errorf("OutputFormat = %q, want %q", audio.OutputFormat, "mp3")
	}
	if audio.VideoFormat != "" {
		t.Errorf("VideoFormat = %q, want empty for audio", audio.VideoFormat)
	}

	video := FormatOptions{OutputFormat: "mkv"}.WithDefaults(TaskVideo)
	if video.VideoFormat != "bestvideo" {
		t.Errorf("VideoFormat = %q, want %q", video.VideoFormat, "bestvideo")
	}
	if video.OutputFormat != "mkv" {
		t.Errorf("OutputFormat = %q, want %q", video.OutputFormat, "mkv")
	}
}

func TestTask_HappyPath(t *testing.T) {
	now := time.Now()
	task := Task{ID: "t1", Status: TaskWaiting}

	if err := task.Start(now); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := task.Complete("/dl/t1/song.mp3", now.Add(time.Second)); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if task.Status != TaskCompleted {
		t.Errorf("Status = %q, want %q", task.Status, TaskCompleted)
	}
	if task.Elapsed() != time.Second {
		t.Errorf("Elapsed() = %v, want 1s", task.Elapsed())
	}
}

func TestTask_IllegalTransitions(t *testing.T) {
	now := time.Now()

	waiting := Task{Status: TaskWaiting}
	if err := waiting.Complete("f", now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("waiting.Complete() error = %v, want ErrInvalidTransition", err)
	}

	processing := Task{Status: TaskProcessing}
	if err := processing.Complete("", now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete(\"\") error = %v, want ErrInvalidTransition", err)
	}
	if err := processing.Fail("", now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail(\"\") error = %v, want ErrInvalidTransition", err)
	}

	for _, status := range []TaskStatus{TaskCompleted, TaskError} {
		done := Task{Status: status, ResultFile: "f", Error: "e"}
		if err := done.Start(now); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s.Start() error = %v, want ErrInvalidTransition", status, err)
		}
		if err := done.Fail("again", now); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s.Fail() error = %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestTask_FailFromWaiting(t *testing.T) {
	task := Task{Status: TaskWaiting}
	if err := task.Fail("store unavailable", time.Now()); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}
	if task.Status != TaskError || task.Error != "store unavailable" {
		t.Errorf("task = %+v, want error status with detail", task)
	}
	if task.ResultFile != "" {
		t.Error("ResultFile should be empty on error")
	}
}
