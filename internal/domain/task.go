// Package domain holds the pure types shared by every layer of ytdlhost.
// A Task is one download request flowing through
// submit → admit → waiting → processing → completed | error.
package domain

import (
	"fmt"
	"time"
)

// TaskStatus tracks task lifecycle.
type TaskStatus string

const (
	TaskWaiting    TaskStatus = "waiting"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskError      TaskStatus = "error"
)

// IsTerminal returns true for completed and error.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskError
}

// TaskType categorizes the kind of download.
type TaskType string

const (
	TaskAudio TaskType = "get_audio"
	TaskVideo TaskType = "get_video"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return t == TaskAudio || t == TaskVideo
}

// DefaultOutputFormat is the container expected when the request names none.
func (t TaskType) DefaultOutputFormat() string {
	if t == TaskAudio {
		return "mp3"
	}
	return "mp4"
}

// FormatOptions are passed through to the download engine.
type FormatOptions struct {
	AudioFormat    string `json:"audio_format,omitempty"`
	VideoFormat    string `json:"video_format,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
	OutputFilename string `json:"output_filename,omitempty"`
}

// WithDefaults fills empty selectors with the defaults for the task type.
func (f FormatOptions) WithDefaults(t TaskType) FormatOptions {
	if f.AudioFormat == "" {
		f.AudioFormat = "bestaudio"
	}
	if t == TaskVideo && f.VideoFormat == "" {
		f.VideoFormat = "bestvideo"
	}
	if f.OutputFormat == "" {
		f.OutputFormat = t.DefaultOutputFormat()
	}
	return f
}

// Task is a unit of download work.
type Task struct {
	ID          string        `json:"task_id"`
	Type        TaskType      `json:"task_type"`
	URL         string        `json:"url"`
	KeyName     string        `json:"key_name"`
	Format      FormatOptions `json:"format"`
	Status      TaskStatus    `json:"status"`
	ResultFile  string        `json:"result_file,omitempty"`
	Error       string        `json:"error,omitempty"`
	Title       string        `json:"title,omitempty"`
	Duration    float64       `json:"duration,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the task has reached a final state.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Start moves a waiting task to processing.
func (t *Task) Start(now time.Time) error {
	if t.Status != TaskWaiting {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TaskProcessing)
	}
	t.Status = TaskProcessing
	t.StartedAt = now
	return nil
}

// Complete moves a processing task to completed. file must be non-empty.
func (t *Task) Complete(file string, now time.Time) error {
	if t.Status != TaskProcessing || file == "" {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TaskCompleted)
	}
	t.Status = TaskCompleted
	t.ResultFile = file
	t.Error = ""
	t.CompletedAt = now
	return nil
}

// Fail moves a non-terminal task to error. detail must be non-empty.
func (t *Task) Fail(detail string, now time.Time) error {
	if t.IsTerminal() || detail == "" {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TaskError)
	}
	t.Status = TaskError
	t.Error = detail
	t.ResultFile = ""
	t.CompletedAt = now
	return nil
}

// Elapsed returns how long the task took to execute (0 if not started/completed).
func (t *Task) Elapsed() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
