package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/ytdlhost/ytdlhost/internal/domain"
)

// ─── Task Repository ────────────────────────────────────────────────────────

const taskColumns = `id, type, url, key_name, audio_format, video_format, output_format,
	output_filename, status, result_file, error, title, duration,
	created_at, started_at, completed_at`

// SaveTask inserts or replaces the full task record.
func (d *DB) SaveTask(ctx context.Context, t domain.Task) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			result_file=excluded.result_file,
			error=excluded.error,
			title=excluded.title,
			duration=excluded.duration,
			started_at=excluded.started_at,
			completed_at=excluded.completed_at`,
		t.ID, string(t.Type), t.URL, t.KeyName,
		t.Format.AudioFormat, t.Format.VideoFormat, t.Format.OutputFormat, t.Format.OutputFilename,
		string(t.Status), t.ResultFile, t.Error, t.Title, t.Duration,
		t.CreatedAt.Unix(), nullableUnix(t.StartedAt), nullableUnix(t.CompletedAt),
	)
	return err
}

// LoadTask retrieves a single task. Returns nil, nil when absent.
func (d *DB) LoadTask(ctx context.Context, id string) (*domain.Task, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id,
	)
	return scanTask(row)
}

// ListActiveTasks returns tasks still waiting or processing, oldest first.
func (d *DB) ListActiveTasks(ctx context.Context) ([]domain.Task, error) {
	return d.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status IN (?, ?)
		 ORDER BY created_at ASC, rowid ASC`,
		string(domain.TaskWaiting), string(domain.TaskProcessing),
	)
}

// ListTasks returns the most recent tasks, newest first.
func (d *DB) ListTasks(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
}

// ListFinishedBefore returns terminal tasks completed before cutoff.
func (d *DB) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]domain.Task, error) {
	return d.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?
		 ORDER BY completed_at ASC`,
		string(domain.TaskCompleted), string(domain.TaskError), cutoff.Unix(),
	)
}

// DeleteTask removes a task record.
func (d *DB) DeleteTask(ctx context.Context, id string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (d *DB) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func scanTask(s scanner) (*domain.Task, error) {
	var t domain.Task
	var taskType, status string
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := s.Scan(&t.ID, &taskType, &t.URL, &t.KeyName,
		&t.Format.AudioFormat, &t.Format.VideoFormat, &t.Format.OutputFormat, &t.Format.OutputFilename,
		&status, &t.ResultFile, &t.Error, &t.Title, &t.Duration,
		&createdAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, err
	}

	t.Type = domain.TaskType(taskType)
	t.Status = domain.TaskStatus(status)
	t.CreatedAt = time.Unix(createdAt, 0)
	t.StartedAt = fromNullableUnix(startedAt)
	t.CompletedAt = fromNullableUnix(completedAt)
	return &t, nil
}
