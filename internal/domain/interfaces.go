package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// TaskStore persists task records. Implemented by infra/sqlite.DB.
type TaskStore interface {
	// LoadTask returns nil, nil when the task does not exist.
	LoadTask(ctx context.Context, id string) (*Task, error)

	// SaveTask inserts or replaces the full record.
	SaveTask(ctx context.Context, t Task) error

	// ListActiveTasks returns every waiting or processing task.
	ListActiveTasks(ctx context.Context) ([]Task, error)

	// ListTasks returns the most recent tasks, newest first.
	ListTasks(ctx context.Context, limit int) ([]Task, error)

	// ListFinishedBefore returns terminal tasks completed before cutoff.
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]Task, error)

	DeleteTask(ctx context.Context, id string) error
}

// CredentialStore resolves API keys. Implemented by infra/sqlite.DB.
type CredentialStore interface {
	// LookupCredential returns nil, nil when the key does not exist.
	LookupCredential(ctx context.Context, name string) (*Credential, error)

	// LookupCredentialByHash returns nil, nil when no key carries the hash.
	LookupCredentialByHash(ctx context.Context, secretHash string) (*Credential, error)

	SaveCredential(ctx context.Context, c Credential) error
	DeleteCredential(ctx context.Context, name string) error
	ListCredentials(ctx context.Context) ([]Credential, error)
}

// Metadata is what the download engine reports about a finished download.
type Metadata struct {
	Title    string
	Duration float64 // seconds
}

// DownloadEngine fetches media into destDir. Implemented by infra/engine.
// The engine chooses file names only from the output template it is given.
type DownloadEngine interface {
	Download(ctx context.Context, url string, taskType TaskType, format FormatOptions, destDir string) (Metadata, error)
}
