package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ytdlhost/ytdlhost/internal/domain"
)

// ─── Credential Repository ──────────────────────────────────────────────────

// SaveCredential inserts a new API key. Names are unique.
func (d *DB) SaveCredential(ctx context.Context, c domain.Credential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO api_keys (name, secret_hash, permissions, created_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.SecretHash, c.PermissionString(), c.CreatedAt.Unix(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return domain.ErrCredentialExists
	}
	return err
}

// LookupCredential returns the key by name, or nil, nil when absent.
func (d *DB) LookupCredential(ctx context.Context, name string) (*domain.Credential, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT name, secret_hash, permissions, created_at FROM api_keys WHERE name = ?`, name,
	)
	return scanCredential(row)
}

// LookupCredentialByHash returns the key whose secret hashes to secretHash.
func (d *DB) LookupCredentialByHash(ctx context.Context, secretHash string) (*domain.Credential, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT name, secret_hash, permissions, created_at FROM api_keys WHERE secret_hash = ?`, secretHash,
	)
	return scanCredential(row)
}

// ListCredentials returns all keys ordered by name.
func (d *DB) ListCredentials(ctx context.Context) ([]domain.Credential, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name, secret_hash, permissions, created_at FROM api_keys ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *c)
	}
	return creds, rows.Err()
}

// DeleteCredential removes a key by name.
func (d *DB) DeleteCredential(ctx context.Context, name string) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM api_keys WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrUnknownKey
	}
	return nil
}

func scanCredential(s scanner) (*domain.Credential, error) {
	var c domain.Credential
	var perms string
	var createdAt int64

	err := s.Scan(&c.Name, &c.SecretHash, &perms, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	parsed, err := domain.ParsePermissions(perms)
	if err != nil {
		return nil, err
	}
	c.Permissions = parsed
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}
