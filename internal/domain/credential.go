package domain

import (
	"sort"
	"strings"
	"time"
)

// Permission names a capability an API key may hold.
type Permission string

const (
	PermGetAudio Permission = "get_audio"
	PermGetVideo Permission = "get_video"
	PermAdmin    Permission = "admin"
)

// ParsePermissions parses a comma-separated permission list.
// Unknown names are rejected with ErrInvalidRequest.
func ParsePermissions(s string) ([]Permission, error) {
	var perms []Permission
	seen := make(map[Permission]bool)
	for _, part := range strings.Split(s, ",") {
		p := Permission(strings.TrimSpace(part))
		if p == "" {
			continue
		}
		switch p {
		case PermGetAudio, PermGetVideo, PermAdmin:
		default:
			return nil, ErrInvalidRequest
		}
		if !seen[p] {
			seen[p] = true
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms, nil
}

// Credential is a named API key with a permission set.
// SecretHash is the hex SHA-256 of the secret; the secret itself is never stored.
type Credential struct {
	Name        string       `json:"name"`
	SecretHash  string       `json:"-"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Allows reports whether the credential may submit tasks of type t.
func (c *Credential) Allows(t TaskType) bool {
	for _, p := range c.Permissions {
		if p == PermAdmin || string(p) == string(t) {
			return true
		}
	}
	return false
}

// HasPermission reports whether p was granted explicitly or through admin.
func (c *Credential) HasPermission(p Permission) bool {
	for _, have := range c.Permissions {
		if have == p || have == PermAdmin {
			return true
		}
	}
	return false
}

// PermissionString joins the permission set for display and storage.
func (c *Credential) PermissionString() string {
	parts := make([]string, len(c.Permissions))
	for i, p := range c.Permissions {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}
