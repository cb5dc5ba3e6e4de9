package domain

import (
	"errors"
	"testing"
)

func TestParsePermissions(t *testing.T) {
	perms, err := ParsePermissions("get_video, get_audio,get_audio")
	if err != nil {
		t.Fatalf("ParsePermissions() error: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("len(perms) = %d, want 2", len(perms))
	}
	if perms[0] != PermGetAudio || perms[1] != PermGetVideo {
		t.Errorf("perms = %v, want [get_audio get_video]", perms)
	}

	if _, err := ParsePermissions("get_audio,root"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("unknown permission error = %v, want ErrInvalidRequest", err)
	}
}

func TestCredential_Allows(t *testing.T) {
	audioOnly := Credential{Name: "a", Permissions: []Permission{PermGetAudio}}
	if !audioOnly.Allows(TaskAudio) {
		t.Error("audio key should allow get_audio")
	}
	if audioOnly.Allows(TaskVideo) {
		t.Error("audio key should not allow get_video")
	}

	admin := Credential{Name: "root", Permissions: []Permission{PermAdmin}}
	if !admin.Allows(TaskAudio) || !admin.Allows(TaskVideo) {
		t.Error("admin should allow every task type")
	}

	none := Credential{Name: "n"}
	if none.Allows(TaskAudio) {
		t.Error("key without permissions should allow nothing")
	}
}

func TestCredential_PermissionString(t *testing.T) {
	c := Credential{Permissions: []Permission{PermGetAudio, PermGetVideo}}
	if got := c.PermissionString(); got != "get_audio,get_video" {
		t.Errorf("PermissionString() = %q, want %q", got, "get_audio,get_video")
	}
}

func TestCredential_HasPermission(t *testing.T) {
	user := Credential{Permissions: []Permission{PermGetAudio}}
	if user.HasPermission(PermAdmin) {
		t.Error("plain key should not hold admin")
	}
	admin := Credential{Permissions: []Permission{PermAdmin}}
	if !admin.HasPermission(PermGetVideo) {
		t.Error("admin should hold every permission")
	}
}
