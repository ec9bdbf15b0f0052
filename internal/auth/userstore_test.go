// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestUserStore(t *testing.T) *FileUserStore {
	t.Helper()
	store, err := NewFileUserStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("NewFileUserStore failed: %v", err)
	}
	return store
}

func TestFileUserStore_CreateDefaults(t *testing.T) {
	store := newTestUserStore(t)

	user, err := store.Create("alice", "hunter22")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !reflect.DeepEqual(user.Groups, []string{"default"}) {
		t.Errorf("Expected groups [default], got %v", user.Groups)
	}
	if user.SecondFactor == nil || user.SecondFactor.Verified {
		t.Error("Expected an unverified second factor on creation")
	}
	if user.SecondFactor != nil && user.SecondFactor.Secret == "" {
		t.Error("Expected a provisioning secret on creation")
	}
	if user.PasswordHash == "hunter22" {
		t.Error("Password stored in the clear")
	}
}

func TestFileUserStore_Authenticate(t *testing.T) {
	store := newTestUserStore(t)
	if _, err := store.Create("alice", "hunter22"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid", "alice", "hunter22", nil},
		{"wrong password", "alice", "wrong", ErrBadCredentials},
		{"unknown user", "mallory", "hunter22", ErrBadCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Authenticate(tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFileUserStore_DuplicateCreate(t *testing.T) {
	store := newTestUserStore(t)
	if _, err := store.Create("alice", "hunter22"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Create("alice", "other"); !errors.Is(err, ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
}

func TestFileUserStore_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	store, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore failed: %v", err)
	}
	if _, err := store.Create("alice", "hunter22"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.MarkFactorVerified("alice"); err != nil {
		t.Fatalf("MarkFactorVerified failed: %v", err)
	}

	reloaded, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	user, err := reloaded.Authenticate("alice", "hunter22")
	if err != nil {
		t.Fatalf("Authenticate after reload failed: %v", err)
	}
	if user.SecondFactor == nil || !user.SecondFactor.Verified {
		t.Error("Verified second factor did not survive reload")
	}
}

func TestFileUserStore_CloneIsolation(t *testing.T) {
	store := newTestUserStore(t)
	if _, err := store.Create("alice", "hunter22"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	user := store.Get("alice")
	user.Groups[0] = "mutated"
	user.SecondFactor.Verified = true

	fresh := store.Get("alice")
	if fresh.Groups[0] != "default" || fresh.SecondFactor.Verified {
		t.Error("Mutating a returned user leaked into the store")
	}
}
