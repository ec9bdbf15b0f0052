// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mithril-gateway/mithril/internal/logging"
)

// secretLength is the number of random bytes in a generated signing secret.
const secretLength = 64

// SecretStore persists the token signing secret. Implementations must make
// StoreIfAbsent atomic: under concurrent first use exactly one value wins
// and every caller observes the winning value.
type SecretStore interface {
	// Load returns the stored secret, or nil when none is stored.
	Load(ctx context.Context) ([]byte, error)

	// StoreIfAbsent stores the secret unless one already exists.
	// It returns the stored value, which is the existing secret when the
	// store lost the race.
	StoreIfAbsent(ctx context.Context, secret []byte) ([]byte, error)
}

// StaticSecretStore wraps a secret supplied directly by configuration.
// StoreIfAbsent never replaces the configured value.
type StaticSecretStore struct {
	secret []byte
}

// NewStaticSecretStore creates a store around a base64-encoded secret.
func NewStaticSecretStore(encoded string) (*StaticSecretStore, error) {
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("signing secret is not valid base64: %w", err)
	}
	if len(secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	return &StaticSecretStore{secret: secret}, nil
}

// Load returns the configured secret.
func (s *StaticSecretStore) Load(_ context.Context) ([]byte, error) {
	return s.secret, nil
}

// StoreIfAbsent returns the configured secret; a configured secret is
// never overwritten.
func (s *StaticSecretStore) StoreIfAbsent(_ context.Context, _ []byte) ([]byte, error) {
	return s.secret, nil
}

// FileSecretStore persists the secret as a base64 line in a file.
// Atomicity comes from linking a fully written temp file into place:
// the first writer publishes its file, losers read back the winner's value.
type FileSecretStore struct {
	path string
}

// NewFileSecretStore creates a file-backed secret store.
func NewFileSecretStore(path string) *FileSecretStore {
	return &FileSecretStore{path: path}
}

// Load reads the secret file. A missing file means no secret is stored.
func (s *FileSecretStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	encoded := strings.TrimSpace(string(data))
	if encoded == "" {
		return nil, nil
	}
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secret file %s is corrupt: %w", s.path, err)
	}
	return secret, nil
}

// StoreIfAbsent writes the secret to a temp file and links it into
// place. The link fails when the path already exists, so the file is
// never observable before its contents are complete; when another
// writer got there first the existing value is returned instead.
func (s *FileSecretStore) StoreIfAbsent(ctx context.Context, secret []byte) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return nil, fmt.Errorf("failed to create secret file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoded := base64.StdEncoding.EncodeToString(secret)
	if _, err := tmp.WriteString(encoded + "\n"); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write secret file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close secret file: %w", err)
	}

	if err := os.Link(tmp.Name(), s.path); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to publish secret file: %w", err)
		}
		existing, loadErr := s.Load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		if existing != nil {
			return existing, nil
		}
		// The published file is complete before it becomes visible, so
		// an empty one was put there by something else. Refuse to guess;
		// the operator must remove the file.
		return nil, fmt.Errorf("secret file %s exists but holds no secret", s.path)
	}
	return secret, nil
}

// MemorySecretStore is an in-memory SecretStore for tests.
type MemorySecretStore struct {
	mu     sync.Mutex
	secret []byte
}

// NewMemorySecretStore creates an empty in-memory secret store.
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{}
}

// Load returns the stored secret, or nil.
func (s *MemorySecretStore) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret, nil
}

// StoreIfAbsent stores the secret unless one exists already.
func (s *MemorySecretStore) StoreIfAbsent(_ context.Context, secret []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret != nil {
		return s.secret, nil
	}
	s.secret = secret
	return secret, nil
}

// resolveSecret returns the signing secret, generating and persisting a
// random one on first use. Concurrent first use is settled by the store's
// StoreIfAbsent so every caller ends up signing with the same value.
// A persistence failure is returned as-is: the caller must treat it as
// fatal because tokens signed with an unpersisted secret would not survive
// a restart.
func resolveSecret(ctx context.Context, store SecretStore) ([]byte, error) {
	secret, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if secret != nil {
		return secret, nil
	}

	fresh := make([]byte, secretLength)
	if _, err := rand.Read(fresh); err != nil {
		return nil, fmt.Errorf("failed to generate signing secret: %w", err)
	}

	secret, err = store.StoreIfAbsent(ctx, fresh)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(secret, fresh) {
		logging.Info().Msg("generated random secret for signing tokens")
	}
	return secret, nil
}
