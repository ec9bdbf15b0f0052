// Mithril - Authentication Gateway for Search Applications
// Copyright 2026 Mithril Gateway Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mithril-gateway/mithril

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"
)

// User store errors.
var (
	// ErrBadCredentials covers both an unknown username and a wrong
	// password; callers must not be able to tell the two apart.
	ErrBadCredentials = errors.New("invalid username or password")

	// ErrUserExists indicates a create collided with an existing
	// username.
	ErrUserExists = errors.New("user already exists")
)

// SecondFactor is a user's one-time-code enrollment. A factor starts
// unverified; the first successful code submission flips Verified.
type SecondFactor struct {
	Secret   string `json:"secret"`
	Verified bool   `json:"verified"`
}

// User is one record in the local store.
type User struct {
	Username     string        `json:"username"`
	PasswordHash string        `json:"password_hash"`
	Groups       []string      `json:"groups"`
	SecondFactor *SecondFactor `json:"second_factor,omitempty"`
}

// FileUserStore keeps users in a JSON file on disk. All mutations are
// persisted before they are visible to other callers.
type FileUserStore struct {
	path string

	mu    sync.RWMutex
	users map[string]*User
}

type userFile struct {
	Users []*User `json:"users"`
}

// NewFileUserStore opens the store at path, creating an empty store in
// memory when the file does not exist yet.
func NewFileUserStore(path string) (*FileUserStore, error) {
	s := &FileUserStore{
		path:  path,
		users: make(map[string]*User),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user file: %w", err)
	}

	var file userFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse user file %s: %w", path, err)
	}
	for _, u := range file.Users {
		s.users[u.Username] = u
	}
	return s, nil
}

// Create adds a user with a freshly hashed password, default group
// membership and an unverified second factor.
func (s *FileUserStore) Create(username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	secret, err := newFactorSecret()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return nil, ErrUserExists
	}

	user := &User{
		Username:     username,
		PasswordHash: string(hash),
		Groups:       []string{"default"},
		SecondFactor: &SecondFactor{Secret: secret},
	}
	s.users[username] = user
	if err := s.persistLocked(); err != nil {
		delete(s.users, username)
		return nil, err
	}
	return user, nil
}

// Authenticate checks the password against the stored hash. Unknown
// usernames and wrong passwords are indistinguishable to the caller.
func (s *FileUserStore) Authenticate(username, password string) (*User, error) {
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		// Burn comparable time for unknown users so the response does
		// not leak which usernames exist.
		_ = bcrypt.CompareHashAndPassword(unknownUserHash, []byte(password))
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return user.clone(), nil
}

// MarkFactorVerified records that the user's second factor has been
// confirmed with a valid code.
func (s *FileUserStore) MarkFactorVerified(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return ErrBadCredentials
	}
	if user.SecondFactor == nil || user.SecondFactor.Verified {
		return nil
	}
	user.SecondFactor.Verified = true
	if err := s.persistLocked(); err != nil {
		user.SecondFactor.Verified = false
		return err
	}
	return nil
}

// Get returns the user record, or nil when absent.
func (s *FileUserStore) Get(username string) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[username]; ok {
		return user.clone()
	}
	return nil
}

func (s *FileUserStore) persistLocked() error {
	file := userFile{Users: make([]*User, 0, len(s.users))}
	for _, u := range s.users {
		file.Users = append(file.Users, u)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create user file directory: %w", err)
	}

	// Write-then-rename so a crash mid-write never truncates the store.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write user file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace user file: %w", err)
	}
	return nil
}

func (u *User) clone() *User {
	out := *u
	out.Groups = append([]string(nil), u.Groups...)
	if u.SecondFactor != nil {
		sf := *u.SecondFactor
		out.SecondFactor = &sf
	}
	return &out
}

// unknownUserHash is a valid bcrypt hash of an unguessable value, used
// only to equalize timing for unknown usernames.
var unknownUserHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMye1VdLY0cT8cALGcVDvH2xMRTBSZR8O1m")
