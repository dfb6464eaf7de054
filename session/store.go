// Package session owns the single logical session token shared by both
// backends. The token lives in memory and is mirrored to sqlite so a
// restarted client keeps its conversation. Storage failures degrade to a
// fresh token next run; they never surface past the log.
package session

import (
	"log/slog"
	"sync"

	"bk-voice/storage"

	"github.com/google/uuid"
)

type Store struct {
	logger *slog.Logger
	repo   storage.SessionRepo
	mu     sync.Mutex
	token  string
	loaded bool
}

func NewStore(logger *slog.Logger, repo storage.SessionRepo) *Store {
	return &Store{logger: logger, repo: repo}
}

// Get returns the current token, reading from durable storage on first
// access within this process lifetime.
func (s *Store) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	return s.token, s.token != ""
}

// Set replaces the token in memory and persists it before returning.
// Empty tokens are ignored; the store never holds an empty string as a
// live identity.
func (s *Store) Set(token string) {
	if token == "" {
		s.logger.Warn("ignoring empty session token")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.token = token
	if err := s.repo.SetToken(token); err != nil {
		s.logger.Error("failed to persist session token", "error", err)
	}
}

// Ensure returns the current token, minting and persisting a fresh one if
// none exists yet. The chat backend never issues tokens, so the client has
// to create the identity itself on first use.
func (s *Store) Ensure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	if s.token != "" {
		return s.token
	}
	s.token = uuid.NewString()
	if err := s.repo.SetToken(s.token); err != nil {
		s.logger.Error("failed to persist session token", "error", err)
	}
	return s.token
}

// Clear drops the token from memory and durable storage.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.token = ""
	if err := s.repo.ClearToken(); err != nil {
		s.logger.Error("failed to clear session token", "error", err)
	}
}

func (s *Store) load() {
	if s.loaded {
		return
	}
	s.loaded = true
	token, err := s.repo.GetToken()
	if err != nil {
		s.logger.Error("failed to read session token", "error", err)
		return
	}
	s.token = token
}
