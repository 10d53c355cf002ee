// Package session holds the operator's bearer credential and persists it in a
// local SQLite state database so the session survives console restarts.
package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const tokenKey = "access_token"

// Store is the durable session store. A nil token means unauthenticated.
// Safe for concurrent use; repository calls read the token while login,
// setup, and logout mutate it.
type Store struct {
	mu    sync.RWMutex
	db    *sql.DB
	token string
}

// Open opens (creating if needed) the state database at path and loads any
// persisted token.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenEphemeral returns a store with no durable backing, for tests and for
// one-shot commands that pass a token explicitly.
func OpenEphemeral() *Store {
	return &Store{}
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *Store) load() error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, tokenKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session token: %w", err)
	}
	s.token = value
	return nil
}

// Token returns the current bearer token, or "" when unauthenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken stores the token in memory and in the state database.
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		tokenKey, token,
	)
	if err != nil {
		return fmt.Errorf("failed to persist session token: %w", err)
	}
	return nil
}

// Clear removes the token everywhere. Idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec(`DELETE FROM state WHERE key = ?`, tokenKey); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	return nil
}

// Close closes the state database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
