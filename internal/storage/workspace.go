// Package storage persists workspace-scoped session state as a string
// key-value table, mirroring the host editor's workspaceState semantics:
// reads of missing keys yield an empty value, writes upsert.
package storage

import (
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// WorkspaceState is a sqlite-backed key-value store.
type WorkspaceState struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// Open opens (or creates) the store at path. Use ":memory:" for tests.
func Open(path string, logger *zap.Logger) (*WorkspaceState, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	s := &WorkspaceState{db: db, logger: logger}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *WorkspaceState) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workspace_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the value stored under key, or "" if the key is absent.
func (s *WorkspaceState) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM workspace_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Update stores value under key, replacing any previous value.
func (s *WorkspaceState) Update(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO workspace_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("update %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *WorkspaceState) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM workspace_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *WorkspaceState) Close() error {
	return s.db.Close()
}
