// Package config reads user settings from a YAML file and notifies
// subscribers when the file changes on disk. Settings are grouped by
// namespace, e.g.:
//
//	issues:
//	  customQuery: "is:open assignee:@me"
//	  ignoreMilestones:
//	    - Backlog
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/clintrovert/praxis/internal/events"
)

// Settings is a namespaced view over the settings file. All getters fall
// back to the supplied default when the key is absent or has the wrong type.
type Settings struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	values map[string]map[string]any

	changed events.Emitter[string]
}

// Load reads the settings file at path. A missing file yields empty settings
// rather than an error; the file may appear later and a Watch will pick it up.
func Load(path string, logger *zap.Logger) (*Settings, error) {
	s := &Settings{
		path:   path,
		logger: logger,
		values: map[string]map[string]any{},
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the settings file and fires a change notification for
// every namespace whose values differ.
func (s *Settings) Reload() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		data = nil
	} else if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	parsed := map[string]map[string]any{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("parse settings: %w", err)
		}
	}

	s.mu.Lock()
	old := s.values
	s.values = parsed
	s.mu.Unlock()

	for ns := range union(old, parsed) {
		if !reflect.DeepEqual(old[ns], parsed[ns]) {
			s.changed.Fire(ns)
		}
	}
	return nil
}

func union(a, b map[string]map[string]any) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// GetString returns the string value under namespace.key, or def.
func (s *Settings) GetString(namespace, key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.values[namespace][key].(string); ok {
		return v
	}
	return def
}

// GetStringSlice returns the list value under namespace.key, or nil.
func (s *Settings) GetStringSlice(namespace, key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.values[namespace][key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// OnDidChange registers fn for change notifications. The argument is the
// namespace whose values changed, so subscribers can filter.
func (s *Settings) OnDidChange(fn func(namespace string)) *events.Subscription {
	return s.changed.Subscribe(fn)
}

// Watch reloads the settings file whenever it changes, until done is closed.
// It watches the parent directory so editors that replace the file by rename
// are still observed.
func (s *Settings) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("failed to reload settings", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("settings watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
