// Package repository watches a local git checkout and reports head-commit
// changes, which the state manager uses to invalidate its caches.
package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	git "github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/clintrovert/praxis/internal/events"
)

// Watcher observes the head commit of a repository. Notifications fire only
// when the resolved hash differs from the last observed one, so branch
// switches are reported once regardless of how they were detected.
type Watcher struct {
	repo     *git.Repository
	gitDir   string
	logger   *zap.Logger
	interval time.Duration

	mu       sync.Mutex
	lastHead string

	headChanged events.Emitter[string]
}

// NewWatcher opens the repository at path. interval bounds how stale the
// polling fallback may be when filesystem events are missed.
func NewWatcher(path string, interval time.Duration, logger *zap.Logger) (*Watcher, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	w := &Watcher{
		repo:     repo,
		gitDir:   filepath.Join(path, ".git"),
		logger:   logger,
		interval: interval,
	}

	head, err := w.Head()
	if err != nil {
		return nil, err
	}
	w.lastHead = head

	return w, nil
}

// Head resolves HEAD to a commit hash.
func (w *Watcher) Head() (string, error) {
	ref, err := w.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve head: %w", err)
	}
	return ref.Hash().String(), nil
}

// OnDidChangeHead registers fn to receive the new head hash.
func (w *Watcher) OnDidChangeHead(fn func(head string)) *events.Subscription {
	return w.headChanged.Subscribe(fn)
}

// Start watches .git/HEAD and polls on interval until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.gitDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.gitDir, err)
	}

	go func() {
		defer watcher.Close()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("stopping repository watcher")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != "HEAD" {
					continue
				}
				w.check()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("repository watcher error", zap.Error(err))
			case <-ticker.C:
				w.check()
			}
		}
	}()

	return nil
}

// check fires headChanged when the resolved hash moved.
func (w *Watcher) check() {
	head, err := w.Head()
	if err != nil {
		w.logger.Warn("failed to resolve head", zap.Error(err))
		return
	}

	w.mu.Lock()
	changed := head != w.lastHead
	w.lastHead = head
	w.mu.Unlock()

	if changed {
		w.logger.Info("head commit changed", zap.String("head", head))
		w.headChanged.Fire(head)
	}
}
