package state

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/clintrovert/praxis/internal/tracker"
	"github.com/clintrovert/praxis/pkg/types"
)

// CurrentIssue wraps the single issue the user has marked as being worked
// on. The manager owns the active wrapper and disposes the previous one on
// replacement.
type CurrentIssue struct {
	issue    *types.Issue
	provider tracker.Provider
	manager  *Manager
	repoPath string
	logger   *zap.Logger

	once     sync.Once
	cleanups []func()
}

// NewCurrentIssue creates a wrapper. repoPath may be empty when no local
// checkout is available; StartWorking then only records the association.
func NewCurrentIssue(issue *types.Issue, provider tracker.Provider, manager *Manager, repoPath string, logger *zap.Logger) *CurrentIssue {
	return &CurrentIssue{
		issue:    issue,
		provider: provider,
		manager:  manager,
		repoPath: repoPath,
		logger:   logger,
	}
}

// Issue returns the wrapped issue.
func (c *CurrentIssue) Issue() *types.Issue {
	return c.issue
}

// StartWorking checks out a branch derived from the issue and persists the
// branch association.
func (c *CurrentIssue) StartWorking(ctx context.Context) error {
	branch := BranchNameForIssue(c.issue)

	if c.repoPath != "" {
		if err := c.checkoutBranch(branch); err != nil {
			return err
		}
	}

	if err := c.manager.SetSavedIssueState(c.issue.Number, types.IssueState{Branch: branch}); err != nil {
		return err
	}

	c.logger.Info("started working on issue",
		zap.Int("number", c.issue.Number),
		zap.String("branch", branch),
	)
	return nil
}

func (c *CurrentIssue) checkoutBranch(branch string) error {
	r, err := git.PlainOpen(c.repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	w, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	if err := w.Checkout(&git.CheckoutOptions{Branch: ref, Keep: true}); err == nil {
		return nil
	}

	err = w.Checkout(&git.CheckoutOptions{Branch: ref, Create: true, Keep: true})
	if err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branch, err)
	}
	return nil
}

// Dispose releases the wrapper's resources. It runs at most once.
func (c *CurrentIssue) Dispose() {
	c.once.Do(func() {
		for _, fn := range c.cleanups {
			fn()
		}
		c.cleanups = nil
	})
}

// BranchNameForIssue derives a branch name from an issue identifier and a
// truncated, sanitized title.
func BranchNameForIssue(issue *types.Issue) string {
	shortTitle := truncateString(issue.Title, 30)
	return "praxis/" + issue.Identifier() + "-" + sanitizeBranchName(shortTitle)
}

// truncateString keeps at most maxLen runes so truncation never splits a
// multi-byte character.
func truncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

func sanitizeBranchName(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else if r == ' ' {
			result.WriteRune('-')
		}
	}
	return result.String()
}
