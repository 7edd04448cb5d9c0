// Package tracker defines the remote issue-tracker boundary and its GitHub
// and Jira implementations.
package tracker

import (
	"context"
	"sync"

	"github.com/clintrovert/praxis/internal/events"
	"github.com/clintrovert/praxis/pkg/types"
)

// State is the provider's readiness.
type State int

const (
	StateInitializing State = iota
	StateNeedsAuthentication
	StateRepositoriesLoaded
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateNeedsAuthentication:
		return "needs-authentication"
	case StateRepositoriesLoaded:
		return "repositories-loaded"
	default:
		return "unknown"
	}
}

// FetchOptions tunes a listing call.
type FetchOptions struct {
	PageSize int
}

// DefaultFetchOptions is used when the caller has no preference.
var DefaultFetchOptions = FetchOptions{PageSize: 100}

// Provider is the remote issue-tracker client consumed by the state manager.
type Provider interface {
	// State reports readiness; Load moves it to StateRepositoriesLoaded.
	State() State
	OnDidChangeState(fn func(State)) *events.Subscription

	// Load verifies the remote repository/project is reachable. It must be
	// called before the listing methods.
	Load(ctx context.Context) error

	// Issues runs a custom query and returns the flat issue list.
	Issues(ctx context.Context, opts FetchOptions, query string) ([]*types.Issue, error)

	// Milestones returns open milestones with their issues. When
	// includeIssuesWithoutMilestone is set, a trailing synthetic bucket
	// holds the unassigned issues.
	Milestones(ctx context.Context, opts FetchOptions, includeIssuesWithoutMilestone bool) ([]types.MilestoneBucket, error)

	// AssignableUsers lists accounts that can be assigned to issues.
	AssignableUsers(ctx context.Context) ([]types.Account, error)

	// ResolveIssue hydrates a single issue by number.
	ResolveIssue(ctx context.Context, number int) (*types.Issue, error)
}

// stateTracker implements the readiness half of Provider; both concrete
// providers embed it.
type stateTracker struct {
	mu      sync.Mutex
	state   State
	changed events.Emitter[State]
}

func (t *stateTracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *stateTracker) OnDidChangeState(fn func(State)) *events.Subscription {
	return t.changed.Subscribe(fn)
}

func (t *stateTracker) setState(s State) {
	t.mu.Lock()
	if t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	t.mu.Unlock()
	t.changed.Fire(s)
}
