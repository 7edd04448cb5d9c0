// Package state owns the cached views of remote issue and milestone data,
// tracks the user's current issue, and invalidates its caches when the
// repository head or the relevant configuration changes.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/clintrovert/praxis/internal/config"
	"github.com/clintrovert/praxis/internal/events"
	"github.com/clintrovert/praxis/internal/metrics"
	"github.com/clintrovert/praxis/internal/storage"
	"github.com/clintrovert/praxis/internal/tracker"
	"github.com/clintrovert/praxis/pkg/types"
)

const (
	issuesKey       = "issues"
	currentIssueKey = "currentIssue"

	settingsNamespace   = "issues"
	customQueryKey      = "customQuery"
	ignoreMilestonesKey = "ignoreMilestones"

	stateRetention         = 30 * 24 * time.Hour
	resolvedIssueCacheSize = 50
)

// excludedTitleSegments are stripped from milestone titles before attempting
// to parse them as dates.
var excludedTitleSegments = []string{"Recovery"}

// titleDateLayouts are tried in order when deriving a date from a milestone
// title.
var titleDateLayouts = []string{
	"January 2006",
	"Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"2006-01",
}

// farFutureDate sorts milestones with no derivable date after every dated
// milestone in the upcoming group.
var farFutureDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// HeadSource reports the repository's head commit and changes to it.
// *repository.Watcher satisfies it.
type HeadSource interface {
	Head() (string, error)
	OnDidChangeHead(fn func(head string)) *events.Subscription
}

// IssueData is the active cached view: exactly one of the two fields is
// populated, depending on whether a custom query is configured.
type IssueData struct {
	ByMilestone []types.MilestoneBucket
	ByIssue     []*types.Issue
}

// Manager mediates between the tracker provider, the workspace store, and
// consumers of the cached issue/milestone views.
type Manager struct {
	provider  tracker.Provider
	workspace *storage.WorkspaceState
	settings  *config.Settings
	repo      HeadSource // nil when there is no local checkout
	repoPath  string
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu                      sync.Mutex
	customQuery             string
	userMap                 map[string]types.Account
	resolved                *lru.Cache[string, *types.Issue]
	milestones              *future[[]types.MilestoneBucket]
	issues                  *future[[]*types.Issue]
	current                 *CurrentIssue
	lastHead                string
	mostRecentPastTitleTime time.Time

	refreshNeeded  events.Emitter[struct{}]
	dataChanged    events.Emitter[struct{}]
	currentChanged events.Emitter[*CurrentIssue]
	subs           []*events.Subscription
}

// NewManager creates a manager. repo may be nil; repoPath may be empty when
// branch checkout is unavailable.
func NewManager(
	provider tracker.Provider,
	workspace *storage.WorkspaceState,
	settings *config.Settings,
	repo HeadSource,
	repoPath string,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Manager {
	resolved, _ := lru.New[string, *types.Issue](resolvedIssueCacheSize)
	if m == nil {
		m = metrics.Nop()
	}
	return &Manager{
		provider:   provider,
		workspace:  workspace,
		settings:   settings,
		repo:       repo,
		repoPath:   repoPath,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		userMap:    map[string]types.Account{},
		resolved:   resolved,
		milestones: resolvedFuture([]types.MilestoneBucket{}),
		issues:     resolvedFuture([]*types.Issue{}),
	}
}

// Initialize waits until the provider reports its repositories are loaded,
// then performs one-time setup: purge stale persisted issue state, read the
// configured custom query, subscribe to configuration and head changes, load
// the user map, and compute the initial data. Call it once, typically from
// its own goroutine so the caller is not blocked on readiness.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.waitForRepositories(ctx); err != nil {
		return err
	}

	if err := m.cleanIssueState(); err != nil {
		m.logger.Warn("failed to clean issue state", zap.Error(err))
	}

	m.mu.Lock()
	m.customQuery = m.settings.GetString(settingsNamespace, customQueryKey, "")
	m.mu.Unlock()

	m.subs = append(m.subs, m.settings.OnDidChange(func(ns string) {
		if ns != settingsNamespace {
			return
		}
		m.mu.Lock()
		m.customQuery = m.settings.GetString(settingsNamespace, customQueryKey, "")
		m.mu.Unlock()
		m.metrics.CacheInvalidations.Inc()
		m.recompute(context.Background())
	}))

	if m.repo != nil {
		if head, err := m.repo.Head(); err == nil {
			m.mu.Lock()
			m.lastHead = head
			m.mu.Unlock()
		}
		m.subs = append(m.subs, m.repo.OnDidChangeHead(m.onHeadChanged))
	}

	m.subs = append(m.subs, m.refreshNeeded.Subscribe(func(struct{}) {
		m.recompute(context.Background())
	}))

	m.loadUserMap(ctx)
	m.recompute(ctx)
	return nil
}

func (m *Manager) waitForRepositories(ctx context.Context) error {
	ready := make(chan struct{})
	var once sync.Once
	sub := m.provider.OnDidChangeState(func(s tracker.State) {
		if s == tracker.StateRepositoriesLoaded {
			once.Do(func() { close(ready) })
		}
	})
	defer sub.Dispose()

	if m.provider.State() == tracker.StateRepositoriesLoaded {
		return nil
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loadUserMap(ctx context.Context) {
	users, err := m.provider.AssignableUsers(ctx)
	if err != nil {
		m.logger.Warn("failed to load assignable users", zap.Error(err))
		return
	}

	byLogin := make(map[string]types.Account, len(users))
	for _, user := range users {
		byLogin[user.Login] = user
	}

	m.mu.Lock()
	m.userMap = byLogin
	m.mu.Unlock()

	m.logger.Info("loaded user map", zap.Int("users", len(byLogin)))
}

// User looks up an account by login in the user map.
func (m *Manager) User(login string) (types.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.userMap[login]
	return account, ok
}

// onHeadChanged recomputes data once per distinct head commit. Repeated
// notifications for the same hash are ignored.
func (m *Manager) onHeadChanged(head string) {
	m.mu.Lock()
	if head == m.lastHead {
		m.mu.Unlock()
		return
	}
	m.lastHead = head
	m.mu.Unlock()

	m.logger.Info("head changed, invalidating caches", zap.String("head", head))
	m.metrics.CacheInvalidations.Inc()
	m.recompute(context.Background())
}

// RefreshCacheNeeded signals that cached data is stale and must be
// recomputed, e.g. after a mutation performed elsewhere.
func (m *Manager) RefreshCacheNeeded() {
	m.metrics.CacheInvalidations.Inc()
	m.refreshNeeded.Fire(struct{}{})
}

// OnRefreshCacheNeeded registers fn for external refresh signals.
func (m *Manager) OnRefreshCacheNeeded(fn func()) *events.Subscription {
	return m.refreshNeeded.Subscribe(func(struct{}) { fn() })
}

// OnDidChangeIssueData registers fn to run after each recomputation settles.
func (m *Manager) OnDidChangeIssueData(fn func()) *events.Subscription {
	return m.dataChanged.Subscribe(func(struct{}) { fn() })
}

// OnDidChangeCurrentIssue registers fn for current-issue changes.
func (m *Manager) OnDidChangeCurrentIssue(fn func(*CurrentIssue)) *events.Subscription {
	return m.currentChanged.Subscribe(fn)
}

// IssueData returns the active view. With a custom query configured it
// awaits the flat issue list; otherwise the milestone buckets. A failed
// fetch surfaces as the returned error.
func (m *Manager) IssueData(ctx context.Context) (IssueData, error) {
	m.mu.Lock()
	query := m.customQuery
	milestones := m.milestones
	issues := m.issues
	m.mu.Unlock()

	if query != "" {
		items, err := issues.await(ctx)
		if err != nil {
			return IssueData{}, err
		}
		return IssueData{ByIssue: items}, nil
	}

	buckets, err := milestones.await(ctx)
	if err != nil {
		return IssueData{}, err
	}
	return IssueData{ByMilestone: buckets}, nil
}

// Milestones awaits the milestone view regardless of query mode. While a
// custom query is active it resolves to an empty list.
func (m *Manager) Milestones(ctx context.Context) ([]types.MilestoneBucket, error) {
	m.mu.Lock()
	milestones := m.milestones
	m.mu.Unlock()
	return milestones.await(ctx)
}

// recompute reassigns the cached futures and fetches in the background.
// Overlapping calls may race; the latest assignment is authoritative, and
// each settled fetch fires a data-changed notification.
func (m *Manager) recompute(ctx context.Context) {
	m.mu.Lock()
	query := m.customQuery

	if query != "" {
		m.milestones = resolvedFuture([]types.MilestoneBucket{})
		f := newFuture[[]*types.Issue]()
		m.issues = f
		m.mu.Unlock()

		go func() {
			m.metrics.RemoteFetches.WithLabelValues("issues").Inc()
			items, err := m.provider.Issues(ctx, tracker.DefaultFetchOptions, query)
			if err != nil {
				m.logger.Warn("issue query failed", zap.Error(err))
			}
			f.complete(items, err)
			m.dataChanged.Fire(struct{}{})
		}()
		return
	}

	m.issues = resolvedFuture([]*types.Issue{})
	f := newFuture[[]types.MilestoneBucket]()
	m.milestones = f
	m.mu.Unlock()

	go func() {
		m.metrics.RemoteFetches.WithLabelValues("milestones").Inc()
		buckets, err := m.provider.Milestones(ctx, tracker.DefaultFetchOptions, true)
		if err != nil {
			m.logger.Warn("milestone fetch failed", zap.Error(err))
			f.complete(nil, err)
		} else {
			f.complete(m.prepareMilestones(buckets), nil)
		}
		m.dataChanged.Fire(struct{}{})
	}()
}

// prepareMilestones filters, orders, and side-effects the fetched buckets:
// empty and ignore-listed milestones are dropped, a persisted current issue
// is restored on the first matching issue number, and the result is ordered
// with upcoming milestones ascending followed by past milestones
// most-recent-first, split at the most recent past date.
func (m *Manager) prepareMilestones(buckets []types.MilestoneBucket) []types.MilestoneBucket {
	ignored := map[string]struct{}{}
	for _, title := range m.settings.GetStringSlice(settingsNamespace, ignoreMilestonesKey) {
		ignored[title] = struct{}{}
	}

	now := m.now()
	persistedNumber := m.persistedCurrentIssueNumber()
	restored := m.CurrentIssue() != nil

	type datedBucket struct {
		bucket types.MilestoneBucket
		date   time.Time
	}

	var kept []datedBucket
	var mostRecentPast time.Time
	for _, bucket := range buckets {
		if len(bucket.Issues) == 0 {
			continue
		}
		if _, skip := ignored[bucket.Milestone.Title]; skip {
			continue
		}

		if !restored && persistedNumber != 0 {
			for _, issue := range bucket.Issues {
				if issue.Number == persistedNumber {
					if err := m.SetCurrentIssue(m.NewCurrentIssue(issue)); err != nil {
						m.logger.Warn("failed to restore current issue", zap.Error(err))
					}
					restored = true
					break
				}
			}
		}

		date := milestoneDate(bucket.Milestone)
		if !date.After(now) && date.After(mostRecentPast) {
			mostRecentPast = date
		}
		kept = append(kept, datedBucket{bucket: bucket, date: date})
	}

	m.mu.Lock()
	m.mostRecentPastTitleTime = mostRecentPast
	m.mu.Unlock()

	sort.Slice(kept, func(i, j int) bool {
		a, b := kept[i].date, kept[j].date
		if !a.Before(mostRecentPast) && !b.Before(mostRecentPast) {
			return a.Before(b)
		}
		return a.After(b)
	})

	out := make([]types.MilestoneBucket, len(kept))
	for i, db := range kept {
		out[i] = db.bucket
	}
	return out
}

// MostRecentPastTitleTime reports the pivot date from the last milestone
// ordering pass: the latest milestone date on or before now. Milestones dated
// on or after it sort ascending; older ones follow in descending order.
func (m *Manager) MostRecentPastTitleTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mostRecentPastTitleTime
}

// milestoneDate derives the sortable date for a milestone: due date if
// present, otherwise the title parsed as a date, otherwise the creation
// date. Milestones with none of the three sort to the far future.
func milestoneDate(ms types.Milestone) time.Time {
	if ms.DueOn != nil {
		return *ms.DueOn
	}
	if t, ok := parseTitleDate(ms.Title); ok {
		return t
	}
	if !ms.CreatedAt.IsZero() {
		return ms.CreatedAt
	}
	return farFutureDate
}

func parseTitleDate(title string) (time.Time, bool) {
	for _, segment := range excludedTitleSegments {
		title = strings.ReplaceAll(title, segment, "")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return time.Time{}, false
	}
	for _, layout := range titleDateLayouts {
		if t, err := time.Parse(layout, title); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ResolveIssue returns the hydrated issue, serving repeated lookups from the
// LRU cache.
func (m *Manager) ResolveIssue(ctx context.Context, number int) (*types.Issue, error) {
	key := strconv.Itoa(number)
	if issue, ok := m.resolved.Get(key); ok {
		m.metrics.ResolvedCacheHits.Inc()
		return issue, nil
	}

	m.metrics.ResolvedCacheMiss.Inc()
	issue, err := m.provider.ResolveIssue(ctx, number)
	if err != nil {
		return nil, err
	}
	m.resolved.Add(key, issue)
	return issue, nil
}

// cleanIssueState drops persisted entries older than the retention window
// and writes the cleaned set back to the store.
func (m *Manager) cleanIssueState() error {
	state := m.readIssueState()
	cutoff := m.now().Add(-stateRetention).UnixMilli()
	for key, entry := range state.Issues {
		if entry.StateModifiedTime < cutoff {
			delete(state.Issues, key)
		}
	}
	return m.writeIssueState(state)
}

// readIssueState parses the persisted blob. Absent or malformed data is
// treated as empty state, not an error.
func (m *Manager) readIssueState() types.PersistedIssueState {
	empty := types.PersistedIssueState{Issues: map[string]types.IssueState{}}

	raw, err := m.workspace.Get(issuesKey)
	if err != nil {
		m.logger.Warn("failed to read issue state", zap.Error(err))
		return empty
	}
	if raw == "" {
		return empty
	}

	var parsed types.PersistedIssueState
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		m.logger.Warn("malformed issue state, starting fresh", zap.Error(err))
		return empty
	}
	if parsed.Issues == nil {
		parsed.Issues = map[string]types.IssueState{}
	}
	return parsed
}

func (m *Manager) writeIssueState(state types.PersistedIssueState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal issue state: %w", err)
	}
	return m.workspace.Update(issuesKey, string(data))
}

// SavedIssueState returns the persisted record for an issue, zero-valued
// when absent.
func (m *Manager) SavedIssueState(number int) types.IssueState {
	state := m.readIssueState()
	return state.Issues[strconv.Itoa(number)]
}

// SetSavedIssueState writes the record for an issue, stamping it with the
// current time.
func (m *Manager) SetSavedIssueState(number int, s types.IssueState) error {
	state := m.readIssueState()
	s.StateModifiedTime = m.now().UnixMilli()
	state.Issues[strconv.Itoa(number)] = s
	return m.writeIssueState(state)
}

// NewCurrentIssue creates a wrapper bound to this manager's provider and
// repository path.
func (m *Manager) NewCurrentIssue(issue *types.Issue) *CurrentIssue {
	return NewCurrentIssue(issue, m.provider, m, m.repoPath, m.logger)
}

// CurrentIssue returns the active issue wrapper, or nil.
func (m *Manager) CurrentIssue() *CurrentIssue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrentIssue replaces the active issue wrapper. The previous wrapper is
// disposed, the new issue number is persisted (or cleared when ci is nil),
// and subscribers are notified.
func (m *Manager) SetCurrentIssue(ci *CurrentIssue) error {
	m.mu.Lock()
	prev := m.current
	m.current = ci
	m.mu.Unlock()

	if prev != nil {
		prev.Dispose()
	}

	var err error
	if ci == nil {
		err = m.workspace.Delete(currentIssueKey)
	} else {
		err = m.workspace.Update(currentIssueKey, strconv.Itoa(ci.Issue().Number))
	}
	if err != nil {
		return fmt.Errorf("failed to persist current issue: %w", err)
	}

	m.currentChanged.Fire(ci)
	return nil
}

func (m *Manager) persistedCurrentIssueNumber() int {
	raw, err := m.workspace.Get(currentIssueKey)
	if err != nil || raw == "" {
		return 0
	}
	number, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return number
}

// Dispose releases the manager's subscriptions and the current issue.
func (m *Manager) Dispose() {
	for _, sub := range m.subs {
		sub.Dispose()
	}
	m.subs = nil

	m.mu.Lock()
	current := m.current
	m.current = nil
	m.mu.Unlock()
	if current != nil {
		current.Dispose()
	}
}
