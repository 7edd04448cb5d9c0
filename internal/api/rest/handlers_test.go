package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clintrovert/praxis/internal/config"
	"github.com/clintrovert/praxis/internal/events"
	"github.com/clintrovert/praxis/internal/state"
	"github.com/clintrovert/praxis/internal/storage"
	"github.com/clintrovert/praxis/internal/tracker"
	"github.com/clintrovert/praxis/pkg/types"
)

type stubProvider struct {
	changed events.Emitter[tracker.State]
	buckets []types.MilestoneBucket
}

func (p *stubProvider) State() tracker.State { return tracker.StateRepositoriesLoaded }

func (p *stubProvider) OnDidChangeState(fn func(tracker.State)) *events.Subscription {
	return p.changed.Subscribe(fn)
}

func (p *stubProvider) Load(context.Context) error { return nil }

func (p *stubProvider) Issues(context.Context, tracker.FetchOptions, string) ([]*types.Issue, error) {
	return nil, nil
}

func (p *stubProvider) Milestones(context.Context, tracker.FetchOptions, bool) ([]types.MilestoneBucket, error) {
	return p.buckets, nil
}

func (p *stubProvider) AssignableUsers(context.Context) ([]types.Account, error) { return nil, nil }

func (p *stubProvider) ResolveIssue(_ context.Context, number int) (*types.Issue, error) {
	return &types.Issue{Number: number, Title: "resolved"}, nil
}

func newTestRouter(t *testing.T) (chi.Router, *state.Manager) {
	t.Helper()

	ws, err := storage.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	settingsPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(settingsPath, []byte(""), 0644))
	settings, err := config.Load(settingsPath, zap.NewNop())
	require.NoError(t, err)

	provider := &stubProvider{buckets: []types.MilestoneBucket{
		{
			Milestone: types.Milestone{Title: "1.0.0", CreatedAt: time.Now()},
			Issues:    []*types.Issue{{Number: 1, Title: "first"}},
		},
	}}

	manager := state.NewManager(provider, ws, settings, nil, "", nil, zap.NewNop())
	t.Cleanup(manager.Dispose)
	require.NoError(t, manager.Initialize(context.Background()))

	router := chi.NewRouter()
	NewHandler(manager, zap.NewNop()).RegisterRoutes(router)
	return router, manager
}

func TestGetIssueData(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/issues", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp IssueDataResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.ByMilestone, 1)
	assert.Equal(t, "1.0.0", resp.ByMilestone[0].Title)
	require.Len(t, resp.ByMilestone[0].Issues, 1)
	assert.Equal(t, 1, resp.ByMilestone[0].Issues[0].Number)
}

func TestGetMilestones(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/milestones", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var groups []MilestoneGroup
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "1.0.0", groups[0].Title)
	require.Len(t, groups[0].Issues, 1)
	assert.Equal(t, 1, groups[0].Issues[0].Number)
}

func TestCurrentIssueLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/current", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/current", strings.NewReader(`{"number": 5}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var current IssueSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&current))
	assert.Equal(t, 5, current.Number)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/current", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSetCurrentIssueRejectsBadBody(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/current", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
