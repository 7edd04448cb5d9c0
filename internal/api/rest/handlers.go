// Package rest exposes the cached issue/milestone views over HTTP.
package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clintrovert/praxis/internal/state"
	"github.com/clintrovert/praxis/pkg/types"
)

// Handler handles REST API requests
type Handler struct {
	manager *state.Manager
	logger  *zap.Logger
}

// NewHandler creates a new REST handler
func NewHandler(manager *state.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger,
	}
}

// IssueSummary is the wire form of an issue.
type IssueSummary struct {
	Number    int    `json:"number"`
	Key       string `json:"key,omitempty"`
	Title     string `json:"title"`
	State     string `json:"state,omitempty"`
	Milestone string `json:"milestone,omitempty"`
	URL       string `json:"url,omitempty"`
}

// MilestoneGroup is the wire form of a milestone bucket.
type MilestoneGroup struct {
	Title  string         `json:"title"`
	DueOn  *time.Time     `json:"due_on,omitempty"`
	Issues []IssueSummary `json:"issues"`
}

// IssueDataResponse carries whichever view is active.
type IssueDataResponse struct {
	ByMilestone []MilestoneGroup `json:"by_milestone,omitempty"`
	ByIssue     []IssueSummary   `json:"by_issue,omitempty"`
}

// CurrentIssueRequest selects the issue to mark as being worked on.
type CurrentIssueRequest struct {
	Number       int  `json:"number"`
	StartWorking bool `json:"start_working,omitempty"`
}

// GetIssueData handles GET /issues
func (h *Handler) GetIssueData(w http.ResponseWriter, r *http.Request) {
	data, err := h.manager.IssueData(r.Context())
	if err != nil {
		h.logger.Error("failed to get issue data", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp := IssueDataResponse{}
	for _, bucket := range data.ByMilestone {
		resp.ByMilestone = append(resp.ByMilestone, MilestoneGroup{
			Title:  bucket.Milestone.Title,
			DueOn:  bucket.Milestone.DueOn,
			Issues: summarize(bucket.Issues),
		})
	}
	resp.ByIssue = summarize(data.ByIssue)

	writeJSON(w, resp)
}

// GetMilestones handles GET /milestones
func (h *Handler) GetMilestones(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.manager.Milestones(r.Context())
	if err != nil {
		h.logger.Error("failed to get milestones", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	groups := make([]MilestoneGroup, 0, len(buckets))
	for _, bucket := range buckets {
		groups = append(groups, MilestoneGroup{
			Title:  bucket.Milestone.Title,
			DueOn:  bucket.Milestone.DueOn,
			Issues: summarize(bucket.Issues),
		})
	}
	writeJSON(w, groups)
}

// Refresh handles POST /refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.manager.RefreshCacheNeeded()
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status": "refreshing"}`))
}

// GetCurrentIssue handles GET /current
func (h *Handler) GetCurrentIssue(w http.ResponseWriter, r *http.Request) {
	current := h.manager.CurrentIssue()
	if current == nil {
		http.Error(w, "no current issue", http.StatusNotFound)
		return
	}
	writeJSON(w, summarizeOne(current.Issue()))
}

// SetCurrentIssue handles PUT /current
func (h *Handler) SetCurrentIssue(w http.ResponseWriter, r *http.Request) {
	var req CurrentIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	issue, err := h.manager.ResolveIssue(r.Context(), req.Number)
	if err != nil {
		h.logger.Error("failed to resolve issue", zap.Int("number", req.Number), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	current := h.manager.NewCurrentIssue(issue)
	if err := h.manager.SetCurrentIssue(current); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if req.StartWorking {
		if err := current.StartWorking(r.Context()); err != nil {
			h.logger.Error("failed to start working", zap.Int("number", req.Number), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, summarizeOne(issue))
}

// ClearCurrentIssue handles DELETE /current
func (h *Handler) ClearCurrentIssue(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.SetCurrentIssue(nil); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success": true}`))
}

// RegisterRoutes registers REST API routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/issues", h.GetIssueData)
	r.Get("/milestones", h.GetMilestones)
	r.Post("/refresh", h.Refresh)
	r.Get("/current", h.GetCurrentIssue)
	r.Put("/current", h.SetCurrentIssue)
	r.Delete("/current", h.ClearCurrentIssue)
}

func summarize(issues []*types.Issue) []IssueSummary {
	if issues == nil {
		return nil
	}
	out := make([]IssueSummary, 0, len(issues))
	for _, issue := range issues {
		out = append(out, summarizeOne(issue))
	}
	return out
}

func summarizeOne(issue *types.Issue) IssueSummary {
	return IssueSummary{
		Number:    issue.Number,
		Key:       issue.Key,
		Title:     issue.Title,
		State:     issue.State,
		Milestone: issue.Milestone,
		URL:       issue.URL,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
