package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	"github.com/clintrovert/praxis/pkg/types"
)

// JiraProvider serves issue data for a single Jira project. Fix versions
// with release dates stand in for milestones.
type JiraProvider struct {
	stateTracker

	client     *jira.Client
	logger     *zap.Logger
	projectKey string
}

// NewJiraProvider creates a provider using basic auth.
func NewJiraProvider(baseURL, username, apiToken, projectKey string, logger *zap.Logger) (*JiraProvider, error) {
	tp := jira.BasicAuthTransport{
		Username: username,
		Password: apiToken,
	}

	client, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	return &JiraProvider{
		client:     client,
		logger:     logger,
		projectKey: projectKey,
	}, nil
}

// Load verifies the project is reachable and marks the provider ready.
func (p *JiraProvider) Load(ctx context.Context) error {
	_, resp, err := p.client.Project.GetWithContext(ctx, p.projectKey)
	if err != nil {
		if resp != nil && resp.StatusCode == 401 {
			p.setState(StateNeedsAuthentication)
		}
		return fmt.Errorf("failed to load project %s: %w", p.projectKey, err)
	}

	p.setState(StateRepositoriesLoaded)
	p.logger.Info("project loaded", zap.String("project", p.projectKey))
	return nil
}

// Issues runs a JQL query scoped to the provider's project.
func (p *JiraProvider) Issues(ctx context.Context, opts FetchOptions, query string) ([]*types.Issue, error) {
	jql := fmt.Sprintf("project = %s AND %s", p.projectKey, query)
	return p.search(ctx, opts, jql)
}

// Milestones maps unreleased fix versions to milestone buckets.
func (p *JiraProvider) Milestones(ctx context.Context, opts FetchOptions, includeIssuesWithoutMilestone bool) ([]types.MilestoneBucket, error) {
	project, _, err := p.client.Project.GetWithContext(ctx, p.projectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	buckets := make([]types.MilestoneBucket, 0, len(project.Versions)+1)
	for _, version := range project.Versions {
		if version.Released != nil && *version.Released {
			continue
		}
		jql := fmt.Sprintf("project = %s AND fixVersion = %q AND statusCategory != Done", p.projectKey, version.Name)
		issues, err := p.search(ctx, opts, jql)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, types.MilestoneBucket{
			Milestone: convertJiraVersion(version),
			Issues:    issues,
		})
	}

	if includeIssuesWithoutMilestone {
		jql := fmt.Sprintf("project = %s AND fixVersion IS EMPTY AND statusCategory != Done", p.projectKey)
		issues, err := p.search(ctx, opts, jql)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, types.MilestoneBucket{
			Milestone: types.Milestone{Title: "Issues without fix version"},
			Issues:    issues,
		})
	}

	return buckets, nil
}

func (p *JiraProvider) search(ctx context.Context, opts FetchOptions, jql string) ([]*types.Issue, error) {
	raw, _, err := p.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{MaxResults: opts.PageSize})
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}

	issues := make([]*types.Issue, 0, len(raw))
	for i := range raw {
		issues = append(issues, convertJiraIssue(&raw[i]))
	}
	return issues, nil
}

// AssignableUsers lists users visible to the authenticated account.
func (p *JiraProvider) AssignableUsers(ctx context.Context) ([]types.Account, error) {
	users, _, err := p.client.User.FindWithContext(ctx, "", jira.WithMaxResults(100), jira.WithActive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}

	accounts := make([]types.Account, 0, len(users))
	for _, user := range users {
		accounts = append(accounts, convertJiraUser(&user))
	}
	return accounts, nil
}

// ResolveIssue hydrates a single issue by its numeric key suffix.
func (p *JiraProvider) ResolveIssue(ctx context.Context, number int) (*types.Issue, error) {
	key := fmt.Sprintf("%s-%d", p.projectKey, number)
	issue, _, err := p.client.Issue.GetWithContext(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", key, err)
	}
	return convertJiraIssue(issue), nil
}

func convertJiraIssue(issue *jira.Issue) *types.Issue {
	out := &types.Issue{
		Number:    issueKeyNumber(issue.Key),
		Key:       issue.Key,
		Title:     issue.Fields.Summary,
		Body:      issue.Fields.Description,
		CreatedAt: time.Time(issue.Fields.Created),
		UpdatedAt: time.Time(issue.Fields.Updated),
	}
	if issue.Fields.Status != nil {
		out.State = issue.Fields.Status.Name
	}
	if issue.Fields.Reporter != nil {
		out.Author = convertJiraUser(issue.Fields.Reporter)
	}
	if issue.Fields.Assignee != nil {
		out.Assignees = []types.Account{convertJiraUser(issue.Fields.Assignee)}
	}
	if len(issue.Fields.FixVersions) > 0 {
		out.Milestone = issue.Fields.FixVersions[0].Name
	}
	return out
}

func convertJiraVersion(version jira.Version) types.Milestone {
	out := types.Milestone{
		ID:    version.ID,
		Title: version.Name,
	}
	if t, err := time.Parse("2006-01-02", version.ReleaseDate); err == nil {
		out.DueOn = &t
	}
	if t, err := time.Parse("2006-01-02", version.StartDate); err == nil {
		out.CreatedAt = t
	}
	return out
}

func convertJiraUser(user *jira.User) types.Account {
	login := user.Name
	if login == "" {
		login = user.AccountID
	}
	return types.Account{
		Login: login,
		Name:  user.DisplayName,
		URL:   user.Self,
	}
}

// issueKeyNumber extracts the numeric suffix of a Jira key like "PROJ-123".
func issueKeyNumber(key string) int {
	idx := strings.LastIndex(key, "-")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
