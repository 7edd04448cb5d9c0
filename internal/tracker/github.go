package tracker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/clintrovert/praxis/pkg/types"
)

// GitHubProvider serves issue and milestone data for a single GitHub
// repository.
type GitHubProvider struct {
	stateTracker

	apiClient *github.Client
	logger    *zap.Logger
	owner     string
	repo      string
}

// NewGitHubProvider creates a provider authenticated with accessToken.
func NewGitHubProvider(accessToken, owner, repo string, logger *zap.Logger) *GitHubProvider {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: accessToken},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &GitHubProvider{
		apiClient: github.NewClient(tc),
		logger:    logger,
		owner:     owner,
		repo:      repo,
	}
}

// Load verifies the repository is reachable and marks the provider ready.
func (p *GitHubProvider) Load(ctx context.Context) error {
	_, resp, err := p.apiClient.Repositories.Get(ctx, p.owner, p.repo)
	if err != nil {
		if resp != nil && resp.StatusCode == 401 {
			p.setState(StateNeedsAuthentication)
		}
		return fmt.Errorf("failed to load repository %s/%s: %w", p.owner, p.repo, err)
	}

	p.setState(StateRepositoriesLoaded)
	p.logger.Info("repository loaded",
		zap.String("owner", p.owner),
		zap.String("repo", p.repo),
	)
	return nil
}

// Issues runs a search query scoped to the provider's repository.
func (p *GitHubProvider) Issues(ctx context.Context, opts FetchOptions, query string) ([]*types.Issue, error) {
	scoped := fmt.Sprintf("%s repo:%s/%s is:issue", query, p.owner, p.repo)
	result, _, err := p.apiClient.Search.Issues(ctx, scoped, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: opts.PageSize},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}

	issues := make([]*types.Issue, 0, len(result.Issues))
	for _, issue := range result.Issues {
		if issue.IsPullRequest() {
			continue
		}
		issues = append(issues, convertGitHubIssue(issue))
	}
	return issues, nil
}

// Milestones returns open milestones, each paired with its open issues.
func (p *GitHubProvider) Milestones(ctx context.Context, opts FetchOptions, includeIssuesWithoutMilestone bool) ([]types.MilestoneBucket, error) {
	milestones, _, err := p.apiClient.Issues.ListMilestones(ctx, p.owner, p.repo, &github.MilestoneListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: opts.PageSize},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}

	buckets := make([]types.MilestoneBucket, 0, len(milestones)+1)
	for _, ms := range milestones {
		issues, err := p.issuesForMilestone(ctx, opts, strconv.Itoa(ms.GetNumber()))
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, types.MilestoneBucket{
			Milestone: convertGitHubMilestone(ms),
			Issues:    issues,
		})
	}

	if includeIssuesWithoutMilestone {
		issues, err := p.issuesForMilestone(ctx, opts, "none")
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, types.MilestoneBucket{
			Milestone: types.Milestone{Title: "Issues without milestone"},
			Issues:    issues,
		})
	}

	return buckets, nil
}

func (p *GitHubProvider) issuesForMilestone(ctx context.Context, opts FetchOptions, milestone string) ([]*types.Issue, error) {
	raw, _, err := p.apiClient.Issues.ListByRepo(ctx, p.owner, p.repo, &github.IssueListByRepoOptions{
		Milestone:   milestone,
		State:       "open",
		ListOptions: github.ListOptions{PerPage: opts.PageSize},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list issues for milestone %s: %w", milestone, err)
	}

	issues := make([]*types.Issue, 0, len(raw))
	for _, issue := range raw {
		if issue.IsPullRequest() {
			continue
		}
		issues = append(issues, convertGitHubIssue(issue))
	}
	return issues, nil
}

// AssignableUsers lists accounts assignable on the repository.
func (p *GitHubProvider) AssignableUsers(ctx context.Context) ([]types.Account, error) {
	users, _, err := p.apiClient.Issues.ListAssignees(ctx, p.owner, p.repo, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignees: %w", err)
	}

	accounts := make([]types.Account, 0, len(users))
	for _, user := range users {
		accounts = append(accounts, convertGitHubUser(user))
	}
	return accounts, nil
}

// ResolveIssue hydrates a single issue by number.
func (p *GitHubProvider) ResolveIssue(ctx context.Context, number int) (*types.Issue, error) {
	issue, _, err := p.apiClient.Issues.Get(ctx, p.owner, p.repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %d: %w", number, err)
	}
	return convertGitHubIssue(issue), nil
}

func convertGitHubIssue(issue *github.Issue) *types.Issue {
	out := &types.Issue{
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     issue.GetState(),
		Author:    convertGitHubUser(issue.GetUser()),
		Milestone: issue.GetMilestone().GetTitle(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
		URL:       issue.GetHTMLURL(),
	}
	for _, assignee := range issue.Assignees {
		out.Assignees = append(out.Assignees, convertGitHubUser(assignee))
	}
	return out
}

func convertGitHubMilestone(ms *github.Milestone) types.Milestone {
	out := types.Milestone{
		ID:        strconv.FormatInt(ms.GetID(), 10),
		Title:     ms.GetTitle(),
		CreatedAt: ms.GetCreatedAt().Time,
	}
	if ms.DueOn != nil {
		due := ms.DueOn.Time
		out.DueOn = &due
	}
	return out
}

func convertGitHubUser(user *github.User) types.Account {
	return types.Account{
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		AvatarURL: user.GetAvatarURL(),
		URL:       user.GetHTMLURL(),
	}
}
