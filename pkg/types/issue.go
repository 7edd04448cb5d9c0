package types

import (
	"strconv"
	"time"
)

// Account identifies a remote tracker user.
type Account struct {
	Login     string
	Name      string
	AvatarURL string
	URL       string
}

// Issue is a resolved issue from the remote tracker.
type Issue struct {
	Number    int
	Key       string // tracker-specific identifier, e.g. "PROJ-123" for Jira
	Title     string
	Body      string
	State     string
	Author    Account
	Assignees []Account
	Milestone string
	CreatedAt time.Time
	UpdatedAt time.Time
	URL       string
}

// Identifier returns the stable cache key for the issue. Jira issues carry
// a string key; GitHub issues are identified by number alone.
func (i *Issue) Identifier() string {
	if i.Key != "" {
		return i.Key
	}
	return strconv.Itoa(i.Number)
}

// Milestone is a display bucket grouping issues, with an optional due date.
type Milestone struct {
	ID        string
	Title     string
	DueOn     *time.Time
	CreatedAt time.Time
}

// MilestoneBucket pairs a milestone with the issues assigned to it.
type MilestoneBucket struct {
	Milestone Milestone
	Issues    []*Issue
}
