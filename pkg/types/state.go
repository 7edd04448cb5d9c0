package types

// IssueState is the small per-issue record persisted across sessions.
// StateModifiedTime is unix milliseconds of the last write; entries older
// than the retention window are purged on startup.
type IssueState struct {
	Branch            string `json:"branch,omitempty"`
	StateModifiedTime int64  `json:"stateModifiedTime"`
}

// PersistedIssueState is the JSON blob stored under the "issues" workspace key.
type PersistedIssueState struct {
	Issues map[string]IssueState `json:"issues"`
}
