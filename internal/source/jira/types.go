package jira

// SearchResponse is the response from POST /rest/api/2/search.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue represents a single Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the fields requested during a search.
type IssueFields struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Priority    *Priority `json:"priority"`
	IssueType   IssueType `json:"issuetype"`
	Assignee    *User     `json:"assignee"`
	Updated     string    `json:"updated"`
}

// Status represents the status of a Jira issue.
type Status struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Priority represents the priority level of a Jira issue.
type Priority struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// IssueType represents the type of a Jira issue (Bug, Story, etc.).
type IssueType struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// User represents a Jira user.
type User struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Myself is the response from GET /rest/api/2/myself.
type Myself struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// ErrorResponse is the standard Jira error response format.
type ErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}
