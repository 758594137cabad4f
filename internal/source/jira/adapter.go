package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nhle/taskhub/internal/model"
)

// fetchFields are the Jira fields requested during search queries.
var fetchFields = []string{
	"summary", "description", "status", "priority",
	"assignee", "issuetype", "updated",
}

const (
	pageSize = 100
	// maxIssuesPerUser bounds one user's fetch so a runaway query cannot
	// stall a whole sync run.
	maxIssuesPerUser = 1000
)

// Adapter looks up a user's open Jira issues.
type Adapter struct {
	client   *Client
	baseURL  string
	jqlExtra string
}

// NewAdapter creates a new Jira issue source. jqlExtra, when set, is
// AND-ed onto every assignee query.
func NewAdapter(client *Client, jqlExtra string) *Adapter {
	return &Adapter{
		client:   client,
		baseURL:  client.baseURL,
		jqlExtra: strings.TrimSpace(jqlExtra),
	}
}

// ValidateConnection verifies credentials by calling GET /rest/api/2/myself.
// Returns the account's display name on success.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	var me Myself
	if err := a.client.Get(ctx, "/rest/api/2/myself", &me); err != nil {
		return "", fmt.Errorf("validating Jira connection: %w", err)
	}
	return me.DisplayName, nil
}

// FetchIssues returns the unresolved issues assigned to identifier, most
// recently updated first. An unknown identifier yields an empty slice.
func (a *Adapter) FetchIssues(ctx context.Context, identifier string) ([]model.ExternalIssue, error) {
	jql := a.assigneeJQL(identifier)

	var issues []model.ExternalIssue
	for startAt := 0; startAt < maxIssuesPerUser; {
		body := map[string]any{
			"jql":        jql,
			"fields":     fetchFields,
			"startAt":    startAt,
			"maxResults": pageSize,
		}

		var resp SearchResponse
		if err := a.client.Post(ctx, "/rest/api/2/search", body, &resp); err != nil {
			return nil, fmt.Errorf("searching Jira issues for %s: %w", identifier, err)
		}

		for _, issue := range resp.Issues {
			issues = append(issues, a.toExternal(issue))
		}

		startAt += len(resp.Issues)
		if len(resp.Issues) == 0 || startAt >= resp.Total {
			break
		}
	}

	return issues, nil
}

func (a *Adapter) assigneeJQL(identifier string) string {
	jql := fmt.Sprintf(`assignee = "%s" AND resolution = Unresolved`, escapeJQL(identifier))
	if a.jqlExtra != "" {
		jql += " AND (" + a.jqlExtra + ")"
	}
	return jql + " ORDER BY updated DESC"
}

// toExternal converts a Jira Issue to a model.ExternalIssue.
func (a *Adapter) toExternal(issue Issue) model.ExternalIssue {
	rawData, _ := json.Marshal(issue)

	assignee := ""
	if issue.Fields.Assignee != nil {
		assignee = issue.Fields.Assignee.DisplayName
	}

	priority := ""
	if issue.Fields.Priority != nil {
		priority = issue.Fields.Priority.Name
	}

	return model.ExternalIssue{
		Key:         issue.Key,
		ID:          issue.ID,
		Summary:     issue.Fields.Summary,
		Description: issue.Fields.Description,
		Status:      issue.Fields.Status.Name,
		Priority:    priority,
		Assignee:    assignee,
		IssueType:   issue.Fields.IssueType.Name,
		URL:         a.baseURL + "/browse/" + issue.Key,
		Raw:         string(rawData),
	}
}

// escapeJQL escapes special characters in a quoted JQL value.
func escapeJQL(s string) string {
	// Escape backslashes first, then double-quotes.
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
