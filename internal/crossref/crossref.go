// Package crossref finds Jira issue keys mentioned in free text.
package crossref

import (
	"regexp"

	"github.com/nhle/taskhub/internal/model"
)

// jiraKeyPattern matches Jira issue keys (e.g., PROJ-123, ABC-1).
var jiraKeyPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)

// IssueKeys extracts the Jira issue keys mentioned across texts, deduplicated
// in order of first occurrence.
func IssueKeys(texts ...string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, text := range texts {
		for _, m := range jiraKeyPattern.FindAllString(text, -1) {
			if seen[m] {
				continue
			}
			seen[m] = true
			result = append(result, m)
		}
	}
	return result
}

// TaskKeys returns the issue keys mentioned in a task's title, description
// and tags.
func TaskKeys(t model.Task) []string {
	texts := append([]string{t.Title, t.Description}, t.Tags...)
	return IssueKeys(texts...)
}

// Linked returns the cached issues whose key is in keys, ordered like keys.
func Linked(keys []string, cached []model.CachedIssue) []model.CachedIssue {
	byKey := make(map[string]model.CachedIssue, len(cached))
	for _, c := range cached {
		byKey[c.IssueKey] = c
	}

	linked := []model.CachedIssue{}
	for _, k := range keys {
		if c, ok := byKey[k]; ok {
			linked = append(linked, c)
		}
	}
	return linked
}
