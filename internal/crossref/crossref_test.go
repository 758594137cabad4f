package crossref

import (
	"reflect"
	"testing"

	"github.com/nhle/taskhub/internal/model"
)

func TestIssueKeys(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  []string
	}{
		{"none", []string{"fix the login page"}, nil},
		{"single", []string{"Follow up on OPS-12"}, []string{"OPS-12"}},
		{"dedup across texts", []string{"OPS-12 and INFRA2-7", "see OPS-12"}, []string{"OPS-12", "INFRA2-7"}},
		{"lowercase ignored", []string{"ops-12"}, nil},
		{"embedded in word ignored", []string{"XOPS-12x"}, nil},
		{"branch style", []string{"feature/OPS-99-cleanup"}, []string{"OPS-99"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IssueKeys(tt.texts...); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("IssueKeys(%q) = %v, want %v", tt.texts, got, tt.want)
			}
		})
	}
}

func TestTaskKeysAndLinked(t *testing.T) {
	task := model.Task{
		Title:       "Roll out OPS-3",
		Description: "Blocked by OPS-1",
		Tags:        []string{"OPS-2"},
	}
	keys := TaskKeys(task)
	if want := []string{"OPS-3", "OPS-1", "OPS-2"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("TaskKeys = %v, want %v", keys, want)
	}

	cached := []model.CachedIssue{
		{IssueKey: "OPS-1", Summary: "one"},
		{IssueKey: "OPS-3", Summary: "three"},
		{IssueKey: "OPS-9", Summary: "unrelated"},
	}
	linked := Linked(keys, cached)
	if len(linked) != 2 || linked[0].IssueKey != "OPS-3" || linked[1].IssueKey != "OPS-1" {
		t.Errorf("Linked = %+v", linked)
	}

	if got := Linked(nil, cached); got == nil || len(got) != 0 {
		t.Errorf("Linked(nil) = %#v, want empty non-nil slice", got)
	}
}
