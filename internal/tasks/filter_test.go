package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/taskminder/internal/model"
)

func sampleTasks() []model.Task {
	return []model.Task{
		{ID: "1", Title: "Buy milk", Description: "2 litres", Status: model.StatusOpen},
		{ID: "2", Title: "File taxes", Description: "before April", Status: model.StatusCompleted},
		{ID: "3", Title: "Call mom", Description: "about the MILK delivery", Status: model.StatusCompleted},
		{ID: "4", Title: "Water plants", Status: model.StatusOpen},
	}
}

func ids(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestFilter(t *testing.T) {
	cases := []struct {
		name   string
		status string
		search string
		want   []string
	}{
		{"all passes everything", "all", "", []string{"1", "2", "3", "4"}},
		{"empty status passes everything", "", "", []string{"1", "2", "3", "4"}},
		{"completed only", "completed", "", []string{"2", "3"}},
		{"open only", "open", "", []string{"1", "4"}},
		{"search title and description case-insensitively", "all", "milk", []string{"1", "3"}},
		{"status and search combine", "open", "MILK", []string{"1"}},
		{"no match", "all", "zebra", []string{}},
		{"status ignores case", "Completed", "", []string{"2", "3"}},
		{"all ignores case", "ALL", "", []string{"1", "2", "3", "4"}},
		{"unknown status matches nothing", "archived", "", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Filter(sampleTasks(), tc.status, tc.search)
			assert.Equal(t, tc.want, ids(got))
		})
	}
}
