package tasks

import (
	"strings"

	"github.com/nhle/taskminder/internal/model"
)

// FilterAll passes every task regardless of status.
const FilterAll = "all"

// Filter returns the tasks matching status and search, in their original
// order. An empty or "all" status passes every task and an unknown status
// passes none; status is matched ignoring case. A non-empty search keeps
// tasks whose title or description contains it, ignoring case.
func Filter(tasks []model.Task, status, search string) []model.Task {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]model.Task, 0, len(tasks))

	status = strings.TrimSpace(status)
	anyStatus := status == "" || strings.EqualFold(status, FilterAll)
	want, err := model.ParseStatus(status)
	if !anyStatus && err != nil {
		return out
	}

	for _, t := range tasks {
		if !anyStatus && t.Status != want {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t)
	}
	return out
}
