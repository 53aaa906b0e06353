package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Completed ")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st)

	st, err = ParseStatus("open")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, st)

	_, err = ParseStatus("done")
	assert.Error(t, err)

	_, err = ParseStatus("")
	assert.Error(t, err)
}

func TestStatusToggleIsReversible(t *testing.T) {
	assert.Equal(t, StatusCompleted, StatusOpen.Toggle())
	assert.Equal(t, StatusOpen, StatusCompleted.Toggle())
	assert.Equal(t, StatusOpen, StatusOpen.Toggle().Toggle())
}

func TestTaskToggledKeepsOtherFields(t *testing.T) {
	orig := Task{
		ID:          "t1",
		Title:       "Write report",
		Description: "quarterly",
		DueDate:     "2026-10-20",
		Status:      StatusOpen,
		Reminded:    true,
	}

	got := orig.Toggled()

	assert.Equal(t, StatusCompleted, got.Status)
	got.Status = orig.Status
	assert.Equal(t, orig, got)
}

func TestTaskPatchApply(t *testing.T) {
	orig := Task{ID: "t1", Title: "a", Description: "b", DueDate: "2026-10-20", Status: StatusOpen, Reminded: true}

	assert.True(t, TaskPatch{}.Empty())
	assert.Equal(t, orig, TaskPatch{}.Apply(orig))

	title := "renamed"
	completed := StatusCompleted
	p := TaskPatch{Title: &title, Status: &completed}
	assert.False(t, p.Empty())

	got := p.Apply(orig)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "b", got.Description)
	assert.Equal(t, "t1", got.ID)
	assert.True(t, got.Reminded)
}

func TestParseDueDate(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	cases := []struct {
		name string
		in   string
		loc  *time.Location
		want time.Time
	}{
		{"rfc3339 utc", "2026-10-20T09:30:00Z", nil, time.Date(2026, 10, 20, 9, 30, 0, 0, time.UTC)},
		{"rfc3339 offset ignores loc", "2026-10-20T09:30:00+02:00", berlin, time.Date(2026, 10, 20, 7, 30, 0, 0, time.UTC)},
		{"rfc3339 millis", "2026-10-20T09:30:00.123Z", nil, time.Date(2026, 10, 20, 9, 30, 0, 123000000, time.UTC)},
		{"datetime-local seconds", "2026-10-20T09:30:15", nil, time.Date(2026, 10, 20, 9, 30, 15, 0, time.UTC)},
		{"datetime-local", "2026-10-20T09:30", nil, time.Date(2026, 10, 20, 9, 30, 0, 0, time.UTC)},
		{"space separated", "2026-10-20 09:30", nil, time.Date(2026, 10, 20, 9, 30, 0, 0, time.UTC)},
		{"space separated seconds", "2026-10-20 09:30:15", nil, time.Date(2026, 10, 20, 9, 30, 15, 0, time.UTC)},
		{"bare date is midnight", "2026-10-20", nil, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)},
		{"bare date in loc", "2026-10-20", berlin, time.Date(2026, 10, 20, 0, 0, 0, 0, berlin)},
		{"whitespace trimmed", "  2026-10-20  ", nil, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDueDate(tc.in, tc.loc)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestParseDueDateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "tomorrow", "20/10/2026", "2026-13-45"} {
		_, err := ParseDueDate(in, nil)
		assert.Error(t, err, "input %q", in)
	}
}

func TestCollectionFind(t *testing.T) {
	col := UserTaskCollection{
		Email: "a@example.com",
		Tasks: []Task{{ID: "1", Title: "one"}, {ID: "2", Title: "two"}},
	}

	got, ok := col.Find("2")
	require.True(t, ok)
	assert.Equal(t, "two", got.Title)

	_, ok = col.Find("3")
	assert.False(t, ok)
}
