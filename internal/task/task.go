// Package task implements the per-tenant task list.
package task

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/mbd888/tenantdesk/internal/validation"
)

// Errors
var (
	ErrTaskNotFound     = errors.New("task: not found")
	ErrDescriptionTaken = errors.New("task: description already used in this workspace")
	ErrOwnerNotFound    = errors.New("task: owner does not exist")
)

// Column limits.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 500
	MinDescriptionLength = 5
	summaryLimit         = 50
	summaryCut           = 47
)

// Task is a to-do item owned by one user of a tenant partition.
type Task struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate reports the first violated rule at now.
func (t *Task) Validate(now time.Time) error {
	return validation.First(
		validation.Check("title", t.Title == "", "title cannot be empty"),
		validation.Check("published_at", t.PublishedAt != nil && t.PublishedAt.After(now),
			"published_at cannot be in the future"),
		validation.MinLength("description", t.Description, MinDescriptionLength,
			"description should be at least 5 characters long"),
		validation.Check("title", utf8.RuneCountInString(t.Title) > MaxTitleLength,
			"title must be at most 200 characters long"),
		validation.Check("description", utf8.RuneCountInString(t.Description) > MaxDescriptionLength,
			"description must be at most 500 characters long"),
	).Err()
}

// IsOverdue reports a published task that is still open.
func (t *Task) IsOverdue() bool {
	return t.PublishedAt != nil && !t.Completed
}

// Summary returns the title followed by the description, cut to 47
// characters plus an ellipsis when it runs past 50.
func (t *Task) Summary() string {
	desc := t.Description
	if utf8.RuneCountInString(desc) > summaryLimit {
		desc = string([]rune(desc)[:summaryCut]) + "..."
	}
	return t.Title + " : " + desc
}

// MarkComplete closes the task in memory. The caller persists it.
func (t *Task) MarkComplete(now time.Time) *Task {
	t.Completed = true
	t.UpdatedAt = now
	return t
}

// MarkIncomplete reopens the task in memory. The caller persists it.
func (t *Task) MarkIncomplete(now time.Time) *Task {
	t.Completed = false
	t.UpdatedAt = now
	return t
}

func (t *Task) String() string {
	return t.Title
}

// View is the JSON shape served by the task endpoints.
type View struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	PublishedAt *time.Time `json:"published_at"`
	Summary     string     `json:"summary"`
	IsOverdue   bool       `json:"is_overdue"`
}

// ToView annotates t with its derived fields.
func (t *Task) ToView() View {
	return View{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		PublishedAt: t.PublishedAt,
		Summary:     t.Summary(),
		IsOverdue:   t.IsOverdue(),
	}
}
