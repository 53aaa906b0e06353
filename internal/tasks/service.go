// Package tasks implements the per-user task operations on top of a
// store.TaskStore: validation, id assignment, the explicit
// get-or-create of a user's collection, and filtering for presentation.
package tasks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/nhle/taskminder/internal/model"
	"github.com/nhle/taskminder/internal/store"
)

var (
	opsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskminder_task_operations_total",
			Help: "Total number of task operations by kind and outcome",
		},
		[]string{"op", "status"},
	)

	opDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskminder_task_operation_duration_seconds",
			Help:    "Duration of task operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// Service exposes the TaskStore contract for a single trusted email at a time.
type Service struct {
	store store.TaskStore
	log   *logrus.Entry
}

// NewService creates a Service backed by s.
func NewService(s store.TaskStore, log *logrus.Logger) *Service {
	return &Service{
		store: s,
		log:   log.WithField("component", "tasks"),
	}
}

// observe records the outcome and duration of one operation.
func observe(op string, start time.Time, err error) {
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "success"
	switch {
	case err == nil:
	case IsValidationError(err):
		status = "invalid"
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	default:
		status = "error"
	}
	opsTotal.WithLabelValues(op, status).Inc()
}

// List returns the user's tasks in creation order. A user without a
// collection has no tasks; that is not an error.
func (s *Service) List(ctx context.Context, email string) (tasks []model.Task, err error) {
	defer func(start time.Time) { observe("list", start, err) }(time.Now())

	col, err := s.store.GetCollection(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []model.Task{}, nil
		}
		return nil, wrapStoreErr("listing tasks", err)
	}
	return col.Tasks, nil
}

// GetOrCreateCollection returns the user's collection, creating an empty
// one first if needed.
func (s *Service) GetOrCreateCollection(
	ctx context.Context,
	email string,
) (*model.UserTaskCollection, error) {
	if err := s.store.EnsureCollection(ctx, email); err != nil {
		return nil, wrapStoreErr("creating collection", err)
	}
	col, err := s.store.GetCollection(ctx, email)
	if err != nil {
		return nil, wrapStoreErr("loading collection", err)
	}
	return col, nil
}

// Add validates in, assigns a fresh id and appends the task to the user's
// collection, creating the collection on first use.
func (s *Service) Add(
	ctx context.Context,
	email string,
	in model.TaskInput,
) (task *model.Task, err error) {
	defer func(start time.Time) { observe("add", start, err) }(time.Now())

	if strings.TrimSpace(in.Title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "is required"}
	}
	if strings.TrimSpace(in.DueDate) == "" {
		return nil, &ValidationError{Field: "dueDate", Reason: "is required"}
	}
	status := model.StatusOpen
	if in.Status != "" {
		status, err = model.ParseStatus(in.Status)
		if err != nil {
			return nil, &ValidationError{Field: "status", Reason: "must be open or completed"}
		}
	}

	if _, err := s.GetOrCreateCollection(ctx, email); err != nil {
		return nil, err
	}

	t := model.Task{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      status,
	}
	if err := s.store.PushTask(ctx, email, t); err != nil {
		return nil, wrapStoreErr("adding task", err)
	}

	s.log.WithFields(logrus.Fields{"email": email, "task_id": t.ID}).Debug("task added")
	return &t, nil
}

// Update replaces the provided fields of one task. The id and the
// reminded flag are never changed; in particular a new due date does not
// re-arm the reminder.
func (s *Service) Update(
	ctx context.Context,
	email, id string,
	patch model.TaskPatch,
) (task *model.Task, err error) {
	defer func(start time.Time) { observe("update", start, err) }(time.Now())

	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if patch.DueDate != nil && strings.TrimSpace(*patch.DueDate) == "" {
		return nil, &ValidationError{Field: "dueDate", Reason: "must not be empty"}
	}
	if patch.Status != nil {
		st, err := model.ParseStatus(string(*patch.Status))
		if err != nil {
			return nil, &ValidationError{Field: "status", Reason: "must be open or completed"}
		}
		patch.Status = &st
	}

	task, err = s.store.UpdateTask(ctx, email, id, patch)
	if err != nil {
		return nil, wrapStoreErr("updating task", err)
	}
	return task, nil
}

// Toggle flips a task between open and completed.
func (s *Service) Toggle(
	ctx context.Context,
	email, id string,
) (task *model.Task, err error) {
	defer func(start time.Time) { observe("toggle", start, err) }(time.Now())

	task, err = s.store.ToggleTask(ctx, email, id)
	if err != nil {
		return nil, wrapStoreErr("toggling task", err)
	}
	return task, nil
}

// Remove deletes one task from the user's collection.
func (s *Service) Remove(ctx context.Context, email, id string) (err error) {
	defer func(start time.Time) { observe("remove", start, err) }(time.Now())

	if err := s.store.RemoveTask(ctx, email, id); err != nil {
		return wrapStoreErr("removing task", err)
	}

	s.log.WithFields(logrus.Fields{"email": email, "task_id": id}).Debug("task removed")
	return nil
}
