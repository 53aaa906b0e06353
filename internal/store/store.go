package store

import (
	"context"
	"errors"

	"github.com/nhle/taskminder/internal/model"
)

// Sentinel errors shared by every backend. Callers match them with errors.Is.
var (
	// ErrNotFound means the collection, task or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a uniqueness constraint was violated.
	ErrConflict = errors.New("already exists")
)

// TaskStore persists per-user task collections. Every mutation targets a
// single task inside a single user's collection atomically; none of them
// rewrites the whole collection.
type TaskStore interface {
	// GetCollection returns the user's collection or ErrNotFound.
	GetCollection(ctx context.Context, email string) (*model.UserTaskCollection, error)

	// EnsureCollection creates an empty collection for email if none exists.
	EnsureCollection(ctx context.Context, email string) error

	// PushTask appends task to an existing collection.
	PushTask(ctx context.Context, email string, task model.Task) error

	// UpdateTask applies patch to the task in place and returns the result.
	UpdateTask(ctx context.Context, email, id string, patch model.TaskPatch) (*model.Task, error)

	// ToggleTask flips the task's status and returns the result.
	ToggleTask(ctx context.Context, email, id string) (*model.Task, error)

	// RemoveTask deletes the task from the collection.
	RemoveTask(ctx context.Context, email, id string) error

	// ListCollections returns every collection with its tasks.
	ListCollections(ctx context.Context) ([]model.UserTaskCollection, error)

	// MarkReminded sets reminded=true on the given tasks of one collection
	// in a single write. Only the reminded field is touched.
	MarkReminded(ctx context.Context, email string, ids []string) error
}

// UserStore persists user accounts.
type UserStore interface {
	// CreateUser inserts u, returning ErrConflict if the email is taken.
	CreateUser(ctx context.Context, u model.User) error

	// GetUserByEmail returns the user or ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// GetUserByGoogleID returns the user linked to a Google account or ErrNotFound.
	GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// LinkGoogleID records googleID on the user with email. It returns
	// ErrNotFound for an unknown email and ErrConflict if another user
	// already holds googleID.
	LinkGoogleID(ctx context.Context, email, googleID string) error
}

// Store is the full persistence interface implemented by each backend.
type Store interface {
	TaskStore
	UserStore

	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MongoStore)(nil)
)
