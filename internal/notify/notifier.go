// Package notify schedules reminder notifications for agenda tasks and
// delivers them when they come due.
package notify

import (
	"context"
	"errors"
	"time"
)

var ErrNotInFuture = errors.New("notify: fire time is not in the future")

// Request describes one reminder. OwnerDate is the day key of the task's cell.
type Request struct {
	TaskID    string
	Title     string
	Body      string
	FireAt    time.Time
	OwnerDate string
}

// Scheduled is a pending notification as listed by ListScheduled.
type Scheduled struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FireAt    time.Time `json:"fireAt"`
	OwnerDate string    `json:"ownerDate"`
}

// Notifier is the contract the task store relies on. At most one
// notification is scheduled per task id.
type Notifier interface {
	Schedule(ctx context.Context, req Request) (string, error)
	Cancel(ctx context.Context, taskID string) error
	CancelAll(ctx context.Context) error
	ListScheduled(ctx context.Context) ([]Scheduled, error)
}

// Sender delivers a due notification to the user.
type Sender interface {
	Send(ctx context.Context, n Scheduled) error
}
