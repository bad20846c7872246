package agenda

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/kv"
	"github.com/hray3182/agenda/internal/notify"
	"github.com/hray3182/agenda/internal/repository"
)

var fixedNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local)

type stubNotifier struct {
	mu      sync.Mutex
	seq     int
	pending map[string]notify.Request
}

func (n *stubNotifier) Schedule(ctx context.Context, req notify.Request) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	n.pending[req.TaskID] = req
	return fmt.Sprintf("h%d", n.seq), nil
}

func (n *stubNotifier) Cancel(ctx context.Context, taskID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.pending, taskID)
	return nil
}

func (n *stubNotifier) CancelAll(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = map[string]notify.Request{}
	return nil
}

func (n *stubNotifier) ListScheduled(ctx context.Context) ([]notify.Scheduled, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Scheduled, 0, len(n.pending))
	for _, r := range n.pending {
		out = append(out, notify.Scheduled{TaskID: r.TaskID, FireAt: r.FireAt, OwnerDate: r.OwnerDate})
	}
	return out, nil
}

type fixture struct {
	svc      *Service
	tasks    *repository.TaskStore
	patterns *repository.RecurrenceStore
	notifier *stubNotifier
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	writer := kv.NewWriter(kv.NewMemoryStore(), zap.NewNop())
	n := &stubNotifier{pending: map[string]notify.Request{}}
	tasks := repository.NewTaskStore(writer, n, zap.NewNop())
	patterns := repository.NewRecurrenceStore(writer, zap.NewNop())
	svc := NewService(tasks, patterns, zap.NewNop(), cfg)
	svc.now = func() time.Time { return fixedNow }
	return fixture{svc: svc, tasks: tasks, patterns: patterns, notifier: n}
}

func clock(date string, hour, minute int) *time.Time {
	d, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		panic(err)
	}
	t := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.Local)
	return &t
}

func ptr[T any](v T) *T {
	return &v
}
