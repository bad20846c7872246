package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/kv"
	"github.com/hray3182/agenda/internal/notify"
)

var testNow = time.Date(2025, 5, 1, 8, 0, 0, 0, time.Local)

// fakeNotifier records calls and refuses past fire times like the real one.
type fakeNotifier struct {
	mu        sync.Mutex
	scheduled map[string]notify.Request
	cancels   []string
	failNext  error
	seq       int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{scheduled: map[string]notify.Request{}}
}

func (f *fakeNotifier) Schedule(ctx context.Context, req notify.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return "", err
	}
	if !req.FireAt.After(testNow) {
		return "", notify.ErrNotInFuture
	}
	f.seq++
	f.scheduled[req.TaskID] = req
	return fmt.Sprintf("n%d", f.seq), nil
}

func (f *fakeNotifier) Cancel(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, taskID)
	delete(f.scheduled, taskID)
	return nil
}

func (f *fakeNotifier) CancelAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = map[string]notify.Request{}
	return nil
}

func (f *fakeNotifier) ListScheduled(ctx context.Context) ([]notify.Scheduled, error) {
	return nil, errors.New("not used")
}

func (f *fakeNotifier) has(taskID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.scheduled[taskID]
	return ok
}

func newTestTaskStore(t *testing.T) (*TaskStore, *fakeNotifier, *kv.Writer) {
	t.Helper()
	writer := kv.NewWriter(kv.NewMemoryStore(), zap.NewNop())
	n := newFakeNotifier()
	s := NewTaskStore(writer, n, zap.NewNop())
	s.now = func() time.Time { return testNow }
	return s, n, writer
}

func newTestRecurrenceStore(t *testing.T) (*RecurrenceStore, *kv.Writer) {
	t.Helper()
	writer := kv.NewWriter(kv.NewMemoryStore(), zap.NewNop())
	s := NewRecurrenceStore(writer, zap.NewNop())
	s.now = func() time.Time { return testNow }
	return s, writer
}

func at(hour, minute int) *time.Time {
	t := time.Date(2025, 5, 1, hour, minute, 0, 0, time.Local)
	return &t
}
