package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/daykey"
	"github.com/hray3182/agenda/internal/kv"
)

const stateKey = "notifications"

// Scheduler keeps pending reminders in memory, persists them through the
// write-behind writer and delivers due ones from its Start loop.
type Scheduler struct {
	mu             sync.Mutex
	pending        map[string]Scheduled // by task id
	lastReconciled string

	sender        Sender
	writer        *kv.Writer
	logger        *zap.Logger
	checkInterval time.Duration
	notifyCh      chan struct{}
	now           func() time.Time
	newID         func() string
	taskExists    func(taskID string) bool
}

func NewScheduler(sender Sender, writer *kv.Writer, logger *zap.Logger, checkInterval time.Duration) (*Scheduler, error) {
	newID, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	return &Scheduler{
		pending:       map[string]Scheduled{},
		sender:        sender,
		writer:        writer,
		logger:        logger,
		checkInterval: checkInterval,
		notifyCh:      make(chan struct{}, 1),
		now:           time.Now,
		newID:         newID,
	}, nil
}

// SetTaskLookup installs the predicate used by Reconcile to drop reminders
// whose task no longer exists.
func (s *Scheduler) SetTaskLookup(exists func(taskID string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskExists = exists
}

// Load restores the persisted schedule.
func (s *Scheduler) Load(ctx context.Context) error {
	raw, ok, err := s.writer.Load(ctx, stateKey)
	if err != nil {
		return fmt.Errorf("failed to load notifications: %w", err)
	}
	if !ok {
		return nil
	}

	var list []Scheduled
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return fmt.Errorf("failed to decode notifications: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]Scheduled, len(list))
	for _, n := range list {
		s.pending[n.TaskID] = n
	}
	return nil
}

func (s *Scheduler) Schedule(ctx context.Context, req Request) (string, error) {

	if !req.FireAt.After(s.now()) {
		return "", ErrNotInFuture
	}

	n := Scheduled{
		ID:        s.newID(),
		TaskID:    req.TaskID,
		Title:     req.Title,
		Body:      req.Body,
		FireAt:    req.FireAt,
		OwnerDate: req.OwnerDate,
	}

	s.mu.Lock()
	s.pending[req.TaskID] = n
	s.persistLocked()
	s.mu.Unlock()

	s.Notify()
	return n.ID, nil
}

func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[taskID]; !ok {
		return nil
	}
	delete(s.pending, taskID)
	s.persistLocked()
	return nil
}

func (s *Scheduler) CancelAll(ctx context.Context) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = map[string]Scheduled{}
	s.persistLocked()
	return nil
}

func (s *Scheduler) ListScheduled(ctx context.Context) ([]Scheduled, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(), nil
}

// Notify triggers an immediate check. Non-blocking if a check is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("interval", s.checkInterval))
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.check(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.check(ctx)
		case <-s.notifyCh:
			s.check(ctx)
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	today := daykey.Today(s.now())

	s.mu.Lock()
	needsReconcile := s.lastReconciled != today
	s.mu.Unlock()

	if needsReconcile {
		s.Reconcile(ctx)
	}
	s.deliverDue(ctx)
}

// Reconcile drops reminders that can no longer fire meaningfully: those
// whose owning day has passed and those whose task is gone. It returns the
// number of dropped entries.
func (s *Scheduler) Reconcile(ctx context.Context) int {
	today := daykey.Today(s.now())

	s.mu.Lock()
	exists := s.taskExists
	candidates := s.sortedLocked()
	s.mu.Unlock()

	// The lookup reads the task store, so it runs without holding s.mu.
	var drop []Scheduled
	for _, n := range candidates {
		stale := n.OwnerDate != "" && n.OwnerDate < today
		orphaned := exists != nil && !exists(n.TaskID)
		if stale || orphaned {
			drop = append(drop, n)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for _, n := range drop {
		if cur, ok := s.pending[n.TaskID]; ok && cur.ID == n.ID {
			delete(s.pending, n.TaskID)
			dropped++
		}
	}
	s.lastReconciled = today
	if dropped > 0 {
		s.persistLocked()
		s.logger.Info("reconciled notifications", zap.Int("dropped", dropped), zap.String("day", today))
	}
	return dropped
}

func (s *Scheduler) deliverDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []Scheduled
	for _, n := range s.sortedLocked() {
		if !n.FireAt.After(now) {
			due = append(due, n)
		}
	}
	s.mu.Unlock()

	for _, n := range due {
		if err := s.sender.Send(ctx, n); err != nil {
			// Kept pending; the next tick retries.
			s.logger.Warn("failed to send notification", zap.String("task_id", n.TaskID), zap.Error(err))
			continue
		}

		s.mu.Lock()
		// The task may have been rescheduled while we were sending.
		if cur, ok := s.pending[n.TaskID]; ok && cur.ID == n.ID {
			delete(s.pending, n.TaskID)
			s.persistLocked()
		}
		s.mu.Unlock()

		s.logger.Info("sent notification", zap.String("task_id", n.TaskID), zap.String("id", n.ID))
	}
}

func (s *Scheduler) sortedLocked() []Scheduled {
	out := make([]Scheduled, 0, len(s.pending))
	for _, n := range s.pending {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

func (s *Scheduler) persistLocked() {
	b, err := json.Marshal(s.sortedLocked())
	if err != nil {
		s.logger.Error("failed to encode notifications", zap.Error(err))
		return
	}
	s.writer.Save(stateKey, string(b))
}

var _ Notifier = (*Scheduler)(nil)
